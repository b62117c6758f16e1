package dto

// CreateUserRequest represents the admin user creation request
type CreateUserRequest struct {
	Name string `json:"name" validate:"required,max=64" example:"Sari"`
}

// CreateUserResponse carries the new user's bearer token; it is shown only once
type CreateUserResponse struct {
	ID    string `json:"id" example:"0192f1e4-5c3a-7b8e-9a41-1f2e3d4c5b6a"`
	Name  string `json:"name" example:"Sari"`
	Token string `json:"token" example:"4f9c0b..."`
}

// UpdateStatusRequest toggles whether the caller is looking for a lunch partner
type UpdateStatusRequest struct {
	Recruiting *bool `json:"recruiting" validate:"required" example:"true"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID         string `json:"id" example:"0192f1e4-5c3a-7b8e-9a41-1f2e3d4c5b6a"`
	Name       string `json:"name" example:"Sari"`
	Recruiting bool   `json:"recruiting" example:"true"`
}
