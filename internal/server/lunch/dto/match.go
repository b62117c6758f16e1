package dto

// LikeRequest represents liking another recruiting user
type LikeRequest struct {
	TargetID string `json:"target_id" validate:"required" example:"0192f1e4-5c3a-7b8e-9a41-1f2e3d4c5b6a"`
}

// LikeResponse reports whether the like was mutual and produced a match
type LikeResponse struct {
	Matched bool   `json:"matched" example:"true"`
	MatchID *int64 `json:"match_id" example:"42"`
}

// SendMessageRequest represents a chat message
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=2000" example:"12:30 at the north canteen?"`
}
