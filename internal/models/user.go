package models

import "time"

type User struct {
	ID         string    `gorm:"primaryKey;column:id" json:"id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	Token      string    `gorm:"column:token;uniqueIndex;not null" json:"-"`
	Recruiting bool      `gorm:"column:recruiting;index" json:"recruiting"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Like struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	FromUserID string    `gorm:"column:from_user_id;uniqueIndex:idx_like_pair;not null"`
	ToUserID   string    `gorm:"column:to_user_id;uniqueIndex:idx_like_pair;index;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Like) TableName() string {
	return "likes"
}
