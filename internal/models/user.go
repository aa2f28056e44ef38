package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	Email        string `json:"email" gorm:"column:email;not null;uniqueIndex"`
	PasswordHash string `json:"-" gorm:"column:password_hash;not null"`
	FullName     string `json:"full_name,omitempty" gorm:"column:full_name"`
	// TelegramUsername is matched against /start messages to learn the chat id.
	TelegramUsername string    `json:"telegram_username,omitempty" gorm:"column:telegram_username;index"`
	TelegramChatID   string    `json:"-" gorm:"column:telegram_chat_id"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
