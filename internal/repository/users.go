package repository

import (
	"context"

	"github.com/stockvn/paygate/internal/models"
)

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	return wrap(db.conn(ctx).Create(user).Error, "create user")
}

func (db *PostgresDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := db.conn(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrap(err, "get user")
	}
	return &user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := db.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, wrap(err, "get user by email")
	}
	return &user, nil
}

func (db *PostgresDB) SetTelegramChatID(ctx context.Context, username, chatID string) (int64, error) {
	res := db.conn(ctx).Model(&models.User{}).Where("telegram_username = ?", username).Update("telegram_chat_id", chatID)
	if res.Error != nil {
		return 0, wrap(res.Error, "set telegram chat id")
	}
	return res.RowsAffected, nil
}
