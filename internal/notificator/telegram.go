package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/pkg/logger"
)

type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	db models.UserRepository
}

func NewTelegramNotificator(logger *logger.Logger, token string, db models.UserRepository) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
		db:     db,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	provider.bot = b
	return provider, nil
}

// Start polls for updates until ctx is cancelled.
func (t *TelegramNotificator) Start(ctx context.Context) {
	go t.bot.Start(ctx)
}

func (t *TelegramNotificator) SendNotification(chatId, message string) {
	params := &bot.SendMessageParams{
		ChatID: chatId,
		Text:   message,
	}
	_, err := t.bot.SendMessage(context.Background(), params)
	if err != nil {
		t.logger.Error("Failed to send telegram notification", "chat_id", chatId, "error", err)
	}
}

func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil {
		return
	}
	user := update.Message.From
	if user == nil {
		t.logger.Error("User is nil")
		return
	}
	t.logger.Debug("Telegram update", "username", user.Username, "text", update.Message.Text)
	if update.Message.Text != "/start" {
		return
	}

	chatID := fmt.Sprint(update.Message.Chat.ID)
	linked, err := t.db.SetTelegramChatID(ctx, user.Username, chatID)
	if err != nil {
		t.logger.Error("Failed to link telegram chat", "username", user.Username, "error", err)
		return
	}
	if linked == 0 {
		t.logger.Warn("No account uses this telegram username", "username", user.Username)
		t.SendNotification(chatID, "No account is linked to @"+user.Username+". Add your telegram username in your profile first.")
		return
	}
	t.logger.Info("Telegram chat linked", "username", user.Username)
	t.SendNotification(chatID, "You will now receive payment and subscription notifications here.")
}
