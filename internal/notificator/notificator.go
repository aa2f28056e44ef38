package notificator

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/pkg/logger"
)

const lookupTimeout = 5 * time.Second

// sender delivers a plain text message to one address.
type sender interface {
	SendNotification(to, message string)
}

type Notificator struct {
	logger *logger.Logger
	db     models.UserRepository

	telegram sender
	email    sender
}

// NewNotificator fans notifications out to the channels that are configured. Either may be nil.
func NewNotificator(logger *logger.Logger, db models.UserRepository, telNotif *TelegramNotificator, emailNotif *EmailNotificator) *Notificator {
	n := &Notificator{logger: logger, db: db}
	if telNotif != nil {
		n.telegram = telNotif
	}
	if emailNotif != nil {
		n.email = emailNotif
	}
	return n
}

// Start begins polling the Telegram bot for /start messages, when configured.
func (n *Notificator) Start(ctx context.Context) {
	if t, ok := n.telegram.(*TelegramNotificator); ok {
		t.Start(ctx)
	}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) SendNotification(notification *models.Notification) {
	if n.telegram == nil && n.email == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	user, err := n.db.GetUser(ctx, notification.UserID)
	if err != nil {
		n.logger.Error("Failed to get notification recipient", "user_id", notification.UserID, "error", err)
		return
	}

	message := notification.String()
	if n.telegram != nil && user.TelegramChatID != "" {
		chatID := user.TelegramChatID
		n.safeCall(func() { n.telegram.SendNotification(chatID, message) }, "telegramNotification")
	}
	if n.email != nil && user.Email != "" {
		email := user.Email
		n.safeCall(func() { n.email.SendNotification(email, message) }, "emailNotification")
	}
	n.logger.Debug("Notification delivered", "user_id", notification.UserID, "kind", notification.Kind)
}
