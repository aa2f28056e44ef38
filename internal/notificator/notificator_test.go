package notificator

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/repository/memory"
	"github.com/stockvn/paygate/pkg/logger"
)

type captured struct {
	to      []string
	message []string
}

func (c *captured) SendNotification(to, message string) {
	c.to = append(c.to, to)
	c.message = append(c.message, message)
}

type panicking struct{}

func (panicking) SendNotification(string, string) { panic("boom") }

func seedUser(t *testing.T, store *memory.Store, chatID string) *models.User {
	t.Helper()
	u := &models.User{Email: "an@example.com", PasswordHash: "x", TelegramUsername: "an_nguyen", TelegramChatID: chatID}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func TestSendNotificationFansOut(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store, "4242")
	tel, mail := &captured{}, &captured{}
	n := &Notificator{logger: logger.NewNop(), db: store, telegram: tel, email: mail}

	n.SendNotification(&models.Notification{UserID: u.ID, Kind: models.NotifyTopupSucceeded, Subject: "Top-up received", Message: "100000 VND"})

	assert.Equal(t, []string{"4242"}, tel.to)
	assert.Equal(t, []string{"an@example.com"}, mail.to)
	assert.Equal(t, "Top-up received\n\n100000 VND", tel.message[0])
}

func TestSendNotificationSkipsUnlinkedTelegram(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store, "")
	tel, mail := &captured{}, &captured{}
	n := &Notificator{logger: logger.NewNop(), db: store, telegram: tel, email: mail}

	n.SendNotification(&models.Notification{UserID: u.ID, Message: "hello"})

	assert.Empty(t, tel.to)
	assert.Len(t, mail.to, 1)
}

func TestSendNotificationUnknownUser(t *testing.T) {
	tel := &captured{}
	n := &Notificator{logger: logger.NewNop(), db: memory.New(), telegram: tel}

	n.SendNotification(&models.Notification{UserID: "missing", Message: "hello"})
	assert.Empty(t, tel.to)
}

func TestSendNotificationRecoversPanics(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store, "4242")
	mail := &captured{}
	n := &Notificator{logger: logger.NewNop(), db: store, telegram: panicking{}, email: mail}

	assert.NotPanics(t, func() {
		n.SendNotification(&models.Notification{UserID: u.ID, Message: "hello"})
	})
	assert.Len(t, mail.to, 1)
}

func TestNewNotificatorWithoutChannels(t *testing.T) {
	n := NewNotificator(logger.NewNop(), memory.New(), nil, nil)
	assert.Nil(t, n.telegram)
	assert.Nil(t, n.email)
	assert.NotPanics(t, func() { n.SendNotification(&models.Notification{UserID: "u"}) })
}

func TestEmailUsesSubjectLine(t *testing.T) {
	e := NewEmailNotificator(logger.NewNop(), "smtp.example.com", 587, "user", "pass", "noreply@example.com")
	var addr string
	var body string
	e.send = func(a string, _ smtp.Auth, from string, to []string, msg []byte) error {
		addr = a
		body = string(msg)
		assert.Equal(t, "noreply@example.com", from)
		assert.Equal(t, []string{"an@example.com"}, to)
		return nil
	}

	e.SendNotification("an@example.com", "Order paid\n\nSymbol: 7")

	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Contains(t, body, "Subject: Order paid\r\n")
	assert.Contains(t, body, "\r\n\r\nSymbol: 7")
}
