package notificator

import (
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/stockvn/paygate/pkg/logger"
)

type EmailNotificator struct {
	logger *logger.Logger

	SMTPHost   string
	SMTPPort   int
	SMTPSender string

	SMTPAuth smtp.Auth
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotificator(logger *logger.Logger, SMTPHost string, SMTPPort int, SMTPUser string, SMTPPassword string, SMTPSender string) *EmailNotificator {
	auth := smtp.PlainAuth(
		"",
		SMTPUser,
		SMTPPassword,
		SMTPHost,
	)

	return &EmailNotificator{
		logger:     logger,
		SMTPAuth:   auth,
		SMTPHost:   SMTPHost,
		SMTPPort:   SMTPPort,
		SMTPSender: SMTPSender,
		send:       smtp.SendMail,
	}
}

// SendNotification mails message to one recipient. The first line of message is used as the subject.
func (e *EmailNotificator) SendNotification(to, message string) {
	subject, body := "StockVN notification", message
	if head, rest, ok := strings.Cut(message, "\n\n"); ok && !strings.Contains(head, "\n") {
		subject, body = head, rest
	}
	addr := e.SMTPHost + ":" + strconv.Itoa(e.SMTPPort)
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		e.SMTPSender,
		to,
		subject,
		body,
	)
	if err := e.send(addr, e.SMTPAuth, e.SMTPSender, []string{to}, []byte(msg)); err != nil {
		e.logger.Error("Failed to send email", "to", to, "error", err)
	}
}
