package models

import "fmt"

type NotificationKind string

const (
	NotifyTopupSucceeded   NotificationKind = "topup_succeeded"
	NotifyTopupPartial     NotificationKind = "topup_partial"
	NotifyOrderPaid        NotificationKind = "order_paid"
	NotifyAutoRenewSkipped NotificationKind = "autorenew_skipped"
	NotifyAutoRenewFailed  NotificationKind = "autorenew_failed"
)

type NotificationService interface {
	SendNotification(notification *Notification)
}

type Notification struct {
	UserID  string           `json:"user_id"`
	Kind    NotificationKind `json:"kind"`
	Subject string           `json:"subject"`
	Message string           `json:"message"`
}

func (n *Notification) String() string {
	if n.Subject == "" {
		return n.Message
	}
	return fmt.Sprintf("%s\n\n%s", n.Subject, n.Message)
}
