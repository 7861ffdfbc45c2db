package enums

import "fmt"

// NotificationType categorizes in-app notifications.
type NotificationType string

const (
	NotificationPayoutReleased       NotificationType = "payout_released"
	NotificationPayoutPendingSetup   NotificationType = "payout_pending_setup"
	NotificationOrderCompleted       NotificationType = "order_completed"
	NotificationOrderRefunded        NotificationType = "order_refunded"
	NotificationInvoiceCreated       NotificationType = "invoice_created"
	NotificationInvoiceReminder      NotificationType = "invoice_reminder"
	NotificationInvoicePaid          NotificationType = "invoice_paid"
	NotificationAccountBlocked       NotificationType = "account_blocked"
	NotificationAccountUnblocked     NotificationType = "account_unblocked"
	NotificationDisputeRefundClosure NotificationType = "dispute_refund_closure"
)

var validNotificationTypes = []NotificationType{
	NotificationPayoutReleased,
	NotificationPayoutPendingSetup,
	NotificationOrderCompleted,
	NotificationOrderRefunded,
	NotificationInvoiceCreated,
	NotificationInvoiceReminder,
	NotificationInvoicePaid,
	NotificationAccountBlocked,
	NotificationAccountUnblocked,
	NotificationDisputeRefundClosure,
}

func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
