package enums

import "fmt"

// PaymentStatus tracks the escrow lifecycle of an order payment.
type PaymentStatus string

const (
	PaymentStatusPaid                     PaymentStatus = "paid"
	PaymentStatusReleasePending           PaymentStatus = "release_pending"
	PaymentStatusReleasePendingOnboarding PaymentStatus = "release_pending_onboarding"
	PaymentStatusReleased                 PaymentStatus = "released"
	PaymentStatusRefunded                 PaymentStatus = "refunded"
	PaymentStatusDisputed                 PaymentStatus = "disputed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPaid,
	PaymentStatusReleasePending,
	PaymentStatusReleasePendingOnboarding,
	PaymentStatusReleased,
	PaymentStatusRefunded,
	PaymentStatusDisputed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further escrow transition is possible.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusReleased || p == PaymentStatusRefunded
}

// Releasable reports whether funds may still move to the seller from this state.
func (p PaymentStatus) Releasable() bool {
	switch p {
	case PaymentStatusPaid, PaymentStatusReleasePending, PaymentStatusReleasePendingOnboarding:
		return true
	default:
		return false
	}
}

// Refundable reports whether a buyer refund may still be issued from this state.
func (p PaymentStatus) Refundable() bool {
	switch p {
	case PaymentStatusPaid, PaymentStatusReleasePending, PaymentStatusDisputed:
		return true
	default:
		return false
	}
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
