package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerAccount holds the payout capability state for a seller. Sellers are
// not required to finish payout onboarding before selling, only before being
// paid out.
type SellerAccount struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email              string     `gorm:"column:email;not null;unique"`
	DisplayName        string     `gorm:"column:display_name;not null"`
	PayoutAccountRef   *string    `gorm:"column:payout_account_ref;unique"`
	OnboardingComplete bool       `gorm:"column:onboarding_complete;not null;default:false"`
	PayoutsEnabled     bool       `gorm:"column:payouts_enabled;not null;default:false"`
	Blocked            bool       `gorm:"column:blocked;not null;default:false"`
	BlockedReason      *string    `gorm:"column:blocked_reason"`
	BlockedAt          *time.Time `gorm:"column:blocked_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutReady reports whether funds may be transferred to this seller.
func (s SellerAccount) PayoutReady() bool {
	return s.OnboardingComplete && s.PayoutsEnabled && s.PayoutAccountRef != nil
}
