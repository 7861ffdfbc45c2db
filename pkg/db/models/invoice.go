package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

// Invoice is one platform-fee bill owed by a seller. Stage timestamps are set
// at most once and strictly in order; Total grows by the late fee at most
// once, guarded by LateFeeAdded. Invoices are never deleted: a reversal
// produces a CreditNote and flips the status to cancelled.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	OrderID       *uuid.UUID          `gorm:"column:order_id;type:uuid;index"`
	InvoiceNumber string              `gorm:"column:invoice_number;not null;unique"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	VATRate       decimal.Decimal     `gorm:"column:vat_rate;type:numeric(6,4);not null"`
	VATAmount     decimal.Decimal     `gorm:"column:vat_amount;type:numeric(12,2);not null"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Status        enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	DueDate       time.Time           `gorm:"column:due_date;not null"`

	PaymentRequestSentAt *time.Time `gorm:"column:payment_request_sent_at"`
	FirstReminderSentAt  *time.Time `gorm:"column:first_reminder_sent_at"`
	SecondReminderSentAt *time.Time `gorm:"column:second_reminder_sent_at"`
	FinalReminderSentAt  *time.Time `gorm:"column:final_reminder_sent_at"`
	LateFeeAdded         bool       `gorm:"column:late_fee_added;not null;default:false"`
	ReminderCount        int        `gorm:"column:reminder_count;not null;default:0"`

	PaidAt    *time.Time `gorm:"column:paid_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// StageSentAt returns the stamp for the given dunning stage, nil when unsent.
func (i Invoice) StageSentAt(stage enums.DunningStage) *time.Time {
	switch stage {
	case enums.DunningStagePaymentRequest:
		return i.PaymentRequestSentAt
	case enums.DunningStageFirstReminder:
		return i.FirstReminderSentAt
	case enums.DunningStageSecondReminder:
		return i.SecondReminderSentAt
	case enums.DunningStageFinalReminder:
		return i.FinalReminderSentAt
	default:
		return nil
	}
}

// AgeDays is the number of whole days elapsed since the invoice was created.
func (i Invoice) AgeDays(now time.Time) int {
	return int(now.UTC().Sub(i.CreatedAt.UTC()).Hours() / 24)
}
