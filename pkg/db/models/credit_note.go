package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditNote is the negative mirror of an Invoice, created when a sale is
// reversed. The original invoice row is retained; only its status changes.
type CreditNote struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OriginalInvoiceID uuid.UUID       `gorm:"column:original_invoice_id;type:uuid;not null;unique"`
	SellerID          uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	CreditNoteNumber  string          `gorm:"column:credit_note_number;not null;unique"`
	Subtotal          decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	VATAmount         decimal.Decimal `gorm:"column:vat_amount;type:numeric(12,2);not null"`
	Total             decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	Reason            string          `gorm:"column:reason;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}
