package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

// Order is one escrowed purchase payment. TransferRef and RefundRef are
// mutually exclusive and each is written at most once via a conditional
// update; money leaves escrow exactly one way. Orders are never hard-deleted.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	ItemPrice     decimal.Decimal     `gorm:"column:item_price;type:numeric(12,2);not null"`
	ShippingCost  decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null;default:0"`
	PlatformFee   decimal.Decimal     `gorm:"column:platform_fee;type:numeric(12,2);not null"`
	ProtectionFee decimal.Decimal     `gorm:"column:protection_fee;type:numeric(12,2);not null"`
	Currency      string              `gorm:"column:currency;not null;default:'chf'"`
	ChargeRef     string              `gorm:"column:charge_ref;not null;unique"`
	TransferRef   *string             `gorm:"column:transfer_ref;unique"`
	RefundRef     *string             `gorm:"column:refund_ref;unique"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'paid'"`
	OrderStatus   enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'active'"`
	DisputeOpen   bool                `gorm:"column:dispute_open;not null;default:false"`
	RefundReason  *string             `gorm:"column:refund_reason"`
	LastEventID   *string             `gorm:"column:last_event_id"`
	PaidAt        time.Time           `gorm:"column:paid_at;not null"`
	ReleasedAt    *time.Time          `gorm:"column:released_at"`
	RefundedAt    *time.Time          `gorm:"column:refunded_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// SellerNet is the amount owed to the seller once the platform fee is kept.
func (o Order) SellerNet() decimal.Decimal {
	return o.ItemPrice.Sub(o.PlatformFee)
}
