package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeSchedule is one immutable version of the platform rate configuration.
// Rates are never edited in place; a new row is appended when they change and
// the calculator picks the latest version unless an override is supplied.
type FeeSchedule struct {
	ID                int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Version           int             `gorm:"column:version;not null;unique"`
	CommissionRate    decimal.Decimal `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	CommissionMin     decimal.Decimal `gorm:"column:commission_min;type:numeric(12,2);not null"`
	CommissionMax     decimal.Decimal `gorm:"column:commission_max;type:numeric(12,2);not null"`
	ProtectionFeeRate decimal.Decimal `gorm:"column:protection_fee_rate;type:numeric(6,4);not null"`
	LateFee           decimal.Decimal `gorm:"column:late_fee;type:numeric(12,2);not null"`
	VATRate           decimal.Decimal `gorm:"column:vat_rate;type:numeric(6,4);not null"`
	EffectiveAt       time.Time       `gorm:"column:effective_at;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}
