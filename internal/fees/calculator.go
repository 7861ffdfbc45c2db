package fees

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
)

// Quote is the full fee breakdown for one item price under one schedule
// version. All amounts are rounded to cents before any clamping or
// subtraction so the parts always sum consistently.
type Quote struct {
	ScheduleVersion int             `json:"schedule_version"`
	ItemPrice       decimal.Decimal `json:"item_price"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	ProtectionFee   decimal.Decimal `json:"protection_fee"`
	SellerNet       decimal.Decimal `json:"seller_net"`
	VATRate         decimal.Decimal `json:"vat_rate"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	InvoiceTotal    decimal.Decimal `json:"invoice_total"`
	LateFee         decimal.Decimal `json:"late_fee"`
}

// Calculator converts item prices into platform fees, buyer protection fees
// and seller net amounts using the versioned rate configuration.
type Calculator interface {
	// QuoteLatest prices against the most recent schedule version.
	QuoteLatest(ctx context.Context, itemPrice decimal.Decimal) (Quote, error)
	// QuoteVersion prices against an explicit schedule version, used when
	// re-deriving historic amounts.
	QuoteVersion(ctx context.Context, itemPrice decimal.Decimal, version int) (Quote, error)
}

type calculator struct {
	repo Repository
}

type CalculatorParams struct {
	Repo Repository
}

func NewCalculator(params CalculatorParams) (Calculator, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("fee schedule repository required")
	}
	return &calculator{repo: params.Repo}, nil
}

func (c *calculator) QuoteLatest(ctx context.Context, itemPrice decimal.Decimal) (Quote, error) {
	schedule, err := c.repo.Latest(ctx)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Quote{}, pkgerrors.New(pkgerrors.CodeInternal, "no fee schedule configured")
		}
		return Quote{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load fee schedule")
	}
	return Compute(itemPrice, schedule)
}

func (c *calculator) QuoteVersion(ctx context.Context, itemPrice decimal.Decimal, version int) (Quote, error) {
	schedule, err := c.repo.ByVersion(ctx, version)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Quote{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("fee schedule version %d not found", version))
		}
		return Quote{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load fee schedule")
	}
	return Compute(itemPrice, schedule)
}

// Compute is the pure pricing function. The commission is the percentage of
// the item price clamped into the schedule's [min, max] band; the protection
// fee is an uncapped percentage charged to the buyer; VAT applies to the
// commission because the invoice bills the commission, not the item.
func Compute(itemPrice decimal.Decimal, schedule *models.FeeSchedule) (Quote, error) {
	if schedule == nil {
		return Quote{}, fmt.Errorf("fee schedule required")
	}
	if itemPrice.IsNegative() {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative")
	}

	platformFee := roundCents(itemPrice.Mul(schedule.CommissionRate))
	if platformFee.LessThan(schedule.CommissionMin) {
		platformFee = schedule.CommissionMin
	}
	if platformFee.GreaterThan(schedule.CommissionMax) {
		platformFee = schedule.CommissionMax
	}

	protectionFee := roundCents(itemPrice.Mul(schedule.ProtectionFeeRate))
	vatAmount := roundCents(platformFee.Mul(schedule.VATRate))

	return Quote{
		ScheduleVersion: schedule.Version,
		ItemPrice:       itemPrice,
		PlatformFee:     platformFee,
		ProtectionFee:   protectionFee,
		SellerNet:       itemPrice.Sub(platformFee),
		VATRate:         schedule.VATRate,
		VATAmount:       vatAmount,
		InvoiceTotal:    platformFee.Add(vatAmount),
		LateFee:         schedule.LateFee,
	}, nil
}

func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
