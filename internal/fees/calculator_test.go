package fees

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
)

func standardSchedule() *models.FeeSchedule {
	return &models.FeeSchedule{
		Version:           1,
		CommissionRate:    decimal.RequireFromString("0.10"),
		CommissionMin:     decimal.RequireFromString("0.00"),
		CommissionMax:     decimal.RequireFromString("220.00"),
		ProtectionFeeRate: decimal.RequireFromString("0.05"),
		LateFee:           decimal.RequireFromString("10.00"),
		VATRate:           decimal.RequireFromString("0.081"),
		EffectiveAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestComputeStandardPrice(t *testing.T) {
	quote, err := Compute(decimal.RequireFromString("100.00"), standardSchedule())
	require.NoError(t, err)

	assert.True(t, quote.PlatformFee.Equal(decimal.RequireFromString("10.00")), "platform fee %s", quote.PlatformFee)
	assert.True(t, quote.ProtectionFee.Equal(decimal.RequireFromString("5.00")), "protection fee %s", quote.ProtectionFee)
	assert.True(t, quote.SellerNet.Equal(decimal.RequireFromString("90.00")), "seller net %s", quote.SellerNet)
	assert.True(t, quote.VATAmount.Equal(decimal.RequireFromString("0.81")), "vat %s", quote.VATAmount)
	assert.True(t, quote.InvoiceTotal.Equal(decimal.RequireFromString("10.81")), "invoice total %s", quote.InvoiceTotal)
}

func TestComputeClampsToMinimum(t *testing.T) {
	schedule := standardSchedule()
	schedule.CommissionMin = decimal.RequireFromString("1.50")

	quote, err := Compute(decimal.RequireFromString("1.00"), schedule)
	require.NoError(t, err)
	assert.True(t, quote.PlatformFee.Equal(decimal.RequireFromString("1.50")), "platform fee %s", quote.PlatformFee)
}

func TestComputeZeroMinimumKeepsSmallFee(t *testing.T) {
	quote, err := Compute(decimal.RequireFromString("1.00"), standardSchedule())
	require.NoError(t, err)
	assert.True(t, quote.PlatformFee.Equal(decimal.RequireFromString("0.10")), "platform fee %s", quote.PlatformFee)
}

func TestComputeClampsToMaximum(t *testing.T) {
	quote, err := Compute(decimal.RequireFromString("10000.00"), standardSchedule())
	require.NoError(t, err)

	assert.True(t, quote.PlatformFee.Equal(decimal.RequireFromString("220.00")), "platform fee %s", quote.PlatformFee)
	assert.True(t, quote.SellerNet.Equal(decimal.RequireFromString("9780.00")), "seller net %s", quote.SellerNet)
}

func TestComputeRoundsToCents(t *testing.T) {
	quote, err := Compute(decimal.RequireFromString("33.33"), standardSchedule())
	require.NoError(t, err)

	// 33.33 * 0.10 = 3.333 -> 3.33
	assert.True(t, quote.PlatformFee.Equal(decimal.RequireFromString("3.33")), "platform fee %s", quote.PlatformFee)
	// 33.33 * 0.05 = 1.6665 -> 1.67
	assert.True(t, quote.ProtectionFee.Equal(decimal.RequireFromString("1.67")), "protection fee %s", quote.ProtectionFee)
	assert.True(t, quote.SellerNet.Equal(decimal.RequireFromString("30.00")), "seller net %s", quote.SellerNet)
}

func TestComputeRejectsNegativePrice(t *testing.T) {
	_, err := Compute(decimal.RequireFromString("-1.00"), standardSchedule())
	assert.Error(t, err)
}

func TestCalculatorUsesLatestVersion(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.FeeSchedule{}))

	v1 := standardSchedule()
	require.NoError(t, conn.Create(v1).Error)
	v2 := standardSchedule()
	v2.ID = 0
	v2.Version = 2
	v2.CommissionRate = decimal.RequireFromString("0.12")
	v2.EffectiveAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(v2).Error)

	repo, err := NewRepository(conn)
	require.NoError(t, err)
	calc, err := NewCalculator(CalculatorParams{Repo: repo})
	require.NoError(t, err)

	quote, err := calc.QuoteLatest(context.Background(), decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.Equal(t, 2, quote.ScheduleVersion)
	assert.True(t, quote.PlatformFee.Equal(decimal.RequireFromString("12.00")), "platform fee %s", quote.PlatformFee)

	old, err := calc.QuoteVersion(context.Background(), decimal.RequireFromString("100.00"), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, old.ScheduleVersion)
	assert.True(t, old.PlatformFee.Equal(decimal.RequireFromString("10.00")), "platform fee %s", old.PlatformFee)
}
