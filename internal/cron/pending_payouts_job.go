package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/aklauser/marktplatz-backend/internal/settlement"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

// parkedSellerReader lists sellers with orders waiting on onboarding.
type parkedSellerReader interface {
	ListSellersWithParkedOrders(ctx context.Context) ([]uuid.UUID, error)
}

type sellerReader interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.SellerAccount, error)
}

type payoutSweeper interface {
	ProcessPendingPayoutsForSeller(ctx context.Context, sellerID uuid.UUID) (settlement.PayoutSweepResult, error)
}

// PendingPayoutsJobParams configure the parked-payout safety net.
type PendingPayoutsJobParams struct {
	Logger     *logger.Logger
	Orders     parkedSellerReader
	Sellers    sellerReader
	Settlement payoutSweeper
}

// NewPendingPayoutsJob builds the cron job that retries parked payouts. The
// onboarding webhook normally triggers the sweep the moment a seller becomes
// payout-ready; this job picks up sellers whose webhook was missed.
func NewPendingPayoutsJob(params PendingPayoutsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Sellers == nil {
		return nil, fmt.Errorf("seller reader required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	return &pendingPayoutsJob{
		logg:       params.Logger,
		orders:     params.Orders,
		sellers:    params.Sellers,
		settlement: params.Settlement,
	}, nil
}

type pendingPayoutsJob struct {
	logg       *logger.Logger
	orders     parkedSellerReader
	sellers    sellerReader
	settlement payoutSweeper
}

func (j *pendingPayoutsJob) Name() string { return "pending-payouts" }

func (j *pendingPayoutsJob) Run(ctx context.Context) error {
	sellerIDs, err := j.orders.ListSellersWithParkedOrders(ctx)
	if err != nil {
		return fmt.Errorf("list sellers with parked orders: %w", err)
	}

	var errs error
	released, skipped := 0, 0
	for _, sellerID := range sellerIDs {
		seller, err := j.sellers.ByID(ctx, sellerID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seller %s: %w", sellerID, err))
			continue
		}
		if !seller.PayoutReady() {
			skipped++
			continue
		}
		result, err := j.settlement.ProcessPendingPayoutsForSeller(ctx, sellerID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seller %s: %w", sellerID, err))
			continue
		}
		released += result.Released
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sellers":  len(sellerIDs),
		"released": released,
		"skipped":  skipped,
	})
	j.logg.Info(logCtx, "pending payout loop complete")
	return errs
}
