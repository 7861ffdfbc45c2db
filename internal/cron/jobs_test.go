package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/internal/dunning"
	"github.com/aklauser/marktplatz-backend/internal/settlement"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.Disabled, Output: io.Discard})
}

type fakeSweeper struct {
	result dunning.SweepResult
	err    error
	runs   int
}

func (f *fakeSweeper) ProcessInvoiceReminders(context.Context) (dunning.SweepResult, error) {
	f.runs++
	return f.result, f.err
}

func TestInvoiceRemindersJobReportsSweepErrors(t *testing.T) {
	sweeper := &fakeSweeper{result: dunning.SweepResult{Scanned: 3, Failed: 1}, err: errors.New("invoice RE-1: boom")}
	job, err := NewInvoiceRemindersJob(InvoiceRemindersJobParams{Logger: testLogger(), Dunning: sweeper})
	if err != nil {
		t.Fatalf("NewInvoiceRemindersJob: %v", err)
	}
	if job.Name() != "invoice-reminders" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}

	sweeper.err = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.runs != 2 {
		t.Fatalf("expected 2 sweeps, got %d", sweeper.runs)
	}
}

type fakeParkedReader struct {
	sellerIDs []uuid.UUID
}

func (f *fakeParkedReader) ListSellersWithParkedOrders(context.Context) ([]uuid.UUID, error) {
	return f.sellerIDs, nil
}

type fakeSellerReader struct {
	accounts map[uuid.UUID]*models.SellerAccount
}

func (f *fakeSellerReader) ByID(_ context.Context, id uuid.UUID) (*models.SellerAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return account, nil
}

type fakePayoutSweeper struct {
	swept []uuid.UUID
}

func (f *fakePayoutSweeper) ProcessPendingPayoutsForSeller(_ context.Context, sellerID uuid.UUID) (settlement.PayoutSweepResult, error) {
	f.swept = append(f.swept, sellerID)
	return settlement.PayoutSweepResult{SellerID: sellerID, Released: 1}, nil
}

func TestPendingPayoutsJobSweepsOnlyReadySellers(t *testing.T) {
	readyRef := "acct_ready"
	ready := &models.SellerAccount{
		ID:                 uuid.New(),
		PayoutAccountRef:   &readyRef,
		OnboardingComplete: true,
		PayoutsEnabled:     true,
	}
	notReady := &models.SellerAccount{ID: uuid.New()}

	reader := &fakeParkedReader{sellerIDs: []uuid.UUID{ready.ID, notReady.ID}}
	sellerReader := &fakeSellerReader{accounts: map[uuid.UUID]*models.SellerAccount{
		ready.ID:    ready,
		notReady.ID: notReady,
	}}
	sweeper := &fakePayoutSweeper{}

	job, err := NewPendingPayoutsJob(PendingPayoutsJobParams{
		Logger:     testLogger(),
		Orders:     reader,
		Sellers:    sellerReader,
		Settlement: sweeper,
	})
	if err != nil {
		t.Fatalf("NewPendingPayoutsJob: %v", err)
	}
	if job.Name() != "pending-payouts" {
		t.Fatalf("unexpected name %q", job.Name())
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sweeper.swept) != 1 || sweeper.swept[0] != ready.ID {
		t.Fatalf("expected only the ready seller to be swept, got %v", sweeper.swept)
	}
}

func TestPendingPayoutsJobCollectsPerSellerErrors(t *testing.T) {
	missing := uuid.New()
	reader := &fakeParkedReader{sellerIDs: []uuid.UUID{missing}}
	job, err := NewPendingPayoutsJob(PendingPayoutsJobParams{
		Logger:     testLogger(),
		Orders:     reader,
		Sellers:    &fakeSellerReader{accounts: map[uuid.UUID]*models.SellerAccount{}},
		Settlement: &fakePayoutSweeper{},
	})
	if err != nil {
		t.Fatalf("NewPendingPayoutsJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown seller")
	}
}
