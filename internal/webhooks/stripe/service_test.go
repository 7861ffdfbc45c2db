package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	stripeapi "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/internal/sellers"
	"github.com/aklauser/marktplatz-backend/internal/settlement"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

type fakeStore struct {
	marks map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{marks: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.marks[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return value, nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := f.marks[key]; exists {
		return false, nil
	}
	f.marks[key] = "1"
	_ = value
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "mkt:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.marks, key)
	}
	return nil
}

type fakeSellers struct {
	account *models.SellerAccount
	synced  []bool
}

func (f *fakeSellers) WithTx(*gorm.DB) sellers.Repository { return f }

func (f *fakeSellers) ByID(context.Context, uuid.UUID) (*models.SellerAccount, error) {
	if f.account == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.account, nil
}

func (f *fakeSellers) ByPayoutAccountRef(_ context.Context, ref string) (*models.SellerAccount, error) {
	if f.account == nil || f.account.PayoutAccountRef == nil || *f.account.PayoutAccountRef != ref {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.account
	return &copied, nil
}

func (f *fakeSellers) Create(context.Context, *models.SellerAccount) error { return nil }

func (f *fakeSellers) SyncOnboarding(_ context.Context, _ uuid.UUID, _ string, onboardingComplete, payoutsEnabled bool) (*models.SellerAccount, error) {
	f.account.OnboardingComplete = onboardingComplete
	f.account.PayoutsEnabled = payoutsEnabled
	f.synced = append(f.synced, payoutsEnabled)
	copied := *f.account
	return &copied, nil
}

func (f *fakeSellers) Block(context.Context, uuid.UUID, string, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeSellers) Unblock(context.Context, uuid.UUID) (bool, error) { return false, nil }

type fakeEngine struct {
	sweeps    []uuid.UUID
	refunds   []string
	disputes  []string
	refundErr error
	sweepErr  error
}

func (f *fakeEngine) ProcessPendingPayoutsForSeller(_ context.Context, sellerID uuid.UUID) (settlement.PayoutSweepResult, error) {
	if f.sweepErr != nil {
		return settlement.PayoutSweepResult{}, f.sweepErr
	}
	f.sweeps = append(f.sweeps, sellerID)
	return settlement.PayoutSweepResult{SellerID: sellerID, Released: 1}, nil
}

func (f *fakeEngine) SyncRefundFromProvider(_ context.Context, chargeRef, refundRef, _ string) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunds = append(f.refunds, chargeRef+"/"+refundRef)
	return nil
}

func (f *fakeEngine) MarkDisputedByCharge(_ context.Context, chargeRef, _ string) error {
	f.disputes = append(f.disputes, chargeRef)
	return nil
}

func newTestService(t *testing.T, store *fakeStore, sellerRepo *fakeSellers, engine *fakeEngine) Service {
	t.Helper()
	guard, err := NewEventGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("NewEventGuard: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "webhook-test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Guard:      guard,
		Sellers:    sellerRepo,
		Settlement: engine,
		Logger:     logg,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func makeEvent(t *testing.T, id, eventType string, payload any) stripeapi.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return stripeapi.Event{
		ID:   id,
		Type: stripeapi.EventType(eventType),
		Data: &stripeapi.EventData{Raw: raw},
	}
}

func TestAccountUpdatedSweepsParkedOrdersWhenSellerBecomesReady(t *testing.T) {
	ref := "acct_1"
	sellerRepo := &fakeSellers{account: &models.SellerAccount{
		ID:               uuid.New(),
		Email:            "seller@example.ch",
		PayoutAccountRef: &ref,
	}}
	engine := &fakeEngine{}
	svc := newTestService(t, newFakeStore(), sellerRepo, engine)

	event := makeEvent(t, "evt_1", eventAccountUpdated, map[string]any{
		"id":                "acct_1",
		"details_submitted": true,
		"payouts_enabled":   true,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(engine.sweeps) != 1 {
		t.Fatalf("expected one pending-payout sweep, got %d", len(engine.sweeps))
	}
}

func TestAccountUpdatedDoesNotSweepWhileIncomplete(t *testing.T) {
	ref := "acct_1"
	sellerRepo := &fakeSellers{account: &models.SellerAccount{
		ID:               uuid.New(),
		Email:            "seller@example.ch",
		PayoutAccountRef: &ref,
	}}
	engine := &fakeEngine{}
	svc := newTestService(t, newFakeStore(), sellerRepo, engine)

	event := makeEvent(t, "evt_1", eventAccountUpdated, map[string]any{
		"id":                "acct_1",
		"details_submitted": true,
		"payouts_enabled":   false,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(engine.sweeps) != 0 {
		t.Fatalf("no sweep expected, got %d", len(engine.sweeps))
	}
}

func TestDuplicateDeliveryIsIgnored(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(t, newFakeStore(), &fakeSellers{}, engine)

	event := makeEvent(t, "evt_dup", eventChargeRefunded, map[string]any{
		"id":      "ch_1",
		"refunds": map[string]any{"data": []map[string]any{{"id": "re_1"}}},
	})

	for i := 0; i < 3; i++ {
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("HandleEvent #%d: %v", i, err)
		}
	}
	if len(engine.refunds) != 1 {
		t.Fatalf("expected one refund sync, got %d", len(engine.refunds))
	}
}

func TestFailedEventIsReleasedForRedelivery(t *testing.T) {
	engine := &fakeEngine{refundErr: errors.New("db down")}
	svc := newTestService(t, newFakeStore(), &fakeSellers{}, engine)

	event := makeEvent(t, "evt_retry", eventChargeRefunded, map[string]any{
		"id":      "ch_1",
		"refunds": map[string]any{"data": []map[string]any{{"id": "re_1"}}},
	})

	if err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected failure")
	}

	// Redelivery after the fault clears must be processed.
	engine.refundErr = nil
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(engine.refunds) != 1 {
		t.Fatalf("expected one refund sync, got %d", len(engine.refunds))
	}
}

func TestDisputeCreatedMarksOrder(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(t, newFakeStore(), &fakeSellers{}, engine)

	event := makeEvent(t, "evt_dispute", eventDisputeCreated, map[string]any{
		"id":     "dp_1",
		"charge": "ch_42",
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(engine.disputes) != 1 || engine.disputes[0] != "ch_42" {
		t.Fatalf("dispute not routed: %v", engine.disputes)
	}
}

func TestUnknownEventTypesAreAcknowledged(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(t, newFakeStore(), &fakeSellers{}, engine)

	event := makeEvent(t, "evt_other", "invoice.finalized", map[string]any{"id": "in_1"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(engine.refunds)+len(engine.disputes)+len(engine.sweeps) != 0 {
		t.Fatal("unknown event must not reach any handler")
	}
}

func TestAccountUpdatedForUnknownAccountIsAcknowledged(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(t, newFakeStore(), &fakeSellers{}, engine)

	event := makeEvent(t, "evt_unknown", eventAccountUpdated, map[string]any{
		"id":              "acct_foreign",
		"payouts_enabled": true,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(engine.sweeps) != 0 {
		t.Fatal("no sweep expected for unknown account")
	}
}
