package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aklauser/marktplatz-backend/internal/settlement"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
)

type stubSettlementService struct {
	getFn     func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	releaseFn func(ctx context.Context, orderID uuid.UUID) (settlement.ReleaseResult, error)
	refundFn  func(ctx context.Context, orderID uuid.UUID, reason string) (settlement.RefundResult, error)
}

func (s stubSettlementService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s stubSettlementService) ReleaseFunds(ctx context.Context, orderID uuid.UUID) (settlement.ReleaseResult, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, orderID)
	}
	return settlement.ReleaseResult{}, nil
}

func (s stubSettlementService) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (settlement.RefundResult, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, orderID, reason)
	}
	return settlement.RefundResult{}, nil
}

func (s stubSettlementService) ProcessPendingPayoutsForSeller(context.Context, uuid.UUID) (settlement.PayoutSweepResult, error) {
	return settlement.PayoutSweepResult{}, nil
}

func (s stubSettlementService) MarkDisputed(context.Context, uuid.UUID, string) error {
	return nil
}

func (s stubSettlementService) MarkDisputedByCharge(context.Context, string, string) error {
	return nil
}

func (s stubSettlementService) SyncRefundFromProvider(context.Context, string, string, string) error {
	return nil
}

var _ settlement.Service = stubSettlementService{}

func requestWithOrderID(method, target string, orderID uuid.UUID, body []byte) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderID", orderID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestAdminReleaseOrder(t *testing.T) {
	orderID := uuid.New()
	svc := stubSettlementService{
		releaseFn: func(ctx context.Context, id uuid.UUID) (settlement.ReleaseResult, error) {
			if id != orderID {
				t.Fatalf("unexpected order id %s", id)
			}
			return settlement.ReleaseResult{
				OrderID:     id,
				Outcome:     settlement.ReleaseOutcomeReleased,
				TransferRef: "tr_123",
			}, nil
		},
	}

	handler := AdminReleaseOrder(svc, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, requestWithOrderID(http.MethodPost, "/release", orderID, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data settlement.ReleaseResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Outcome != settlement.ReleaseOutcomeReleased || envelope.Data.TransferRef != "tr_123" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestAdminReleaseOrderRejectsBadID(t *testing.T) {
	handler := AdminReleaseOrder(stubSettlementService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/release", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderID", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRefundOrderRequiresReason(t *testing.T) {
	called := false
	svc := stubSettlementService{
		refundFn: func(ctx context.Context, id uuid.UUID, reason string) (settlement.RefundResult, error) {
			called = true
			return settlement.RefundResult{}, nil
		},
	}

	handler := AdminRefundOrder(svc, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, requestWithOrderID(http.MethodPost, "/refund", uuid.New(), []byte(`{}`)))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", resp.Code, resp.Body.String())
	}
	if called {
		t.Fatal("service must not run on invalid body")
	}
}

func TestAdminRefundOrderSurfacesStateConflict(t *testing.T) {
	svc := stubSettlementService{
		refundFn: func(ctx context.Context, id uuid.UUID, reason string) (settlement.RefundResult, error) {
			return settlement.RefundResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "funds already transferred to seller, refund requires manual seller repayment")
		},
	}

	handler := AdminRefundOrder(svc, nil)
	resp := httptest.NewRecorder()
	body := []byte(`{"reason":"item never shipped"}`)
	handler.ServeHTTP(resp, requestWithOrderID(http.MethodPost, "/refund", uuid.New(), body))

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestAdminGetOrderNotFound(t *testing.T) {
	handler := AdminGetOrder(stubSettlementService{}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, requestWithOrderID(http.MethodGet, "/", uuid.New(), nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
