package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/internal/idempotency"
	"github.com/aklauser/marktplatz-backend/internal/notifier"
	"github.com/aklauser/marktplatz-backend/internal/sellers"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
	"github.com/aklauser/marktplatz-backend/pkg/metrics"
)

// PaymentProcessor is the slice of the payment provider the engine needs.
type PaymentProcessor interface {
	CreateTransfer(ctx context.Context, amount decimal.Decimal, currency, destinationAccount, sourceCharge, idempotencyKey string, metadata map[string]string) (string, error)
	CreateRefund(ctx context.Context, charge, idempotencyKey string, metadata map[string]string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the escrow lifecycle of order payments.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	// ReleaseFunds moves the seller's net amount out of escrow. Safe to
	// call any number of times; at most one transfer ever happens.
	ReleaseFunds(ctx context.Context, orderID uuid.UUID) (ReleaseResult, error)
	// RefundOrder returns the full charge to the buyer. Refused once a
	// transfer exists; clawing back paid-out money is a manual process.
	RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (RefundResult, error)
	// ProcessPendingPayoutsForSeller re-triggers ReleaseFunds for every
	// order parked behind the seller's onboarding.
	ProcessPendingPayoutsForSeller(ctx context.Context, sellerID uuid.UUID) (PayoutSweepResult, error)
	// MarkDisputed records a provider-side dispute on an open order.
	MarkDisputed(ctx context.Context, orderID uuid.UUID, eventID string) error
	// MarkDisputedByCharge is MarkDisputed keyed by the provider charge,
	// the identifier dispute webhooks carry.
	MarkDisputedByCharge(ctx context.Context, chargeRef, eventID string) error
	// SyncRefundFromProvider records a refund that was issued on the
	// provider side (e.g. via the dashboard) and arrived as a webhook.
	SyncRefundFromProvider(ctx context.Context, chargeRef, refundRef, eventID string) error
}

type service struct {
	orders    Repository
	sellers   sellers.Repository
	guard     idempotency.Guard
	processor PaymentProcessor
	notifier  notifier.Service
	tx        txRunner
	metrics   *metrics.SettlementMetrics
	log       *logger.Logger
	now       func() time.Time
}

type ServiceParams struct {
	Orders    Repository
	Sellers   sellers.Repository
	Guard     idempotency.Guard
	Processor PaymentProcessor
	Notifier  notifier.Service
	Tx        txRunner
	Metrics   *metrics.SettlementMetrics
	Logger    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Sellers == nil {
		return nil, fmt.Errorf("seller repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		orders:    params.Orders,
		sellers:   params.Sellers,
		guard:     params.Guard,
		processor: params.Processor,
		notifier:  params.Notifier,
		tx:        params.Tx,
		metrics:   params.Metrics,
		log:       params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
	}
	return order, nil
}

func (s *service) ReleaseFunds(ctx context.Context, orderID uuid.UUID) (ReleaseResult, error) {
	ctx = s.log.WithOrderID(ctx, orderID.String())

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return ReleaseResult{}, err
	}

	if order.TransferRef != nil {
		s.metrics.IncTransfer(string(ReleaseOutcomeAlreadyReleased))
		return ReleaseResult{OrderID: orderID, Outcome: ReleaseOutcomeAlreadyReleased, TransferRef: *order.TransferRef}, nil
	}
	if !order.PaymentStatus.Releasable() {
		s.metrics.IncTransfer("refused")
		return ReleaseResult{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be released", order.PaymentStatus))
	}

	seller, err := s.sellers.ByID(ctx, order.SellerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ReleaseResult{}, pkgerrors.New(pkgerrors.CodeInternal, "order references unknown seller")
		}
		return ReleaseResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load seller")
	}

	if !seller.PayoutReady() {
		return s.parkRelease(ctx, order, seller)
	}

	claim, err := s.guard.Claim(ctx, orderID, enums.SideEffectTransfer)
	if err != nil {
		return ReleaseResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to claim transfer side effect")
	}
	switch claim.Status {
	case idempotency.ClaimRecorded:
		// Transfer happened earlier but the order row may have missed its
		// bookkeeping (crash between processor call and commit); repair it.
		if err := s.finishRelease(ctx, order, claim.ProviderRef); err != nil {
			return ReleaseResult{}, err
		}
		s.metrics.IncTransfer(string(ReleaseOutcomeAlreadyReleased))
		return ReleaseResult{OrderID: orderID, Outcome: ReleaseOutcomeAlreadyReleased, TransferRef: claim.ProviderRef}, nil
	case idempotency.ClaimInProgress:
		return ReleaseResult{}, pkgerrors.New(pkgerrors.CodeConflict, "a release for this order is already in progress")
	}

	amount := order.SellerNet()
	transferRef, err := s.processor.CreateTransfer(
		ctx,
		amount,
		order.Currency,
		*seller.PayoutAccountRef,
		order.ChargeRef,
		fmt.Sprintf("transfer-%s", orderID),
		map[string]string{"order_id": orderID.String()},
	)
	if err != nil {
		if abandonErr := s.guard.Abandon(ctx, orderID, enums.SideEffectTransfer); abandonErr != nil {
			s.log.Error(ctx, "failed to abandon transfer claim", abandonErr)
		}
		s.metrics.IncTransfer("failed")
		return ReleaseResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor transfer failed")
	}

	if err := s.commitTransfer(ctx, orderID, transferRef); err != nil {
		// Money moved but local state lagged behind. The claim row keeps
		// its provider ref out of reach of a second transfer; a retry of
		// ReleaseFunds repairs the order via the ClaimRecorded branch.
		s.log.Error(ctx, "transfer made but not recorded, will repair on retry", err)
		return ReleaseResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record transfer")
	}

	s.metrics.IncTransfer(string(ReleaseOutcomeReleased))
	s.log.Info(ctx, fmt.Sprintf("released %s %s to seller %s", amount, order.Currency, order.SellerID))

	s.notifier.Deliver(ctx, notifier.Message{
		UserID: order.SellerID,
		Email:  seller.Email,
		Type:   enums.NotificationPayoutReleased,
		Title:  "Auszahlung unterwegs",
		Body:   fmt.Sprintf("Ihr Verkaufserlös von %s %s wurde an Ihr Konto überwiesen.", amount, order.Currency),
		Link:   fmt.Sprintf("/orders/%s", orderID),
	})
	s.notifier.Deliver(ctx, notifier.Message{
		UserID: order.BuyerID,
		Type:   enums.NotificationOrderCompleted,
		Title:  "Bestellung abgeschlossen",
		Body:   "Ihre Bestellung ist abgeschlossen, der Kaufbetrag wurde an den Verkäufer ausbezahlt.",
		Link:   fmt.Sprintf("/orders/%s", orderID),
	})

	return ReleaseResult{OrderID: orderID, Outcome: ReleaseOutcomeReleased, TransferRef: transferRef}, nil
}

func (s *service) parkRelease(ctx context.Context, order *models.Order, seller *models.SellerAccount) (ReleaseResult, error) {
	if order.PaymentStatus != enums.PaymentStatusReleasePendingOnboarding {
		parked, err := s.orders.Park(ctx, order.ID)
		if err != nil {
			return ReleaseResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to park order")
		}
		if !parked {
			// The order left its releasable state between our read and the
			// conditional update; whoever won the race owns the outcome.
			return ReleaseResult{}, pkgerrors.New(pkgerrors.CodeStateConflict,
				"order is no longer in a releasable state")
		}
		s.metrics.IncParkedRelease()
		s.notifier.Deliver(ctx, notifier.Message{
			UserID: order.SellerID,
			Email:  seller.Email,
			Type:   enums.NotificationPayoutPendingSetup,
			Title:  "Auszahlung wartet auf Ihre Kontodaten",
			Body:   "Schliessen Sie die Einrichtung Ihres Auszahlungskontos ab, um Ihren Verkaufserlös zu erhalten.",
			Link:   "/account/payouts",
		})
	}
	return ReleaseResult{OrderID: order.ID, Outcome: ReleaseOutcomeParked}, nil
}

// commitTransfer records the provider ref on the claim and the order in one
// transaction.
func (s *service) commitTransfer(ctx context.Context, orderID uuid.UUID, transferRef string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.guard.Record(ctx, tx, orderID, enums.SideEffectTransfer, transferRef); err != nil {
			return err
		}
		updated, err := s.orders.WithTx(tx).RecordTransfer(ctx, orderID, transferRef, s.now())
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("order %s already settled", orderID)
		}
		return nil
	})
}

// finishRelease applies the order-side bookkeeping for a transfer that is
// already durably recorded on the claim.
func (s *service) finishRelease(ctx context.Context, order *models.Order, transferRef string) error {
	if order.TransferRef != nil {
		return nil
	}
	if _, err := s.orders.RecordTransfer(ctx, order.ID, transferRef, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to repair order after recorded transfer")
	}
	return nil
}

func (s *service) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (RefundResult, error) {
	ctx = s.log.WithOrderID(ctx, orderID.String())

	if reason == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return RefundResult{}, err
	}

	if order.RefundRef != nil {
		s.metrics.IncRefund(string(RefundOutcomeAlreadyRefunded))
		return RefundResult{OrderID: orderID, Outcome: RefundOutcomeAlreadyRefunded, RefundRef: *order.RefundRef}, nil
	}
	if order.TransferRef != nil {
		s.metrics.IncRefund("refused")
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			"funds already transferred to seller, refund requires manual seller repayment")
	}
	if !order.PaymentStatus.Refundable() {
		s.metrics.IncRefund("refused")
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be refunded", order.PaymentStatus))
	}

	claim, err := s.guard.Claim(ctx, orderID, enums.SideEffectRefund)
	if err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to claim refund side effect")
	}
	switch claim.Status {
	case idempotency.ClaimRecorded:
		if err := s.finishRefund(ctx, order, claim.ProviderRef, reason); err != nil {
			return RefundResult{}, err
		}
		s.metrics.IncRefund(string(RefundOutcomeAlreadyRefunded))
		return RefundResult{OrderID: orderID, Outcome: RefundOutcomeAlreadyRefunded, RefundRef: claim.ProviderRef}, nil
	case idempotency.ClaimInProgress:
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeConflict, "a refund for this order is already in progress")
	}

	refundRef, err := s.processor.CreateRefund(
		ctx,
		order.ChargeRef,
		fmt.Sprintf("refund-%s", orderID),
		map[string]string{"order_id": orderID.String(), "reason": reason},
	)
	if err != nil {
		if abandonErr := s.guard.Abandon(ctx, orderID, enums.SideEffectRefund); abandonErr != nil {
			s.log.Error(ctx, "failed to abandon refund claim", abandonErr)
		}
		s.metrics.IncRefund("failed")
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor refund failed")
	}

	if err := s.commitRefund(ctx, orderID, refundRef, reason); err != nil {
		s.log.Error(ctx, "refund made but not recorded, will repair on retry", err)
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record refund")
	}

	s.metrics.IncRefund(string(RefundOutcomeRefunded))
	s.log.Info(ctx, fmt.Sprintf("refunded order %s (%s)", orderID, reason))

	notificationType := enums.NotificationOrderRefunded
	if order.DisputeOpen {
		notificationType = enums.NotificationDisputeRefundClosure
	}
	s.notifier.Deliver(ctx, notifier.Message{
		UserID: order.BuyerID,
		Type:   notificationType,
		Title:  "Rückerstattung veranlasst",
		Body:   "Der volle Kaufbetrag wird Ihnen zurückerstattet.",
		Link:   fmt.Sprintf("/orders/%s", orderID),
	})

	sellerEmail := ""
	if seller, sellerErr := s.sellers.ByID(ctx, order.SellerID); sellerErr != nil {
		s.log.Error(ctx, "failed to load seller for refund notification", sellerErr)
	} else {
		sellerEmail = seller.Email
	}
	s.notifier.Deliver(ctx, notifier.Message{
		UserID: order.SellerID,
		Email:  sellerEmail,
		Type:   enums.NotificationOrderRefunded,
		Title:  "Bestellung rückerstattet",
		Body:   "Die Bestellung wurde storniert und dem Käufer zurückerstattet. Es erfolgt keine Auszahlung.",
		Link:   fmt.Sprintf("/orders/%s", orderID),
	})

	return RefundResult{OrderID: orderID, Outcome: RefundOutcomeRefunded, RefundRef: refundRef}, nil
}

func (s *service) commitRefund(ctx context.Context, orderID uuid.UUID, refundRef, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.guard.Record(ctx, tx, orderID, enums.SideEffectRefund, refundRef); err != nil {
			return err
		}
		updated, err := s.orders.WithTx(tx).RecordRefund(ctx, orderID, refundRef, reason, s.now())
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("order %s already settled", orderID)
		}
		return nil
	})
}

func (s *service) finishRefund(ctx context.Context, order *models.Order, refundRef, reason string) error {
	if order.RefundRef != nil {
		return nil
	}
	if _, err := s.orders.RecordRefund(ctx, order.ID, refundRef, reason, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to repair order after recorded refund")
	}
	return nil
}

func (s *service) ProcessPendingPayoutsForSeller(ctx context.Context, sellerID uuid.UUID) (PayoutSweepResult, error) {
	ctx = s.log.WithSellerID(ctx, sellerID.String())

	parked, err := s.orders.ListParkedBySeller(ctx, sellerID)
	if err != nil {
		return PayoutSweepResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list parked orders")
	}

	result := PayoutSweepResult{SellerID: sellerID}
	for _, order := range parked {
		release, err := s.ReleaseFunds(ctx, order.ID)
		if err != nil {
			result.Failed++
			s.log.Error(s.log.WithOrderID(ctx, order.ID.String()), "pending payout release failed", err)
			continue
		}
		switch release.Outcome {
		case ReleaseOutcomeParked:
			result.Parked++
		default:
			result.Released++
		}
	}

	s.log.Info(ctx, fmt.Sprintf("pending payout sweep: released=%d parked=%d failed=%d",
		result.Released, result.Parked, result.Failed))
	return result, nil
}

func (s *service) MarkDisputed(ctx context.Context, orderID uuid.UUID, eventID string) error {
	ctx = s.log.WithOrderID(ctx, orderID.String())

	changed, err := s.orders.MarkDisputed(ctx, orderID, eventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark order disputed")
	}
	if !changed {
		// Already settled or already disputed; nothing to do.
		s.log.Info(ctx, "dispute event ignored, order already settled or disputed")
	}
	return nil
}

func (s *service) MarkDisputedByCharge(ctx context.Context, chargeRef, eventID string) error {
	order, err := s.orders.ByChargeRef(ctx, chargeRef)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no order for disputed charge")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order for disputed charge")
	}
	return s.MarkDisputed(ctx, order.ID, eventID)
}

func (s *service) SyncRefundFromProvider(ctx context.Context, chargeRef, refundRef, eventID string) error {
	order, err := s.orders.ByChargeRef(ctx, chargeRef)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no order for refunded charge")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order for refunded charge")
	}
	ctx = s.log.WithOrderID(ctx, order.ID.String())

	if order.RefundRef != nil {
		return nil
	}
	if order.TransferRef != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"provider refund reported for an order already paid out to the seller")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claim, err := s.guard.Claim(ctx, order.ID, enums.SideEffectRefund)
		if err != nil {
			return err
		}
		if claim.Status == idempotency.ClaimRecorded {
			return nil
		}
		if claim.Status == idempotency.ClaimInProgress {
			return pkgerrors.New(pkgerrors.CodeConflict, "a refund for this order is already in progress")
		}
		if err := s.guard.Record(ctx, tx, order.ID, enums.SideEffectRefund, refundRef); err != nil {
			return err
		}
		_, err = s.orders.WithTx(tx).RecordRefund(ctx, order.ID, refundRef, "refund issued at payment provider", s.now())
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to sync provider refund")
	}

	s.log.Info(ctx, fmt.Sprintf("synced provider-side refund %s (event %s)", refundRef, eventID))
	return nil
}
