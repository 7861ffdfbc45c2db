package stripe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/internal/sellers"
	"github.com/aklauser/marktplatz-backend/internal/settlement"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

const (
	eventAccountUpdated = "account.updated"
	eventChargeRefunded = "charge.refunded"
	eventDisputeCreated = "charge.dispute.created"
)

// settlementEngine is the slice of the settlement service webhooks drive.
type settlementEngine interface {
	ProcessPendingPayoutsForSeller(ctx context.Context, sellerID uuid.UUID) (settlement.PayoutSweepResult, error)
	SyncRefundFromProvider(ctx context.Context, chargeRef, refundRef, eventID string) error
	MarkDisputedByCharge(ctx context.Context, chargeRef, eventID string) error
}

// Service routes verified Stripe events to their handlers.
type Service interface {
	HandleEvent(ctx context.Context, event stripeapi.Event) error
}

type service struct {
	guard      *EventGuard
	sellers    sellers.Repository
	settlement settlementEngine
	log        *logger.Logger
}

type ServiceParams struct {
	Guard      *EventGuard
	Sellers    sellers.Repository
	Settlement settlementEngine
	Logger     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Guard == nil {
		return nil, fmt.Errorf("event guard required")
	}
	if params.Sellers == nil {
		return nil, fmt.Errorf("seller repository required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		guard:      params.Guard,
		sellers:    params.Sellers,
		settlement: params.Settlement,
		log:        params.Logger,
	}, nil
}

func (s *service) HandleEvent(ctx context.Context, event stripeapi.Event) error {
	ctx = s.log.WithField(ctx, "stripe_event", event.ID)
	ctx = s.log.WithField(ctx, "stripe_event_type", string(event.Type))

	fresh, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to deduplicate event")
	}
	if !fresh {
		s.log.Info(ctx, "duplicate event delivery ignored")
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		// Free the mark so Stripe's redelivery gets another chance.
		if releaseErr := s.guard.Release(ctx, event.ID); releaseErr != nil {
			s.log.Error(ctx, "failed to release event mark", releaseErr)
		}
		return err
	}
	return nil
}

func (s *service) dispatch(ctx context.Context, event stripeapi.Event) error {
	switch string(event.Type) {
	case eventAccountUpdated:
		return s.handleAccountUpdated(ctx, event)
	case eventChargeRefunded:
		return s.handleChargeRefunded(ctx, event)
	case eventDisputeCreated:
		return s.handleDisputeCreated(ctx, event)
	default:
		s.log.Info(ctx, "event type not handled")
		return nil
	}
}

// handleAccountUpdated syncs payout capability flags onto the seller and, the
// moment the seller becomes payout-ready, releases any parked orders.
func (s *service) handleAccountUpdated(ctx context.Context, event stripeapi.Event) error {
	var account stripeapi.Account
	if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to parse account payload")
	}

	seller, err := s.sellers.ByPayoutAccountRef(ctx, account.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Connected account not tied to any seller; nothing to sync.
			s.log.Warn(ctx, fmt.Sprintf("no seller for payout account %s", account.ID))
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load seller for payout account")
	}
	ctx = s.log.WithSellerID(ctx, seller.ID.String())

	updated, err := s.sellers.SyncOnboarding(ctx, seller.ID, account.ID, account.DetailsSubmitted, account.PayoutsEnabled)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to sync onboarding flags")
	}

	if !seller.PayoutReady() && updated.PayoutReady() {
		s.log.Info(ctx, "seller became payout-ready, sweeping parked orders")
		if _, err := s.settlement.ProcessPendingPayoutsForSeller(ctx, seller.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) handleChargeRefunded(ctx context.Context, event stripeapi.Event) error {
	var charge stripeapi.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to parse charge payload")
	}
	if charge.Refunds == nil || len(charge.Refunds.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refunded charge carries no refund")
	}
	refundRef := charge.Refunds.Data[0].ID

	err := s.settlement.SyncRefundFromProvider(ctx, charge.ID, refundRef, event.ID)
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		// Charges for other products share the webhook endpoint.
		s.log.Warn(ctx, fmt.Sprintf("no order for refunded charge %s", charge.ID))
		return nil
	}
	return err
}

func (s *service) handleDisputeCreated(ctx context.Context, event stripeapi.Event) error {
	var dispute stripeapi.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to parse dispute payload")
	}
	if dispute.Charge == nil || dispute.Charge.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "dispute carries no charge reference")
	}

	err := s.settlement.MarkDisputedByCharge(ctx, dispute.Charge.ID, event.ID)
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		s.log.Warn(ctx, fmt.Sprintf("no order for disputed charge %s", dispute.Charge.ID))
		return nil
	}
	return err
}
