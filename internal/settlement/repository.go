package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

// Repository owns order rows. Every terminal write is a conditional update
// keyed on the refs still being NULL, so a lost race surfaces as zero rows
// affected instead of a silent overwrite.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ByChargeRef(ctx context.Context, chargeRef string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	ListParkedBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	// ListSellersWithParkedOrders returns the distinct sellers that have at
	// least one order waiting on payout onboarding.
	ListSellersWithParkedOrders(ctx context.Context) ([]uuid.UUID, error)
	// RecordTransfer stamps the transfer reference and moves the order to
	// released/completed. Fails closed when a transfer or refund ref
	// already exists.
	RecordTransfer(ctx context.Context, id uuid.UUID, transferRef string, at time.Time) (bool, error)
	// RecordRefund is the refund mirror of RecordTransfer.
	RecordRefund(ctx context.Context, id uuid.UUID, refundRef, reason string, at time.Time) (bool, error)
	// Park moves a releasable order into release_pending_onboarding.
	Park(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkDisputed flips an open order into disputed and pins the webhook
	// event that caused it.
	MarkDisputed(ctx context.Context, id uuid.UUID, eventID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) (Repository, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection required")
	}
	return &repository{db: conn}, nil
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ByChargeRef(ctx context.Context, chargeRef string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("charge_ref = ?", chargeRef).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) ListParkedBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND payment_status = ?", sellerID, enums.PaymentStatusReleasePendingOnboarding).
		Order("paid_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListSellersWithParkedOrders(ctx context.Context) ([]uuid.UUID, error) {
	var sellerIDs []uuid.UUID
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_status = ?", enums.PaymentStatusReleasePendingOnboarding).
		Distinct("seller_id").
		Pluck("seller_id", &sellerIDs)
	if res.Error != nil {
		return nil, res.Error
	}
	return sellerIDs, nil
}

func (r *repository) RecordTransfer(ctx context.Context, id uuid.UUID, transferRef string, at time.Time) (bool, error) {
	if transferRef == "" {
		return false, fmt.Errorf("transfer reference is required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND transfer_ref IS NULL AND refund_ref IS NULL", id).
		Updates(map[string]any{
			"transfer_ref":   transferRef,
			"payment_status": enums.PaymentStatusReleased,
			"order_status":   enums.OrderStatusCompleted,
			"released_at":    at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordRefund(ctx context.Context, id uuid.UUID, refundRef, reason string, at time.Time) (bool, error) {
	if refundRef == "" {
		return false, fmt.Errorf("refund reference is required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND transfer_ref IS NULL AND refund_ref IS NULL", id).
		Updates(map[string]any{
			"refund_ref":     refundRef,
			"payment_status": enums.PaymentStatusRefunded,
			"order_status":   enums.OrderStatusCanceled,
			"refund_reason":  reason,
			"refunded_at":    at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Park(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", id, []enums.PaymentStatus{
			enums.PaymentStatusPaid,
			enums.PaymentStatusReleasePending,
		}).
		Update("payment_status", enums.PaymentStatusReleasePendingOnboarding)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkDisputed(ctx context.Context, id uuid.UUID, eventID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND transfer_ref IS NULL AND refund_ref IS NULL", id).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusDisputed,
			"dispute_open":   true,
			"last_event_id":  eventID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
