package sellers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
)

// Repository owns reads and capability-flag writes on seller accounts. Both
// the settlement and dunning engines go through it, so the block/unblock
// writes are conditional updates rather than blind saves.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ByID(ctx context.Context, id uuid.UUID) (*models.SellerAccount, error)
	ByPayoutAccountRef(ctx context.Context, ref string) (*models.SellerAccount, error)
	Create(ctx context.Context, account *models.SellerAccount) error
	// SyncOnboarding updates the capability flags reported by the payment
	// provider and returns the refreshed account.
	SyncOnboarding(ctx context.Context, id uuid.UUID, payoutAccountRef string, onboardingComplete, payoutsEnabled bool) (*models.SellerAccount, error)
	// Block sets the blocked flag once; re-blocking an already blocked
	// seller is a no-op and reports false.
	Block(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	// Unblock clears the blocked flag once; reports whether it changed
	// anything.
	Unblock(ctx context.Context, id uuid.UUID) (bool, error)
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

func (r *repository) ByID(ctx context.Context, id uuid.UUID) (*models.SellerAccount, error) {
	var account models.SellerAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) ByPayoutAccountRef(ctx context.Context, ref string) (*models.SellerAccount, error) {
	var account models.SellerAccount
	err := r.db.WithContext(ctx).Where("payout_account_ref = ?", ref).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) Create(ctx context.Context, account *models.SellerAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) SyncOnboarding(ctx context.Context, id uuid.UUID, payoutAccountRef string, onboardingComplete, payoutsEnabled bool) (*models.SellerAccount, error) {
	updates := map[string]any{
		"onboarding_complete": onboardingComplete,
		"payouts_enabled":     payoutsEnabled,
	}
	if payoutAccountRef != "" {
		updates["payout_account_ref"] = payoutAccountRef
	}
	res := r.db.WithContext(ctx).
		Model(&models.SellerAccount{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.ByID(ctx, id)
}

func (r *repository) Block(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SellerAccount{}).
		Where("id = ? AND blocked = ?", id, false).
		Updates(map[string]any{
			"blocked":        true,
			"blocked_reason": reason,
			"blocked_at":     at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Unblock(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SellerAccount{}).
		Where("id = ? AND blocked = ?", id, true).
		Updates(map[string]any{
			"blocked":        false,
			"blocked_reason": nil,
			"blocked_at":     nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
