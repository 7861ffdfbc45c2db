package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

// A claim that never got its provider reference is considered abandoned after
// this long and may be taken over by a retry.
const defaultStaleAfter = 15 * time.Minute

// ClaimStatus describes the result of an attempt to claim a side effect.
type ClaimStatus string

const (
	// ClaimAcquired means the caller owns the side effect and must either
	// record a provider reference or abandon the claim.
	ClaimAcquired ClaimStatus = "acquired"
	// ClaimRecorded means the side effect already completed; ProviderRef
	// carries the prior result.
	ClaimRecorded ClaimStatus = "recorded"
	// ClaimInProgress means another caller holds a live claim.
	ClaimInProgress ClaimStatus = "in_progress"
)

// ClaimResult is the outcome of Claim.
type ClaimResult struct {
	Status      ClaimStatus
	ProviderRef string
}

// Guard enforces at-most-once execution of external money movements. The
// claim must be taken before the payment processor is called: the local write
// and the processor call are not atomic with each other, so the unique
// (entity, kind) insert is the only thing preventing a duplicate call.
type Guard interface {
	Existing(ctx context.Context, entityID uuid.UUID, kind enums.SideEffectKind) (*models.SideEffect, error)
	Claim(ctx context.Context, entityID uuid.UUID, kind enums.SideEffectKind) (ClaimResult, error)
	Record(ctx context.Context, tx *gorm.DB, entityID uuid.UUID, kind enums.SideEffectKind, providerRef string) error
	Abandon(ctx context.Context, entityID uuid.UUID, kind enums.SideEffectKind) error
}

type guard struct {
	db         *gorm.DB
	staleAfter time.Duration
	now        func() time.Time
}

// NewGuard builds a database-backed idempotency guard.
func NewGuard(conn *gorm.DB) (Guard, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection required")
	}
	return &guard{
		db:         conn,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
	}, nil
}

func (g *guard) Existing(ctx context.Context, entityID uuid.UUID, kind enums.SideEffectKind) (*models.SideEffect, error) {
	if entityID == uuid.Nil {
		return nil, fmt.Errorf("entity id is required")
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid side effect kind %q", kind)
	}
	var effect models.SideEffect
	err := g.db.WithContext(ctx).
		Where("entity_id = ? AND kind = ?", entityID, kind).
		First(&effect).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &effect, nil
}

func (g *guard) Claim(ctx context.Context, entityID uuid.UUID, kind enums.SideEffectKind) (ClaimResult, error) {
	if entityID == uuid.Nil {
		return ClaimResult{}, fmt.Errorf("entity id is required")
	}
	if !kind.IsValid() {
		return ClaimResult{}, fmt.Errorf("invalid side effect kind %q", kind)
	}

	effect := models.SideEffect{
		ID:        uuid.New(),
		EntityID:  entityID,
		Kind:      kind,
		ClaimedAt: g.now().UTC(),
	}
	err := g.db.WithContext(ctx).Create(&effect).Error
	if err == nil {
		return ClaimResult{Status: ClaimAcquired}, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return ClaimResult{}, err
	}

	existing, lookupErr := g.Existing(ctx, entityID, kind)
	if lookupErr != nil {
		return ClaimResult{}, lookupErr
	}
	if existing == nil {
		// Row vanished between insert and lookup; treat as contention.
		return ClaimResult{Status: ClaimInProgress}, nil
	}
	if existing.ProviderRef != nil {
		return ClaimResult{Status: ClaimRecorded, ProviderRef: *existing.ProviderRef}, nil
	}

	// Live claim held by someone else, unless it went stale.
	cutoff := g.now().UTC().Add(-g.staleAfter)
	res := g.db.WithContext(ctx).
		Model(&models.SideEffect{}).
		Where("entity_id = ? AND kind = ? AND provider_ref IS NULL AND claimed_at < ?", entityID, kind, cutoff).
		Update("claimed_at", g.now().UTC())
	if res.Error != nil {
		return ClaimResult{}, res.Error
	}
	if res.RowsAffected == 1 {
		return ClaimResult{Status: ClaimAcquired}, nil
	}
	return ClaimResult{Status: ClaimInProgress}, nil
}

func (g *guard) Record(ctx context.Context, tx *gorm.DB, entityID uuid.UUID, kind enums.SideEffectKind, providerRef string) error {
	if providerRef == "" {
		return fmt.Errorf("provider reference is required")
	}
	conn := tx
	if conn == nil {
		conn = g.db
	}
	res := conn.WithContext(ctx).
		Model(&models.SideEffect{}).
		Where("entity_id = ? AND kind = ? AND provider_ref IS NULL", entityID, kind).
		Updates(map[string]any{
			"provider_ref": providerRef,
			"recorded_at":  g.now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("side effect %s/%s already recorded or never claimed", entityID, kind)
	}
	return nil
}

func (g *guard) Abandon(ctx context.Context, entityID uuid.UUID, kind enums.SideEffectKind) error {
	return g.db.WithContext(ctx).
		Where("entity_id = ? AND kind = ? AND provider_ref IS NULL", entityID, kind).
		Delete(&models.SideEffect{}).Error
}
