package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

// SideEffect is the durable evidence that an externally visible money
// movement was claimed and, once ProviderRef is set, completed. The unique
// (entity_id, kind) pair is what makes a claim atomic: only one concurrent
// caller can insert it.
type SideEffect struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	EntityID    uuid.UUID            `gorm:"column:entity_id;type:uuid;not null;uniqueIndex:idx_side_effects_entity_kind"`
	Kind        enums.SideEffectKind `gorm:"column:kind;type:text;not null;uniqueIndex:idx_side_effects_entity_kind"`
	ProviderRef *string              `gorm:"column:provider_ref"`
	ClaimedAt   time.Time            `gorm:"column:claimed_at;not null"`
	RecordedAt  *time.Time           `gorm:"column:recorded_at"`
}
