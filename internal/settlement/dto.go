package settlement

import "github.com/google/uuid"

// ReleaseOutcome classifies what a ReleaseFunds call actually did.
type ReleaseOutcome string

const (
	// ReleaseOutcomeReleased means a new transfer was made.
	ReleaseOutcomeReleased ReleaseOutcome = "released"
	// ReleaseOutcomeAlreadyReleased means a transfer was recorded earlier;
	// no processor call was made.
	ReleaseOutcomeAlreadyReleased ReleaseOutcome = "already_released"
	// ReleaseOutcomeParked means the seller cannot receive payouts yet and
	// the order waits in release_pending_onboarding.
	ReleaseOutcomeParked ReleaseOutcome = "parked"
)

// ReleaseResult is the answer to a release trigger.
type ReleaseResult struct {
	OrderID     uuid.UUID      `json:"order_id"`
	Outcome     ReleaseOutcome `json:"outcome"`
	TransferRef string         `json:"transfer_ref,omitempty"`
}

// RefundOutcome classifies what a RefundOrder call actually did.
type RefundOutcome string

const (
	RefundOutcomeRefunded        RefundOutcome = "refunded"
	RefundOutcomeAlreadyRefunded RefundOutcome = "already_refunded"
)

// RefundResult is the answer to a refund trigger.
type RefundResult struct {
	OrderID   uuid.UUID     `json:"order_id"`
	Outcome   RefundOutcome `json:"outcome"`
	RefundRef string        `json:"refund_ref,omitempty"`
}

// PayoutSweepResult summarizes one pass over a seller's parked orders.
type PayoutSweepResult struct {
	SellerID uuid.UUID `json:"seller_id"`
	Released int       `json:"released"`
	Parked   int       `json:"parked"`
	Failed   int       `json:"failed"`
}
