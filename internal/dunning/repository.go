package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

var stageColumns = map[enums.DunningStage]string{
	enums.DunningStagePaymentRequest: "payment_request_sent_at",
	enums.DunningStageFirstReminder:  "first_reminder_sent_at",
	enums.DunningStageSecondReminder: "second_reminder_sent_at",
	enums.DunningStageFinalReminder:  "final_reminder_sent_at",
}

// Repository owns invoice, credit note and counter rows. Stage stamps are
// written with conditional updates so a sweep that runs twice cannot apply a
// stage twice.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	ListOpen(ctx context.Context) ([]models.Invoice, error)
	OpenCountForSeller(ctx context.Context, sellerID uuid.UUID) (int64, error)
	// NextDocumentNumber bumps the per-year sequence and formats a document
	// number with the given prefix. Must run inside a transaction.
	NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error)
	// ApplyStage stamps one dunning stage. The update is keyed on the
	// stage's own stamp being unset and the previous stage's stamp being
	// set; lateFee, when non-zero, is appended to total under the
	// late_fee_added guard as part of the same statement.
	ApplyStage(ctx context.Context, id uuid.UUID, stage enums.DunningStage, at time.Time, lateFee decimal.Decimal) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, method enums.PaymentMethod, at time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	CreateCreditNote(ctx context.Context, note *models.CreditNote) error
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

func (r *repository) ByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) ListOpen(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.InvoiceStatus{enums.InvoiceStatusPending, enums.InvoiceStatusOverdue}).
		Order("created_at ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) OpenCountForSeller(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("seller_id = ? AND status IN ?", sellerID,
			[]enums.InvoiceStatus{enums.InvoiceStatusPending, enums.InvoiceStatusOverdue}).
		Count(&count).Error
	return count, err
}

func (r *repository) NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error) {
	err := r.db.WithContext(ctx).Exec(
		"INSERT INTO invoice_counters (year, last_seq) VALUES (?, 1) "+
			"ON CONFLICT (year) DO UPDATE SET last_seq = invoice_counters.last_seq + 1",
		year,
	).Error
	if err != nil {
		return "", err
	}
	var counter models.InvoiceCounter
	if err := r.db.WithContext(ctx).Where("year = ?", year).First(&counter).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, year, counter.LastSeq), nil
}

func (r *repository) ApplyStage(ctx context.Context, id uuid.UUID, stage enums.DunningStage, at time.Time, lateFee decimal.Decimal) (bool, error) {
	column, ok := stageColumns[stage]
	if !ok {
		return false, fmt.Errorf("invalid dunning stage %q", stage)
	}

	updates := map[string]any{column: at.UTC()}
	if stage != enums.DunningStagePaymentRequest {
		updates["reminder_count"] = gorm.Expr("reminder_count + 1")
	}
	if stage == enums.DunningStageSecondReminder || stage == enums.DunningStageFinalReminder {
		updates["status"] = enums.InvoiceStatusOverdue
	}
	if !lateFee.IsZero() {
		updates["total"] = gorm.Expr("total + ?", lateFee)
		updates["late_fee_added"] = true
	}

	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Where(column+" IS NULL").
		Where("status IN ?", []enums.InvoiceStatus{enums.InvoiceStatusPending, enums.InvoiceStatusOverdue})
	if ordinal := stage.Ordinal(); ordinal > 0 {
		previous := stageColumns[enums.DunningStages[ordinal-1]]
		query = query.Where(previous + " IS NOT NULL")
	}
	if !lateFee.IsZero() {
		query = query.Where("late_fee_added = ?", false)
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, method enums.PaymentMethod, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id,
			[]enums.InvoiceStatus{enums.InvoiceStatusPending, enums.InvoiceStatusOverdue}).
		Updates(map[string]any{
			"status":         enums.InvoiceStatusPaid,
			"payment_method": method,
			"paid_at":        at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id,
			[]enums.InvoiceStatus{enums.InvoiceStatusPending, enums.InvoiceStatusOverdue}).
		Update("status", enums.InvoiceStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateCreditNote(ctx context.Context, note *models.CreditNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}
