package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/internal/fees"
	"github.com/aklauser/marktplatz-backend/internal/notifier"
	"github.com/aklauser/marktplatz-backend/internal/sellers"
	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
	"github.com/aklauser/marktplatz-backend/pkg/metrics"
)

const (
	invoiceNumberPrefix    = "RE"
	creditNoteNumberPrefix = "GS"

	// Payment terms: the due date printed on the invoice.
	paymentTermDays = 14

	blockedReasonUnpaidInvoices = "unpaid platform fee invoices"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInvoiceInput describes the sale an invoice bills the commission for.
type CreateInvoiceInput struct {
	SellerID  uuid.UUID
	OrderID   *uuid.UUID
	ItemPrice decimal.Decimal
}

// SweepResult summarizes one pass of ProcessInvoiceReminders.
type SweepResult struct {
	Scanned        int            `json:"scanned"`
	StagesSent     map[string]int `json:"stages_sent"`
	LateFeesAdded  int            `json:"late_fees_added"`
	SellersBlocked int            `json:"sellers_blocked"`
	Failed         int            `json:"failed"`
}

// Service owns the platform-fee invoice lifecycle: creation, the scheduled
// reminder sweep, payment confirmation and cancellation.
type Service interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	// ProcessInvoiceReminders advances every open invoice by at most one
	// dunning stage. Safe to run any number of times per day.
	ProcessInvoiceReminders(ctx context.Context) (SweepResult, error)
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, method enums.PaymentMethod) error
	// UnblockSellerAfterPayment clears the block only when no open
	// invoices remain for the seller.
	UnblockSellerAfterPayment(ctx context.Context, sellerID uuid.UUID) (bool, error)
	// CancelInvoice reverses an invoice by issuing a credit note; the
	// invoice row is kept and only its status changes.
	CancelInvoice(ctx context.Context, invoiceID uuid.UUID, reason string) (*models.CreditNote, error)
}

type service struct {
	invoices Repository
	sellers  sellers.Repository
	fees     fees.Repository
	notifier notifier.Service
	tx       txRunner
	metrics  *metrics.DunningMetrics
	log      *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Invoices Repository
	Sellers  sellers.Repository
	Fees     fees.Repository
	Notifier notifier.Service
	Tx       txRunner
	Metrics  *metrics.DunningMetrics
	Logger   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Sellers == nil {
		return nil, fmt.Errorf("seller repository required")
	}
	if params.Fees == nil {
		return nil, fmt.Errorf("fee schedule repository required")
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
		invoices: params.Invoices,
		sellers:  params.Sellers,
		fees:     params.Fees,
		notifier: params.Notifier,
		tx:       params.Tx,
		metrics:  params.Metrics,
		log:      params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*models.Invoice, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}

	schedule, err := s.fees.Latest(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load fee schedule")
	}
	quote, err := fees.Compute(input.ItemPrice, schedule)
	if err != nil {
		return nil, err
	}

	seller, err := s.sellers.ByID(ctx, input.SellerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load seller")
	}

	now := s.now().UTC()
	var invoice *models.Invoice
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.invoices.WithTx(tx)
		number, err := repo.NextDocumentNumber(ctx, invoiceNumberPrefix, now.Year())
		if err != nil {
			return err
		}
		invoice = &models.Invoice{
			ID:            uuid.New(),
			SellerID:      input.SellerID,
			OrderID:       input.OrderID,
			InvoiceNumber: number,
			Subtotal:      quote.PlatformFee,
			VATRate:       quote.VATRate,
			VATAmount:     quote.VATAmount,
			Total:         quote.InvoiceTotal,
			Status:        enums.InvoiceStatusPending,
			DueDate:       now.AddDate(0, 0, paymentTermDays),
		}
		return repo.Create(ctx, invoice)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create invoice")
	}

	ctx = s.log.WithInvoiceID(ctx, invoice.ID.String())
	s.log.Info(ctx, fmt.Sprintf("invoice %s created over %s", invoice.InvoiceNumber, invoice.Total))

	s.notifier.Deliver(ctx, notifier.Message{
		UserID: seller.ID,
		Email:  seller.Email,
		Type:   enums.NotificationInvoiceCreated,
		Title:  fmt.Sprintf("Rechnung %s", invoice.InvoiceNumber),
		Body:   fmt.Sprintf("Für Ihren Verkauf wurde die Provisionsrechnung %s über CHF %s erstellt.", invoice.InvoiceNumber, invoice.Total),
		Link:   fmt.Sprintf("/invoices/%s", invoice.ID),
	})

	return invoice, nil
}

func (s *service) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoices.ByID(ctx, invoiceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load invoice")
	}
	return invoice, nil
}

func (s *service) ProcessInvoiceReminders(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StagesSent: map[string]int{}}

	open, err := s.invoices.ListOpen(ctx)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list open invoices")
	}
	result.Scanned = len(open)

	schedule, err := s.fees.Latest(ctx)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load fee schedule")
	}

	var sweepErr error
	now := s.now()
	for i := range open {
		invoice := &open[i]
		if err := s.advanceInvoice(ctx, invoice, now, schedule.LateFee, &result); err != nil {
			result.Failed++
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("invoice %s: %w", invoice.InvoiceNumber, err))
			s.log.Error(s.log.WithInvoiceID(ctx, invoice.ID.String()), "dunning stage failed", err)
		}
	}

	s.log.Info(ctx, fmt.Sprintf("reminder sweep: scanned=%d sent=%v late_fees=%d blocked=%d failed=%d",
		result.Scanned, result.StagesSent, result.LateFeesAdded, result.SellersBlocked, result.Failed))
	return result, sweepErr
}

// advanceInvoice applies at most one due stage to the invoice. State is
// committed before any notification goes out, so a notification failure can
// never cause a stage to be re-applied.
func (s *service) advanceInvoice(ctx context.Context, invoice *models.Invoice, now time.Time, lateFee decimal.Decimal, result *SweepResult) error {
	stage, due := NextDueStage(invoice, now)
	if !due {
		return nil
	}
	ctx = s.log.WithInvoiceID(ctx, invoice.ID.String())

	fee := decimal.Zero
	if stage == enums.DunningStageSecondReminder && !invoice.LateFeeAdded {
		fee = lateFee
	}

	applied, err := s.invoices.ApplyStage(ctx, invoice.ID, stage, now, fee)
	if err != nil {
		return err
	}
	if !applied {
		// Another sweep got here first; nothing to send.
		return nil
	}

	result.StagesSent[stage.String()]++
	s.metrics.IncStage(stage.String())
	if !fee.IsZero() {
		result.LateFeesAdded++
		s.metrics.IncLateFee()
	}

	seller, err := s.sellers.ByID(ctx, invoice.SellerID)
	if err != nil {
		return fmt.Errorf("loading seller for notification: %w", err)
	}

	if stage == enums.DunningStageFinalReminder {
		blocked, err := s.sellers.Block(ctx, invoice.SellerID, blockedReasonUnpaidInvoices, now)
		if err != nil {
			return fmt.Errorf("blocking seller: %w", err)
		}
		if blocked {
			result.SellersBlocked++
			s.metrics.IncBlockedSeller()
			s.log.Warn(s.log.WithSellerID(ctx, invoice.SellerID.String()), "seller blocked for unpaid invoices")
			s.notifier.Deliver(ctx, notifier.Message{
				UserID: seller.ID,
				Email:  seller.Email,
				Type:   enums.NotificationAccountBlocked,
				Title:  "Ihr Konto wurde gesperrt",
				Body:   fmt.Sprintf("Trotz mehrfacher Mahnung ist die Rechnung %s unbezahlt. Ihr Konto ist bis zur Zahlung gesperrt.", invoice.InvoiceNumber),
				Link:   fmt.Sprintf("/invoices/%s", invoice.ID),
			})
		}
	}

	s.notifier.Deliver(ctx, notifier.Message{
		UserID: seller.ID,
		Email:  seller.Email,
		Type:   enums.NotificationInvoiceReminder,
		Title:  stageTitle(stage, invoice.InvoiceNumber),
		Body:   stageBody(stage, invoice, lateFee),
		Link:   fmt.Sprintf("/invoices/%s", invoice.ID),
	})
	return nil
}

func stageTitle(stage enums.DunningStage, invoiceNumber string) string {
	switch stage {
	case enums.DunningStagePaymentRequest:
		return fmt.Sprintf("Zahlungsaufforderung für Rechnung %s", invoiceNumber)
	case enums.DunningStageFirstReminder:
		return fmt.Sprintf("1. Mahnung für Rechnung %s", invoiceNumber)
	case enums.DunningStageSecondReminder:
		return fmt.Sprintf("2. Mahnung für Rechnung %s", invoiceNumber)
	default:
		return fmt.Sprintf("Letzte Mahnung für Rechnung %s", invoiceNumber)
	}
}

func stageBody(stage enums.DunningStage, invoice *models.Invoice, lateFee decimal.Decimal) string {
	switch stage {
	case enums.DunningStagePaymentRequest:
		return fmt.Sprintf("Bitte begleichen Sie die Rechnung %s über CHF %s per Banküberweisung oder TWINT.", invoice.InvoiceNumber, invoice.Total)
	case enums.DunningStageFirstReminder:
		return fmt.Sprintf("Die Rechnung %s ist weiterhin offen. Bitte begleichen Sie den Betrag von CHF %s.", invoice.InvoiceNumber, invoice.Total)
	case enums.DunningStageSecondReminder:
		return fmt.Sprintf("Die Rechnung %s ist überfällig. Es wurde eine Mahngebühr von CHF %s erhoben.", invoice.InvoiceNumber, lateFee)
	default:
		return fmt.Sprintf("Letzte Mahnung: Ohne Zahlung der Rechnung %s bleibt Ihr Konto gesperrt.", invoice.InvoiceNumber)
	}
}

func (s *service) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, method enums.PaymentMethod) error {
	ctx = s.log.WithInvoiceID(ctx, invoiceID.String())

	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}

	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}

	changed, err := s.invoices.MarkPaid(ctx, invoiceID, method, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark invoice paid")
	}
	if !changed {
		if invoice.Status == enums.InvoiceStatusPaid {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("invoice in status %s cannot be marked paid", invoice.Status))
	}

	s.log.Info(ctx, fmt.Sprintf("invoice %s paid via %s", invoice.InvoiceNumber, method))

	if seller, err := s.sellers.ByID(ctx, invoice.SellerID); err == nil {
		s.notifier.Deliver(ctx, notifier.Message{
			UserID: seller.ID,
			Email:  seller.Email,
			Type:   enums.NotificationInvoicePaid,
			Title:  fmt.Sprintf("Zahlung für Rechnung %s erhalten", invoice.InvoiceNumber),
			Body:   "Vielen Dank, Ihre Zahlung ist eingegangen.",
			Link:   fmt.Sprintf("/invoices/%s", invoice.ID),
		})
	}

	if _, err := s.UnblockSellerAfterPayment(ctx, invoice.SellerID); err != nil {
		// The payment itself is committed; report but do not undo.
		s.log.Error(ctx, "unblock check after payment failed", err)
	}
	return nil
}

func (s *service) UnblockSellerAfterPayment(ctx context.Context, sellerID uuid.UUID) (bool, error) {
	ctx = s.log.WithSellerID(ctx, sellerID.String())

	// Re-check the aggregate: the seller may owe on other invoices.
	openCount, err := s.invoices.OpenCountForSeller(ctx, sellerID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to count open invoices")
	}
	if openCount > 0 {
		return false, nil
	}

	unblocked, err := s.sellers.Unblock(ctx, sellerID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to unblock seller")
	}
	if !unblocked {
		return false, nil
	}

	s.log.Info(ctx, "seller unblocked, no open invoices remain")
	if seller, err := s.sellers.ByID(ctx, sellerID); err == nil {
		s.notifier.Deliver(ctx, notifier.Message{
			UserID: seller.ID,
			Email:  seller.Email,
			Type:   enums.NotificationAccountUnblocked,
			Title:  "Ihr Konto ist wieder freigeschaltet",
			Body:   "Alle offenen Rechnungen sind beglichen. Vielen Dank.",
		})
	}
	return true, nil
}

func (s *service) CancelInvoice(ctx context.Context, invoiceID uuid.UUID, reason string) (*models.CreditNote, error) {
	ctx = s.log.WithInvoiceID(ctx, invoiceID.String())

	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}

	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var note *models.CreditNote
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.invoices.WithTx(tx)
		cancelled, err := repo.Cancel(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !cancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("invoice in status %s cannot be cancelled", invoice.Status))
		}
		number, err := repo.NextDocumentNumber(ctx, creditNoteNumberPrefix, s.now().UTC().Year())
		if err != nil {
			return err
		}
		note = &models.CreditNote{
			ID:                uuid.New(),
			OriginalInvoiceID: invoiceID,
			SellerID:          invoice.SellerID,
			CreditNoteNumber:  number,
			Subtotal:          invoice.Subtotal.Neg(),
			VATAmount:         invoice.VATAmount.Neg(),
			Total:             invoice.Total.Neg(),
			Reason:            reason,
		}
		return repo.CreateCreditNote(ctx, note)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to cancel invoice")
	}

	s.log.Info(ctx, fmt.Sprintf("invoice %s cancelled, credit note %s issued", invoice.InvoiceNumber, note.CreditNoteNumber))

	// A cancelled invoice may have been the last thing keeping the seller
	// blocked.
	if _, err := s.UnblockSellerAfterPayment(ctx, invoice.SellerID); err != nil {
		s.log.Error(ctx, "unblock check after cancellation failed", err)
	}
	return note, nil
}
