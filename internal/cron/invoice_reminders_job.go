package cron

import (
	"context"
	"fmt"

	"github.com/aklauser/marktplatz-backend/internal/dunning"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

// reminderSweeper is the slice of the dunning service the job drives.
type reminderSweeper interface {
	ProcessInvoiceReminders(ctx context.Context) (dunning.SweepResult, error)
}

// InvoiceRemindersJobParams configure the daily dunning sweep.
type InvoiceRemindersJobParams struct {
	Logger  *logger.Logger
	Dunning reminderSweeper
}

// NewInvoiceRemindersJob builds the cron job advancing open invoices through
// the reminder stages.
func NewInvoiceRemindersJob(params InvoiceRemindersJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dunning == nil {
		return nil, fmt.Errorf("dunning service required")
	}
	return &invoiceRemindersJob{
		logg:    params.Logger,
		dunning: params.Dunning,
	}, nil
}

type invoiceRemindersJob struct {
	logg    *logger.Logger
	dunning reminderSweeper
}

func (j *invoiceRemindersJob) Name() string { return "invoice-reminders" }

func (j *invoiceRemindersJob) Run(ctx context.Context) error {
	result, err := j.dunning.ProcessInvoiceReminders(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"failed":  result.Failed,
		"blocked": result.SellersBlocked,
	})
	if err != nil {
		// Per-invoice failures are already isolated inside the sweep;
		// surface them so the cycle is recorded as failed.
		return fmt.Errorf("invoice reminder sweep: %w", err)
	}
	j.logg.Info(logCtx, "invoice reminder sweep complete")
	return nil
}
