package dunning

import (
	"testing"
	"time"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

func invoiceAged(days int) *models.Invoice {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Invoice{
		Status:    enums.InvoiceStatusPending,
		CreatedAt: now.AddDate(0, 0, -days),
	}
}

func atTime() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func TestNextDueStageBeforeFirstOffset(t *testing.T) {
	if _, due := NextDueStage(invoiceAged(13), atTime()); due {
		t.Fatal("no stage should be due before day 14")
	}
}

func TestNextDueStageAtEachOffset(t *testing.T) {
	cases := []struct {
		days  int
		stage enums.DunningStage
	}{
		{14, enums.DunningStagePaymentRequest},
		{29, enums.DunningStagePaymentRequest},
		{30, enums.DunningStagePaymentRequest}, // earlier stage still unsent
		{100, enums.DunningStagePaymentRequest},
	}
	for _, tc := range cases {
		stage, due := NextDueStage(invoiceAged(tc.days), atTime())
		if !due {
			t.Fatalf("day %d: expected a due stage", tc.days)
		}
		if stage != tc.stage {
			t.Errorf("day %d: got %s, want %s", tc.days, stage, tc.stage)
		}
	}
}

func TestNextDueStageRequiresPreviousStage(t *testing.T) {
	sent := atTime().AddDate(0, 0, -10)

	invoice := invoiceAged(30)
	invoice.PaymentRequestSentAt = &sent
	stage, due := NextDueStage(invoice, atTime())
	if !due || stage != enums.DunningStageFirstReminder {
		t.Fatalf("got %s/%v, want first_reminder", stage, due)
	}

	// First reminder sent but day 44 not reached: nothing due.
	invoice = invoiceAged(40)
	invoice.PaymentRequestSentAt = &sent
	invoice.FirstReminderSentAt = &sent
	if _, due := NextDueStage(invoice, atTime()); due {
		t.Fatal("no stage should be due at day 40 with first reminder sent")
	}
}

func TestNextDueStageStopsAfterFinal(t *testing.T) {
	sent := atTime().AddDate(0, 0, -1)
	invoice := invoiceAged(90)
	invoice.Status = enums.InvoiceStatusOverdue
	invoice.PaymentRequestSentAt = &sent
	invoice.FirstReminderSentAt = &sent
	invoice.SecondReminderSentAt = &sent
	invoice.FinalReminderSentAt = &sent
	if _, due := NextDueStage(invoice, atTime()); due {
		t.Fatal("no stage should be due once all stages are sent")
	}
}

func TestNextDueStageIgnoresClosedInvoices(t *testing.T) {
	for _, status := range []enums.InvoiceStatus{enums.InvoiceStatusPaid, enums.InvoiceStatusCancelled} {
		invoice := invoiceAged(60)
		invoice.Status = status
		if _, due := NextDueStage(invoice, atTime()); due {
			t.Errorf("status %s: closed invoices must not be swept", status)
		}
	}
}
