package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aklauser/marktplatz-backend/api/responses"
	"github.com/aklauser/marktplatz-backend/api/validators"
	"github.com/aklauser/marktplatz-backend/internal/dunning"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

func invoiceIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "invoiceID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoiceID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice id")
	}
	return invoiceID, nil
}

type createInvoiceRequest struct {
	SellerID  string `json:"seller_id" validate:"required,uuid"`
	OrderID   string `json:"order_id" validate:"omitempty,uuid"`
	ItemPrice string `json:"item_price" validate:"required"`
}

// AdminCreateInvoice bills the commission for a sale.
func AdminCreateInvoice(svc dunning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		var body createInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sellerID, err := uuid.Parse(body.SellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
			return
		}
		input := dunning.CreateInvoiceInput{SellerID: sellerID}
		if body.OrderID != "" {
			orderID, err := uuid.Parse(body.OrderID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
				return
			}
			input.OrderID = &orderID
		}
		price, err := decimal.NewFromString(body.ItemPrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item price"))
			return
		}
		input.ItemPrice = price

		invoice, err := svc.CreateInvoice(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

// AdminGetInvoice returns a single invoice with its dunning state.
func AdminGetInvoice(svc dunning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		invoiceID, err := invoiceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svc.GetInvoice(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

type markInvoicePaidRequest struct {
	Method string `json:"method" validate:"required,oneof=bank_transfer twint"`
}

// AdminMarkInvoicePaid settles an invoice and lifts the seller block when
// no other open invoices remain.
func AdminMarkInvoicePaid(svc dunning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		invoiceID, err := invoiceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body markInvoicePaidRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(body.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}
		if err := svc.MarkInvoicePaid(r.Context(), invoiceID, method); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "paid"})
	}
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// AdminCancelInvoice reverses an invoice with a credit note.
func AdminCancelInvoice(svc dunning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		invoiceID, err := invoiceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cancelInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		note, err := svc.CancelInvoice(r.Context(), invoiceID, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, note)
	}
}

type reminderSweeper interface {
	ProcessInvoiceReminders(ctx context.Context) (dunning.SweepResult, error)
}

// AdminRunDunningSweep runs one reminder pass on demand. The daily cron
// does the same work; this endpoint exists for back-office operators.
func AdminRunDunningSweep(sweeper reminderSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		result, err := sweeper.ProcessInvoiceReminders(r.Context())
		if err != nil {
			// Partial sweeps still report their counts; per-invoice
			// failures are retried by the next run.
			if logg != nil {
				logg.Error(r.Context(), "manual reminder sweep finished with failures", err)
			}
		}
		responses.WriteSuccess(w, result)
	}
}
