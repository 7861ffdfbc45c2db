package controllers

import (
	"net/http"

	"github.com/aklauser/marktplatz-backend/api/responses"
	"github.com/aklauser/marktplatz-backend/api/validators"
	"github.com/aklauser/marktplatz-backend/internal/fees"
	pkgerrors "github.com/aklauser/marktplatz-backend/pkg/errors"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

// AdminQuoteFees prices an item against the fee schedule without creating
// anything. Pass version to re-derive amounts under a historic schedule.
func AdminQuoteFees(calc fees.Calculator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fee calculator unavailable"))
			return
		}
		price, err := validators.ParseQueryDecimal(r, "item_price")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		version, err := validators.ParseQueryInt(r, "version", 0, 1, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var quote fees.Quote
		if version > 0 {
			quote, err = calc.QuoteVersion(r.Context(), price, version)
		} else {
			quote, err = calc.QuoteLatest(r.Context(), price)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
