package handler

import (
	"net/http"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/ledger"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Write-through mutations
// ============================================================

// addTransactionRequest carries the date as text so the same layouts the
// normalizer accepts work here too.
type addTransactionRequest struct {
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
	Date   string          `json:"date"`
	Icon   string          `json:"icon,omitempty"`
}

func addTransactionHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var req addTransactionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		date, ok := ledger.ParseDate(req.Date)
		if !ok {
			handleServiceError(w, &domain.ErrValidation{Field: "date", Message: "must be an ISO-8601 date"}, logger)
			return
		}

		tx := domain.NewTransaction{
			Title:  req.Title,
			Amount: req.Amount,
			Type:   domain.Kind(req.Type),
			Date:   date,
			Icon:   req.Icon,
		}
		if err := ledgerSvc.AddTransaction(ctx, SessionIDFromContext(ctx), tx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, domain.SuccessResponse{Message: "transaction added"})
	}
}

func editTransactionHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/transactions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("transaction.id", id))

		var upd domain.TransactionUpdate
		if err := decodeBody(r, &upd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := ledgerSvc.EditTransaction(ctx, SessionIDFromContext(ctx), id, upd); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "transaction updated", ID: id})
	}
}

func deleteTransactionHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/transactions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("transaction.id", id))

		if err := ledgerSvc.DeleteTransaction(ctx, SessionIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
