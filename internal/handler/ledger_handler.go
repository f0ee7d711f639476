package handler

import (
	"bytes"
	"net/http"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/export"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Screens
// ============================================================

func dashboardHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		view, err := ledgerSvc.Dashboard(ctx, SessionIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

func kindHandler(ledgerSvc *service.LedgerService, kind domain.Kind, logger *zap.Logger) http.HandlerFunc {
	name := "GET /v1/" + string(kind)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()

		view, err := ledgerSvc.Kind(ctx, SessionIDFromContext(ctx), kind)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

func listTransactionsHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		var kind domain.Kind
		if v := r.URL.Query().Get("type"); v != "" {
			k, ok := domain.ParseKind(v)
			if !ok {
				writeError(w, http.StatusBadRequest, "type must be income or expense")
				return
			}
			kind = k
		}
		span.SetAttributes(attribute.String("ledger.kind", string(kind)))

		txs, err := ledgerSvc.Transactions(ctx, SessionIDFromContext(ctx), kind)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CanonicalTransaction]{Data: txs, Total: len(txs)})
	}
}

func exportCSVHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/export.csv")
		defer span.End()

		rows, err := ledgerSvc.Report(ctx, SessionIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// Render fully before writing headers so a failure still yields a JSON error.
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, rows); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

// ============================================================
// Refresh lifecycle
// ============================================================

func refreshHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/refresh")
		defer span.End()

		trigger, ok := service.ParseTrigger(r.URL.Query().Get("trigger"))
		if !ok {
			writeError(w, http.StatusBadRequest, "trigger must be mount, pull or focus")
			return
		}
		span.SetAttributes(attribute.String("refresh.trigger", string(trigger)))

		st, err := ledgerSvc.Refresh(ctx, SessionIDFromContext(ctx), trigger)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func statusHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := ledgerSvc.Status(SessionIDFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
