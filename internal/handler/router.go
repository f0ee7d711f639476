package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/ledger"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// allowedOrigins configures CORS for the web client; empty allows any origin.
func NewRouter(ledgerSvc *service.LedgerService, authSvc *service.AuthService, metrics *observability.Metrics, logger *zap.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(metricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(ledgerSvc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/engine", engineMetricsHandler(metrics))
		r.Get("/icons", iconsHandler())

		// =============================================
		// Auth
		// =============================================
		r.Post("/auth/login", authLoginHandler(authSvc, logger))
		r.Post("/auth/signup", authSignupHandler(authSvc, logger))

		// =============================================
		// Session-scoped routes
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			r.Post("/auth/logout", authLogoutHandler(authSvc, logger))

			// Screens
			r.Get("/dashboard", dashboardHandler(ledgerSvc, logger))
			r.Get("/income", kindHandler(ledgerSvc, domain.KindIncome, logger))
			r.Get("/expense", kindHandler(ledgerSvc, domain.KindExpense, logger))
			r.Get("/transactions", listTransactionsHandler(ledgerSvc, logger))
			r.Get("/transactions/export.csv", exportCSVHandler(ledgerSvc, logger))

			// Refresh lifecycle
			r.Post("/refresh", refreshHandler(ledgerSvc, logger))
			r.Get("/status", statusHandler(ledgerSvc, logger))
			r.Get("/events", eventsHandler(ledgerSvc, logger))

			// Write-through mutations
			r.Post("/transactions", addTransactionHandler(ledgerSvc, logger))
			r.Put("/transactions/{id}", editTransactionHandler(ledgerSvc, logger))
			r.Delete("/transactions/{id}", deleteTransactionHandler(ledgerSvc, logger))
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(ledgerSvc *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}
		if ledgerSvc != nil {
			services = append(services, domain.ServiceHealth{
				Name:        "refresh-engines",
				Status:      "healthy",
				Detail:      engineDetail(ledgerSvc.ActiveEngines()),
				LastChecked: now,
			})
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   "healthy",
			Services: services,
		})
	}
}

func engineDetail(n int) string {
	if n == 1 {
		return "1 active session"
	}
	return strconv.Itoa(n) + " active sessions"
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func engineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetEngineSnapshot())
	}
}

func iconsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		icons := ledger.Icons()
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Icon]{Data: icons, Total: len(icons)})
	}
}
