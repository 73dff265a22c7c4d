package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koboledger/koboledger/internal/ledger/accounts"
	"github.com/koboledger/koboledger/internal/ledger/journals"
	"github.com/koboledger/koboledger/internal/ledger/transfer"
	"github.com/koboledger/koboledger/internal/observability"
	"github.com/koboledger/koboledger/internal/platform/httpx"
)

const pingTimeout = 2 * time.Second

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	JournalsHandler *journals.Handler
	TransferHandler *transfer.Handler
	Metrics         *observability.Metrics
	Pool            *pgxpool.Pool
}

// NewRouter constructs the chi.Router for the API server.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Pool))
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		r.Route("/journal-entries", params.JournalsHandler.MountRoutes)
		r.Route("/accounts", params.AccountsHandler.MountRoutes)
	})

	return r
}

func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Unhealthy", "durable store unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
