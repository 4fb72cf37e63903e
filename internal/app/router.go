package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/observability"
	"github.com/moldworks-erp/moldworks-erp/internal/posting"
	"github.com/moldworks-erp/moldworks-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	PostingHandler *posting.Handler
	ARHandler      *ar.Handler
	APHandler      *ap.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with MoldWorks defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.PostingHandler != nil {
			r.Route("/accounting", params.PostingHandler.MountRoutes)
			params.PostingHandler.MountJournalRoutes(r)
		}
		if params.ARHandler != nil {
			r.Route("/ar", params.ARHandler.MountRoutes)
		}
		if params.APHandler != nil {
			r.Route("/ap", params.APHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
