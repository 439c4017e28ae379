package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soocke/framering-go/platform/metrics"
)

// NewRouter mounts the recording endpoints and, when met is non-nil, the
// Prometheus scrape endpoint with request counting.
func NewRouter(h *Handler, log *slog.Logger, met *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))
	if met != nil {
		r.Use(metrics.RequestMiddleware(met))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			met.Handler().ServeHTTP(w, r)
		})
	}
	r.Get("/stats", h.GetStats)
	r.Get("/frame", h.FindFrame)
	r.Route("/frames", func(r chi.Router) {
		r.Get("/", h.ListFrames)
		r.Get("/{index}", h.GetFrame)
	})
	return r
}
