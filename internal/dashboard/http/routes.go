package dashboardhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(h.rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	r.Get("/dashboard", h.handleDashboard)
	r.Post("/dashboard/events", h.handleEvent)
	r.Get("/api/dashboard/view", h.handleViewJSON)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/dashboard/export.csv", h.handleCSV)
	})
}

func (h *Handler) rateLimitKey(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
		return "session:" + cookie.Value, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
