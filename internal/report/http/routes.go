package reporthttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the report API endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/reports", func(r chi.Router) {
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/clients", h.handleClients)
		r.Get("/interval", h.handleInterval)
		r.Post("/summary", h.handleSummary)
		r.Post("/analytics", h.handleAnalytics)
		r.Post("/search", h.handleSearch)
		r.Post("/export", h.handleExport)
	})
}
