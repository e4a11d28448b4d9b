package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystemMetrics)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}

		r.Route("/gateway", func(r chi.Router) {
			r.Get("/", s.handleGatewayInfo)
			r.Get("/stats", s.handleGatewayStats)
			r.Put("/settings", s.handleGatewaySettings)
			r.Post("/reboot", s.handleRebootAll)
			r.Delete("/reboot", s.handleCancelReboot)
		})

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Delete("/", s.handleClearNodes)
			r.Get("/free-id", s.handleFreeNodeID)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetNode)
				r.Patch("/", s.handleUpdateNode)
				r.Delete("/", s.handleDeleteNode)
				r.Post("/reboot", s.handleRebootNode)

				r.Route("/sensors/{sid}", func(r chi.Router) {
					r.Get("/", s.handleGetSensor)
					r.Put("/state", s.handleSetSensorState)
				})
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.handleListMessages)
			r.Post("/", s.handleSendRaw)
			r.Delete("/", s.handleClearMessages)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status, including the gateway
// health document when a reporter is wired.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.gateway.IsConnected(),
	}
	if s.health != nil {
		resp["gateway"] = s.health.Current()
	}
	writeJSON(w, http.StatusOK, resp)
}
