package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/creditkit/pkg/httpserver"
	"github.com/dmitrymomot/creditkit/pkg/jwt"
)

// Router builds the billing API routes. auth verifies user bearer tokens;
// checks back the readiness probe.
func (h *Handler) Router(auth *jwt.Service, checks ...httpserver.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(h.log, h.cfg.ReadinessTimeout, checks...))

	r.Post("/webhooks/{provider}", h.webhook)

	r.With(h.requireInternalSecret).Post("/internal/renewal-sweep", h.renewalSweep)

	r.Group(func(r chi.Router) {
		r.Use(jwt.Middleware(auth, func(w http.ResponseWriter, _ *http.Request, _ error) {
			writeError(w, ErrUnauthorized)
		}))
		r.Get("/tokens", h.tokens)
		r.Get("/subscription", h.activeSubscription)
		r.Post("/subscription/switch", h.switchPlan)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeError(w, ErrNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, HTTPError{Code: http.StatusMethodNotAllowed, Key: "method_not_allowed"})
	})

	return r
}
