package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citrusbyte/lemonade-core/internal/auth"
)

func (s *Server) routes(r chi.Router) {
	r.Use(requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)

		// Authenticated but permissionless: any valid session may revoke
		// its own refresh token or request a feed ticket.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth())
			r.Post("/revoke", s.handleRevoke)
			r.Post("/ws-ticket", s.handleWSTicket)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.handleRegister)

		r.With(s.requireAuth(auth.PermMeGet)).Get("/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(auth.PermAdminUsersGet))
			r.Get("/", s.handleListUsers)
			r.Get("/{id}", s.handleGetUser)
		})
		r.With(s.requireAuth(auth.PermAdminTokensGet)).Get("/{id}/tokens", s.handleUserTokens)
	})

	r.Route("/my", func(r chi.Router) {
		r.With(s.requireAuth(auth.PermMyTokensGet)).Get("/tokens", s.handleMyTokens)
		r.With(s.requireAuth(auth.PermMySalesGet)).Get("/sales", s.handleListAllMySales)

		r.Route("/stands", func(r chi.Router) {
			r.With(s.requireAuth(auth.PermMyStandsGet)).Get("/", s.handleListMyStands)
			r.With(s.requireAuth(auth.PermMyStandsCreate)).Post("/", s.handleCreateStand)
			r.With(s.requireAuth(auth.PermMyStandsGet)).Get("/{id}", s.handleGetStand)
			r.With(s.requireAuth(auth.PermMyStandsUpdate)).Put("/{id}", s.handleUpdateStand)
			r.With(s.requireAuth(auth.PermMyStandsDelete)).Delete("/{id}", s.handleDeleteStand)
			r.With(s.requireAuth(auth.PermMySalesCreate)).Post("/{id}/sales", s.handleCreateSale)
			r.With(s.requireAuth(auth.PermMySalesGet)).Get("/{id}/sales", s.handleListSales)
			r.With(s.requireAuth(auth.PermMyStatsGet)).Get("/{id}/stats", s.handleStandStats)
		})
	})

	r.Get("/stands/near-me", s.handleNearMe)
	r.Get("/roles", s.handleListRoles)
	r.Get("/permissions", s.handleListPermissions)
	r.Get(s.cfg.WebSocket.Path, s.handleWebSocket)
}

// handleHealth reports liveness including a database ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
