package identity

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// Server hosts the credential lifecycle endpoints on a fiber-backed router.
type Server struct {
	srv        router.Server[*fiber.App]
	controller *AuthController
}

// NewServer builds the fiber application and registers the lifecycle routes.
// The session endpoint under /auth/me sits behind the bearer middleware.
func NewServer(controller *AuthController) *Server {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	s := &Server{
		srv:        srv,
		controller: controller,
	}

	controller.RegisterRoutes(srv.Router())

	protected := controller.HTTP.ProtectedRoute()
	srv.Router().Get("/auth/me", s.sessionShow, protected)

	return s
}

// Router exposes the registrar so callers can mount additional routes.
func (s *Server) Router() router.Router[*fiber.App] {
	return s.srv.Router()
}

// Serve blocks listening on addr.
func (s *Server) Serve(addr string) error {
	return s.srv.Serve(addr)
}

func (s *Server) sessionShow(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, s.controller.HTTP.contextKey())
	if !ok {
		return ctx.JSON(router.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "no session",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"subject":    claims.Subject(),
		"account_id": claims.AccountID(),
		"role":       claims.Role(),
		"expires_at": claims.Expires(),
	})
}
