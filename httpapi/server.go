// Package httpapi exposes the engine over HTTP. Routing and request parsing
// live here; all credential semantics stay in the engine.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/probelight/authcore"
)

// RoleChecker is the opaque role predicate supplied by the host application.
// The engine never interprets roles; admin endpoints only ask whether the
// authenticated identity satisfies the configured requirement.
type RoleChecker func(ctx context.Context, identityRef, requirement string) (bool, error)

// Config carries transport-level settings.
type Config struct {
	// RefreshCookieName names the refresh-token cookie. Default "refreshToken".
	RefreshCookieName string
	// RefreshExpiry sets the cookie max-age; it should match the engine's
	// refresh-token expiry.
	RefreshExpiry time.Duration
	// SecureCookies marks cookies Secure. Disable only for local development.
	SecureCookies bool
	// AdminRequirement is the opaque requirement string passed to the
	// RoleChecker for lock/unlock endpoints.
	AdminRequirement string
}

// Server binds the auth endpoints to an engine.
type Server struct {
	engine *authcore.Engine
	cfg    Config
	roles  RoleChecker
	log    zerolog.Logger
}

// New creates a Server. roles may be nil, in which case the admin endpoints
// reject every caller.
func New(engine *authcore.Engine, cfg Config, roles RoleChecker, log zerolog.Logger) *Server {
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refreshToken"
	}
	return &Server{engine: engine, cfg: cfg, roles: roles, log: log}
}

// Register mounts the auth routes on the given Echo instance.
func (s *Server) Register(e *echo.Echo) {
	g := e.Group("/auth")

	g.POST("/login", s.Login)
	g.POST("/refresh", s.Refresh)

	authed := g.Group("", s.RequireAuth)
	authed.POST("/logout", s.Logout)
	authed.POST("/logout-all", s.LogoutAll)
	authed.GET("/devices", s.Devices)
	authed.POST("/revoke-token", s.RevokeToken)
	authed.POST("/change-password", s.ChangePassword)

	admin := g.Group("", s.RequireAuth, s.RequireAdmin)
	admin.POST("/lock-account", s.LockAccount)
	admin.POST("/unlock-account", s.UnlockAccount)
}

func (s *Server) setRefreshCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(s.cfg.RefreshExpiry / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
