package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/probelight/authcore"
)

const identityContextKey = "authcore.identity"

// RequireAuth verifies the access token and stores the authenticated
// identity on the request context. The Authorization header is preferred;
// an accessToken cookie is accepted as a fallback.
func (s *Server) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			if cookie, err := c.Cookie("accessToken"); err == nil {
				tokenStr = cookie.Value
			}
		}
		if tokenStr == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing access token"})
		}

		identity, err := s.engine.ValidateAccess(tokenStr)
		if err != nil {
			return s.writeAuthError(c, err)
		}

		c.Set(identityContextKey, identity)
		return next(c)
	}
}

// RequireAdmin gates a route on the host-supplied role predicate. With no
// RoleChecker configured, every caller is rejected.
func (s *Server) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.roles == nil {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}

		identity := identityFrom(c)
		ok, err := s.roles(c.Request().Context(), identity.IdentityRef, s.cfg.AdminRequirement)
		if err != nil {
			s.log.Error().Err(err).Msg("role check failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		if !ok {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return next(c)
	}
}

func identityFrom(c echo.Context) *authcore.AccessIdentity {
	identity, _ := c.Get(identityContextKey).(*authcore.AccessIdentity)
	if identity == nil {
		return &authcore.AccessIdentity{}
	}
	return identity
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
