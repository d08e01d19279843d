package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/probelight/authcore"
)

type loginReq struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type logoutReq struct {
	DeviceID string `json:"deviceId"`
}

type revokeReq struct {
	Token string `json:"token"`
}

type changePasswordReq struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type adminAccountReq struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// Login authenticates a handle/password pair and sets the refresh cookie.
// Clients that do not supply a device id get a generated one back and are
// expected to persist it.
func (s *Server) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.LoginID == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "loginId and password required"})
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.NewString()
	}

	res, err := s.engine.Login(c.Request().Context(), req.LoginID, req.Password, req.DeviceID, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return s.writeAuthError(c, err)
	}

	s.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, echo.Map{
		"user":                res.Identity,
		"accessToken":         res.AccessToken,
		"deviceId":            res.DeviceID,
		"forcePasswordChange": res.ForcePasswordChange,
	})
}

// Refresh rotates the device's refresh token. The token is read from the
// cookie first, then the body.
func (s *Server) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	refreshToken := req.RefreshToken
	if cookie, err := c.Cookie(s.cfg.RefreshCookieName); err == nil && cookie.Value != "" {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token required"})
	}

	res, err := s.engine.Refresh(c.Request().Context(), refreshToken, req.DeviceID)
	if err != nil {
		s.clearRefreshCookie(c)
		return s.writeAuthError(c, err)
	}

	s.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, echo.Map{"accessToken": res.AccessToken})
}

// Logout closes the calling identity's session on one device.
func (s *Server) Logout(c echo.Context) error {
	var req logoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	identity := identityFrom(c)
	known, err := s.engine.Logout(c.Request().Context(), identity.IdentityRef, req.DeviceID)
	if err != nil {
		return s.writeAuthError(c, err)
	}

	s.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"loggedOut": known})
}

// LogoutAll closes every device session for the calling identity.
func (s *Server) LogoutAll(c echo.Context) error {
	identity := identityFrom(c)
	if err := s.engine.LogoutAll(c.Request().Context(), identity.IdentityRef); err != nil {
		return s.writeAuthError(c, err)
	}

	s.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"loggedOut": true})
}

// Devices lists the calling identity's device sessions.
func (s *Server) Devices(c echo.Context) error {
	identity := identityFrom(c)
	devices, err := s.engine.ActiveDevices(c.Request().Context(), identity.IdentityRef)
	if err != nil {
		return s.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"devices": devices})
}

// RevokeToken removes one token from the calling identity's audit-level
// refresh token list.
func (s *Server) RevokeToken(c echo.Context) error {
	var req revokeReq
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}

	identity := identityFrom(c)
	revoked, err := s.engine.RevokeToken(c.Request().Context(), identity.IdentityRef, req.Token)
	if err != nil {
		return s.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": revoked})
}

// ChangePassword replaces the calling identity's password and invalidates
// every session, the calling device included.
func (s *Server) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password confirmation mismatch"})
	}

	identity := identityFrom(c)
	if err := s.engine.ChangePassword(c.Request().Context(), identity.IdentityRef, req.OldPassword, req.NewPassword); err != nil {
		return s.writeAuthError(c, err)
	}

	s.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"changed": true})
}

// LockAccount applies the administrative lock to the target identity.
func (s *Server) LockAccount(c echo.Context) error {
	var req adminAccountReq
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId required"})
	}

	if err := s.engine.LockAccount(c.Request().Context(), req.UserID, req.Reason); err != nil {
		return s.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"locked": true})
}

// UnlockAccount clears the administrative lock on the target identity.
func (s *Server) UnlockAccount(c echo.Context) error {
	var req adminAccountReq
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId required"})
	}

	if err := s.engine.UnlockAccount(c.Request().Context(), req.UserID); err != nil {
		return s.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unlocked": true})
}

// writeAuthError maps engine errors to transport responses. Lock errors
// carry remaining time; credential errors stay deliberately vague.
func (s *Server) writeAuthError(c echo.Context, err error) error {
	var lockErr *authcore.TemporaryLockError

	switch {
	case errors.As(err, &lockErr):
		return c.JSON(http.StatusLocked, echo.Map{
			"error":       "account temporarily locked",
			"retryAfterS": int(lockErr.Remaining.Round(time.Second) / time.Second),
		})
	case errors.Is(err, authcore.ErrAccountLockedPermanent):
		return c.JSON(http.StatusLocked, echo.Map{"error": "account locked"})
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, authcore.ErrLoginDisabled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "login disabled"})
	case errors.Is(err, authcore.ErrDeviceTokenMismatch):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token does not match device"})
	case errors.Is(err, authcore.ErrTokenExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
	case errors.Is(err, authcore.ErrTokenInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	case errors.Is(err, authcore.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	case errors.Is(err, authcore.ErrPasswordPolicy):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password does not meet policy"})
	default:
		s.log.Error().Err(err).Str("path", c.Path()).Msg("auth request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
