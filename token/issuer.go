// Package token signs and verifies the engine's access and refresh tokens.
// The two token classes use distinct HMAC secrets and expiries; verification
// is stateless and distinguishes an expired token from a malformed one.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for a malformed, tampered, or wrong-class token.
	ErrInvalid = errors.New("token invalid")
)

// Config carries the signing secrets and expiries. Both secrets are required;
// their absence is a construction error, never a runtime fallback.
type Config struct {
	AccessSecret  []byte
	AccessExpiry  time.Duration
	RefreshSecret []byte
	RefreshExpiry time.Duration
	Issuer        string
}

// AccessClaims are carried by short-lived access tokens.
type AccessClaims struct {
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by long-lived refresh tokens. Only the identity
// reference travels in the token; the device binding is held server-side.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Issuer mints and verifies both token classes. It is stateless and safe for
// concurrent use.
type Issuer struct {
	config Config
}

// NewIssuer validates the configuration and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= 0 {
		return nil, errors.New("token expiries must be positive")
	}
	return &Issuer{config: cfg}, nil
}

// MintAccess signs a short-lived access token binding the identity reference
// and login handle.
func (i *Issuer) MintAccess(identityRef, handle string, now time.Time) (string, error) {
	claims := AccessClaims{
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityRef,
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.AccessExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.AccessSecret)
}

// MintRefresh signs a long-lived refresh token carrying only the identity
// reference. The random jti makes every mint distinct, so rotation always
// produces a new token value.
func (i *Issuer) MintRefresh(identityRef string, now time.Time) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityRef,
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.RefreshExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.RefreshSecret)
}

// VerifyAccess checks signature and expiry of an access token.
func (i *Issuer) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.verify(tokenStr, claims, i.config.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (i *Issuer) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.verify(tokenStr, claims, i.config.RefreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) verify(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}
