package authcore

import (
	"context"
	"io"
	"time"

	"github.com/probelight/authcore/credential"
	internalaudit "github.com/probelight/authcore/internal/audit"
)

// IdentityGate is the engine's view of user management. The engine never
// owns identity lifecycle; it only asks whether an identity may authenticate
// and resolves secondary identifiers during login.
type IdentityGate interface {
	// Allowed reports whether the identity is active and login-enabled. It is
	// consulted only after password verification so probing cannot reveal
	// account enablement, and a denial never counts as a failed attempt.
	Allowed(ctx context.Context, identityRef string) (bool, error)
	// Resolve maps a secondary identifier (email, employee code) to an
	// identity reference when no credential record matches the login handle.
	Resolve(ctx context.Context, loginID string) (identityRef string, ok bool, err error)
}

// IdentitySummary is the caller-facing projection of an authenticated
// identity. The secret hash never leaves the engine.
type IdentitySummary struct {
	IdentityRef string     `json:"identity_ref"`
	Handle      string     `json:"handle"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Identity            IdentitySummary
	AccessToken         string
	RefreshToken        string
	DeviceID            string
	ForcePasswordChange bool
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	DeviceID     string
}

// GrantLoginInput is the input for [Engine.GrantLogin]. Handle is optional;
// when empty, one is derived from DisplayName with numeric-suffix
// disambiguation on collision.
type GrantLoginInput struct {
	IdentityRef string
	DisplayName string
	Handle      string
}

// GrantLoginResult carries the provisioned handle and the system-issued
// temporary password. The password is returned exactly once and never stored
// in clear.
type GrantLoginResult struct {
	Handle       string
	TempPassword string
}

// AccessIdentity is the verified subject of an access token, returned by
// [Engine.ValidateAccess].
type AccessIdentity struct {
	IdentityRef string
	Handle      string
}

// DeviceSummary is the read-only projection of one device session.
type DeviceSummary = credential.DeviceSummary

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
