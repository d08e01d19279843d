// Package credential defines the per-identity credential record, its embedded
// device sessions, and the store contract used to mutate it atomically.
package credential

import (
	"sort"
	"strings"
	"time"
)

// UnknownDevice is the sentinel device id used when a caller supplies none.
const UnknownDevice = "unknown"

// RefreshTokenEntry is one row of the record's audit-level refresh token list.
// The list is append-only until a logout or explicit revocation removes rows.
type RefreshTokenEntry struct {
	Token    string    `json:"token"`
	DeviceID string    `json:"device_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// HistoryEntry records one login on a device. LogoutAt is nil while the
// session is still open; only the most recent entry may be closed.
type HistoryEntry struct {
	LoginAt  time.Time  `json:"login_at"`
	LogoutAt *time.Time `json:"logout_at,omitempty"`
}

// DeviceSession is the authentication state one device maintains against an
// identity. Sessions are created lazily on first login from a device id and
// never deleted, only marked logged out.
type DeviceSession struct {
	DeviceID            string         `json:"device_id"`
	IPAddress           string         `json:"ip_address,omitempty"`
	UserAgent           string         `json:"user_agent,omitempty"`
	LoginCount          int            `json:"login_count"`
	CurrentRefreshToken string         `json:"current_refresh_token,omitempty"`
	History             []HistoryEntry `json:"history,omitempty"`
}

// DeviceSummary is the read-only projection returned to callers listing an
// identity's devices.
type DeviceSummary struct {
	DeviceID    string     `json:"device_id"`
	IPAddress   string     `json:"ip_address,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	LoginCount  int        `json:"login_count"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Record is the login-capable projection of an identity: handle, secret hash,
// lockout counters, and the set of device sessions. One record exists per
// identity; the handle is unique and compared case-insensitively.
type Record struct {
	IdentityRef         string                    `json:"identity_ref"`
	Handle              string                    `json:"handle"`
	SecretHash          string                    `json:"secret_hash"`
	FailedAttempts      int                       `json:"failed_attempts"`
	LockLevel           int                       `json:"lock_level"`
	LockedUntil         *time.Time                `json:"locked_until,omitempty"`
	PermanentlyLocked   bool                      `json:"permanently_locked"`
	LoggedIn            bool                      `json:"logged_in"`
	LastLoginAt         *time.Time                `json:"last_login_at,omitempty"`
	ForcePasswordChange bool                      `json:"force_password_change"`
	RefreshTokens       []RefreshTokenEntry       `json:"refresh_tokens,omitempty"`
	Devices             map[string]*DeviceSession `json:"devices,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// Caps bounds the embedded append-only collections. Zero values mean
// unbounded; stores and the engine always pass configured limits.
type Caps struct {
	MaxHistoryPerDevice int
	MaxRefreshTokens    int
}

// NormalizeHandle lower-cases and trims a login handle for storage and lookup.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeDeviceID maps an empty device id to the UnknownDevice sentinel.
func NormalizeDeviceID(deviceID string) string {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return UnknownDevice
	}
	return deviceID
}

// BindDevice attaches a freshly issued refresh token to a device. Unknown
// device ids create a new session; known ids rotate the current token,
// increment the login counter, and refresh last-seen ip/user-agent when
// provided. A new open history entry is appended either way, and the token is
// recorded in the audit-level RefreshTokens list.
func (r *Record) BindDevice(deviceID, refreshToken, ip, userAgent string, now time.Time, caps Caps) *DeviceSession {
	deviceID = NormalizeDeviceID(deviceID)

	dev, ok := r.Devices[deviceID]
	if !ok {
		dev = &DeviceSession{DeviceID: deviceID}
		if r.Devices == nil {
			r.Devices = make(map[string]*DeviceSession)
		}
		r.Devices[deviceID] = dev
	}

	dev.CurrentRefreshToken = refreshToken
	dev.LoginCount++
	if ip != "" {
		dev.IPAddress = ip
	}
	if userAgent != "" {
		dev.UserAgent = userAgent
	}
	dev.History = append(dev.History, HistoryEntry{LoginAt: now})
	if caps.MaxHistoryPerDevice > 0 && len(dev.History) > caps.MaxHistoryPerDevice {
		dev.History = dev.History[len(dev.History)-caps.MaxHistoryPerDevice:]
	}

	r.RefreshTokens = append(r.RefreshTokens, RefreshTokenEntry{
		Token:    refreshToken,
		DeviceID: deviceID,
		IssuedAt: now,
	})
	if caps.MaxRefreshTokens > 0 && len(r.RefreshTokens) > caps.MaxRefreshTokens {
		r.RefreshTokens = r.RefreshTokens[len(r.RefreshTokens)-caps.MaxRefreshTokens:]
	}

	return dev
}

// RotateToken replaces the device's current refresh token after a successful
// refresh. Unlike BindDevice it is not a login: no history entry is appended
// and the login counter is untouched. The retired token stays in the
// audit-level RefreshTokens list until a logout or revocation clears it; the
// new token is appended so the current-token invariant holds. Returns false
// when oldToken is not the device's current token.
func (r *Record) RotateToken(deviceID, oldToken, newToken string, now time.Time, caps Caps) bool {
	dev, ok := r.Devices[NormalizeDeviceID(deviceID)]
	if !ok || dev.CurrentRefreshToken == "" || dev.CurrentRefreshToken != oldToken {
		return false
	}

	dev.CurrentRefreshToken = newToken
	r.RefreshTokens = append(r.RefreshTokens, RefreshTokenEntry{
		Token:    newToken,
		DeviceID: dev.DeviceID,
		IssuedAt: now,
	})
	if caps.MaxRefreshTokens > 0 && len(r.RefreshTokens) > caps.MaxRefreshTokens {
		r.RefreshTokens = r.RefreshTokens[len(r.RefreshTokens)-caps.MaxRefreshTokens:]
	}
	return true
}

// VerifyForDevice reports whether refreshToken is the device's current token.
// Historical tokens in RefreshTokens never verify; rotation is single-use.
func (r *Record) VerifyForDevice(refreshToken, deviceID string) bool {
	dev, ok := r.Devices[NormalizeDeviceID(deviceID)]
	if !ok {
		return false
	}
	return dev.CurrentRefreshToken != "" && dev.CurrentRefreshToken == refreshToken
}

// LogoutDevice closes the device's open history entry and clears its current
// refresh token. Returns false when the device id is unknown.
func (r *Record) LogoutDevice(deviceID string, now time.Time) bool {
	dev, ok := r.Devices[NormalizeDeviceID(deviceID)]
	if !ok {
		return false
	}
	closeOpenHistory(dev, now)
	dev.CurrentRefreshToken = ""
	return true
}

// LogoutAll applies LogoutDevice semantics to every device and clears the
// audit-level refresh token list entirely.
func (r *Record) LogoutAll(now time.Time) {
	for _, dev := range r.Devices {
		closeOpenHistory(dev, now)
		dev.CurrentRefreshToken = ""
	}
	r.RefreshTokens = nil
	r.LoggedIn = false
}

// Revoke removes the matching entry from the audit-level refresh token list.
// Per-device bindings are untouched; callers needing a device logout use
// LogoutDevice or LogoutAll. Returns false when no entry matches.
func (r *Record) Revoke(token string) bool {
	for i, entry := range r.RefreshTokens {
		if entry.Token == token {
			r.RefreshTokens = append(r.RefreshTokens[:i], r.RefreshTokens[i+1:]...)
			return true
		}
	}
	return false
}

// HasLiveSession reports whether any device still holds a refresh token.
func (r *Record) HasLiveSession() bool {
	for _, dev := range r.Devices {
		if dev.CurrentRefreshToken != "" {
			return true
		}
	}
	return false
}

// ActiveDevices projects every device session to its summary form, ordered by
// most recent login first.
func (r *Record) ActiveDevices() []DeviceSummary {
	out := make([]DeviceSummary, 0, len(r.Devices))
	for _, dev := range r.Devices {
		s := DeviceSummary{
			DeviceID:   dev.DeviceID,
			IPAddress:  dev.IPAddress,
			UserAgent:  dev.UserAgent,
			LoginCount: dev.LoginCount,
		}
		if n := len(dev.History); n > 0 {
			at := dev.History[n-1].LoginAt
			s.LastLoginAt = &at
		}
		out = append(out, s)
	}
	sortSummaries(out)
	return out
}

// Clone deep-copies the record so store reads never alias live state.
func (r *Record) Clone() *Record {
	cp := *r
	if r.LockedUntil != nil {
		t := *r.LockedUntil
		cp.LockedUntil = &t
	}
	if r.LastLoginAt != nil {
		t := *r.LastLoginAt
		cp.LastLoginAt = &t
	}
	if r.RefreshTokens != nil {
		cp.RefreshTokens = make([]RefreshTokenEntry, len(r.RefreshTokens))
		copy(cp.RefreshTokens, r.RefreshTokens)
	}
	if r.Devices != nil {
		cp.Devices = make(map[string]*DeviceSession, len(r.Devices))
		for id, dev := range r.Devices {
			d := *dev
			if dev.History != nil {
				d.History = make([]HistoryEntry, len(dev.History))
				for i, h := range dev.History {
					d.History[i] = h
					if h.LogoutAt != nil {
						t := *h.LogoutAt
						d.History[i].LogoutAt = &t
					}
				}
			}
			cp.Devices[id] = &d
		}
	}
	return &cp
}

func closeOpenHistory(dev *DeviceSession, now time.Time) {
	if n := len(dev.History); n > 0 && dev.History[n-1].LogoutAt == nil {
		t := now
		dev.History[n-1].LogoutAt = &t
	}
}

func sortSummaries(s []DeviceSummary) {
	sort.Slice(s, func(i, j int) bool {
		if later(s[i].LastLoginAt, s[j].LastLoginAt) {
			return true
		}
		if later(s[j].LastLoginAt, s[i].LastLoginAt) {
			return false
		}
		return s[i].DeviceID < s[j].DeviceID
	})
}

func later(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
