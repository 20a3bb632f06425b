package session

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TerminationReason explains why a session was ended.
type TerminationReason string

const (
	ReasonManual          TerminationReason = "manual"
	ReasonExpired         TerminationReason = "expired"
	ReasonIdleTimeout     TerminationReason = "idle_timeout"
	ReasonIPMismatch      TerminationReason = "ip_mismatch"
	ReasonConcurrentLimit TerminationReason = "concurrent_limit_exceeded"
	ReasonUserTerminated  TerminationReason = "user_sessions_terminated"
	ReasonSystemShutdown  TerminationReason = "system_shutdown"
)

// Session is a single authenticated session.
type Session struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActivity time.Time              `json:"last_activity"`
	ExpiresAt    time.Time              `json:"expires_at"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	Permissions  []string               `json:"permissions,omitempty"`
	Active       bool                   `json:"active"`
	Terminated   TerminationReason      `json:"terminated,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewID builds a session identifier with an embedded UUID, base-36
// timestamp and random suffix, truncated to maxLen.
func NewID(now time.Time, maxLen int) string {
	buf := make([]byte, 8)
	rand.Read(buf)
	id := "sess_" + uuid.NewString() + "_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + hex.EncodeToString(buf)
	if maxLen > 0 && len(id) > maxLen {
		id = id[:maxLen]
	}
	return id
}

// ExpiredAt reports whether the session's hard lifetime has elapsed.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IdleAt reports whether the session has been inactive for longer than
// the given idle timeout.
func (s *Session) IdleAt(now time.Time, idleTimeout time.Duration) bool {
	return now.Sub(s.LastActivity) > idleTimeout
}

// ValidAt reports whether the session is active, unexpired and not idle.
func (s *Session) ValidAt(now time.Time, idleTimeout time.Duration) bool {
	return s.Active && !s.ExpiredAt(now) && !s.IdleAt(now, idleTimeout)
}

// HasPermission reports whether the session carries the named permission.
func (s *Session) HasPermission(perm string) bool {
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *Session) Clone() *Session {
	c := *s
	if s.Permissions != nil {
		c.Permissions = append([]string(nil), s.Permissions...)
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Info is the externally visible view of a session, with internal
// metadata stripped.
type Info struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Permissions  []string  `json:"permissions,omitempty"`
	Active       bool      `json:"active"`
}

// Info strips metadata and user agent from the session.
func (s *Session) Info() Info {
	return Info{
		ID:           s.ID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		IPAddress:    s.IPAddress,
		Permissions:  append([]string(nil), s.Permissions...),
		Active:       s.Active,
	}
}
