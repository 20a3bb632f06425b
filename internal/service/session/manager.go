package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/domain/session"
)

// Config controls session lifetimes and concurrency limits.
type Config struct {
	MaxDuration           time.Duration `koanf:"max_duration" validate:"gt=0"`
	IdleTimeout           time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	MaxConcurrentSessions int           `koanf:"max_concurrent_sessions" validate:"gt=0"`
	SecureTransport       bool          `koanf:"secure_transport"`
	TokenLength           int           `koanf:"token_length" validate:"gt=0"`
	RenewBeforeExpiry     time.Duration `koanf:"renew_before_expiry" validate:"gt=0"`
}

// DefaultConfig returns the standard HIPAA-oriented session settings.
func DefaultConfig() Config {
	return Config{
		MaxDuration:           8 * time.Hour,
		IdleTimeout:           30 * time.Minute,
		MaxConcurrentSessions: 3,
		SecureTransport:       true,
		TokenLength:           64,
		RenewBeforeExpiry:     time.Hour,
	}
}

const (
	// sweepInterval is how often the background cleanup scans sessions.
	sweepInterval = 5 * time.Minute
	// removalGrace keeps terminated sessions inspectable before they are
	// hard-removed from the store.
	removalGrace = time.Minute
)

// Meta carries optional request attributes recorded on a new session.
type Meta struct {
	IPAddress string
	UserAgent string
	Data      map[string]interface{}
}

// Manager owns the session index and lifecycle: issue, validate, renew,
// terminate, plus the periodic expiry sweep.
type Manager struct {
	config Config
	store  Store
	clock  clockwork.Clock
	logger *zap.Logger

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore overrides the default in-memory session store.
func WithStore(store Store) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithClock injects the clock, used by tests to drive timeouts.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// NewManager builds a session manager and starts its cleanup sweep.
func NewManager(config Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		config:    config,
		store:     NewMemoryStore(),
		clock:     clockwork.NewRealClock(),
		logger:    logger.Named("session"),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweepLoop()
	m.logger.Info("session cleanup process started",
		zap.Duration("interval", sweepInterval),
	)
	return m
}

// CreateSession issues a new session. When the user is already at the
// concurrency limit, the single oldest active session is evicted first;
// the new session is never rejected.
func (m *Manager) CreateSession(ctx context.Context, userID, role string, permissions []string, meta *Meta) (*session.Session, error) {
	active, err := m.activeUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(active) >= m.config.MaxConcurrentSessions {
		sort.Slice(active, func(i, j int) bool {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		})
		if _, err := m.TerminateSession(ctx, active[0].ID, session.ReasonConcurrentLimit); err != nil {
			return nil, err
		}
	}

	now := m.clock.Now()
	sess := &session.Session{
		ID:           session.NewID(now, m.config.TokenLength),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.config.MaxDuration),
		Permissions:  append([]string(nil), permissions...),
		Active:       true,
		Metadata:     map[string]interface{}{"role": role},
	}
	if meta != nil {
		sess.IPAddress = meta.IPAddress
		sess.UserAgent = meta.UserAgent
		for k, v := range meta.Data {
			sess.Metadata[k] = v
		}
	}

	if err := m.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.String("role", role),
		zap.Time("expires_at", sess.ExpiresAt),
		zap.String("ip_address", sess.IPAddress),
	)
	return sess, nil
}

// ValidateSession returns the session if it is live, updating its last
// activity as a side effect. Expiry, idle timeout and (under secure
// transport) ip mismatch all terminate the session and return nil.
func (m *Manager) ValidateSession(ctx context.Context, sessionID, ipAddress string) (*session.Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		m.logger.Warn("session validation failed, not found", zap.String("session_id", sessionID))
		return nil, nil
	}
	if !sess.Active {
		m.logger.Warn("session validation failed, inactive", zap.String("session_id", sessionID))
		return nil, nil
	}

	now := m.clock.Now()
	if sess.ExpiredAt(now) {
		m.logger.Warn("session validation failed, expired", zap.String("session_id", sessionID))
		if _, err := m.TerminateSession(ctx, sessionID, session.ReasonExpired); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if sess.IdleAt(now, m.config.IdleTimeout) {
		m.logger.Warn("session validation failed, idle timeout",
			zap.String("session_id", sessionID),
			zap.Duration("idle_time", now.Sub(sess.LastActivity)),
		)
		if _, err := m.TerminateSession(ctx, sessionID, session.ReasonIdleTimeout); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if m.config.SecureTransport && sess.IPAddress != "" && ipAddress != "" && sess.IPAddress != ipAddress {
		m.logger.Warn("session validation failed, ip mismatch",
			zap.String("session_id", sessionID),
			zap.String("original_ip", sess.IPAddress),
			zap.String("current_ip", ipAddress),
		)
		if _, err := m.TerminateSession(ctx, sessionID, session.ReasonIPMismatch); err != nil {
			return nil, err
		}
		return nil, nil
	}

	sess.LastActivity = now
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RenewSession extends the session's expiry to now+maxDuration, but only
// once it is within the renewal window; earlier calls return the session
// unchanged.
func (m *Manager) RenewSession(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := m.ValidateSession(ctx, sessionID, "")
	if err != nil || sess == nil {
		return nil, err
	}

	now := m.clock.Now()
	if sess.ExpiresAt.After(now.Add(m.config.RenewBeforeExpiry)) {
		return sess, nil
	}

	sess.ExpiresAt = now.Add(m.config.MaxDuration)
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("session renewed",
		zap.String("session_id", sessionID),
		zap.String("user_id", sess.UserID),
		zap.Time("new_expires_at", sess.ExpiresAt),
	)
	return sess, nil
}

// TerminateSession marks the session inactive and schedules its removal
// from the store after the grace window.
func (m *Manager) TerminateSession(ctx context.Context, sessionID string, reason session.TerminationReason) (bool, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	if reason == "" {
		reason = session.ReasonManual
	}

	sess.Active = false
	sess.Terminated = reason
	if err := m.store.Put(ctx, sess); err != nil {
		return false, err
	}

	m.logger.Info("session terminated",
		zap.String("session_id", sessionID),
		zap.String("user_id", sess.UserID),
		zap.String("reason", string(reason)),
	)

	// Keep the record inspectable for audit before hard removal.
	m.clock.AfterFunc(removalGrace, func() {
		if err := m.store.Delete(context.Background(), sessionID); err != nil {
			m.logger.Error("session removal failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	})
	return true, nil
}

// TerminateUserSessions terminates every session the user holds, except
// the given one, and returns how many were terminated.
func (m *Manager) TerminateUserSessions(ctx context.Context, userID, exceptSessionID string) (int, error) {
	ids, err := m.store.UserSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	terminated := 0
	for _, id := range ids {
		if id == exceptSessionID {
			continue
		}
		ok, err := m.TerminateSession(ctx, id, session.ReasonUserTerminated)
		if err != nil {
			return terminated, err
		}
		if ok {
			terminated++
		}
	}

	if terminated > 0 {
		m.logger.Info("user sessions terminated",
			zap.String("user_id", userID),
			zap.Int("terminated_count", terminated),
		)
	}
	return terminated, nil
}

// UserSessions returns the user's active sessions.
func (m *Manager) UserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	return m.activeUserSessions(ctx, userID)
}

func (m *Manager) activeUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	ids, err := m.store.UserSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil && sess.Active {
			out = append(out, sess)
		}
	}
	return out, nil
}

// SessionInfo returns the metadata-stripped view of a session, or nil.
func (m *Manager) SessionInfo(ctx context.Context, sessionID string) (*session.Info, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	info := sess.Info()
	return &info, nil
}

// ActiveSessions lists all live sessions, most recently active first.
// Idle sessions the sweep has not yet terminated are excluded.
func (m *Manager) ActiveSessions(ctx context.Context) ([]session.Info, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	out := make([]session.Info, 0, len(all))
	for _, sess := range all {
		if sess.ValidAt(now, m.config.IdleTimeout) {
			out = append(out, sess.Info())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// UpdatePermissions replaces the permission snapshot on a live session.
func (m *Manager) UpdatePermissions(ctx context.Context, sessionID string, permissions []string) (bool, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess == nil || !sess.Active {
		return false, nil
	}

	sess.Permissions = append([]string(nil), permissions...)
	sess.LastActivity = m.clock.Now()
	if err := m.store.Put(ctx, sess); err != nil {
		return false, err
	}

	m.logger.Info("session permissions updated",
		zap.String("session_id", sessionID),
		zap.String("user_id", sess.UserID),
		zap.Int("permission_count", len(permissions)),
	)
	return true, nil
}

// HasPermission reports whether a live session carries the permission.
func (m *Manager) HasPermission(ctx context.Context, sessionID, permission string) bool {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil || sess == nil || !sess.Active {
		return false
	}
	return sess.HasPermission(permission)
}

// Stats summarizes all stored sessions, terminated-but-not-yet-purged
// ones included.
type Stats struct {
	TotalSessions          int            `json:"total_sessions"`
	ActiveSessions         int            `json:"active_sessions"`
	ExpiredSessions        int            `json:"expired_sessions"`
	UserCount              int            `json:"user_count"`
	AverageSessionDuration time.Duration  `json:"average_session_duration"`
	SessionsPerUser        map[string]int `json:"sessions_per_user"`
}

// Stats returns session index counts. Mean duration is measured as
// lastActivity minus createdAt across all stored sessions.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalSessions:   len(all),
		SessionsPerUser: make(map[string]int),
	}
	users := make(map[string]struct{})
	now := m.clock.Now()
	var totalDuration time.Duration

	for _, sess := range all {
		if sess.ValidAt(now, m.config.IdleTimeout) {
			stats.ActiveSessions++
			users[sess.UserID] = struct{}{}
		} else {
			stats.ExpiredSessions++
		}
		totalDuration += sess.LastActivity.Sub(sess.CreatedAt)
		stats.SessionsPerUser[sess.UserID]++
	}

	stats.UserCount = len(users)
	if len(all) > 0 {
		stats.AverageSessionDuration = totalDuration / time.Duration(len(all))
	}
	return stats, nil
}

// sweepLoop drives the periodic cleanup of expired and idle sessions.
func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := m.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.sweep()
		case <-m.sweepStop:
			return
		}
	}
}

// sweep terminates expired and idle sessions concurrently. Failures are
// logged and never block the next cycle.
func (m *Manager) sweep() {
	ctx := context.Background()
	all, err := m.store.All(ctx)
	if err != nil {
		m.logger.Error("session cleanup failed", zap.Error(err))
		return
	}

	now := m.clock.Now()
	type target struct {
		id     string
		reason session.TerminationReason
	}
	var targets []target
	for _, sess := range all {
		if !sess.Active {
			continue
		}
		switch {
		case sess.ExpiredAt(now):
			targets = append(targets, target{sess.ID, session.ReasonExpired})
		case sess.IdleAt(now, m.config.IdleTimeout):
			targets = append(targets, target{sess.ID, session.ReasonIdleTimeout})
		}
	}
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			if _, err := m.TerminateSession(ctx, tgt.id, tgt.reason); err != nil {
				m.logger.Error("session cleanup termination failed",
					zap.String("session_id", tgt.id),
					zap.Error(err),
				)
			}
		}(tgt)
	}
	wg.Wait()

	m.logger.Info("expired sessions cleaned up", zap.Int("cleaned_count", len(targets)))
}

// Shutdown stops the sweep and terminates every live session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeOnce.Do(func() {
		close(m.sweepStop)
	})
	<-m.sweepDone

	all, err := m.store.All(ctx)
	if err != nil {
		return err
	}
	for _, sess := range all {
		if !sess.Active {
			continue
		}
		if _, err := m.TerminateSession(ctx, sess.ID, session.ReasonSystemShutdown); err != nil {
			m.logger.Error("shutdown termination failed",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		}
	}
	m.logger.Info("session manager stopped")
	return nil
}
