package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/domain/session"
)

func newTestManager(t *testing.T, config Config) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := NewManager(config, zap.NewNop(), WithClock(clock))
	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
	})
	return m, clock
}

func create(t *testing.T, m *Manager, userID string) *session.Session {
	t.Helper()
	sess, err := m.CreateSession(context.Background(), userID, "physician", []string{"Patient:read"}, &Meta{
		IPAddress: "10.0.0.1",
		UserAgent: "Chrome/120.0",
	})
	require.NoError(t, err)
	return sess
}

func TestCreateSession(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	sess := create(t, m, "user-1")

	assert.NotEmpty(t, sess.ID)
	assert.LessOrEqual(t, len(sess.ID), 64)
	assert.True(t, sess.Active)
	assert.Equal(t, sess.CreatedAt.Add(8*time.Hour), sess.ExpiresAt)
	assert.Equal(t, []string{"Patient:read"}, sess.Permissions)
}

func TestConcurrentSessionLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxConcurrentSessions = 2
	m, clock := newTestManager(t, config)

	first := create(t, m, "user-1")
	clock.Advance(time.Second)
	second := create(t, m, "user-1")
	clock.Advance(time.Second)
	third := create(t, m, "user-1")

	// Oldest session is evicted; the newest two survive.
	validated, err := m.ValidateSession(context.Background(), first.ID, "")
	require.NoError(t, err)
	assert.Nil(t, validated)

	active, err := m.UserSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)

	ids := []string{active[0].ID, active[1].ID}
	assert.Contains(t, ids, second.ID)
	assert.Contains(t, ids, third.ID)

	info, err := m.SessionInfo(context.Background(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.False(t, info.Active)
}

func TestValidateSession(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		sess, err := m.ValidateSession(context.Background(), "nope", "")
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("updates last activity", func(t *testing.T) {
		m, clock := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")

		clock.Advance(10 * time.Minute)
		validated, err := m.ValidateSession(context.Background(), sess.ID, "10.0.0.1")
		require.NoError(t, err)
		require.NotNil(t, validated)
		assert.Equal(t, clock.Now(), validated.LastActivity)
	})

	t.Run("absolute expiry terminates", func(t *testing.T) {
		config := DefaultConfig()
		config.MaxDuration = time.Minute
		m, clock := newTestManager(t, config)
		sess := create(t, m, "user-1")

		clock.Advance(61 * time.Second)
		validated, err := m.ValidateSession(context.Background(), sess.ID, "")
		require.NoError(t, err)
		assert.Nil(t, validated)

		info, err := m.SessionInfo(context.Background(), sess.ID)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.False(t, info.Active)
	})

	t.Run("idle timeout terminates", func(t *testing.T) {
		config := DefaultConfig()
		config.IdleTimeout = 5 * time.Minute
		m, clock := newTestManager(t, config)
		sess := create(t, m, "user-1")

		clock.Advance(5*time.Minute + time.Second)
		validated, err := m.ValidateSession(context.Background(), sess.ID, "")
		require.NoError(t, err)
		assert.Nil(t, validated)
	})

	t.Run("ip mismatch under secure transport", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")

		validated, err := m.ValidateSession(context.Background(), sess.ID, "192.0.2.99")
		require.NoError(t, err)
		assert.Nil(t, validated)
	})

	t.Run("ip mismatch ignored without secure transport", func(t *testing.T) {
		config := DefaultConfig()
		config.SecureTransport = false
		m, _ := newTestManager(t, config)
		sess := create(t, m, "user-1")

		validated, err := m.ValidateSession(context.Background(), sess.ID, "192.0.2.99")
		require.NoError(t, err)
		assert.NotNil(t, validated)
	})

	t.Run("missing request ip skips the check", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")

		validated, err := m.ValidateSession(context.Background(), sess.ID, "")
		require.NoError(t, err)
		assert.NotNil(t, validated)
	})
}

func TestRenewSession(t *testing.T) {
	t.Run("no premature renewal", func(t *testing.T) {
		m, clock := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")
		originalExpiry := sess.ExpiresAt

		clock.Advance(time.Minute)
		renewed, err := m.RenewSession(context.Background(), sess.ID)
		require.NoError(t, err)
		require.NotNil(t, renewed)
		assert.Equal(t, originalExpiry, renewed.ExpiresAt)
	})

	t.Run("extends inside renewal window", func(t *testing.T) {
		m, clock := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")

		// Keep the session live while moving inside the last hour.
		for i := 0; i < 15; i++ {
			clock.Advance(29 * time.Minute)
			_, err := m.ValidateSession(context.Background(), sess.ID, "")
			require.NoError(t, err)
		}

		renewed, err := m.RenewSession(context.Background(), sess.ID)
		require.NoError(t, err)
		require.NotNil(t, renewed)
		assert.Equal(t, clock.Now().Add(8*time.Hour), renewed.ExpiresAt)
	})

	t.Run("terminated session yields nil", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")
		_, err := m.TerminateSession(context.Background(), sess.ID, session.ReasonManual)
		require.NoError(t, err)

		renewed, err := m.RenewSession(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Nil(t, renewed)
	})
}

func TestTerminateSession(t *testing.T) {
	t.Run("grace window removal", func(t *testing.T) {
		m, clock := newTestManager(t, DefaultConfig())
		sess := create(t, m, "user-1")

		ok, err := m.TerminateSession(context.Background(), sess.ID, session.ReasonManual)
		require.NoError(t, err)
		assert.True(t, ok)

		// Terminated but still inspectable.
		info, err := m.SessionInfo(context.Background(), sess.ID)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.False(t, info.Active)

		// Removed after the grace window.
		clock.Advance(removalGrace + time.Second)
		assert.Eventually(t, func() bool {
			info, err := m.SessionInfo(context.Background(), sess.ID)
			return err == nil && info == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("unknown session", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		ok, err := m.TerminateSession(context.Background(), "nope", session.ReasonManual)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestTerminateUserSessions(t *testing.T) {
	m, clock := newTestManager(t, DefaultConfig())
	first := create(t, m, "user-1")
	clock.Advance(time.Second)
	second := create(t, m, "user-1")
	clock.Advance(time.Second)
	keep := create(t, m, "user-1")

	count, err := m.TerminateUserSessions(context.Background(), "user-1", keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []string{first.ID, second.ID} {
		validated, err := m.ValidateSession(context.Background(), id, "")
		require.NoError(t, err)
		assert.Nil(t, validated)
	}
	validated, err := m.ValidateSession(context.Background(), keep.ID, "")
	require.NoError(t, err)
	assert.NotNil(t, validated)
}

func TestPermissions(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	sess := create(t, m, "user-1")

	assert.True(t, m.HasPermission(context.Background(), sess.ID, "Patient:read"))
	assert.False(t, m.HasPermission(context.Background(), sess.ID, "Patient:delete"))

	ok, err := m.UpdatePermissions(context.Background(), sess.ID, []string{"Patient:delete"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.HasPermission(context.Background(), sess.ID, "Patient:delete"))
	assert.False(t, m.HasPermission(context.Background(), sess.ID, "Patient:read"))

	_, err = m.TerminateSession(context.Background(), sess.ID, session.ReasonManual)
	require.NoError(t, err)
	ok, err = m.UpdatePermissions(context.Background(), sess.ID, []string{"x"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, m.HasPermission(context.Background(), sess.ID, "Patient:delete"))
}

func TestActiveSessions(t *testing.T) {
	m, clock := newTestManager(t, DefaultConfig())
	first := create(t, m, "user-1")
	clock.Advance(time.Minute)
	second := create(t, m, "user-2")

	active, err := m.ActiveSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)
	// Most recently active first.
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, first.ID, active[1].ID)
}

func TestActiveSessionsExcludeIdle(t *testing.T) {
	config := DefaultConfig()
	config.IdleTimeout = 2 * time.Minute
	m, clock := newTestManager(t, config)

	idle := create(t, m, "user-1")
	clock.Advance(3 * time.Minute)
	fresh := create(t, m, "user-2")

	// The idle session has not been swept yet but is no longer live.
	active, err := m.ActiveSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)

	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.ExpiredSessions)

	info, err := m.SessionInfo(context.Background(), idle.ID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Active)
}

func TestSweep(t *testing.T) {
	config := DefaultConfig()
	config.IdleTimeout = 4 * time.Minute
	m, clock := newTestManager(t, config)
	sess := create(t, m, "user-1")

	// The session goes idle before the first sweep fires.
	clock.BlockUntil(1) // sweepLoop's ticker must be registered before advancing
	clock.Advance(sweepInterval)
	assert.Eventually(t, func() bool {
		info, err := m.SessionInfo(context.Background(), sess.ID)
		if err != nil {
			return false
		}
		return info == nil || !info.Active
	}, time.Second, 10*time.Millisecond)
}

func TestStats(t *testing.T) {
	m, clock := newTestManager(t, DefaultConfig())
	create(t, m, "user-1")
	create(t, m, "user-1")
	sess := create(t, m, "user-2")
	_, err := m.TerminateSession(context.Background(), sess.ID, session.ReasonManual)
	require.NoError(t, err)

	clock.Advance(time.Second)
	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 1, stats.ExpiredSessions)
	assert.Equal(t, 1, stats.UserCount)
	assert.Equal(t, 2, stats.SessionsPerUser["user-1"])
}

func TestShutdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(DefaultConfig(), zap.NewNop(), WithClock(clock))
	sess, err := m.CreateSession(context.Background(), "user-1", "nurse", nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))

	info, err := m.SessionInfo(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.False(t, info.Active)
}
