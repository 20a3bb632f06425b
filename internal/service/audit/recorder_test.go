package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/service/masking"
)

func TestLogEvent(t *testing.T) {
	r := NewRecorder(DefaultConfig(), zap.NewNop())

	id, err := r.LogEvent(context.Background(), Event{
		EventType: "access",
		UserID:    "user-1",
		PatientID: "pat-42",
		Action:    "read",
		Resource:  "Patient",
		Outcome:   OutcomeSuccess,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	logs := r.Logs(Query{})
	require.Len(t, logs, 1)
	assert.Equal(t, id, logs[0].ID)
	assert.False(t, logs[0].Timestamp.IsZero())
}

func TestLogEventRequiresType(t *testing.T) {
	r := NewRecorder(DefaultConfig(), zap.NewNop())
	_, err := r.LogEvent(context.Background(), Event{UserID: "user-1"})
	require.Error(t, err)
}

func TestEndpointDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var ev Event
		require.NoError(t, json.NewDecoder(req.Body).Decode(&ev))
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.AutomaticReporting = true
	config.Endpoint = server.URL
	masker := masking.NewMasker(masking.DefaultConfig(), zap.NewNop())
	r := NewRecorder(config, zap.NewNop(), WithRedactor(masker))

	_, err := r.LogEvent(context.Background(), Event{
		EventType: "access",
		UserID:    "user-1",
		Outcome:   OutcomeSuccess,
		Details:   map[string]interface{}{"ssn": "123-45-6789"},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "***-**-6789", received[0].Details["ssn"])
}

func TestEndpointFailureIsSwallowed(t *testing.T) {
	config := DefaultConfig()
	config.AutomaticReporting = true
	config.Endpoint = "http://127.0.0.1:1/audit"
	r := NewRecorder(config, zap.NewNop())

	_, err := r.LogEvent(context.Background(), Event{
		EventType: "access",
		Outcome:   OutcomeFailure,
	})
	require.NoError(t, err)
}

func TestLogsFiltering(t *testing.T) {
	r := NewRecorder(DefaultConfig(), zap.NewNop())
	seed := []Event{
		{EventType: "access", UserID: "u1", Outcome: OutcomeSuccess},
		{EventType: "access", UserID: "u2", Outcome: OutcomeDenied},
		{EventType: "login", UserID: "u1", Outcome: OutcomeSuccess},
	}
	for _, ev := range seed {
		_, err := r.LogEvent(context.Background(), ev)
		require.NoError(t, err)
	}

	assert.Len(t, r.Logs(Query{UserID: "u1"}), 2)
	assert.Len(t, r.Logs(Query{EventType: "access"}), 2)
	assert.Len(t, r.Logs(Query{Outcome: OutcomeDenied}), 1)
	assert.Len(t, r.Logs(Query{UserID: "u1", EventType: "login"}), 1)
	assert.Empty(t, r.Logs(Query{Start: time.Now().Add(time.Hour)}))
}

func TestCleanupOldLogs(t *testing.T) {
	config := DefaultConfig()
	config.RetentionPeriod = time.Hour
	r := NewRecorder(config, zap.NewNop())

	_, err := r.LogEvent(context.Background(), Event{EventType: "access", Outcome: OutcomeSuccess})
	require.NoError(t, err)

	// Nothing old enough yet.
	assert.Zero(t, r.CleanupOldLogs())

	// Backdate the stored event past the retention cutoff.
	r.mu.Lock()
	for id, log := range r.logs {
		log.Timestamp = time.Now().Add(-2 * time.Hour)
		r.logs[id] = log
	}
	r.mu.Unlock()

	assert.Equal(t, 1, r.CleanupOldLogs())
	assert.Empty(t, r.Logs(Query{}))
}

func TestStats(t *testing.T) {
	r := NewRecorder(DefaultConfig(), zap.NewNop())
	for _, ev := range []Event{
		{EventType: "access", Outcome: OutcomeSuccess},
		{EventType: "access", Outcome: OutcomeDenied},
		{EventType: "export", Outcome: OutcomeSuccess},
	} {
		_, err := r.LogEvent(context.Background(), ev)
		require.NoError(t, err)
	}

	st := r.Stats()
	assert.Equal(t, 3, st.TotalLogs)
	assert.Equal(t, 2, st.LogsByEventType["access"])
	assert.Equal(t, 2, st.LogsByOutcome["success"])
	assert.False(t, st.OldestLog.IsZero())
	assert.False(t, st.NewestLog.Before(st.OldestLog))
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "", maskIdentifier(""))
	assert.Equal(t, "***", maskIdentifier("ab12"))
	assert.Equal(t, "pa****42", maskIdentifier("pat-0042"))
}
