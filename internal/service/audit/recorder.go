package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HIPAALevel selects how much of each event is written to the log output.
type HIPAALevel string

const (
	LevelMinimal       HIPAALevel = "minimal"
	LevelStandard      HIPAALevel = "standard"
	LevelComprehensive HIPAALevel = "comprehensive"
)

// Outcome classifies how the audited operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Config controls audit behavior.
type Config struct {
	HIPAALevel         HIPAALevel    `koanf:"hipaa_level" validate:"oneof=minimal standard comprehensive"`
	RetentionPeriod    time.Duration `koanf:"retention_period" validate:"gt=0"`
	AutomaticReporting bool          `koanf:"automatic_reporting"`
	Endpoint           string        `koanf:"endpoint" validate:"omitempty,url"`
}

// DefaultConfig returns the standard audit settings with a 7-year
// retention period.
func DefaultConfig() Config {
	return Config{
		HIPAALevel:      LevelStandard,
		RetentionPeriod: 7 * 365 * 24 * time.Hour,
	}
}

// Event is a single auditable action.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id"`
	PatientID string                 `json:"patient_id,omitempty"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Outcome   Outcome                `json:"outcome"`
	IPAddress string                 `json:"ip_address,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Redactor masks PHI before it reaches log output or the remote endpoint.
// The masking engine satisfies this.
type Redactor interface {
	MaskObject(obj map[string]interface{}) map[string]interface{}
}

// Recorder keeps an in-memory audit trail and optionally reports events
// to a remote endpoint, fire-and-forget.
type Recorder struct {
	config   Config
	logger   *zap.Logger
	redactor Redactor
	client   *http.Client

	mu   sync.RWMutex
	logs map[string]Event
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRedactor wires the masking engine used for comprehensive logging.
func WithRedactor(r Redactor) RecorderOption {
	return func(rec *Recorder) { rec.redactor = r }
}

// WithHTTPClient overrides the client used for endpoint delivery.
func WithHTTPClient(c *http.Client) RecorderOption {
	return func(rec *Recorder) { rec.client = c }
}

// NewRecorder builds an audit recorder.
func NewRecorder(config Config, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		config: config,
		logger: logger.Named("audit"),
		client: &http.Client{Timeout: 5 * time.Second},
		logs:   make(map[string]Event),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LogEvent records an event and returns its id. Endpoint delivery runs in
// the background; its failures are logged, never surfaced.
func (r *Recorder) LogEvent(ctx context.Context, event Event) (string, error) {
	if event.EventType == "" {
		return "", fmt.Errorf("audit event type cannot be empty")
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	r.mu.Lock()
	r.logs[event.ID] = event
	r.mu.Unlock()

	r.writeByLevel(event)

	if r.config.Endpoint != "" && r.config.AutomaticReporting {
		go r.sendToEndpoint(event)
	}

	r.logger.Info("audit event logged",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.Bool("patient_involved", event.PatientID != ""),
	)
	return event.ID, nil
}

// writeByLevel emits the event at the configured detail level. PHI is
// masked before anything reaches the comprehensive output.
func (r *Recorder) writeByLevel(event Event) {
	switch r.config.HIPAALevel {
	case LevelMinimal:
		r.logger.Info("hipaa audit",
			zap.String("id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("outcome", string(event.Outcome)),
		)
	case LevelStandard:
		r.logger.Info("hipaa audit",
			zap.String("id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.String("action", event.Action),
			zap.String("outcome", string(event.Outcome)),
			zap.Time("timestamp", event.Timestamp),
		)
	case LevelComprehensive:
		details := event.Details
		if details != nil && r.redactor != nil {
			details = r.redactor.MaskObject(details)
		}
		r.logger.Info("hipaa audit",
			zap.String("id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.String("patient_id", maskIdentifier(event.PatientID)),
			zap.String("action", event.Action),
			zap.String("resource", event.Resource),
			zap.String("outcome", string(event.Outcome)),
			zap.String("ip_address", event.IPAddress),
			zap.Any("details", details),
		)
	}
}

// maskIdentifier shortens an identifier to its outer characters.
func maskIdentifier(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "***"
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

// sendToEndpoint posts the event to the configured endpoint. Details are
// masked first when a redactor is wired.
func (r *Recorder) sendToEndpoint(event Event) {
	if r.redactor != nil && event.Details != nil {
		event.Details = r.redactor.MaskObject(event.Details)
	}
	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to encode audit log for endpoint",
			zap.String("log_id", event.ID),
			zap.Error(err),
		)
		return
	}

	resp, err := r.client.Post(r.config.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		r.logger.Error("failed to send audit log to endpoint",
			zap.String("log_id", event.ID),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		r.logger.Error("audit endpoint rejected log",
			zap.String("log_id", event.ID),
			zap.Int("status", resp.StatusCode),
		)
	}
}

// Query filters the audit trail.
type Query struct {
	UserID    string
	EventType string
	Outcome   Outcome
	Start     time.Time
	End       time.Time
}

// Logs returns matching events, newest first.
func (r *Recorder) Logs(q Query) []Event {
	r.mu.RLock()
	out := make([]Event, 0, len(r.logs))
	for _, log := range r.logs {
		if q.UserID != "" && log.UserID != q.UserID {
			continue
		}
		if q.EventType != "" && log.EventType != q.EventType {
			continue
		}
		if q.Outcome != "" && log.Outcome != q.Outcome {
			continue
		}
		if !q.Start.IsZero() && log.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && log.Timestamp.After(q.End) {
			continue
		}
		out = append(out, log)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// CleanupOldLogs removes events older than the retention period and
// returns how many were removed.
func (r *Recorder) CleanupOldLogs() int {
	cutoff := time.Now().Add(-r.config.RetentionPeriod)

	r.mu.Lock()
	removed := 0
	for id, log := range r.logs {
		if log.Timestamp.Before(cutoff) {
			delete(r.logs, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("cleaned up old audit logs",
			zap.Int("removed_count", removed),
			zap.Time("cutoff", cutoff),
		)
	}
	return removed
}

// Stats summarizes the stored audit trail.
type Stats struct {
	TotalLogs       int            `json:"total_logs"`
	LogsByEventType map[string]int `json:"logs_by_event_type"`
	LogsByOutcome   map[string]int `json:"logs_by_outcome"`
	OldestLog       time.Time      `json:"oldest_log,omitempty"`
	NewestLog       time.Time      `json:"newest_log,omitempty"`
}

// Stats returns audit trail counts.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		TotalLogs:       len(r.logs),
		LogsByEventType: make(map[string]int),
		LogsByOutcome:   make(map[string]int),
	}
	for _, log := range r.logs {
		st.LogsByEventType[log.EventType]++
		st.LogsByOutcome[string(log.Outcome)]++
		if st.OldestLog.IsZero() || log.Timestamp.Before(st.OldestLog) {
			st.OldestLog = log.Timestamp
		}
		if log.Timestamp.After(st.NewestLog) {
			st.NewestLog = log.Timestamp
		}
	}
	return st
}
