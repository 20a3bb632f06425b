package masking

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MaskType selects the redaction strategy applied to a field.
type MaskType string

const (
	MaskFull     MaskType = "full"
	MaskPartial  MaskType = "partial"
	MaskFormat   MaskType = "format"
	MaskHash     MaskType = "hash"
	MaskTokenize MaskType = "tokenize"
)

// Rule binds a field name to its masking strategy. At most one active
// rule exists per field; re-adding a field replaces its rule.
type Rule struct {
	Field          string   `json:"field"`
	Type           MaskType `json:"type"`
	PreserveLength bool     `json:"preserve_length"`
	VisibleChars   int      `json:"visible_chars"`
}

// Config controls masker-wide behavior. Patterns disables seeding of a
// default rule group by name (ssn, phone, email, ...); absent keys stay
// enabled.
type Config struct {
	DefaultMaskChar string          `koanf:"default_mask_char" validate:"required,len=1"`
	PreserveFormat  bool            `koanf:"preserve_format"`
	Patterns        map[string]bool `koanf:"patterns"`
}

// DefaultConfig returns the standard masking configuration.
func DefaultConfig() Config {
	return Config{
		DefaultMaskChar: "*",
		PreserveFormat:  true,
	}
}

func (c Config) patternEnabled(group string) bool {
	enabled, ok := c.Patterns[group]
	if !ok {
		return true
	}
	return enabled
}

// Masker redacts PHI field values according to per-field rules. Unknown
// fields fall back to full masking.
type Masker struct {
	config Config
	logger *zap.Logger

	mu    sync.RWMutex
	rules map[string]Rule
}

// NewMasker builds a masker seeded with the default PHI field rules.
func NewMasker(config Config, logger *zap.Logger) *Masker {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Masker{
		config: config,
		logger: logger.Named("masking"),
		rules:  make(map[string]Rule),
	}
	for _, rule := range DefaultRules() {
		if !config.patternEnabled(patternGroup(rule.Field)) {
			continue
		}
		m.rules[rule.Field] = rule
	}
	m.logger.Info("masking rules initialized", zap.Int("rule_count", len(m.rules)))
	return m
}

// AddRule registers or replaces the rule for a field.
func (m *Masker) AddRule(rule Rule) {
	m.mu.Lock()
	m.rules[rule.Field] = rule
	m.mu.Unlock()
	m.logger.Debug("masking rule registered",
		zap.String("field", rule.Field),
		zap.String("type", string(rule.Type)),
	)
}

// RemoveRule deletes the rule for a field.
func (m *Masker) RemoveRule(field string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[field]; !ok {
		return false
	}
	delete(m.rules, field)
	m.logger.Debug("masking rule removed", zap.String("field", field))
	return true
}

// MaskValue masks a single value by its field name. Nil passes through
// unchanged; unregistered fields get full masking.
func (m *Masker) MaskValue(value interface{}, field string) interface{} {
	if value == nil {
		return nil
	}
	str := fmt.Sprintf("%v", value)
	if str == "" {
		return value
	}

	m.mu.RLock()
	rule, ok := m.rules[field]
	m.mu.RUnlock()
	if !ok {
		return m.fullMask(str, true)
	}

	switch rule.Type {
	case MaskFull:
		return m.fullMask(str, rule.PreserveLength)
	case MaskPartial:
		return m.partialMask(str, rule.VisibleChars)
	case MaskFormat:
		return m.formatMask(str, field, rule.VisibleChars)
	case MaskHash:
		return hashMask(str)
	case MaskTokenize:
		return tokenize()
	default:
		return m.fullMask(str, true)
	}
}

// MaskObject deep-walks a map, masking primitive leaves by their key name
// and recursing into nested maps and slices. The input is never mutated.
func (m *Masker) MaskObject(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	masked := make(map[string]interface{}, len(obj))
	for key, value := range obj {
		masked[key] = m.maskEntry(key, value)
	}
	return masked
}

func (m *Masker) maskEntry(key string, value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return m.MaskObject(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			if nested, ok := item.(map[string]interface{}); ok {
				out[i] = m.MaskObject(nested)
			} else {
				out[i] = m.MaskValue(item, key)
			}
		}
		return out
	default:
		return m.MaskValue(value, key)
	}
}

// IsPHIField reports whether the field has a registered masking rule.
func (m *Masker) IsPHIField(field string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rules[field]
	return ok
}

// Stats summarizes the rule registry.
type Stats struct {
	TotalRules  int            `json:"total_rules"`
	RulesByType map[string]int `json:"rules_by_type"`
	PHIFields   []string       `json:"phi_fields"`
}

// Stats returns rule counts by type and the sorted PHI field list.
func (m *Masker) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		TotalRules:  len(m.rules),
		RulesByType: make(map[string]int),
		PHIFields:   make([]string, 0, len(m.rules)),
	}
	for field, rule := range m.rules {
		st.RulesByType[string(rule.Type)]++
		st.PHIFields = append(st.PHIFields, field)
	}
	sort.Strings(st.PHIFields)
	return st
}

// ValidateConfig fails fast on unusable masking setups.
func (m *Masker) ValidateConfig() error {
	if len(m.config.DefaultMaskChar) != 1 {
		return fmt.Errorf("default mask character must be a single character")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rules) == 0 {
		return fmt.Errorf("no masking rules defined")
	}
	return nil
}
