package masking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMasker(t *testing.T) *Masker {
	t.Helper()
	return NewMasker(DefaultConfig(), zap.NewNop())
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		field string
		want  interface{}
	}{
		{name: "nil passes through", value: nil, field: "ssn", want: nil},
		{name: "empty string passes through", value: "", field: "ssn", want: ""},
		{name: "ssn keeps last four", value: "123-45-6789", field: "ssn", want: "***-**-6789"},
		{name: "ssn without separators", value: "123456789", field: "ssn", want: "***-**-6789"},
		{name: "malformed ssn falls back to partial", value: "12-34", field: "ssn", want: "*****"},
		{name: "national id keeps last four", value: "1234567890", field: "nationalId", want: "******7890"},
		{name: "ten digit phone", value: "5551234567", field: "phone", want: "(***) ***-4567"},
		{name: "formatted phone", value: "(555) 123-4567", field: "phone", want: "(***) ***-4567"},
		{name: "phone with country code", value: "15551234567", field: "phone", want: "1-***-***-4567"},
		{name: "email partial", value: "john.doe@example.com", field: "email", want: "jo****************om"},
		{name: "ipv4 zeroed", value: "192.168.1.77", field: "ipAddress", want: "***.***.***.***"},
		{name: "date of birth keeps year", value: "1984-06-15", field: "dateOfBirth", want: "****-**-** (1984)"},
		{name: "first name single visible char", value: "Alice", field: "firstName", want: "A***e"},
		{name: "state fully masked", value: "CA", field: "state", want: "**"},
		{name: "short partial value fully masked", value: "Bo", field: "firstName", want: "***"},
		{name: "unknown field gets full mask", value: "anything", field: "mystery", want: "********"},
		{name: "numeric value masked as string", value: 123456789, field: "ssn", want: "***-**-6789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMasker(t)
			assert.Equal(t, tt.want, m.MaskValue(tt.value, tt.field))
		})
	}
}

func TestMaskValueHash(t *testing.T) {
	m := newTestMasker(t)
	first := m.MaskValue("device-abc", "deviceId")
	second := m.MaskValue("device-abc", "deviceId")
	other := m.MaskValue("device-xyz", "deviceId")

	// Hashing is stable for the same input and distinct across inputs.
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.True(t, strings.HasPrefix(first.(string), "HASH_"))
}

func TestMaskValueTokenize(t *testing.T) {
	m := newTestMasker(t)
	m.AddRule(Rule{Field: "insuranceId", Type: MaskTokenize})

	first := m.MaskValue("POL-12345", "insuranceId").(string)
	second := m.MaskValue("POL-12345", "insuranceId").(string)

	assert.True(t, strings.HasPrefix(first, "TOKEN_"))
	assert.NotEqual(t, first, second, "tokens are not stable across calls")
}

func TestMaskValueIdempotent(t *testing.T) {
	m := newTestMasker(t)
	once := m.MaskValue("john.doe@example.com", "email")
	twice := m.MaskValue(once, "email")
	assert.Equal(t, once, twice)
}

func TestMaskObject(t *testing.T) {
	m := newTestMasker(t)
	input := map[string]interface{}{
		"firstName": "Alice",
		"ssn":       "123-45-6789",
		"contact": map[string]interface{}{
			"phone": "5551234567",
		},
		"visits": []interface{}{
			map[string]interface{}{"admissionDate": "2024-03-01"},
			"note",
		},
		"age": 41,
	}

	masked := m.MaskObject(input)

	assert.Equal(t, "A***e", masked["firstName"])
	assert.Equal(t, "***-**-6789", masked["ssn"])
	contact := masked["contact"].(map[string]interface{})
	assert.Equal(t, "(***) ***-4567", contact["phone"])
	visits := masked["visits"].([]interface{})
	assert.Equal(t, "****-**-** (2024)", visits[0].(map[string]interface{})["admissionDate"])

	// The input is never mutated and the output is a fresh structure.
	assert.Equal(t, "Alice", input["firstName"])
	assert.Equal(t, "5551234567", input["contact"].(map[string]interface{})["phone"])
	assert.NotSame(t, &input, &masked)

	assert.Nil(t, m.MaskObject(nil))
}

func TestRuleRegistry(t *testing.T) {
	m := newTestMasker(t)

	// Replacing a rule changes behavior for that field.
	m.AddRule(Rule{Field: "ssn", Type: MaskFull, PreserveLength: false})
	assert.Equal(t, "***", m.MaskValue("123-45-6789", "ssn"))

	assert.True(t, m.RemoveRule("ssn"))
	assert.False(t, m.RemoveRule("ssn"))
	// Removed fields fall back to full masking.
	assert.Equal(t, strings.Repeat("*", 11), m.MaskValue("123-45-6789", "ssn"))
}

func TestIsPHIField(t *testing.T) {
	m := newTestMasker(t)
	assert.True(t, m.IsPHIField("ssn"))
	assert.True(t, m.IsPHIField("dateOfBirth"))
	assert.False(t, m.IsPHIField("favoriteColor"))
}

func TestStats(t *testing.T) {
	m := newTestMasker(t)
	st := m.Stats()
	assert.Equal(t, 21, st.TotalRules)
	assert.Equal(t, 2, st.RulesByType["hash"])
	assert.Contains(t, st.PHIFields, "ssn")
	assert.True(t, sortedStrings(st.PHIFields))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestValidateConfig(t *testing.T) {
	m := newTestMasker(t)
	require.NoError(t, m.ValidateConfig())

	bad := NewMasker(Config{DefaultMaskChar: "##"}, zap.NewNop())
	assert.Error(t, bad.ValidateConfig())
}

func TestDisabledPatternGroups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Patterns = map[string]bool{"ssn": false, "phone": false}
	m := NewMasker(cfg, zap.NewNop())

	// Disabled groups lose their format rules; the full-mask fallback
	// still applies to those fields.
	assert.False(t, m.IsPHIField("ssn"))
	assert.False(t, m.IsPHIField("phone"))
	assert.False(t, m.IsPHIField("fax"))
	assert.Equal(t, "***********", m.MaskValue("123-45-6789", "ssn"))

	// Untouched groups keep their defaults.
	assert.True(t, m.IsPHIField("email"))
	assert.True(t, m.IsPHIField("dateOfBirth"))
}
