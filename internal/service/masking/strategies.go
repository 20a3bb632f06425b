package masking

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (m *Masker) maskChar() string {
	return m.config.DefaultMaskChar
}

func (m *Masker) fullMask(value string, preserveLength bool) string {
	if !preserveLength {
		return strings.Repeat(m.maskChar(), 3)
	}
	return strings.Repeat(m.maskChar(), len(value))
}

// partialMask keeps visibleChars characters at each end. Values too short
// to show both ends distinctly are fully masked at a minimum width of 3.
func (m *Masker) partialMask(value string, visibleChars int) string {
	if len(value) <= visibleChars*2 {
		width := len(value)
		if width < 3 {
			width = 3
		}
		return strings.Repeat(m.maskChar(), width)
	}
	if visibleChars == 0 {
		return strings.Repeat(m.maskChar(), len(value))
	}
	return value[:visibleChars] +
		strings.Repeat(m.maskChar(), len(value)-visibleChars*2) +
		value[len(value)-visibleChars:]
}

func (m *Masker) formatMask(value, field string, visibleChars int) string {
	switch field {
	case "ssn":
		return m.maskSSN(value, visibleChars)
	case "nationalId":
		return m.maskNationalID(value, visibleChars)
	case "phone", "fax":
		return m.maskPhone(value, visibleChars)
	case "email":
		return m.maskEmail(value)
	case "ipAddress":
		return m.maskIPAddress(value)
	case "dateOfBirth", "admissionDate", "dischargeDate":
		return m.maskDate(value, visibleChars)
	default:
		return m.partialMask(value, visibleChars)
	}
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m *Masker) maskSSN(value string, visibleChars int) string {
	cleaned := digitsOnly(value)
	if len(cleaned) != 9 {
		return m.partialMask(value, visibleChars)
	}
	if visibleChars >= 4 {
		return "***-**-" + cleaned[5:]
	}
	return "***-**-****"
}

func (m *Masker) maskNationalID(value string, visibleChars int) string {
	cleaned := digitsOnly(value)
	if len(cleaned) != 10 {
		return m.partialMask(value, visibleChars)
	}
	if visibleChars >= 4 {
		return "******" + cleaned[6:]
	}
	return "**********"
}

func (m *Masker) maskPhone(value string, visibleChars int) string {
	cleaned := digitsOnly(value)
	switch {
	case len(cleaned) == 10:
		if visibleChars >= 4 {
			return "(***) ***-" + cleaned[6:]
		}
		return "(***) ***-****"
	case len(cleaned) == 11 && strings.HasPrefix(cleaned, "1"):
		if visibleChars >= 4 {
			return "1-***-***-" + cleaned[7:]
		}
		return "1-***-***-****"
	default:
		return m.partialMask(value, visibleChars)
	}
}

func (m *Masker) maskEmail(value string) string {
	at := strings.Index(value, "@")
	if at == -1 {
		return m.partialMask(value, 2)
	}

	username := value[:at]
	domain := value[at+1:]

	maskedUser := "***"
	if len(username) > 2 {
		maskedUser = username[:1] + "***" + username[len(username)-1:]
	}

	dot := strings.LastIndex(domain, ".")
	if dot == -1 {
		return maskedUser + "@***"
	}
	return maskedUser + "@***" + domain[dot:]
}

func (m *Masker) maskIPAddress(value string) string {
	if len(strings.Split(value, ".")) == 4 {
		return "***.***.***.***"
	}
	return m.fullMask(value, true)
}

// dateLayouts are the accepted date representations, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func (m *Masker) maskDate(value string, visibleChars int) string {
	var parsed time.Time
	var err error
	for _, layout := range dateLayouts {
		parsed, err = time.Parse(layout, value)
		if err == nil {
			break
		}
	}
	if err != nil {
		return m.partialMask(value, visibleChars)
	}
	if visibleChars >= 4 {
		return fmt.Sprintf("****-**-** (%d)", parsed.Year())
	}
	return "****-**-**"
}

// hashMask produces a stable pseudonym: the first 8 bytes of the value's
// SHA-256 digest in upper hex.
func hashMask(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("HASH_%X", sum[:8])
}

// tokenize produces a random opaque token, intentionally unstable across
// calls to break linkability.
func tokenize() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TOKEN_" + id[:13]
}
