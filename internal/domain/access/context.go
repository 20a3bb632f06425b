package access

import "strings"

// Context is the immutable input to an access decision: who is acting, on
// what, and with which request payload and environment.
type Context struct {
	UserID      string                 `json:"user_id"`
	Resource    string                 `json:"resource"`
	Action      Action                 `json:"action"`
	ResourceID  string                 `json:"resource_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Environment map[string]interface{} `json:"environment,omitempty"`
}

// Lookup reads a dot-addressable field from the context. Plain field names
// fall back from the data payload to the environment bag; dotted paths
// descend into nested data maps.
func (c Context) Lookup(path string) interface{} {
	if strings.Contains(path, ".") {
		return nestedValue(c.Data, path)
	}
	if c.Data != nil {
		if v, ok := c.Data[path]; ok {
			return v
		}
	}
	if c.Environment != nil {
		if v, ok := c.Environment[path]; ok {
			return v
		}
	}
	return nil
}

func nestedValue(obj map[string]interface{}, path string) interface{} {
	current := obj
	parts := strings.Split(path, ".")
	for i, key := range parts {
		if current == nil {
			return nil
		}
		v, ok := current[key]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return v
		}
		current, _ = v.(map[string]interface{})
	}
	return nil
}

// clinicalTerms is the lexicon used by the no_clinical_data restriction;
// any data key containing one of these (case-insensitive) counts as
// clinical content.
var clinicalTerms = []string{
	"diagnosis", "procedure", "medication", "allergy",
	"condition", "observation", "labresult", "vitalsigns",
}

// ContainsClinicalData reports whether the context payload holds any key
// matching the clinical-term lexicon.
func (c Context) ContainsClinicalData() bool {
	for key := range c.Data {
		lower := strings.ToLower(key)
		for _, term := range clinicalTerms {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}

// PatientID resolves the patient this context targets: an explicit
// patientId field in the payload, the subject reference, or the resource
// id when the resource is a Patient. Empty when no patient is involved.
func (c Context) PatientID() string {
	if id, ok := c.Data["patientId"].(string); ok && id != "" {
		return id
	}
	if subject, ok := c.Data["subject"].(map[string]interface{}); ok {
		if ref, ok := subject["reference"].(string); ok && ref != "" {
			return strings.TrimPrefix(ref, "Patient/")
		}
	}
	if c.Resource == "Patient" {
		return c.ResourceID
	}
	return ""
}

// IsSelfReference reports whether the payload's subject reference resolves
// to the acting user ("Patient/<id>" or a bare id).
func (c Context) IsSelfReference() bool {
	subject, ok := c.Data["subject"].(map[string]interface{})
	if !ok {
		return false
	}
	ref, ok := subject["reference"].(string)
	if !ok {
		return false
	}
	return ref == c.UserID || ref == "Patient/"+c.UserID
}

// Result is the structured outcome of an access decision. Denial is an
// expected outcome, not an error.
type Result struct {
	Granted             bool          `json:"granted"`
	Reason              string        `json:"reason"`
	MatchedPermissions  []Permission  `json:"matched_permissions"`
	AppliedRestrictions []Restriction `json:"applied_restrictions"`
}
