package compliance

import "fmt"

// RuleCategory groups rules by HIPAA safeguard family.
type RuleCategory string

const (
	CategoryAdministrative RuleCategory = "administrative"
	CategoryPhysical       RuleCategory = "physical"
	CategoryTechnical      RuleCategory = "technical"
)

// RuleSeverity ranks how serious a rule failure is.
type RuleSeverity string

const (
	SeverityLow      RuleSeverity = "low"
	SeverityMedium   RuleSeverity = "medium"
	SeverityHigh     RuleSeverity = "high"
	SeverityCritical RuleSeverity = "critical"
)

// Weight converts a severity into its risk-score weight.
func (s RuleSeverity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 8
	default:
		return 0
	}
}

// MaxSeverityWeight is the weight of the most severe rule class, used to
// normalize risk scores.
const MaxSeverityWeight = 8

// OperationType is the kind of operation being validated.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationRead   OperationType = "read"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
	OperationExport OperationType = "export"
)

// UserInfo is the acting identity snapshot inside a validation context.
type UserInfo struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// SessionInfo describes the session the operation runs under.
type SessionInfo struct {
	ID        string `json:"id"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// OperationInfo describes the operation under validation.
type OperationInfo struct {
	Type       OperationType `json:"type"`
	Resource   string        `json:"resource"`
	ResourceID string        `json:"resource_id,omitempty"`
}

// Context is the input every validation rule evaluates against.
type Context struct {
	Data        map[string]interface{} `json:"data,omitempty"`
	User        *UserInfo              `json:"user,omitempty"`
	Session     *SessionInfo           `json:"session,omitempty"`
	Operation   *OperationInfo         `json:"operation,omitempty"`
	Environment map[string]interface{} `json:"environment,omitempty"`
}

// Flag reads a boolean flag from the environment bag, false when absent.
func (c Context) Flag(name string) bool {
	v, ok := c.Environment[name].(bool)
	return ok && v
}

// Result is what a single rule evaluation produces.
type Result struct {
	Passed          bool                   `json:"passed"`
	Message         string                 `json:"message"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
}

// EvaluateFunc is a pure rule evaluator. Errors are converted into failed
// results by the engine; they never abort a validation batch.
type EvaluateFunc func(ctx Context) (Result, error)

// Rule is a registered compliance validation rule. Identifiers are unique
// within a registry; re-registering an id overwrites the previous rule.
type Rule struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    RuleCategory `json:"category"`
	Severity    RuleSeverity `json:"severity"`
	Required    bool         `json:"required"`
	Evaluate    EvaluateFunc `json:"-"`
}

// Validate checks the rule is registrable.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	switch r.Category {
	case CategoryAdministrative, CategoryPhysical, CategoryTechnical:
	default:
		return fmt.Errorf("invalid category: %s", r.Category)
	}
	switch r.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	default:
		return fmt.Errorf("invalid severity: %s", r.Severity)
	}
	if r.Evaluate == nil {
		return fmt.Errorf("rule must have an evaluate function")
	}
	return nil
}

// Info is a rule without its evaluator, safe to expose to callers.
type Info struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    RuleCategory `json:"category"`
	Severity    RuleSeverity `json:"severity"`
	Required    bool         `json:"required"`
}

// Info strips the evaluator from a rule.
func (r Rule) Info() Info {
	return Info{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Severity:    r.Severity,
		Required:    r.Required,
	}
}
