package access

import (
	"fmt"
	"time"
)

// Action is an operation a permission can allow on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSearch Action = "search"
)

// WildcardResource matches any resource in a permission.
const WildcardResource = "*"

// Permission grants a set of actions on a resource, optionally gated by
// conditions that must all hold for the permission to apply.
type Permission struct {
	Resource   string      `json:"resource"`
	Actions    []Action    `json:"actions"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Matches reports whether this permission covers the resource/action pair.
// Conditions are evaluated separately.
func (p Permission) Matches(resource string, action Action) bool {
	if p.Resource != WildcardResource && p.Resource != resource {
		return false
	}
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// RestrictionRule identifies a role-level veto check.
type RestrictionRule string

const (
	RestrictionOwnPatientsOnly      RestrictionRule = "own_patients_only"
	RestrictionAssignedPatientsOnly RestrictionRule = "assigned_patients_only"
	RestrictionNoClinicalData       RestrictionRule = "no_clinical_data"
	RestrictionReadOnly             RestrictionRule = "read_only"
	RestrictionOwnDataOnly          RestrictionRule = "own_data_only"
)

// Restriction is attached to a role and checked after permission matching
// succeeds; any failing restriction vetoes the access decision.
type Restriction struct {
	Type        string          `json:"type"`
	Rule        RestrictionRule `json:"rule"`
	Description string          `json:"description,omitempty"`
}

// Role is a named bundle of permissions and restrictions.
type Role struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Permissions  []Permission           `json:"permissions"`
	Restrictions []Restriction          `json:"restrictions,omitempty"`
	IsActive     bool                   `json:"is_active"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewRole creates a role with timestamps set.
func NewRole(id, name, description string, permissions []Permission) *Role {
	now := time.Now()
	return &Role{
		ID:          id,
		Name:        name,
		Description: description,
		Permissions: permissions,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate validates the role configuration.
func (r *Role) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("role id cannot be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("role name cannot be empty")
	}
	if len(r.Permissions) == 0 {
		return fmt.Errorf("role must have at least one permission")
	}
	for i, p := range r.Permissions {
		if err := validatePermission(p); err != nil {
			return fmt.Errorf("invalid permission %d: %w", i, err)
		}
	}
	return nil
}

func validatePermission(p Permission) error {
	if p.Resource == "" {
		return fmt.Errorf("permission resource cannot be empty")
	}
	if len(p.Actions) == 0 {
		return fmt.Errorf("permission must allow at least one action")
	}
	for _, a := range p.Actions {
		switch a {
		case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionSearch:
		default:
			return fmt.Errorf("invalid action: %s", a)
		}
	}
	for i, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid condition %d: %w", i, err)
		}
	}
	return nil
}

// User is an identity projection; the identity system of record lives
// outside this core.
type User struct {
	ID       string                 `json:"id"`
	Username string                 `json:"username"`
	Roles    []string               `json:"roles"`
	IsActive bool                   `json:"is_active"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
