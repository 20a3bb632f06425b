package access

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/domain/access"
	"github.com/davidleathers/clinical-access-backend/internal/domain/errors"
)

var tracer = otel.Tracer("service.access")

// Service evaluates role-based access decisions and manages the role and
// user catalogs.
type Service struct {
	roles       RoleStore
	users       UserStore
	assignments CareAssignmentChecker
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCareAssignments wires the checker used by patient-scope restrictions.
func WithCareAssignments(c CareAssignmentChecker) Option {
	return func(s *Service) { s.assignments = c }
}

// WithStores overrides the default in-memory role and user stores.
func WithStores(roles RoleStore, users UserStore) Option {
	return func(s *Service) {
		s.roles = roles
		s.users = users
	}
}

// NewService builds an evaluator seeded with the default healthcare roles.
func NewService(logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		roles:  NewMemoryRoleStore(),
		users:  NewMemoryUserStore(),
		logger: logger.Named("access"),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, role := range DefaultRoles() {
		s.roles.Put(role)
	}
	s.logger.Info("default roles initialized", zap.Int("role_count", len(s.roles.All())))
	return s
}

// CheckAccess evaluates an access request. It fails closed: unknown or
// inactive users, unmatched permissions and restriction violations all
// deny. Denial is a result, never an error.
func (s *Service) CheckAccess(ctx context.Context, ac access.Context) access.Result {
	ctx, span := tracer.Start(ctx, "access.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("access.resource", ac.Resource),
		attribute.String("access.action", string(ac.Action)),
	)

	result := s.checkAccess(ctx, ac)
	span.SetAttributes(attribute.Bool("access.granted", result.Granted))
	return result
}

func (s *Service) checkAccess(ctx context.Context, ac access.Context) access.Result {
	user, ok := s.users.Get(ac.UserID)
	if !ok || !user.IsActive {
		return access.Result{
			Granted:             false,
			Reason:              "User not found or inactive",
			MatchedPermissions:  []access.Permission{},
			AppliedRestrictions: []access.Restriction{},
		}
	}

	matched := []access.Permission{}
	applied := []access.Restriction{}
	hasPermission := false

	for _, roleID := range user.Roles {
		role, ok := s.roles.Get(roleID)
		if !ok || !role.IsActive {
			continue
		}
		for _, perm := range role.Permissions {
			if !perm.Matches(ac.Resource, ac.Action) {
				continue
			}
			matched = append(matched, perm)
			if conditionsHold(perm.Conditions, ac) {
				hasPermission = true
			}
		}
		applied = append(applied, role.Restrictions...)
	}

	if !hasPermission {
		return access.Result{
			Granted:             false,
			Reason:              "No matching permissions found",
			MatchedPermissions:  matched,
			AppliedRestrictions: applied,
		}
	}

	if violation := s.checkRestrictions(ctx, applied, ac); violation != "" {
		return access.Result{
			Granted:             false,
			Reason:              "Restriction violation: " + violation,
			MatchedPermissions:  matched,
			AppliedRestrictions: applied,
		}
	}

	s.logger.Debug("access granted",
		zap.String("user_id", ac.UserID),
		zap.String("resource", ac.Resource),
		zap.String("action", string(ac.Action)),
		zap.Int("permission_count", len(matched)),
		zap.Int("restriction_count", len(applied)),
	)

	return access.Result{
		Granted:             true,
		Reason:              "Access granted based on role permissions",
		MatchedPermissions:  matched,
		AppliedRestrictions: applied,
	}
}

func conditionsHold(conditions []access.Condition, ac access.Context) bool {
	for _, c := range conditions {
		if !c.Evaluate(ac) {
			return false
		}
	}
	return true
}

// CreateRole registers a new role. Creating an id that already exists is
// a conflict.
func (s *Service) CreateRole(ctx context.Context, role *access.Role) (*access.Role, error) {
	if err := role.Validate(); err != nil {
		return nil, errors.NewValidationError("INVALID_ROLE", err.Error())
	}
	if _, exists := s.roles.Get(role.ID); exists {
		return nil, errors.NewConflictError("role already exists: "+role.ID)
	}
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	s.roles.Put(role)

	s.logger.Info("role created",
		zap.String("role_id", role.ID),
		zap.String("role_name", role.Name),
		zap.Int("permission_count", len(role.Permissions)),
	)
	return role, nil
}

// RoleUpdate is a partial role mutation; nil fields are left unchanged.
type RoleUpdate struct {
	Name         *string
	Description  *string
	Permissions  []access.Permission
	Restrictions []access.Restriction
	IsActive     *bool
	Metadata     map[string]interface{}
}

// UpdateRole applies a partial update to an existing role. An unknown
// role id returns nil without error so callers can branch on presence.
func (s *Service) UpdateRole(ctx context.Context, roleID string, update RoleUpdate) (*access.Role, error) {
	role, ok := s.roles.Get(roleID)
	if !ok {
		return nil, nil
	}

	updated := *role
	if update.Name != nil {
		updated.Name = *update.Name
	}
	if update.Description != nil {
		updated.Description = *update.Description
	}
	if update.Permissions != nil {
		updated.Permissions = update.Permissions
	}
	if update.Restrictions != nil {
		updated.Restrictions = update.Restrictions
	}
	if update.IsActive != nil {
		updated.IsActive = *update.IsActive
	}
	if update.Metadata != nil {
		updated.Metadata = update.Metadata
	}
	updated.UpdatedAt = time.Now()

	if err := updated.Validate(); err != nil {
		return nil, errors.NewValidationError("INVALID_ROLE", err.Error())
	}
	s.roles.Put(&updated)

	s.logger.Info("role updated", zap.String("role_id", roleID))
	return &updated, nil
}

// DeleteRole removes a role and detaches it from every user that holds it.
func (s *Service) DeleteRole(ctx context.Context, roleID string) bool {
	if !s.roles.Delete(roleID) {
		return false
	}
	for _, user := range s.users.All() {
		for i, rid := range user.Roles {
			if rid == roleID {
				user.Roles = append(user.Roles[:i], user.Roles[i+1:]...)
				s.users.Put(user)
				break
			}
		}
	}
	s.logger.Info("role deleted", zap.String("role_id", roleID))
	return true
}

// GetRole returns the role with the given id, or nil.
func (s *Service) GetRole(roleID string) *access.Role {
	role, ok := s.roles.Get(roleID)
	if !ok {
		return nil
	}
	return role
}

// ListRoles returns all roles, optionally filtered to active ones.
func (s *Service) ListRoles(activeOnly bool) []*access.Role {
	all := s.roles.All()
	if !activeOnly {
		return all
	}
	out := make([]*access.Role, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

// SetUser creates or replaces a user record. Every referenced role must
// exist.
func (s *Service) SetUser(ctx context.Context, user *access.User) (*access.User, error) {
	for _, roleID := range user.Roles {
		if _, ok := s.roles.Get(roleID); !ok {
			return nil, errors.NewValidationError("ROLE_NOT_FOUND", "role not found: "+roleID).
				WithDetails(map[string]interface{}{"role_id": roleID})
		}
	}
	s.users.Put(user)

	s.logger.Info("user set",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Int("role_count", len(user.Roles)),
	)
	return user, nil
}

// GetUser returns the user with the given id, or nil.
func (s *Service) GetUser(userID string) *access.User {
	user, ok := s.users.Get(userID)
	if !ok {
		return nil
	}
	return user
}

// RemoveUser deletes a user record.
func (s *Service) RemoveUser(ctx context.Context, userID string) bool {
	deleted := s.users.Delete(userID)
	if deleted {
		s.logger.Info("user removed", zap.String("user_id", userID))
	}
	return deleted
}

// UserPermissions is the effective permission set a user holds through
// their active roles.
type UserPermissions struct {
	Roles        []string             `json:"roles"`
	Permissions  []access.Permission  `json:"permissions"`
	Restrictions []access.Restriction `json:"restrictions"`
}

// GetUserPermissions aggregates permissions and restrictions across the
// user's active roles. Unknown users get an empty summary.
func (s *Service) GetUserPermissions(userID string) UserPermissions {
	user, ok := s.users.Get(userID)
	if !ok {
		return UserPermissions{
			Roles:        []string{},
			Permissions:  []access.Permission{},
			Restrictions: []access.Restriction{},
		}
	}

	perms := []access.Permission{}
	restrictions := []access.Restriction{}
	for _, roleID := range user.Roles {
		role, ok := s.roles.Get(roleID)
		if !ok || !role.IsActive {
			continue
		}
		perms = append(perms, role.Permissions...)
		restrictions = append(restrictions, role.Restrictions...)
	}

	return UserPermissions{
		Roles:        user.Roles,
		Permissions:  perms,
		Restrictions: restrictions,
	}
}

// Stats summarizes the role and user catalogs.
type Stats struct {
	TotalRoles        int `json:"total_roles"`
	ActiveRoles       int `json:"active_roles"`
	TotalUsers        int `json:"total_users"`
	ActiveUsers       int `json:"active_users"`
	TotalPermissions  int `json:"total_permissions"`
	TotalRestrictions int `json:"total_restrictions"`
}

// Stats returns catalog counts.
func (s *Service) Stats() Stats {
	var st Stats
	for _, role := range s.roles.All() {
		st.TotalRoles++
		if role.IsActive {
			st.ActiveRoles++
		}
		st.TotalPermissions += len(role.Permissions)
		st.TotalRestrictions += len(role.Restrictions)
	}
	for _, user := range s.users.All() {
		st.TotalUsers++
		if user.IsActive {
			st.ActiveUsers++
		}
	}
	return st
}
