package access

import (
	"time"

	"github.com/davidleathers/clinical-access-backend/internal/domain/access"
)

// DefaultRoles returns the built-in healthcare role catalog seeded into a
// fresh evaluator.
func DefaultRoles() []*access.Role {
	now := time.Now()
	allActions := []access.Action{
		access.ActionCreate, access.ActionRead, access.ActionUpdate,
		access.ActionDelete, access.ActionSearch,
	}
	clinicalActions := []access.Action{
		access.ActionCreate, access.ActionRead, access.ActionUpdate, access.ActionSearch,
	}

	roles := []*access.Role{
		{
			ID:          "admin",
			Name:        "System Administrator",
			Description: "Full system access with administrative privileges",
			Permissions: []access.Permission{
				{Resource: access.WildcardResource, Actions: allActions},
			},
		},
		{
			ID:          "physician",
			Name:        "Physician",
			Description: "Healthcare provider with patient care access",
			Permissions: []access.Permission{
				{Resource: "Patient", Actions: clinicalActions},
				{Resource: "Observation", Actions: clinicalActions},
				{Resource: "DiagnosticReport", Actions: clinicalActions},
				{Resource: "Medication", Actions: clinicalActions},
				{Resource: "Procedure", Actions: clinicalActions},
			},
			Restrictions: []access.Restriction{
				{
					Type:        "data_access",
					Rule:        access.RestrictionOwnPatientsOnly,
					Description: "Can only access patients under their care",
				},
			},
		},
		{
			ID:          "nurse",
			Name:        "Nurse",
			Description: "Nursing staff with patient care access",
			Permissions: []access.Permission{
				{Resource: "Patient", Actions: []access.Action{
					access.ActionRead, access.ActionUpdate, access.ActionSearch,
				}},
				{Resource: "Observation", Actions: clinicalActions},
				{Resource: "Medication", Actions: []access.Action{
					access.ActionRead, access.ActionSearch,
				}},
			},
			Restrictions: []access.Restriction{
				{
					Type:        "data_access",
					Rule:        access.RestrictionAssignedPatientsOnly,
					Description: "Can only access patients assigned to their care",
				},
			},
		},
		{
			ID:          "pharmacist",
			Name:        "Pharmacist",
			Description: "Pharmacy staff with medication access",
			Permissions: []access.Permission{
				{
					Resource: "Patient",
					Actions:  []access.Action{access.ActionRead, access.ActionSearch},
					Conditions: []access.Condition{
						{Field: "accessReason", Operator: access.OpEquals, Value: "medication_dispensing"},
					},
				},
				{Resource: "Medication", Actions: clinicalActions},
				{Resource: "MedicationDispense", Actions: clinicalActions},
			},
		},
		{
			ID:          "receptionist",
			Name:        "Receptionist",
			Description: "Front desk staff with limited patient access",
			Permissions: []access.Permission{
				{
					Resource: "Patient",
					Actions:  clinicalActions,
					Conditions: []access.Condition{
						{Field: "dataType", Operator: access.OpIn, Value: []interface{}{"demographics", "contact", "insurance"}},
					},
				},
				{Resource: "Appointment", Actions: allActions},
			},
			Restrictions: []access.Restriction{
				{
					Type:        "field_access",
					Rule:        access.RestrictionNoClinicalData,
					Description: "Cannot access clinical information",
				},
			},
		},
		{
			ID:          "lab_tech",
			Name:        "Laboratory Technician",
			Description: "Laboratory staff with diagnostic access",
			Permissions: []access.Permission{
				{
					Resource: "Patient",
					Actions:  []access.Action{access.ActionRead, access.ActionSearch},
					Conditions: []access.Condition{
						{Field: "accessReason", Operator: access.OpEquals, Value: "lab_testing"},
					},
				},
				{Resource: "DiagnosticReport", Actions: clinicalActions},
				{Resource: "Specimen", Actions: clinicalActions},
			},
		},
		{
			ID:          "auditor",
			Name:        "Compliance Auditor",
			Description: "Audit staff with read-only access",
			Permissions: []access.Permission{
				{Resource: access.WildcardResource, Actions: []access.Action{
					access.ActionRead, access.ActionSearch,
				}},
			},
			Restrictions: []access.Restriction{
				{
					Type:        "access_mode",
					Rule:        access.RestrictionReadOnly,
					Description: "Read-only access for audit purposes",
				},
			},
		},
		{
			ID:          "patient",
			Name:        "Patient",
			Description: "Patient with access to own health records",
			Permissions: []access.Permission{
				{
					Resource: "Patient",
					Actions:  []access.Action{access.ActionRead},
					Conditions: []access.Condition{
						{Field: "patientId", Operator: access.OpEquals, Value: access.SelfValue},
					},
				},
				{
					Resource: "Observation",
					Actions:  []access.Action{access.ActionRead},
					Conditions: []access.Condition{
						{Field: "subject.reference", Operator: access.OpEquals, Value: access.SelfValue},
					},
				},
				{
					Resource: "DiagnosticReport",
					Actions:  []access.Action{access.ActionRead},
					Conditions: []access.Condition{
						{Field: "subject.reference", Operator: access.OpEquals, Value: access.SelfValue},
					},
				},
			},
			Restrictions: []access.Restriction{
				{
					Type:        "data_access",
					Rule:        access.RestrictionOwnDataOnly,
					Description: "Can only access own health information",
				},
			},
		},
	}

	for _, r := range roles {
		r.IsActive = true
		r.CreatedAt = now
		r.UpdatedAt = now
	}
	return roles
}
