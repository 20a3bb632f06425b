package masking

// patternGroup maps a default field to its config enable-flag group.
// Fields without a dedicated flag share a broader group.
func patternGroup(field string) string {
	switch field {
	case "ssn", "nationalId", "medicalRecordNumber", "accountNumber",
		"phone", "email", "webUrl", "ipAddress":
		return field
	case "fax":
		return "phone"
	case "deviceId":
		return "deviceIdentifier"
	case "biometricId":
		return "biometricIdentifier"
	case "dateOfBirth", "admissionDate", "dischargeDate":
		return "dates"
	case "firstName", "lastName", "middleName":
		return "names"
	case "address", "city", "state", "zipCode":
		return "address"
	default:
		return "otherUniqueIdentifier"
	}
}

// DefaultRules returns the built-in rules covering common PHI fields.
func DefaultRules() []Rule {
	return []Rule{
		// Direct identifiers
		{Field: "ssn", Type: MaskFormat, VisibleChars: 4},
		{Field: "nationalId", Type: MaskFormat, VisibleChars: 4},
		{Field: "medicalRecordNumber", Type: MaskPartial, VisibleChars: 3},
		{Field: "accountNumber", Type: MaskPartial, VisibleChars: 4},

		// Contact information
		{Field: "phone", Type: MaskFormat, VisibleChars: 4},
		{Field: "email", Type: MaskPartial, VisibleChars: 2},
		{Field: "fax", Type: MaskFormat, VisibleChars: 4},

		// Names and addresses
		{Field: "firstName", Type: MaskPartial, VisibleChars: 1},
		{Field: "lastName", Type: MaskPartial, VisibleChars: 1},
		{Field: "middleName", Type: MaskPartial, VisibleChars: 1},
		{Field: "address", Type: MaskPartial, VisibleChars: 0},
		{Field: "city", Type: MaskPartial, VisibleChars: 2},
		{Field: "state", Type: MaskFull, PreserveLength: true},
		{Field: "zipCode", Type: MaskPartial, VisibleChars: 2},

		// Technical identifiers
		{Field: "ipAddress", Type: MaskFormat, VisibleChars: 0},
		{Field: "webUrl", Type: MaskPartial, VisibleChars: 0},
		{Field: "deviceId", Type: MaskHash},
		{Field: "biometricId", Type: MaskHash},

		// Dates reveal only the year
		{Field: "dateOfBirth", Type: MaskFormat, VisibleChars: 4},
		{Field: "admissionDate", Type: MaskFormat, VisibleChars: 4},
		{Field: "dischargeDate", Type: MaskFormat, VisibleChars: 4},
	}
}
