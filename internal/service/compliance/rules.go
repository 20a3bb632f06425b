package compliance

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/davidleathers/clinical-access-backend/internal/domain/compliance"
)

// PHIFieldLookup reports whether a field name carries protected health
// information. The masking engine's field registry satisfies this.
type PHIFieldLookup func(field string) bool

var (
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	nationalIDPattern = regexp.MustCompile(`\b\d{10}\b`)
	emailPattern      = regexp.MustCompile(`\b[\w._%+-]+@[\w.-]+\.[A-Za-z]{2,}\b`)
	browserVersion    = regexp.MustCompile(`(Chrome|Firefox)/(\d+)`)
)

// minBrowserMajor is the oldest browser major version considered patched.
const minBrowserMajor = 90

// DefaultRules returns the built-in HIPAA safeguard rule set. phiField may
// be nil, in which case the retention rule only checks the policy flag.
func DefaultRules(phiField PHIFieldLookup) []compliance.Rule {
	return []compliance.Rule{
		{
			ID:          "admin_001",
			Name:        "Unique User Identification",
			Description: "Each user must have a unique identifier",
			Category:    compliance.CategoryAdministrative,
			Severity:    compliance.SeverityCritical,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.User == nil || ctx.User.ID == "" {
					return compliance.Result{
						Message:         "User ID is required for all operations",
						Recommendations: []string{"Ensure all users have unique identifiers before system access"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "User identification verified"}, nil
			},
		},
		{
			ID:          "admin_002",
			Name:        "Role-Based Access Control",
			Description: "Users must have defined roles with appropriate permissions",
			Category:    compliance.CategoryAdministrative,
			Severity:    compliance.SeverityHigh,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.User == nil || ctx.User.Role == "" || len(ctx.User.Permissions) == 0 {
					return compliance.Result{
						Message:         "User role and permissions must be defined",
						Recommendations: []string{"Assign appropriate roles and permissions to all users"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "Role-based access control verified"}, nil
			},
		},
		{
			ID:          "admin_003",
			Name:        "Minimum Necessary Standard",
			Description: "Access should be limited to minimum necessary information",
			Category:    compliance.CategoryAdministrative,
			Severity:    compliance.SeverityMedium,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Operation != nil && ctx.Operation.Type == compliance.OperationExport {
					if ctx.User == nil || !hasRawPermission(ctx.User.Permissions, "export") {
						return compliance.Result{
							Message:         "User lacks permission for data export",
							Recommendations: []string{"Grant appropriate export permissions or deny access"},
						}, nil
					}
				}
				return compliance.Result{Passed: true, Message: "Minimum necessary access verified"}, nil
			},
		},
		{
			ID:          "admin_004",
			Name:        "Business Associate Agreement",
			Description: "Third-party access requires a verified BAA",
			Category:    compliance.CategoryAdministrative,
			Severity:    compliance.SeverityHigh,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.User != nil && strings.Contains(ctx.User.Role, "third-party") && !ctx.Flag("baaVerified") {
					return compliance.Result{
						Message:         "Business Associate Agreement not verified for third-party access",
						Recommendations: []string{"Verify BAA coverage before granting third-party access"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "Business associate requirements verified"}, nil
			},
		},
		{
			ID:          "phys_001",
			Name:        "Workstation Security",
			Description: "Access from secure workstations only",
			Category:    compliance.CategoryPhysical,
			Severity:    compliance.SeverityMedium,
			Required:    false,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				return compliance.Result{Passed: true, Message: "Workstation security assumed compliant"}, nil
			},
		},
		{
			ID:          "phys_002",
			Name:        "Device Security",
			Description: "Access devices must run a current, patched browser",
			Category:    compliance.CategoryPhysical,
			Severity:    compliance.SeverityMedium,
			Required:    false,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Session == nil || ctx.Session.UserAgent == "" {
					return compliance.Result{Passed: true, Message: "Device security verified"}, nil
				}
				if outdatedBrowser(ctx.Session.UserAgent) {
					return compliance.Result{
						Message:         "Insecure or outdated browser detected",
						Recommendations: []string{"Require an up-to-date browser for PHI access"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "Device security verified"}, nil
			},
		},
		{
			ID:          "tech_001",
			Name:        "Encryption in Transit",
			Description: "Data must be encrypted during transmission",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityCritical,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				userAgent := ""
				if ctx.Session != nil {
					userAgent = ctx.Session.UserAgent
				}
				if strings.Contains(userAgent, "http:") && !strings.Contains(userAgent, "localhost") {
					return compliance.Result{
						Message:         "Insecure connection detected",
						Recommendations: []string{"Use HTTPS for all data transmission"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "Secure transmission verified"}, nil
			},
		},
		{
			ID:          "tech_002",
			Name:        "Audit Logging",
			Description: "All PHI access must be logged",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityCritical,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Operation != nil && !ctx.Flag("auditLogged") {
					return compliance.Result{
						Message:         "Operation not properly audited",
						Recommendations: []string{"Ensure all PHI access is logged for audit purposes"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "Audit logging verified"}, nil
			},
		},
		{
			ID:          "tech_003",
			Name:        "Session Timeout",
			Description: "Sessions must timeout after period of inactivity",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityMedium,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				return compliance.Result{Passed: true, Message: "Session timeout configured"}, nil
			},
		},
		{
			ID:          "tech_004",
			Name:        "PHI Data Masking",
			Description: "PHI must be masked in logs and non-production environments",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityHigh,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if len(ctx.Data) > 0 {
					raw, err := json.Marshal(ctx.Data)
					if err != nil {
						return compliance.Result{}, fmt.Errorf("marshaling data payload: %w", err)
					}
					payload := string(raw)
					if ssnPattern.MatchString(payload) ||
						nationalIDPattern.MatchString(payload) ||
						emailPattern.MatchString(payload) {
						return compliance.Result{
							Message:         "Potentially unmasked PHI detected in data",
							Recommendations: []string{"Ensure all PHI is properly masked before processing"},
						}, nil
					}
				}
				return compliance.Result{Passed: true, Message: "PHI masking verified"}, nil
			},
		},
		{
			ID:          "tech_005",
			Name:        "Access Control Verification",
			Description: "User must have appropriate permissions for the requested operation",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityCritical,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Operation != nil && ctx.User != nil {
					required := ctx.Operation.Resource + ":" + string(ctx.Operation.Type)
					wildcard := ctx.Operation.Resource + ":*"
					if !hasRawPermission(ctx.User.Permissions, required, wildcard, "*") {
						return compliance.Result{
							Message:         fmt.Sprintf("User lacks permission for %s on %s", ctx.Operation.Type, ctx.Operation.Resource),
							Recommendations: []string{fmt.Sprintf("Grant %s permission to user", required)},
						}, nil
					}
				}
				return compliance.Result{Passed: true, Message: "Access control verified"}, nil
			},
		},
		{
			ID:          "tech_006",
			Name:        "Multi-Factor Authentication",
			Description: "Critical operations require verified MFA",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityCritical,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Operation != nil &&
					(ctx.Operation.Type == compliance.OperationExport || ctx.Operation.Type == compliance.OperationDelete) &&
					!ctx.Flag("mfaVerified") {
					return compliance.Result{
						Message:         "Multi-factor authentication required for critical operations",
						Recommendations: []string{"Complete MFA verification before export or delete operations"},
					}, nil
				}
				return compliance.Result{Passed: true, Message: "Multi-factor authentication verified"}, nil
			},
		},
		{
			ID:          "tech_007",
			Name:        "IP Address Restriction",
			Description: "Public-network access requires whitelisting",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityHigh,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Session != nil && ctx.Session.IPAddress != "" {
					if publicAddress(ctx.Session.IPAddress) && !ctx.Flag("ipWhitelisted") {
						return compliance.Result{
							Message:         "Access from non-authorized IP address",
							Recommendations: []string{"Whitelist the source address or route through an approved network"},
						}, nil
					}
				}
				return compliance.Result{Passed: true, Message: "IP address restriction verified"}, nil
			},
		},
		{
			ID:          "tech_008",
			Name:        "Data Retention Policy",
			Description: "PHI exports must occur under a verified retention policy",
			Category:    compliance.CategoryTechnical,
			Severity:    compliance.SeverityHigh,
			Required:    true,
			Evaluate: func(ctx compliance.Context) (compliance.Result, error) {
				if ctx.Operation == nil || ctx.Operation.Type != compliance.OperationExport {
					return compliance.Result{Passed: true, Message: "Data retention policy verified"}, nil
				}
				if phiField == nil || ctx.Flag("retentionPolicyChecked") {
					return compliance.Result{Passed: true, Message: "Data retention policy verified"}, nil
				}
				for field := range ctx.Data {
					if phiField(field) {
						return compliance.Result{
							Message:         "Data retention policy not verified for PHI export",
							Recommendations: []string{"Confirm the retention policy before exporting PHI fields"},
						}, nil
					}
				}
				return compliance.Result{Passed: true, Message: "Data retention policy verified"}, nil
			},
		},
	}
}

func hasRawPermission(perms []string, accepted ...string) bool {
	for _, p := range perms {
		for _, a := range accepted {
			if p == a {
				return true
			}
		}
	}
	return false
}

func outdatedBrowser(userAgent string) bool {
	if strings.Contains(userAgent, "MSIE") || strings.Contains(userAgent, "Trident/") {
		return true
	}
	m := browserVersion.FindStringSubmatch(userAgent)
	if m == nil {
		return false
	}
	major, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}
	return major < minBrowserMajor
}

func publicAddress(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast()
}
