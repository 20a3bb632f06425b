package compliance

import "time"

// RuleResult records the outcome of one rule inside a report.
type RuleResult struct {
	RuleID          string                 `json:"rule_id"`
	RuleName        string                 `json:"rule_name"`
	Category        RuleCategory           `json:"category"`
	Severity        RuleSeverity           `json:"severity"`
	Required        bool                   `json:"required"`
	Passed          bool                   `json:"passed"`
	Message         string                 `json:"message"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Duration        time.Duration          `json:"duration"`
}

// Report is a full compliance validation report.
type Report struct {
	OverallCompliance int          `json:"overall_compliance"`
	TotalRules        int          `json:"total_rules"`
	PassedRules       int          `json:"passed_rules"`
	FailedRules       int          `json:"failed_rules"`
	CriticalFailures  int          `json:"critical_failures"`
	Timestamp         time.Time    `json:"timestamp"`
	RuleResults       []RuleResult `json:"rule_results"`
	Recommendations   []string     `json:"recommendations,omitempty"`
}

// Score computes the rounded percentage of passed rules. An empty rule set
// scores 100.
func Score(passed, total int) int {
	if total == 0 {
		return 100
	}
	return int(float64(passed)/float64(total)*100 + 0.5)
}

// QuickResult is the outcome of a fast pre-flight validation pass covering
// only critical and required rules.
type QuickResult struct {
	Passed           bool          `json:"passed"`
	CriticalFailures []RuleResult  `json:"critical_failures"`
	FailedRules      []RuleResult  `json:"failed_rules"`
	RulesChecked     int           `json:"rules_checked"`
	Duration         time.Duration `json:"duration"`
}

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForScore maps a 0-100 risk score to its bucket.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score <= 20:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskAssessment extends a report with a weighted risk score and the
// recommendations that should be addressed first.
type RiskAssessment struct {
	Report                  Report        `json:"report"`
	RiskScore               float64       `json:"risk_score"`
	RiskLevel               RiskLevel     `json:"risk_level"`
	PriorityRecommendations []string      `json:"priority_recommendations"`
	Duration                time.Duration `json:"duration"`
}

// Summary is an aggregate view over a set of stored reports.
type Summary struct {
	Reports           int       `json:"reports"`
	AverageCompliance float64   `json:"average_compliance"`
	TotalFailures     int       `json:"total_failures"`
	CriticalFailures  int       `json:"critical_failures"`
	OldestReport      time.Time `json:"oldest_report,omitempty"`
	NewestReport      time.Time `json:"newest_report,omitempty"`
}
