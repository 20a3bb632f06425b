package compliance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/domain/compliance"
)

var tracer = otel.Tracer("service.compliance")

// Engine owns the compliance rule registry and runs validation batches
// against it. The registry is exclusively owned; other components read
// PHI field classifications only through the injected lookup.
type Engine struct {
	mu     sync.RWMutex
	rules  map[string]compliance.Rule
	order  []string
	logger *zap.Logger

	historyMu sync.Mutex
	history   []compliance.Report
}

// historyLimit caps the retained report history backing Summary.
const historyLimit = 100

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	phiField PHIFieldLookup
	seed     bool
}

// WithPHIFieldLookup wires the field classifier used by retention checks.
func WithPHIFieldLookup(lookup PHIFieldLookup) EngineOption {
	return func(c *engineConfig) { c.phiField = lookup }
}

// WithoutDefaultRules starts the engine with an empty registry.
func WithoutDefaultRules() EngineOption {
	return func(c *engineConfig) { c.seed = false }
}

// NewEngine builds an engine seeded with the default HIPAA safeguard
// rules.
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := engineConfig{seed: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		rules:  make(map[string]compliance.Rule),
		logger: logger.Named("compliance"),
	}
	if cfg.seed {
		for _, rule := range DefaultRules(cfg.phiField) {
			e.rules[rule.ID] = rule
			e.order = append(e.order, rule.ID)
		}
		e.logger.Info("validation rules initialized", zap.Int("rule_count", len(e.rules)))
	}
	return e
}

// AddRule registers a rule. Re-registering an existing id overwrites the
// previous rule.
func (e *Engine) AddRule(rule compliance.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.ID]; !exists {
		e.order = append(e.order, rule.ID)
	}
	e.rules[rule.ID] = rule
	e.logger.Debug("validation rule registered",
		zap.String("rule_id", rule.ID),
		zap.String("rule_name", rule.Name),
	)
	return nil
}

// RemoveRule deletes a rule by id.
func (e *Engine) RemoveRule(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[ruleID]; !ok {
		return false
	}
	delete(e.rules, ruleID)
	for i, id := range e.order {
		if id == ruleID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.logger.Debug("validation rule removed", zap.String("rule_id", ruleID))
	return true
}

// GetRule returns the rule with the given id, or false.
func (e *Engine) GetRule(ruleID string) (compliance.Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[ruleID]
	return rule, ok
}

// ListRules returns registry metadata in registration order, without
// evaluators.
func (e *Engine) ListRules() []compliance.Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]compliance.Info, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id].Info())
	}
	return out
}

// snapshot copies the registry in registration order so a running batch
// never observes concurrent registry mutation.
func (e *Engine) snapshot(filter func(compliance.Rule) bool) []compliance.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]compliance.Rule, 0, len(e.order))
	for _, id := range e.order {
		rule := e.rules[id]
		if filter == nil || filter(rule) {
			out = append(out, rule)
		}
	}
	return out
}

// ValidateCompliance runs every registered rule sequentially and builds a
// scored report. Rule panics and errors become failed results; they never
// abort the batch.
func (e *Engine) ValidateCompliance(ctx context.Context, vc compliance.Context) compliance.Report {
	ctx, span := tracer.Start(ctx, "compliance.validate")
	defer span.End()

	report := e.validate(ctx, vc, e.snapshot(nil))
	span.SetAttributes(
		attribute.Int("compliance.score", report.OverallCompliance),
		attribute.Int("compliance.failed_rules", report.FailedRules),
		attribute.Int("compliance.critical_failures", report.CriticalFailures),
	)
	e.record(report)
	return report
}

// record retains a full-batch report for aggregate summaries. Category
// views are partial and never recorded.
func (e *Engine) record(report compliance.Report) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history = append(e.history, report)
	if len(e.history) > historyLimit {
		e.history = e.history[len(e.history)-historyLimit:]
	}
}

// Summary aggregates the retained report history.
func (e *Engine) Summary() compliance.Summary {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	return Summarize(e.history)
}

// ValidateCategory runs only the rules in one safeguard category. The live
// registry is never mutated, even transiently.
func (e *Engine) ValidateCategory(ctx context.Context, vc compliance.Context, category compliance.RuleCategory) compliance.Report {
	return e.validate(ctx, vc, e.snapshot(func(r compliance.Rule) bool {
		return r.Category == category
	}))
}

func (e *Engine) validate(ctx context.Context, vc compliance.Context, rules []compliance.Rule) compliance.Report {
	start := time.Now()
	results := make([]compliance.RuleResult, 0, len(rules))
	recommendations := make(map[string]struct{})
	var recOrder []string

	passed := 0
	criticalFailures := 0

	for _, rule := range rules {
		result := e.runRule(ctx, rule, vc)
		results = append(results, result)

		if result.Passed {
			passed++
			continue
		}
		if rule.Severity == compliance.SeverityCritical {
			criticalFailures++
		}
		for _, rec := range result.Recommendations {
			if _, seen := recommendations[rec]; !seen {
				recommendations[rec] = struct{}{}
				recOrder = append(recOrder, rec)
			}
		}
	}

	report := compliance.Report{
		OverallCompliance: compliance.Score(passed, len(rules)),
		TotalRules:        len(rules),
		PassedRules:       passed,
		FailedRules:       len(rules) - passed,
		CriticalFailures:  criticalFailures,
		Timestamp:         time.Now(),
		RuleResults:       results,
		Recommendations:   recOrder,
	}

	e.logger.Info("compliance validation completed",
		zap.Int("overall_compliance", report.OverallCompliance),
		zap.Int("passed_rules", report.PassedRules),
		zap.Int("failed_rules", report.FailedRules),
		zap.Int("critical_failures", report.CriticalFailures),
		zap.Duration("validation_time", time.Since(start)),
	)
	return report
}

// QuickValidation concurrently evaluates only rules that are both
// critical and required, for low-latency gating ahead of a full report.
func (e *Engine) QuickValidation(ctx context.Context, vc compliance.Context) compliance.QuickResult {
	start := time.Now()
	rules := e.snapshot(func(r compliance.Rule) bool {
		return r.Severity == compliance.SeverityCritical && r.Required
	})

	results := make([]compliance.RuleResult, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule compliance.Rule) {
			defer wg.Done()
			results[i] = e.runRule(ctx, rule, vc)
		}(i, rule)
	}
	wg.Wait()

	quick := compliance.QuickResult{
		Passed:           true,
		CriticalFailures: []compliance.RuleResult{},
		FailedRules:      []compliance.RuleResult{},
		RulesChecked:     len(rules),
		Duration:         time.Since(start),
	}
	for _, result := range results {
		if result.Passed {
			continue
		}
		quick.Passed = false
		quick.FailedRules = append(quick.FailedRules, result)
		if result.Severity == compliance.SeverityCritical {
			quick.CriticalFailures = append(quick.CriticalFailures, result)
		}
	}
	return quick
}

// priorityRecommendationLimit caps the recommendations surfaced by an
// advanced validation run.
const priorityRecommendationLimit = 5

// AdvancedValidation runs the full report and layers a normalized risk
// score on top: the severity weights of all failed rules over the maximum
// possible weight, as a 0-100 percentage.
func (e *Engine) AdvancedValidation(ctx context.Context, vc compliance.Context) compliance.RiskAssessment {
	start := time.Now()
	report := e.ValidateCompliance(ctx, vc)

	weight := 0
	var priority []string
	for _, result := range report.RuleResults {
		if result.Passed {
			continue
		}
		weight += result.Severity.Weight()
		if len(priority) < priorityRecommendationLimit &&
			(result.Severity == compliance.SeverityCritical || result.Severity == compliance.SeverityHigh) {
			for _, rec := range result.Recommendations {
				if len(priority) == priorityRecommendationLimit {
					break
				}
				priority = append(priority, rec)
			}
		}
	}

	score := 0.0
	if report.TotalRules > 0 {
		score = float64(weight) / float64(report.TotalRules*compliance.MaxSeverityWeight) * 100
	}
	if priority == nil {
		priority = []string{}
	}

	return compliance.RiskAssessment{
		Report:                  report,
		RiskScore:               score,
		RiskLevel:               compliance.LevelForScore(score),
		PriorityRecommendations: priority,
		Duration:                time.Since(start),
	}
}

// runRule executes one rule, converting errors and panics into failed
// results so a misbehaving rule cannot abort a batch.
func (e *Engine) runRule(ctx context.Context, rule compliance.Rule, vc compliance.Context) (out compliance.RuleResult) {
	start := time.Now()
	out = compliance.RuleResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Category: rule.Category,
		Severity: rule.Severity,
		Required: rule.Required,
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("validation rule panicked",
				zap.String("rule_id", rule.ID),
				zap.Any("panic", r),
			)
			out.Passed = false
			out.Message = fmt.Sprintf("Rule execution failed: %v", r)
			out.Recommendations = []string{"Review and fix validation rule implementation"}
			out.Duration = time.Since(start)
		}
	}()

	result, err := rule.Evaluate(vc)
	if err != nil {
		e.logger.Error("validation rule execution failed",
			zap.String("rule_id", rule.ID),
			zap.Error(err),
		)
		out.Passed = false
		out.Message = fmt.Sprintf("Rule execution failed: %s", err.Error())
		out.Recommendations = []string{"Review and fix validation rule implementation"}
		out.Duration = time.Since(start)
		return out
	}

	out.Passed = result.Passed
	out.Message = result.Message
	out.Details = result.Details
	out.Recommendations = result.Recommendations
	out.Duration = time.Since(start)
	return out
}

// Stats summarizes the rule registry.
type Stats struct {
	TotalRules      int            `json:"total_rules"`
	RulesByCategory map[string]int `json:"rules_by_category"`
	RulesBySeverity map[string]int `json:"rules_by_severity"`
	RequiredRules   int            `json:"required_rules"`
}

// Stats returns registry composition counts.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Stats{
		TotalRules:      len(e.rules),
		RulesByCategory: make(map[string]int),
		RulesBySeverity: make(map[string]int),
	}
	for _, rule := range e.rules {
		st.RulesByCategory[string(rule.Category)]++
		st.RulesBySeverity[string(rule.Severity)]++
		if rule.Required {
			st.RequiredRules++
		}
	}
	return st
}

// ReportSummary renders a report as human-readable text for operators
// and compliance officers.
func ReportSummary(report compliance.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HIPAA Compliance Report - %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Overall Compliance: %d%%\n", report.OverallCompliance)
	fmt.Fprintf(&b, "Passed Rules: %d/%d", report.PassedRules, report.TotalRules)

	if report.CriticalFailures > 0 {
		fmt.Fprintf(&b, "\nCRITICAL FAILURES: %d", report.CriticalFailures)
	}
	if report.FailedRules > 0 {
		fmt.Fprintf(&b, "\nFailed Rules: %d", report.FailedRules)
	}
	if len(report.Recommendations) > 0 {
		b.WriteString("\n\nRecommendations:")
		for i, rec := range report.Recommendations {
			fmt.Fprintf(&b, "\n%d. %s", i+1, rec)
		}
	}
	return b.String()
}

// Summarize aggregates a set of reports for dashboard-style overviews.
func Summarize(reports []compliance.Report) compliance.Summary {
	if len(reports) == 0 {
		return compliance.Summary{}
	}

	sorted := make([]compliance.Report, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	summary := compliance.Summary{
		Reports:      len(sorted),
		OldestReport: sorted[0].Timestamp,
		NewestReport: sorted[len(sorted)-1].Timestamp,
	}
	total := 0
	for _, r := range sorted {
		total += r.OverallCompliance
		summary.TotalFailures += r.FailedRules
		summary.CriticalFailures += r.CriticalFailures
	}
	summary.AverageCompliance = float64(total) / float64(len(sorted))
	return summary
}
