package compliance

import (
	"fmt"
	"regexp"
	"slices"

	"vesselcheck/internal/domain"
)

// RuleResult is the outcome of evaluating one rule against one item.
type RuleResult struct {
	RuleType domain.RuleType `json:"rule_type"`
	Passed   bool            `json:"passed"`
	Severity domain.Severity `json:"severity"`
	Message  string          `json:"message,omitempty"`
	// Skipped is set when an optional item has no value to check.
	Skipped bool `json:"skipped,omitempty"`
	// Pending is set for ai_validation rules with no analysis result yet.
	Pending bool `json:"pending,omitempty"`
}

// Evaluate checks one rule against the item's current value. It never panics:
// malformed rule parameters fail closed with severity error.
func Evaluate(item domain.ChecklistItem, rule domain.ValidationRule) RuleResult {
	severity := rule.Severity
	if severity == "" {
		severity = domain.SeverityError
	}
	if !severity.Valid() {
		return malformed(rule, fmt.Sprintf("unknown severity %q", rule.Severity))
	}
	switch rule.Type {
	case domain.RuleRange:
		return evaluateRange(item, rule, severity)
	case domain.RuleRegex:
		return evaluateRegex(item, rule, severity)
	case domain.RuleCustom:
		return evaluateCustom(item, rule, severity)
	case domain.RuleAIValidation:
		return evaluateAI(rule)
	default:
		return malformed(rule, fmt.Sprintf("unknown rule type %q", rule.Type))
	}
}

func malformed(rule domain.ValidationRule, reason string) RuleResult {
	return RuleResult{
		RuleType: rule.Type,
		Passed:   false,
		Severity: domain.SeverityError,
		Message:  "malformed rule: " + reason,
	}
}

func failed(rule domain.ValidationRule, severity domain.Severity, fallback string) RuleResult {
	msg := rule.Message
	if msg == "" {
		msg = fallback
	}
	return RuleResult{RuleType: rule.Type, Passed: false, Severity: severity, Message: msg}
}

func passed(rule domain.ValidationRule, severity domain.Severity) RuleResult {
	return RuleResult{RuleType: rule.Type, Passed: true, Severity: severity}
}

// RangeParams are the parameters of a range rule.
type RangeParams struct {
	Min float64
	Max float64
}

func parseRange(v any) (RangeParams, error) {
	m, ok := v.(map[string]any)
	if !ok {
		nv, err := NormalizeValue(v)
		if err != nil {
			return RangeParams{}, err
		}
		if m, ok = nv.(map[string]any); !ok {
			return RangeParams{}, fmt.Errorf("expected {min,max}, got %T", v)
		}
	}
	minRaw, okMin := m["min"]
	maxRaw, okMax := m["max"]
	if !okMin || !okMax {
		return RangeParams{}, fmt.Errorf("min and max are required")
	}
	lo, okLo := toFloat(minRaw)
	hi, okHi := toFloat(maxRaw)
	if !okLo || !okHi {
		return RangeParams{}, fmt.Errorf("min and max must be numbers")
	}
	if lo > hi {
		return RangeParams{}, fmt.Errorf("min %v greater than max %v", lo, hi)
	}
	return RangeParams{Min: lo, Max: hi}, nil
}

// evaluateRange passes iff the numeric value lies in [min,max]. A non-numeric value is a
// hard failure whatever severity the rule declares.
func evaluateRange(item domain.ChecklistItem, rule domain.ValidationRule, severity domain.Severity) RuleResult {
	params, err := parseRange(rule.Value)
	if err != nil {
		return malformed(rule, err.Error())
	}
	n, ok := toFloat(item.Value)
	if !ok {
		return failed(rule, domain.SeverityError, "value is not numeric")
	}
	if n < params.Min || n > params.Max {
		return failed(rule, severity, fmt.Sprintf("value %v outside [%v, %v]", n, params.Min, params.Max))
	}
	return passed(rule, severity)
}

func regexPattern(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		p, ok := t["pattern"].(string)
		return p, ok
	}
	return "", false
}

// evaluateRegex matches the string form of the value. Empty values fail on required items
// and are skipped on optional ones.
func evaluateRegex(item domain.ChecklistItem, rule domain.ValidationRule, severity domain.Severity) RuleResult {
	pattern, ok := regexPattern(rule.Value)
	if !ok {
		return malformed(rule, "regex pattern must be a string")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return malformed(rule, err.Error())
	}
	if !HasValue(item.Value) {
		if item.Required {
			return failed(rule, severity, "value is required")
		}
		res := passed(rule, severity)
		res.Skipped = true
		return res
	}
	if !re.MatchString(coerceString(item.Value)) {
		return failed(rule, severity, fmt.Sprintf("value does not match %s", pattern))
	}
	return passed(rule, severity)
}

// evaluateCustom passes when the value equals the rule value or, for list rule values,
// is a member of the list. A list value passes when every selected entry is a member.
func evaluateCustom(item domain.ChecklistItem, rule domain.ValidationRule, severity domain.Severity) RuleResult {
	if valuesEqual(item.Value, rule.Value) {
		return passed(rule, severity)
	}
	expected, err := NormalizeValue(rule.Value)
	if err != nil {
		return malformed(rule, err.Error())
	}
	allowed, isList := expected.([]any)
	if !isList {
		return failed(rule, severity, "value does not match expected value")
	}
	actual, err := NormalizeValue(item.Value)
	if err != nil {
		return failed(rule, severity, "value is not comparable")
	}
	member := func(v any) bool {
		return slices.ContainsFunc(allowed, func(a any) bool { return valuesEqual(a, v) })
	}
	if selected, ok := actual.([]any); ok {
		if len(selected) == 0 {
			return failed(rule, severity, "no option selected")
		}
		for _, s := range selected {
			if !member(s) {
				return failed(rule, severity, fmt.Sprintf("option %s not allowed", coerceString(s)))
			}
		}
		return passed(rule, severity)
	}
	if actual != nil && member(actual) {
		return passed(rule, severity)
	}
	return failed(rule, severity, "value not among allowed values")
}

func evaluateAI(rule domain.ValidationRule) RuleResult {
	if rule.AIResult == nil {
		return RuleResult{RuleType: rule.Type, Passed: true, Severity: domain.SeverityInfo, Pending: true}
	}
	sev := rule.AIResult.Severity
	if !sev.Valid() {
		sev = domain.SeverityInfo
	}
	return RuleResult{
		RuleType: rule.Type,
		Passed:   rule.AIResult.Passed,
		Severity: sev,
		Message:  rule.AIResult.Message,
	}
}

// EvaluateItem runs every rule of the item and returns all failures.
func EvaluateItem(item domain.ChecklistItem) []ValidationFailure {
	var failures []ValidationFailure
	for i, rule := range item.ValidationRules {
		res := Evaluate(item, rule)
		if res.Passed {
			continue
		}
		failures = append(failures, ValidationFailure{
			ItemID:    item.ID,
			RuleIndex: i,
			RuleType:  rule.Type,
			Severity:  res.Severity,
			Message:   res.Message,
			Required:  item.Required,
		})
	}
	return failures
}

// Report is the result of evaluating every rule of a checklist.
type Report struct {
	Failures []ValidationFailure `json:"failures"`
}

// EvaluateChecklist evaluates all items; it never stops at the first failure.
func EvaluateChecklist(c domain.Checklist) Report {
	rep := Report{Failures: []ValidationFailure{}}
	for _, item := range c.Items {
		if item.Status == domain.ItemNA {
			continue
		}
		rep.Failures = append(rep.Failures, EvaluateItem(item)...)
	}
	return rep
}

// Blocking returns error-severity failures on required items; these block submission.
func (r Report) Blocking() []ValidationFailure {
	var out []ValidationFailure
	for _, f := range r.Failures {
		if f.Required && f.Severity == domain.SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// BySeverity counts failures per severity.
func (r Report) BySeverity() map[domain.Severity]int {
	counts := map[domain.Severity]int{}
	for _, f := range r.Failures {
		counts[f.Severity]++
	}
	return counts
}
