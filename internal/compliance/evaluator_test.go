package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/domain"
)

func TestEvaluate(t *testing.T) {
	number := func(v any) domain.ChecklistItem {
		return domain.ChecklistItem{ID: "rpm", Type: domain.ItemMeasurement, Required: true, Value: v}
	}
	text := func(v any, required bool) domain.ChecklistItem {
		return domain.ChecklistItem{ID: "imo", Type: domain.ItemText, Required: required, Value: v}
	}
	rangeRule := func(min, max any, sev domain.Severity) domain.ValidationRule {
		return domain.ValidationRule{Type: domain.RuleRange, Value: map[string]any{"min": min, "max": max}, Severity: sev}
	}

	tests := []struct {
		name     string
		item     domain.ChecklistItem
		rule     domain.ValidationRule
		passed   bool
		severity domain.Severity
		skipped  bool
		pending  bool
	}{
		{"range inside", number(5.0), rangeRule(0, 10, domain.SeverityWarning), true, domain.SeverityWarning, false, false},
		{"range inclusive bound", number(10), rangeRule(0, 10, ""), true, domain.SeverityError, false, false},
		{"range outside keeps declared severity", number(11.5), rangeRule(0, 10, domain.SeverityWarning), false, domain.SeverityWarning, false, false},
		{"range non numeric is hard fail", number("high"), rangeRule(0, 10, domain.SeverityInfo), false, domain.SeverityError, false, false},
		{"range min above max fails closed", number(5.0), rangeRule(10, 0, domain.SeverityInfo), false, domain.SeverityError, false, false},
		{"range missing params fails closed", number(5.0), domain.ValidationRule{Type: domain.RuleRange, Value: "0-10", Severity: domain.SeverityInfo}, false, domain.SeverityError, false, false},
		{"range non numeric params fail closed", number(5.0), rangeRule("low", 10, domain.SeverityInfo), false, domain.SeverityError, false, false},
		{"regex match", text("IMO9876543", true), domain.ValidationRule{Type: domain.RuleRegex, Value: `^IMO\d{7}$`}, true, domain.SeverityError, false, false},
		{"regex pattern object", text("IMO9876543", true), domain.ValidationRule{Type: domain.RuleRegex, Value: map[string]any{"pattern": `^IMO`}}, true, domain.SeverityError, false, false},
		{"regex mismatch", text("9876543", true), domain.ValidationRule{Type: domain.RuleRegex, Value: `^IMO\d{7}$`, Severity: domain.SeverityWarning}, false, domain.SeverityWarning, false, false},
		{"regex empty required", text("", true), domain.ValidationRule{Type: domain.RuleRegex, Value: `.+`}, false, domain.SeverityError, false, false},
		{"regex empty optional skipped", text(nil, false), domain.ValidationRule{Type: domain.RuleRegex, Value: `.+`}, true, domain.SeverityError, true, false},
		{"regex coerces numbers", number(12.5), domain.ValidationRule{Type: domain.RuleRegex, Value: `^12\.5$`}, true, domain.SeverityError, false, false},
		{"regex invalid pattern fails closed", text("x", true), domain.ValidationRule{Type: domain.RuleRegex, Value: `(`, Severity: domain.SeverityInfo}, false, domain.SeverityError, false, false},
		{"custom equal", domain.ChecklistItem{Type: domain.ItemBoolean, Value: true}, domain.ValidationRule{Type: domain.RuleCustom, Value: true}, true, domain.SeverityError, false, false},
		{"custom not equal", domain.ChecklistItem{Type: domain.ItemBoolean, Value: false}, domain.ValidationRule{Type: domain.RuleCustom, Value: true}, false, domain.SeverityError, false, false},
		{"custom membership", domain.ChecklistItem{Type: domain.ItemSelect, Value: "ok"}, domain.ValidationRule{Type: domain.RuleCustom, Value: []any{"ok", "degraded"}}, true, domain.SeverityError, false, false},
		{"custom not a member", domain.ChecklistItem{Type: domain.ItemSelect, Value: "failed"}, domain.ValidationRule{Type: domain.RuleCustom, Value: []string{"ok", "degraded"}}, false, domain.SeverityError, false, false},
		{"custom multiselect subset", domain.ChecklistItem{Type: domain.ItemMultiSelect, Value: []any{"a", "b"}}, domain.ValidationRule{Type: domain.RuleCustom, Value: []string{"a", "b", "c"}}, true, domain.SeverityError, false, false},
		{"custom multiselect outsider", domain.ChecklistItem{Type: domain.ItemMultiSelect, Value: []any{"a", "z"}}, domain.ValidationRule{Type: domain.RuleCustom, Value: []string{"a", "b", "c"}}, false, domain.SeverityError, false, false},
		{"ai pending", text("x", true), domain.ValidationRule{Type: domain.RuleAIValidation, Severity: domain.SeverityError}, true, domain.SeverityInfo, false, true},
		{"ai stored result", text("x", true), domain.ValidationRule{Type: domain.RuleAIValidation, AIResult: &domain.AIRuleResult{Passed: false, Severity: domain.SeverityWarning, Message: "drift"}}, false, domain.SeverityWarning, false, false},
		{"unknown rule type fails closed", text("x", true), domain.ValidationRule{Type: "bogus", Severity: domain.SeverityInfo}, false, domain.SeverityError, false, false},
		{"unknown severity fails closed", text("x", true), domain.ValidationRule{Type: domain.RuleRegex, Value: `x`, Severity: "fatal"}, false, domain.SeverityError, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Evaluate(tc.item, tc.rule)
			assert.Equal(t, tc.passed, res.Passed)
			assert.Equal(t, tc.severity, res.Severity)
			assert.Equal(t, tc.skipped, res.Skipped)
			assert.Equal(t, tc.pending, res.Pending)
			if !res.Passed {
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestEvaluateUsesRuleMessage(t *testing.T) {
	item := domain.ChecklistItem{ID: "p", Type: domain.ItemNumber, Value: 3.0}
	res := Evaluate(item, domain.ValidationRule{
		Type:    domain.RuleRange,
		Value:   map[string]any{"min": 5.0, "max": 8.0},
		Message: "hydraulic pressure out of range",
	})
	require.False(t, res.Passed)
	assert.Equal(t, "hydraulic pressure out of range", res.Message)
}

func TestEvaluateChecklistReportsEveryFailure(t *testing.T) {
	strict := domain.ValidationRule{Type: domain.RuleRange, Value: map[string]any{"min": 0.0, "max": 10.0}}
	soft := domain.ValidationRule{Type: domain.RuleRange, Value: map[string]any{"min": 0.0, "max": 10.0}, Severity: domain.SeverityWarning}
	c := domain.Checklist{Items: []domain.ChecklistItem{
		{ID: "a", Type: domain.ItemNumber, Required: true, Value: 20.0, ValidationRules: []domain.ValidationRule{strict, soft}},
		{ID: "b", Type: domain.ItemNumber, Required: true, Value: -1.0, ValidationRules: []domain.ValidationRule{strict}},
		{ID: "c", Type: domain.ItemNumber, Required: false, Value: 99.0, ValidationRules: []domain.ValidationRule{strict}},
		{ID: "d", Type: domain.ItemNumber, Required: true, Status: domain.ItemNA, Value: 99.0, ValidationRules: []domain.ValidationRule{strict}},
	}}

	rep := EvaluateChecklist(c)
	require.Len(t, rep.Failures, 4)
	assert.Equal(t, map[domain.Severity]int{domain.SeverityError: 3, domain.SeverityWarning: 1}, rep.BySeverity())

	blocking := rep.Blocking()
	require.Len(t, blocking, 2)
	assert.Equal(t, "a", blocking[0].ItemID)
	assert.Equal(t, 0, blocking[0].RuleIndex)
	assert.Equal(t, "b", blocking[1].ItemID)
}

func TestCheckValue(t *testing.T) {
	opts := []string{"ok", "degraded", "failed"}
	tests := []struct {
		name  string
		item  domain.ChecklistItem
		value any
		ok    bool
	}{
		{"boolean", domain.ChecklistItem{Type: domain.ItemBoolean}, true, true},
		{"boolean rejects string", domain.ChecklistItem{Type: domain.ItemBoolean}, "yes", false},
		{"measurement", domain.ChecklistItem{Type: domain.ItemMeasurement}, 12.0, true},
		{"number rejects string", domain.ChecklistItem{Type: domain.ItemNumber}, "12", false},
		{"select in options", domain.ChecklistItem{Type: domain.ItemSelect, Options: opts}, "ok", true},
		{"select outside options", domain.ChecklistItem{Type: domain.ItemSelect, Options: opts}, "maybe", false},
		{"multiselect", domain.ChecklistItem{Type: domain.ItemMultiSelect, Options: opts}, []any{"ok", "failed"}, true},
		{"multiselect outsider", domain.ChecklistItem{Type: domain.ItemMultiSelect, Options: opts}, []any{"ok", "maybe"}, false},
		{"photo reference list", domain.ChecklistItem{Type: domain.ItemPhoto}, []any{"s3://a.jpg"}, true},
		{"signature", domain.ChecklistItem{Type: domain.ItemSignature}, "J. Master", true},
		{"nil clears", domain.ChecklistItem{Type: domain.ItemNumber}, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckValue(tc.item, tc.value)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}
