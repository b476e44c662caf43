package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
)

func TestLoadEmbeddedCatalogs(t *testing.T) {
	all, err := Load()
	require.NoError(t, err)
	for _, typ := range []domain.ChecklistType{
		domain.ChecklistDP,
		domain.ChecklistMachineRoutine,
		domain.ChecklistNauticalRoutine,
		domain.ChecklistSafety,
		domain.ChecklistEnvironmental,
	} {
		c, ok := all[typ]
		require.True(t, ok, "catalog %s", typ)
		assert.NotEmpty(t, c.Title)
		assert.NotEmpty(t, c.Categories())

		order, err := compliance.NewGraph(c.Items()).Order()
		require.NoError(t, err, "catalog %s", typ)
		assert.Len(t, order, len(c.Entries))
	}
	assert.Len(t, Types(), 5)
}

func TestItemsAddsMeasurementRange(t *testing.T) {
	c, err := Get(domain.ChecklistMachineRoutine)
	require.NoError(t, err)

	var lube, exhaust domain.ChecklistItem
	for _, it := range c.Items() {
		switch it.ID {
		case "me-lube-oil-pressure":
			lube = it
		case "me-exhaust-temp":
			exhaust = it
		}
	}
	require.Len(t, lube.ValidationRules, 1)
	assert.Equal(t, domain.RuleRange, lube.ValidationRules[0].Type)
	assert.Equal(t, domain.SeverityError, lube.ValidationRules[0].Severity)
	require.Len(t, exhaust.ValidationRules, 1)
	assert.Equal(t, domain.SeverityWarning, exhaust.ValidationRules[0].Severity)

	lube.Value = 2.0
	res := compliance.Evaluate(lube, lube.ValidationRules[0])
	assert.False(t, res.Passed)
	lube.Value = 4.2
	assert.True(t, compliance.Evaluate(lube, lube.ValidationRules[0]).Passed)
}

func TestItemsNormalizesRuleValues(t *testing.T) {
	c, err := Get(domain.ChecklistMachineRoutine)
	require.NoError(t, err)
	for _, it := range c.Items() {
		if it.ID != "ge-running-hours" {
			continue
		}
		assert.Equal(t, map[string]any{"min": 0.0, "max": 200000.0}, it.ValidationRules[0].Value)
	}
}

func TestParseCustom(t *testing.T) {
	doc := []byte(`
title: Crane pre-use check
items:
  - id: crane-limit-switch
    title: Limit switches tested
    type: boolean
    required: true
    category: crane
  - id: crane-swl
    title: Safe working load marked
    type: boolean
    required: true
    category: crane
    depends_on: [crane-limit-switch]
`)
	c, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, domain.ChecklistCustom, c.Type)
	assert.Len(t, c.Items(), 2)
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	tests := map[string]string{
		"unknown field": `
title: x
items:
  - id: a
    title: a
    type: boolean
    colour: red
`,
		"cycle": `
title: x
items:
  - {id: a, title: a, type: boolean, depends_on: [b]}
  - {id: b, title: b, type: boolean, depends_on: [a]}
`,
		"dangling": `
title: x
items:
  - {id: a, title: a, type: boolean, depends_on: [ghost]}
`,
		"bad item type": `
title: x
items:
  - {id: a, title: a, type: slider}
`,
		"inverted bounds": `
title: x
items:
  - {id: a, title: a, type: measurement, min: 10, max: 1}
`,
		"no items": `
title: x
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Get("cargo")
	assert.ErrorIs(t, err, ErrUnknownType)
}
