package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("mv-nordic")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mv-nordic", cfg.Workspace.ID)
	assert.Equal(t, time.Second, cfg.TieWindow())
	assert.Equal(t, 60*time.Second, cfg.Analysis.Timeout.Std())
	assert.Equal(t, []domain.StepType{domain.StepCompletion}, cfg.SkippableSteps())
	assert.Equal(t, "reviewer", cfg.WorkflowRoles()[domain.StepReview])
}

func TestWorkflowRolesOverride(t *testing.T) {
	cfg, err := FromYAML([]byte(`
workspace: {id: w}
workflow:
  roles:
    review: chief_engineer
`))
	require.NoError(t, err)
	roles := cfg.WorkflowRoles()
	assert.Equal(t, "chief_engineer", roles[domain.StepReview])
	assert.Equal(t, "approver", roles[domain.StepApproval])
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"missing id":        `log: {level: info}`,
		"unknown step":      "workspace: {id: w}\nworkflow: {roles: {audit: x}}",
		"skip review":       "workspace: {id: w}\nworkflow: {skippable: [review]}",
		"bad duration":      "workspace: {id: w}\nsync: {tie_window: soon}",
		"bad log format":    "workspace: {id: w}\nlog: {format: xml}",
		"webhook no url":    "workspace: {id: w}\nwebhooks: [{events: [item.updated]}]",
		"negative duration": "workspace: {id: w}\nsync: {tie_window: -1s}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vesselcheck.yml"), []byte(GenerateDefault("ws")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Workspace.ID)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}
