package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
)

// Config models vesselcheck.yml.
type Config struct {
	Workspace struct {
		ID     string `yaml:"id"`
		Vessel string `yaml:"vessel"`
	} `yaml:"workspace"`
	Workflow struct {
		Roles     map[string]string `yaml:"roles"`
		Skippable []string          `yaml:"skippable"`
	} `yaml:"workflow"`
	Sync struct {
		Remote    string   `yaml:"remote"`
		Token     string   `yaml:"token"`
		TieWindow Duration `yaml:"tie_window"`
		Timeout   Duration `yaml:"timeout"`
	} `yaml:"sync"`
	Analysis struct {
		Endpoint string   `yaml:"endpoint"`
		Token    string   `yaml:"token"`
		Timeout  Duration `yaml:"timeout"`
	} `yaml:"analysis"`
	Server struct {
		Addr                   string `yaml:"addr"`
		BasePath               string `yaml:"base_path"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
		DevLogin               bool   `yaml:"dev_login"`
	} `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Duration accepts Go duration strings ("1s", "30s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with vc init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	for step, role := range c.Workflow.Roles {
		if !validStep(step) {
			return fmt.Errorf("config.workflow.roles: unknown step %s", step)
		}
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("config.workflow.roles: step %s has empty role", step)
		}
	}
	for _, step := range c.Workflow.Skippable {
		if !validStep(step) {
			return fmt.Errorf("config.workflow.skippable: unknown step %s", step)
		}
		if step == string(domain.StepReview) || step == string(domain.StepApproval) {
			return fmt.Errorf("config.workflow.skippable: step %s can never be skipped", step)
		}
	}
	if c.Sync.TieWindow < 0 {
		return fmt.Errorf("config.sync.tie_window must not be negative")
	}
	if c.Analysis.Timeout < 0 || c.Sync.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func validStep(s string) bool {
	for _, t := range domain.StepSequence {
		if string(t) == s {
			return true
		}
	}
	return false
}

// WorkflowRoles returns the configured step roles merged over the defaults.
func (c *Config) WorkflowRoles() compliance.Roles {
	roles := compliance.Roles{}
	for k, v := range compliance.DefaultRoles {
		roles[k] = v
	}
	if c == nil {
		return roles
	}
	for step, role := range c.Workflow.Roles {
		roles[domain.StepType(step)] = role
	}
	return roles
}

// SkippableSteps lists the steps flagged skippable on new checklists.
func (c *Config) SkippableSteps() []domain.StepType {
	if c == nil {
		return nil
	}
	out := make([]domain.StepType, 0, len(c.Workflow.Skippable))
	for _, s := range c.Workflow.Skippable {
		out = append(out, domain.StepType(s))
	}
	return out
}

// TieWindow falls back to the reconciler default when unset.
func (c *Config) TieWindow() time.Duration {
	if c == nil || c.Sync.TieWindow == 0 {
		return compliance.DefaultTieWindow
	}
	return c.Sync.TieWindow.Std()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "vesselcheck.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, workspaceID))).Decode(&cfg)
	cfg.Workspace.ID = workspaceID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  id: %s

workflow:
  roles:
    creation: inspector
    inspection: inspector
    review: reviewer
    approval: approver
    completion: approver
  skippable: [completion]

sync:
  remote: ""
  tie_window: 1s
  timeout: 30s

analysis:
  endpoint: ""
  timeout: 60s

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allow_legacy_actor_header: false
  dev_login: false

log:
  level: info
  format: text
`
