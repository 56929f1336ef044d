package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/danshapiro/opsguard/internal/providerspec"
	"github.com/danshapiro/opsguard/internal/remediation/runtime"
	"github.com/danshapiro/opsguard/internal/sandbox"
	"github.com/danshapiro/opsguard/internal/workspace"
)

const (
	DefaultEntryFile     = "app.py"
	DefaultTestsDir      = "tests"
	DefaultArtifactsRoot = "artifacts"

	defaultTemperature = 0.2
	defaultTopP        = 0.9
	defaultMaxTokens   = 4096
)

type ProviderConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Path        string   `json:"path,omitempty" yaml:"path,omitempty"`
	APIKeyEnv   string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type RunConfigFile struct {
	Version int `json:"version" yaml:"version"`

	Target struct {
		EntryFile        string `json:"entry_file" yaml:"entry_file"`
		TestsDir         string `json:"tests_dir" yaml:"tests_dir"`
		VerificationMode string `json:"verification_mode" yaml:"verification_mode"`
	} `json:"target" yaml:"target"`

	Sandbox struct {
		Docker      string `json:"docker" yaml:"docker"`
		Image       string `json:"image" yaml:"image"`
		Python      string `json:"python" yaml:"python"`
		TestCommand string `json:"test_command" yaml:"test_command"`
		Network     string `json:"network,omitempty" yaml:"network,omitempty"`
	} `json:"sandbox" yaml:"sandbox"`

	Oracle struct {
		Providers           []ProviderConfig `json:"providers" yaml:"providers"`
		AttemptsPerProvider int              `json:"attempts_per_provider" yaml:"attempts_per_provider"`
		MaxFeedbackChars    int              `json:"max_feedback_chars" yaml:"max_feedback_chars"`
	} `json:"oracle" yaml:"oracle"`

	Workspace struct {
		Root         string   `json:"root,omitempty" yaml:"root,omitempty"`
		ExcludeGlobs []string `json:"exclude_globs,omitempty" yaml:"exclude_globs,omitempty"`
	} `json:"workspace" yaml:"workspace"`

	Artifacts struct {
		Root string `json:"root" yaml:"root"`
	} `json:"artifacts" yaml:"artifacts"`

	Metrics struct {
		Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty"`
	} `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// DefaultRunConfig is the configuration used when no config file is given.
func DefaultRunConfig() *RunConfigFile {
	var cfg RunConfigFile
	applyConfigDefaults(&cfg)
	return &cfg
}

func LoadRunConfigFile(path string) (*RunConfigFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg RunConfigFile
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := decodeJSONStrict(b, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, err
		}
	}
	applyConfigDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *RunConfigFile) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *RunConfigFile) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file is a valid config that takes every default.
		if err == io.EOF {
			return nil
		}
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func applyConfigDefaults(cfg *RunConfigFile) {
	if cfg == nil {
		return
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	cfg.Target.EntryFile = firstNonEmpty(cfg.Target.EntryFile, DefaultEntryFile)
	cfg.Target.TestsDir = firstNonEmpty(cfg.Target.TestsDir, DefaultTestsDir)
	cfg.Target.VerificationMode = firstNonEmpty(cfg.Target.VerificationMode, string(runtime.ModeSingleScript))

	cfg.Sandbox.Docker = firstNonEmpty(cfg.Sandbox.Docker, sandbox.DefaultDockerBinary)
	cfg.Sandbox.Image = firstNonEmpty(cfg.Sandbox.Image, sandbox.DefaultImage)
	cfg.Sandbox.Python = firstNonEmpty(cfg.Sandbox.Python, sandbox.DefaultPython)
	cfg.Sandbox.TestCommand = firstNonEmpty(cfg.Sandbox.TestCommand, sandbox.DefaultTestCommand)
	cfg.Sandbox.Network = strings.TrimSpace(cfg.Sandbox.Network)

	if len(cfg.Oracle.Providers) == 0 {
		for _, key := range providerspec.DefaultOrder() {
			cfg.Oracle.Providers = append(cfg.Oracle.Providers, ProviderConfig{Name: key})
		}
	}
	for i := range cfg.Oracle.Providers {
		applyProviderDefaults(&cfg.Oracle.Providers[i])
	}
	if cfg.Oracle.AttemptsPerProvider == 0 {
		cfg.Oracle.AttemptsPerProvider = 3
	}
	if cfg.Oracle.MaxFeedbackChars == 0 {
		cfg.Oracle.MaxFeedbackChars = 10000
	}

	cfg.Workspace.Root = strings.TrimSpace(cfg.Workspace.Root)
	if cfg.Workspace.ExcludeGlobs == nil {
		cfg.Workspace.ExcludeGlobs = append([]string{}, workspace.DefaultExcludeGlobs...)
	}
	cfg.Workspace.ExcludeGlobs = trimNonEmpty(cfg.Workspace.ExcludeGlobs)

	cfg.Artifacts.Root = firstNonEmpty(cfg.Artifacts.Root, DefaultArtifactsRoot)
	cfg.Metrics.Textfile = strings.TrimSpace(cfg.Metrics.Textfile)
}

// applyProviderDefaults fills blanks from the builtin table. Unknown
// providers keep what the file says and are rejected by validateConfig if
// that is not enough to reach them.
func applyProviderDefaults(p *ProviderConfig) {
	p.Name = providerspec.CanonicalProviderKey(p.Name)
	if spec, ok := providerspec.Builtin(p.Name); ok && spec.API != nil {
		p.Model = firstNonEmpty(p.Model, spec.API.DefaultModel)
		p.BaseURL = firstNonEmpty(p.BaseURL, spec.API.DefaultBaseURL)
		p.Path = firstNonEmpty(p.Path, spec.API.DefaultPath)
		p.APIKeyEnv = firstNonEmpty(p.APIKeyEnv, spec.API.DefaultAPIKeyEnv)
	}
	if p.Temperature == nil {
		v := defaultTemperature
		p.Temperature = &v
	}
	if p.TopP == nil {
		v := defaultTopP
		p.TopP = &v
	}
	if p.MaxTokens == nil {
		v := defaultMaxTokens
		p.MaxTokens = &v
	}
}

// SelectProviders narrows and reorders oracle.providers to keys. Aliases are
// accepted and repeats are ignored. A key missing from the config falls back
// to its builtin defaults; a key that is neither is an error.
func (cfg *RunConfigFile) SelectProviders(keys []string) error {
	order := providerspec.CanonicalizeProviderList(keys)
	if len(order) == 0 {
		return fmt.Errorf("provider selection is empty")
	}
	byName := map[string]ProviderConfig{}
	for _, p := range cfg.Oracle.Providers {
		byName[providerspec.CanonicalProviderKey(p.Name)] = p
	}
	selected := make([]ProviderConfig, 0, len(order))
	for _, key := range order {
		p, ok := byName[key]
		if !ok {
			if _, builtin := providerspec.Builtin(key); !builtin {
				return fmt.Errorf("unknown provider %q", key)
			}
			p = ProviderConfig{Name: key}
		}
		applyProviderDefaults(&p)
		selected = append(selected, p)
	}
	cfg.Oracle.Providers = selected
	return nil
}

// Validate re-checks a config after callers (CLI flags) changed it.
func (cfg *RunConfigFile) Validate() error { return validateConfig(cfg) }

func validateConfig(cfg *RunConfigFile) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	entry := filepath.ToSlash(filepath.Clean(cfg.Target.EntryFile))
	if filepath.IsAbs(cfg.Target.EntryFile) || entry == ".." || strings.HasPrefix(entry, "../") {
		return fmt.Errorf("target.entry_file must be relative to the target: %q", cfg.Target.EntryFile)
	}
	if !strings.HasSuffix(entry, ".py") {
		return fmt.Errorf("target.entry_file must be a .py file: %q", cfg.Target.EntryFile)
	}
	if _, err := runtime.ParseVerificationMode(cfg.Target.VerificationMode); err != nil {
		return fmt.Errorf("target.verification_mode: %w", err)
	}
	if len(cfg.Oracle.Providers) == 0 {
		return fmt.Errorf("oracle.providers must list at least one provider")
	}
	seen := map[string]bool{}
	for i, p := range cfg.Oracle.Providers {
		if p.Name == "" {
			return fmt.Errorf("oracle.providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("oracle.providers[%d]: duplicate provider %q", i, p.Name)
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.Model) == "" || strings.TrimSpace(p.BaseURL) == "" || strings.TrimSpace(p.APIKeyEnv) == "" {
			return fmt.Errorf("oracle.providers[%d] (%s): model, base_url and api_key_env are required for non-builtin providers", i, p.Name)
		}
		if *p.Temperature < 0 || *p.Temperature > 2 {
			return fmt.Errorf("oracle.providers[%d] (%s): temperature must be in [0,2]", i, p.Name)
		}
		if *p.TopP <= 0 || *p.TopP > 1 {
			return fmt.Errorf("oracle.providers[%d] (%s): top_p must be in (0,1]", i, p.Name)
		}
		if *p.MaxTokens <= 0 {
			return fmt.Errorf("oracle.providers[%d] (%s): max_tokens must be positive", i, p.Name)
		}
	}
	if cfg.Oracle.AttemptsPerProvider < 0 {
		return fmt.Errorf("oracle.attempts_per_provider must be >= 0")
	}
	if cfg.Oracle.MaxFeedbackChars < 0 {
		return fmt.Errorf("oracle.max_feedback_chars must be >= 0")
	}
	for _, g := range cfg.Workspace.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("workspace.exclude_globs: invalid glob %q", g)
		}
	}
	return nil
}

func trimNonEmpty(parts []string) []string {
	if len(parts) == 0 {
		return parts
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
