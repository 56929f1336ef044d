package engine

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/danshapiro/opsguard/internal/llm"
	"github.com/danshapiro/opsguard/internal/llm/providers/openaicompat"
	"github.com/danshapiro/opsguard/internal/remediation/oracle"
	"github.com/danshapiro/opsguard/internal/remediation/runtime"
	"github.com/danshapiro/opsguard/internal/sandbox"
	"github.com/danshapiro/opsguard/internal/workspace"
)

// NewOracle builds the provider chain in configured order. A provider whose
// key variable is unset is still registered: its calls fail with a
// configuration error and the oracle moves on to the next provider.
func NewOracle(cfg *RunConfigFile, logger *zap.Logger, getenv func(string) string) *oracle.Oracle {
	if getenv == nil {
		getenv = os.Getenv
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := llm.NewClient()
	providers := make([]oracle.Provider, 0, len(cfg.Oracle.Providers))
	for _, p := range cfg.Oracle.Providers {
		key := strings.TrimSpace(getenv(p.APIKeyEnv))
		if key == "" {
			logger.Warn("provider api key not set", zap.String("provider", p.Name), zap.String("env", p.APIKeyEnv))
		}
		client.Register(openaicompat.NewAdapter(openaicompat.Config{
			Provider: p.Name,
			APIKey:   key,
			BaseURL:  p.BaseURL,
			Path:     p.Path,
		}))
		providers = append(providers, &oracle.ClientProvider{
			Client:      client,
			Key:         p.Name,
			Model:       p.Model,
			Temperature: p.Temperature,
			TopP:        p.TopP,
			MaxTokens:   p.MaxTokens,
		})
	}
	logger.Debug("patch providers registered", zap.Strings("providers", client.ProviderNames()))
	return &oracle.Oracle{
		Providers:           providers,
		AttemptsPerProvider: cfg.Oracle.AttemptsPerProvider,
		MaxFeedbackChars:    cfg.Oracle.MaxFeedbackChars,
		Logger:              logger.Named("oracle"),
	}
}

func NewDocker(cfg *RunConfigFile) *sandbox.Docker {
	return &sandbox.Docker{
		Binary:      cfg.Sandbox.Docker,
		Image:       cfg.Sandbox.Image,
		Python:      cfg.Sandbox.Python,
		TestCommand: cfg.Sandbox.TestCommand,
		Network:     cfg.Sandbox.Network,
	}
}

// OptionsFromConfig fills the config-driven parts of Options and wires the
// docker sandbox and provider chain. Callers may still override any field.
func OptionsFromConfig(cfg *RunConfigFile, logger *zap.Logger) (Options, error) {
	mode, err := runtime.ParseVerificationMode(cfg.Target.VerificationMode)
	if err != nil {
		return Options{}, err
	}
	docker := NewDocker(cfg)
	return Options{
		EntryFile:        cfg.Target.EntryFile,
		TestsDir:         cfg.Target.TestsDir,
		VerificationMode: mode,
		ArtifactsRoot:    cfg.Artifacts.Root,
		MetricsTextfile:  cfg.Metrics.Textfile,
		Logger:           logger,
		Executor:         docker,
		SyntaxChecker:    docker,
		Oracle:           NewOracle(cfg, logger, nil),
		Provisioner: DirProvisioner{Options: workspace.Options{
			Root:         cfg.Workspace.Root,
			ExcludeGlobs: cfg.Workspace.ExcludeGlobs,
		}},
	}, nil
}
