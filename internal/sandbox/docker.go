package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultDockerBinary = "docker"
	DefaultImage        = "python:3.11-slim"
	DefaultPython       = "python"
	DefaultTestCommand  = "pip install pytest --quiet && pytest"

	containerWorkdir = "/app"

	// dockerRunFailed is the exit status docker uses when the container
	// could not be created (daemon unreachable, image missing).
	dockerRunFailed = 125
)

// Docker runs commands in a throwaway container with the workspace mounted
// at /app.
type Docker struct {
	Binary      string
	Image       string
	Python      string
	TestCommand string
	// Network is passed as --network when set, e.g. "none".
	Network string
}

func (d *Docker) withDefaults() Docker {
	out := *d
	if strings.TrimSpace(out.Binary) == "" {
		out.Binary = DefaultDockerBinary
	}
	if strings.TrimSpace(out.Image) == "" {
		out.Image = DefaultImage
	}
	if strings.TrimSpace(out.Python) == "" {
		out.Python = DefaultPython
	}
	if strings.TrimSpace(out.TestCommand) == "" {
		out.TestCommand = DefaultTestCommand
	}
	return out
}

func (d *Docker) argv(workspace string, inner []string) ([]string, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, err
	}
	cfg := d.withDefaults()
	argv := []string{cfg.Binary, "run", "--rm"}
	if n := strings.TrimSpace(cfg.Network); n != "" {
		argv = append(argv, "--network", n)
	}
	argv = append(argv, "-v", abs+":"+containerWorkdir, "-w", containerWorkdir, cfg.Image)
	return append(argv, inner...), nil
}

func (d *Docker) innerCommand(cmd Command) ([]string, error) {
	cfg := d.withDefaults()
	switch cmd.Kind {
	case KindScript:
		if strings.TrimSpace(cmd.Script) == "" {
			return nil, fmt.Errorf("script command without a script name")
		}
		return []string{cfg.Python, cmd.Script}, nil
	case KindTestSuite:
		return []string{"bash", "-c", cfg.TestCommand}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

func (d *Docker) Run(ctx context.Context, workspace string, cmd Command) (Result, error) {
	inner, err := d.innerCommand(cmd)
	if err != nil {
		return Result{}, &LaunchError{Command: cmd.String(), Err: err}
	}
	return d.exec(ctx, workspace, inner)
}

func (d *Docker) CheckSyntax(ctx context.Context, workspace, file string) (Result, error) {
	cfg := d.withDefaults()
	return d.exec(ctx, workspace, []string{cfg.Python, "-m", "py_compile", file})
}

func (d *Docker) exec(ctx context.Context, workspace string, inner []string) (Result, error) {
	argv, err := d.argv(workspace, inner)
	if err != nil {
		return Result{}, &LaunchError{Command: strings.Join(inner, " "), Err: err}
	}
	res, err := runProcess(ctx, workspace, argv)
	if err != nil {
		return res, err
	}
	if res.ExitCode == dockerRunFailed {
		return res, &LaunchError{
			Command: strings.Join(argv, " "),
			Err:     fmt.Errorf("docker exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr)),
		}
	}
	return res, nil
}
