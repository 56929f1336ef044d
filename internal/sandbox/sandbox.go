// Package sandbox runs target code in an isolated, disposable environment
// and reports exit code and captured output.
package sandbox

import (
	"context"
	"errors"
	"fmt"
)

type CommandKind string

const (
	KindScript    CommandKind = "script"
	KindTestSuite CommandKind = "test_suite"
)

// Command names what to run inside the workspace: one script, or the
// configured test invocation.
type Command struct {
	Kind   CommandKind
	Script string
}

func Script(name string) Command { return Command{Kind: KindScript, Script: name} }

func TestSuite() Command { return Command{Kind: KindTestSuite} }

func (c Command) String() string {
	if c.Kind == KindTestSuite {
		return "test suite"
	}
	return "script " + c.Script
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs a command against a workspace directory. A non-zero exit is
// a Result, not an error; the error return is for commands that could not
// be started at all.
type Executor interface {
	Run(ctx context.Context, workspace string, cmd Command) (Result, error)
}

// SyntaxChecker compiles file inside workspace without executing it.
// ExitCode 0 means the file compiled.
type SyntaxChecker interface {
	CheckSyntax(ctx context.Context, workspace, file string) (Result, error)
}

// LaunchError reports that the sandbox itself failed, as opposed to the code
// running inside it.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("sandbox launch failed (%s): %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
