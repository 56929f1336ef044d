package runtime

import (
	"fmt"
	"strings"
)

// Status is the lifecycle status of one remediation run. Everything except
// StatusRunning is terminal.
type Status string

const (
	StatusRunning         Status = "RUNNING"
	StatusInfraStop       Status = "INFRA_STOP"
	StatusSuccess         Status = "SUCCESS"
	StatusFailed          Status = "FAILED"
	StatusNotReproducible Status = "NOT_REPRODUCIBLE"
)

func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RUNNING":
		return StatusRunning, nil
	case "INFRA_STOP", "INFRA-STOP":
		return StatusInfraStop, nil
	case "SUCCESS", "OK":
		return StatusSuccess, nil
	case "FAILED", "FAIL", "FAILURE":
		return StatusFailed, nil
	case "NOT_REPRODUCIBLE", "NOT-REPRODUCIBLE":
		return StatusNotReproducible, nil
	default:
		return "", fmt.Errorf("invalid run status: %q", s)
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusInfraStop, StatusSuccess, StatusFailed, StatusNotReproducible:
		return true
	default:
		return false
	}
}

// ErrorKind is the classifier's verdict on the observed failure. The zero
// value means not yet classified.
type ErrorKind string

const (
	ErrorKindUnset ErrorKind = ""
	CodeDefect     ErrorKind = "CODE_DEFECT"
	InfraDefect    ErrorKind = "INFRA_DEFECT"
	NoError        ErrorKind = "NO_ERROR"
)

type VerificationMode string

const (
	ModeSingleScript VerificationMode = "single_script"
	ModeTestSuite    VerificationMode = "test_suite"
)

func ParseVerificationMode(s string) (VerificationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single_script", "single-script", "script", "single":
		return ModeSingleScript, nil
	case "test_suite", "test-suite", "tests", "test", "pytest":
		return ModeTestSuite, nil
	default:
		return "", fmt.Errorf("invalid verification mode: %q (want single_script or test_suite)", s)
	}
}
