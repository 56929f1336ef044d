// Package classify decides from raw error text whether a failure is an
// infrastructure problem (not fixable by editing code) or a code defect.
package classify

import (
	"fmt"
	"strings"

	"github.com/danshapiro/opsguard/internal/remediation/runtime"
)

// Result is the classifier verdict with a short human-readable reason.
type Result struct {
	Kind   runtime.ErrorKind
	Reason string
}

// infraKeywords are matched case-insensitively against the error text.
var infraKeywords = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"rate limit",
	"timeout",
	"connection refused",
	"connectionerror",
	"network is unreachable",
	"ssl error",
	"credential",
	"access denied",
}

// Classify returns NoError for blank text, InfraDefect when an
// infrastructure signature is present, and CodeDefect otherwise.
func Classify(errorText string) Result {
	if strings.TrimSpace(errorText) == "" {
		return Result{Kind: runtime.NoError, Reason: "no error detected"}
	}
	lower := strings.ToLower(errorText)
	for _, kw := range infraKeywords {
		if strings.Contains(lower, kw) {
			return Result{
				Kind:   runtime.InfraDefect,
				Reason: fmt.Sprintf("infrastructure signature %q in error text", kw),
			}
		}
	}
	return Result{Kind: runtime.CodeDefect, Reason: "error text looks like a program exception"}
}
