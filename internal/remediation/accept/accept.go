// Package accept decides whether a replacement file proposed by the patch
// oracle may be applied. Checks are textual and structural only and never
// touch the filesystem.
package accept

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danshapiro/opsguard/internal/pysrc"
	"github.com/danshapiro/opsguard/internal/remediation/changeset"
	"github.com/pmezard/go-difflib/difflib"
)

type Reason string

const (
	ReasonCodeFence          Reason = "code_fence_present"
	ReasonExplanatoryProse   Reason = "explanatory_prose"
	ReasonInvalidSyntax      Reason = "invalid_syntax"
	ReasonEmpty              Reason = "empty_candidate"
	ReasonTruncatedChars     Reason = "possible_truncation_chars"
	ReasonTruncatedLines     Reason = "possible_truncation_lines"
	ReasonMissingDecls       Reason = "missing_declarations"
	ReasonMassDeletion       Reason = "mass_deletion"
	ReasonNewThirdPartyRoots Reason = "new_third_party_dependency"
)

const (
	largeOriginalChars = 2000
	largeOriginalLines = 120
	minKeptFraction    = 0.9
	massDeletionLines  = 80
	massDeletionRatio  = 3
)

const codeFence = "```"

// explanatoryPhrases mark completions that wrap code in prose.
var explanatoryPhrases = []string{
	"here is",
	"fixed code",
	"updated code",
	"explanation",
	"this fixes",
	"the issue",
}

// Verdict is the outcome of one check. Reason is empty when Accepted.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

func (v Verdict) String() string {
	if v.Accepted {
		return "accepted"
	}
	if v.Detail == "" {
		return string(v.Reason)
	}
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

func reject(reason Reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validator holds the import roots that count as already available besides
// the standard library, typically the modules that live in the workspace.
type Validator struct {
	LocalModules []string
}

// Check runs well-formedness, non-truncation and dependency containment in
// that order and returns the first failure.
func (v Validator) Check(original, candidate string) Verdict {
	if strings.TrimSpace(candidate) == "" {
		return reject(ReasonEmpty, "candidate is empty")
	}
	if vd := checkWellFormed(candidate); !vd.Accepted {
		return vd
	}
	if vd := checkComplete(original, candidate); !vd.Accepted {
		return vd
	}
	return v.checkDependencies(original, candidate)
}

func checkWellFormed(candidate string) Verdict {
	if strings.Contains(candidate, codeFence) {
		return reject(ReasonCodeFence, "candidate contains a markdown code fence")
	}
	lower := strings.ToLower(candidate)
	for _, phrase := range explanatoryPhrases {
		if strings.Contains(lower, phrase) {
			return reject(ReasonExplanatoryProse, "candidate contains %q", phrase)
		}
	}
	if err := pysrc.Check(candidate); err != nil {
		return reject(ReasonInvalidSyntax, "%v", err)
	}
	return Verdict{Accepted: true}
}

func checkComplete(original, candidate string) Verdict {
	origChars := utf8.RuneCountInString(original)
	candChars := utf8.RuneCountInString(candidate)
	if origChars >= largeOriginalChars && float64(candChars) < minKeptFraction*float64(origChars) {
		return reject(ReasonTruncatedChars, "candidate has %d characters, original has %d", candChars, origChars)
	}

	origLines := changeset.SplitLines(original)
	candLines := changeset.SplitLines(candidate)
	if len(origLines) >= largeOriginalLines && float64(len(candLines)) < minKeptFraction*float64(len(origLines)) {
		return reject(ReasonTruncatedLines, "candidate has %d lines, original has %d", len(candLines), len(origLines))
	}

	if missing, total := missingDecls(original, candidate); total > 0 {
		kept := total - len(missing)
		if float64(kept) < minKeptFraction*float64(total) {
			return reject(ReasonMissingDecls, "%d of %d top-level declarations kept; missing %s", kept, total, strings.Join(missing, ", "))
		}
	}

	removed, added := lineChurn(origLines, candLines)
	if removed >= massDeletionLines && removed > massDeletionRatio*added {
		return reject(ReasonMassDeletion, "%d lines removed, %d added", removed, added)
	}
	return Verdict{Accepted: true}
}

func missingDecls(original, candidate string) ([]string, int) {
	have := map[pysrc.Decl]bool{}
	for _, d := range pysrc.TopLevelDecls(candidate) {
		have[d] = true
	}
	seen := map[pysrc.Decl]bool{}
	var missing []string
	for _, d := range pysrc.TopLevelDecls(original) {
		if seen[d] {
			continue
		}
		seen[d] = true
		if !have[d] {
			missing = append(missing, fmt.Sprintf("%s %s", d.Kind, d.Name))
		}
	}
	return missing, len(seen)
}

func lineChurn(a, b []string) (removed, added int) {
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			removed += op.I2 - op.I1
			added += op.J2 - op.J1
		case 'd':
			removed += op.I2 - op.I1
		case 'i':
			added += op.J2 - op.J1
		}
	}
	return removed, added
}

func (v Validator) checkDependencies(original, candidate string) Verdict {
	allowed := map[string]bool{}
	for _, root := range pysrc.ImportRoots(original) {
		allowed[root] = true
	}
	for _, m := range v.LocalModules {
		allowed[m] = true
	}
	var introduced []string
	for _, root := range pysrc.ImportRoots(candidate) {
		if allowed[root] || pysrc.IsStdlib(root) {
			continue
		}
		introduced = append(introduced, root)
	}
	if len(introduced) > 0 {
		return reject(ReasonNewThirdPartyRoots, "candidate imports %s", strings.Join(introduced, ", "))
	}
	return Verdict{Accepted: true}
}
