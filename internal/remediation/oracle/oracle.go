// Package oracle asks an ordered list of text-generation providers for a
// full replacement of a failing source file, re-prompting with rejection
// feedback until a candidate passes acceptance or every provider is spent.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danshapiro/opsguard/internal/llm"
	"github.com/danshapiro/opsguard/internal/remediation/accept"
	"github.com/danshapiro/opsguard/internal/remediation/changeset"
)

const (
	DefaultAttemptsPerProvider = 3
	DefaultMaxFeedbackChars    = 10000
)

// ErrExhausted is returned when no provider produced an acceptable patch.
var ErrExhausted = errors.New("patch oracle: all providers exhausted")

// ErrCredentials is returned together with ErrExhausted when every provider
// refused the configured credentials, so no retry of the run can succeed.
var ErrCredentials = errors.New("no provider accepted its credentials")

// Provider produces a raw completion for a conversation. Any error is
// treated as a transport failure and moves on to the next provider.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

// Checker accepts or rejects a candidate replacement for original.
type Checker interface {
	Check(original, candidate string) accept.Verdict
}

type Oracle struct {
	Providers           []Provider
	Checker             Checker
	AttemptsPerProvider int
	MaxFeedbackChars    int
	Logger              *zap.Logger
}

// Request carries what the providers see: the failing file and its error.
type Request struct {
	EntryFile string
	ErrorText string
	Original  string
	// LocalModules are importable names that live next to the entry file.
	// They are only consulted when the Oracle has no Checker.
	LocalModules []string
}

type Result struct {
	Patch    string
	Provider string
	Attempts int
}

const systemPrompt = "You are a senior Python engineer. " +
	"Fix ONLY the runtime error shown. " +
	"Make the smallest possible change required to stop the crash. " +
	"Do not refactor unrelated logic. " +
	"Return ONLY the full updated file. " +
	"No explanations. No markdown."

func baseMessages(req Request) []llm.Message {
	user := fmt.Sprintf("Error:\n%s\n\nOriginal File (%s):\n%s\n\nFix the bug and return the full corrected file.\n",
		req.ErrorText, req.EntryFile, req.Original)
	return []llm.Message{llm.System(systemPrompt), llm.User(user)}
}

func feedbackMessage(verdict accept.Verdict, originalLines, previousLines int) string {
	return fmt.Sprintf("Your previous response was rejected. "+
		"Reason: %s. "+
		"Original file lines: %d. "+
		"Previous response lines: %d. "+
		"Return ONLY raw Python code for the full corrected file. "+
		"Do not drop unrelated functions/classes from the original file. "+
		"Preserve all existing functions/classes unless required for the fix. "+
		"Do not include explanations or markdown.",
		verdict, originalLines, previousLines)
}

// Generate walks the providers in order. Each provider gets up to
// AttemptsPerProvider tries; a rejected try is followed by one carrying the
// truncated previous output and the rejection reason.
func (o *Oracle) Generate(ctx context.Context, req Request) (Result, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := o.AttemptsPerProvider
	if attempts <= 0 {
		attempts = DefaultAttemptsPerProvider
	}
	maxFeedback := o.MaxFeedbackChars
	if maxFeedback <= 0 {
		maxFeedback = DefaultMaxFeedbackChars
	}
	checker := o.Checker
	if checker == nil {
		checker = accept.Validator{LocalModules: req.LocalModules}
	}

	base := baseMessages(req)
	originalLines := len(changeset.SplitLines(req.Original))
	total := 0
	var refused []string
	for _, p := range o.Providers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var previous string
		var verdict accept.Verdict
		for attempt := 1; attempt <= attempts; attempt++ {
			msgs := base
			if attempt > 1 {
				msgs = append(append([]llm.Message{}, base...),
					llm.Assistant(truncateRunes(previous, maxFeedback)),
					llm.User(feedbackMessage(verdict, originalLines, len(changeset.SplitLines(previous)))),
				)
			}
			total++
			out, err := p.Generate(ctx, msgs)
			if err != nil {
				logger.Warn("patch provider call failed", append([]zap.Field{
					zap.String("provider", p.Name()),
					zap.Int("attempt", attempt),
				}, providerErrorFields(err)...)...)
				if refusedCredentials(err) {
					refused = append(refused, err.Error())
				}
				break
			}
			candidate := normalizeCompletion(out)
			verdict = checker.Check(req.Original, candidate)
			if verdict.Accepted {
				logger.Info("patch accepted",
					zap.String("provider", p.Name()),
					zap.Int("attempt", attempt),
					zap.Int("lines", len(changeset.SplitLines(candidate))))
				return Result{Patch: candidate, Provider: p.Name(), Attempts: total}, nil
			}
			logger.Info("patch rejected",
				zap.String("provider", p.Name()),
				zap.Int("attempt", attempt),
				zap.String("reason", string(verdict.Reason)),
				zap.String("detail", verdict.Detail))
			previous = candidate
		}
	}
	if len(o.Providers) > 0 && len(refused) == len(o.Providers) {
		return Result{Attempts: total}, fmt.Errorf("%w: %w: %s", ErrExhausted, ErrCredentials, strings.Join(refused, "; "))
	}
	return Result{Attempts: total}, ErrExhausted
}

// refusedCredentials reports a provider that cannot answer with the current
// configuration: no key, or a key the provider rejects.
func refusedCredentials(err error) bool {
	var ce *llm.ConfigurationError
	var ad *llm.AccessDeniedError
	return llm.IsAuthenticationError(err) || errors.As(err, &ad) || errors.As(err, &ce)
}

func providerErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var le llm.Error
	if !errors.As(err, &le) {
		return fields
	}
	fields = append(fields,
		zap.String("error_class", strings.TrimPrefix(fmt.Sprintf("%T", le), "*llm.")),
		zap.Int("status", le.StatusCode()),
		zap.Bool("retryable", le.Retryable()))
	if d := le.RetryAfter(); d != nil {
		fields = append(fields, zap.Duration("retry_after", *d))
	}
	return fields
}

// normalizeCompletion trims the completion and unwraps a single code fence
// that encloses the whole text. Fences anywhere else are left for the
// acceptance check to reject.
func normalizeCompletion(out string) string {
	text := strings.TrimSpace(out)
	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") && len(text) > 6 {
		inner := text[3 : len(text)-3]
		nl := strings.IndexByte(inner, '\n')
		if nl >= 0 && !strings.Contains(inner, "```") {
			lang := strings.TrimSpace(inner[:nl])
			if lang == "" || isLangTag(lang) {
				text = strings.TrimSpace(inner[nl+1:])
			}
		}
	}
	if text == "" {
		return ""
	}
	return text + "\n"
}

func isLangTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
