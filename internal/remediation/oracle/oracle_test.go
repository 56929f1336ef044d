package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danshapiro/opsguard/internal/llm"
	"github.com/danshapiro/opsguard/internal/llm/providers/openaicompat"
)

type scriptedProvider struct {
	name    string
	outputs []string
	errs    []error
	calls   [][]llm.Message
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	_ = ctx
	i := len(p.calls)
	p.calls = append(p.calls, messages)
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.outputs) {
		return p.outputs[i], nil
	}
	return "", errors.New("script exhausted")
}

const original = "def div(a, b):\n    return a / b\n\nprint(div(1, 0))\n"
const goodPatch = "def div(a, b):\n    if b == 0:\n        return 0\n    return a / b\n\nprint(div(1, 0))\n"

func request() Request {
	return Request{EntryFile: "app.py", ErrorText: "ZeroDivisionError: division by zero", Original: original}
}

func TestGenerate_FirstProviderFirstAttempt(t *testing.T) {
	p1 := &scriptedProvider{name: "nvidia", outputs: []string{goodPatch}}
	p2 := &scriptedProvider{name: "groq"}
	o := &Oracle{Providers: []Provider{p1, p2}}
	res, err := o.Generate(context.Background(), request())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Patch != goodPatch || res.Provider != "nvidia" || res.Attempts != 1 {
		t.Fatalf("res=%+v", res)
	}
	if len(p2.calls) != 0 {
		t.Fatalf("fallback provider should not be called")
	}
	msgs := p1.calls[0]
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[1].Content, "ZeroDivisionError") || !strings.Contains(msgs[1].Content, "return a / b") {
		t.Fatalf("base messages=%+v", msgs)
	}
}

func TestGenerate_ReprompsWithFeedbackAfterRejection(t *testing.T) {
	p1 := &scriptedProvider{name: "nvidia", outputs: []string{
		"Here is the fixed code:\n" + goodPatch,
		goodPatch,
	}}
	core, logs := observer.New(zapcore.InfoLevel)
	o := &Oracle{Providers: []Provider{p1}, Logger: zap.New(core)}
	res, err := o.Generate(context.Background(), request())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts=%d want 2", res.Attempts)
	}
	second := p1.calls[1]
	if len(second) != 4 {
		t.Fatalf("reprompt should carry base + previous + feedback, got %d messages", len(second))
	}
	if second[2].Role != llm.RoleAssistant || !strings.HasPrefix(second[2].Content, "Here is the fixed code") {
		t.Fatalf("previous output message=%+v", second[2])
	}
	fb := second[3].Content
	if !strings.Contains(fb, "explanatory_prose") || !strings.Contains(fb, "Original file lines: 4") || !strings.Contains(fb, "Previous response lines: 7") {
		t.Fatalf("feedback=%q", fb)
	}
	if logs.FilterMessage("patch rejected").Len() != 1 || logs.FilterMessage("patch accepted").Len() != 1 {
		t.Fatalf("unexpected log entries: %v", logs.All())
	}
}

func TestGenerate_TruncatesPreviousOutputInFeedback(t *testing.T) {
	long := "x = '" + strings.Repeat("a", 50) + "'\n```\n"
	p1 := &scriptedProvider{name: "nvidia", outputs: []string{long, goodPatch}}
	o := &Oracle{Providers: []Provider{p1}, MaxFeedbackChars: 10}
	if _, err := o.Generate(context.Background(), request()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := p1.calls[1][2].Content; len([]rune(got)) != 10 {
		t.Fatalf("previous output not truncated: %q", got)
	}
}

func TestGenerate_TransportErrorFallsOverImmediately(t *testing.T) {
	p1 := &scriptedProvider{name: "nvidia", errs: []error{errors.New("connection refused")}}
	p2 := &scriptedProvider{name: "groq", outputs: []string{goodPatch}}
	o := &Oracle{Providers: []Provider{p1, p2}}
	res, err := o.Generate(context.Background(), request())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(p1.calls) != 1 {
		t.Fatalf("primary calls=%d want 1", len(p1.calls))
	}
	if res.Provider != "groq" {
		t.Fatalf("provider=%q", res.Provider)
	}
}

func TestGenerate_LogsProviderErrorClass(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	wait := 7 * time.Second
	p1 := &scriptedProvider{name: "nvidia", errs: []error{llm.ErrorFromHTTPStatus("nvidia", 429, "slow down", &wait)}}
	p2 := &scriptedProvider{name: "groq", outputs: []string{goodPatch}}
	o := &Oracle{Providers: []Provider{p1, p2}, Logger: zap.New(core)}
	if _, err := o.Generate(context.Background(), request()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	failed := logs.FilterMessage("patch provider call failed").All()
	if len(failed) != 1 {
		t.Fatalf("failure events=%d", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["error_class"] != "RateLimitError" || fields["retryable"] != true || fields["status"] != int64(429) {
		t.Fatalf("fields=%v", fields)
	}
	if fields["retry_after"] != wait {
		t.Fatalf("retry_after=%v", fields["retry_after"])
	}
}

func TestGenerate_RefusedCredentialsEverywhere(t *testing.T) {
	p1 := &scriptedProvider{name: "nvidia", errs: []error{llm.ErrorFromHTTPStatus("nvidia", 401, "bad key", nil)}}
	p2 := &scriptedProvider{name: "groq", errs: []error{&llm.ConfigurationError{Message: "groq: api key is empty"}}}
	o := &Oracle{Providers: []Provider{p1, p2}}
	_, err := o.Generate(context.Background(), request())
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, ErrCredentials) {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "bad key") || !strings.Contains(err.Error(), "api key is empty") {
		t.Fatalf("err should name each refusal: %v", err)
	}
}

func TestGenerate_OneReachableProviderIsNotACredentialFailure(t *testing.T) {
	p1 := &scriptedProvider{name: "nvidia", errs: []error{llm.ErrorFromHTTPStatus("nvidia", 401, "bad key", nil)}}
	p2 := &scriptedProvider{name: "groq", errs: []error{llm.ErrorFromHTTPStatus("groq", 503, "overloaded", nil)}}
	o := &Oracle{Providers: []Provider{p1, p2}}
	_, err := o.Generate(context.Background(), request())
	if !errors.Is(err, ErrExhausted) || errors.Is(err, ErrCredentials) {
		t.Fatalf("err=%v", err)
	}
}

func TestGenerate_AllRejectedExhaustsEveryProvider(t *testing.T) {
	bad := "```python\nprint(1)\n```\nsome words ``` here"
	p1 := &scriptedProvider{name: "nvidia", outputs: []string{bad, bad, bad}}
	p2 := &scriptedProvider{name: "groq", outputs: []string{bad, bad, bad}}
	o := &Oracle{Providers: []Provider{p1, p2}}
	res, err := o.Generate(context.Background(), request())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v want ErrExhausted", err)
	}
	if len(p1.calls) != 3 || len(p2.calls) != 3 || res.Attempts != 6 {
		t.Fatalf("calls nvidia=%d groq=%d attempts=%d", len(p1.calls), len(p2.calls), res.Attempts)
	}
	if len(p2.calls[0]) != 2 {
		t.Fatalf("each provider starts from the base conversation")
	}
}

func TestNormalizeCompletion(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```python\nx = 1\n```", "x = 1\n"},
		{"```\nx = 1\n```\n", "x = 1\n"},
		{"  x = 1  ", "x = 1\n"},
		{"x = 1\n```\ny = 2\n```", "x = 1\n```\ny = 2\n```\n"},
		{"   \n", ""},
	}
	for _, tc := range cases {
		if got := normalizeCompletion(tc.in); got != tc.want {
			t.Fatalf("normalizeCompletion(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestClientProvider_UsesOpenAICompatibleAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"x = 1\n"}}]}`))
	}))
	defer srv.Close()

	client := llm.NewClient()
	client.Register(openaicompat.NewAdapter(openaicompat.Config{Provider: "groq", APIKey: "k", BaseURL: srv.URL}))
	p := &ClientProvider{Client: client, Key: "groq", Model: "llama"}
	out, err := p.Generate(context.Background(), []llm.Message{llm.User("hi")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "x = 1\n" || p.Name() != "groq" {
		t.Fatalf("out=%q name=%q", out, p.Name())
	}
}
