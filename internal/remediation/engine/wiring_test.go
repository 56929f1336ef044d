package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danshapiro/opsguard/internal/remediation/oracle"
	"github.com/danshapiro/opsguard/internal/sandbox"
)

func TestNewOracle_FallsBackAcrossConfiguredProviders(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path+" "+r.Header.Get("Authorization"))
		if strings.HasPrefix(r.URL.Path, "/primary") {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "fallback-model" {
			t.Errorf("model=%v", body["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": fixedApp},
			}},
		})
	}))
	defer srv.Close()

	cfg := DefaultRunConfig()
	cfg.Oracle.Providers = []ProviderConfig{
		{Name: "primary", Model: "primary-model", BaseURL: srv.URL + "/primary", APIKeyEnv: "PRIMARY_KEY"},
		{Name: "fallback", Model: "fallback-model", BaseURL: srv.URL + "/fallback", APIKeyEnv: "FALLBACK_KEY"},
	}
	for i := range cfg.Oracle.Providers {
		applyProviderDefaults(&cfg.Oracle.Providers[i])
	}
	env := map[string]string{"PRIMARY_KEY": "k1", "FALLBACK_KEY": "k2"}
	o := NewOracle(cfg, nil, func(k string) string { return env[k] })

	res, err := o.Generate(context.Background(), oracle.Request{EntryFile: "app.py", ErrorText: zeroDivErr, Original: crashingApp})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Provider != "fallback" || res.Patch != fixedApp {
		t.Fatalf("res=%+v", res)
	}
	if len(seen) != 2 || seen[0] != "/primary/chat/completions Bearer k1" || seen[1] != "/fallback/chat/completions Bearer k2" {
		t.Fatalf("requests=%v", seen)
	}
}

func TestNewOracle_MissingKeysAreCredentialFailures(t *testing.T) {
	cfg := DefaultRunConfig()
	o := NewOracle(cfg, nil, func(string) string { return "" })
	if len(o.Providers) != 2 {
		t.Fatalf("providers=%d", len(o.Providers))
	}
	_, err := o.Generate(context.Background(), oracle.Request{EntryFile: "app.py", Original: crashingApp})
	if !errors.Is(err, oracle.ErrExhausted) || !errors.Is(err, oracle.ErrCredentials) {
		t.Fatalf("err=%v want ErrExhausted and ErrCredentials", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Target.VerificationMode = "test_suite"
	cfg.Sandbox.Network = "none"
	opts, err := OptionsFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	d, ok := opts.Executor.(*sandbox.Docker)
	if !ok || d.Network != "none" || d.Image != "python:3.11-slim" {
		t.Fatalf("executor=%#v", opts.Executor)
	}
	if opts.VerificationMode != "test_suite" || opts.ArtifactsRoot != DefaultArtifactsRoot || opts.Oracle == nil {
		t.Fatalf("opts=%+v", opts)
	}
}
