package providerspec

import (
	"reflect"
	"testing"
)

func TestBuiltinSpecsIncludePatchProviders(t *testing.T) {
	s := Builtins()
	for _, key := range []string{"nvidia", "groq"} {
		spec, ok := s[key]
		if !ok {
			t.Fatalf("missing builtin provider %q", key)
		}
		if spec.API == nil || spec.API.Protocol != ProtocolOpenAIChatCompletions {
			t.Fatalf("%s: expected chat completions api, got %+v", key, spec.API)
		}
		if spec.API.DefaultAPIKeyEnv == "" || spec.API.DefaultModel == "" {
			t.Fatalf("%s: incomplete api defaults %+v", key, spec.API)
		}
	}
}

func TestDefaultOrder_NvidiaThenGroq(t *testing.T) {
	if got := DefaultOrder(); !reflect.DeepEqual(got, []string{"nvidia", "groq"}) {
		t.Fatalf("DefaultOrder=%v", got)
	}
}

func TestCanonicalProviderKey_Aliases(t *testing.T) {
	if got := CanonicalProviderKey(" NIM "); got != "nvidia" {
		t.Fatalf("nim alias: got %q want nvidia", got)
	}
	if got := CanonicalProviderKey("groqcloud"); got != "groq" {
		t.Fatalf("groqcloud alias: got %q want groq", got)
	}
	if got := CanonicalProviderKey("together"); got != "together" {
		t.Fatalf("unknown provider keys should pass through unchanged, got %q", got)
	}
}

func TestCanonicalizeProviderList(t *testing.T) {
	got := CanonicalizeProviderList([]string{"NIM", "", "groq", "nvidia"})
	if !reflect.DeepEqual(got, []string{"nvidia", "groq"}) {
		t.Fatalf("got %v", got)
	}
	if CanonicalizeProviderList([]string{" "}) != nil {
		t.Fatalf("expected nil for blank list")
	}
}

func TestBuiltin_ReturnsCopy(t *testing.T) {
	a, _ := Builtin("nvidia")
	a.API.DefaultModel = "changed"
	b, _ := Builtin("nvidia")
	if b.API.DefaultModel == "changed" {
		t.Fatalf("Builtin must not expose shared state")
	}
}
