package providerspec

import "sort"

var builtinSpecs = map[string]Spec{
	"nvidia": {
		Key:     "nvidia",
		Aliases: []string{"nvidia-nim", "nim"},
		API: &APISpec{
			Protocol:         ProtocolOpenAIChatCompletions,
			DefaultBaseURL:   "https://integrate.api.nvidia.com/v1",
			DefaultPath:      "/chat/completions",
			DefaultAPIKeyEnv: "NVIDIA_API_KEY",
			DefaultModel:     "meta/llama-3.1-70b-instruct",
		},
		Priority: 0,
	},
	"groq": {
		Key:     "groq",
		Aliases: []string{"groqcloud"},
		API: &APISpec{
			Protocol:         ProtocolOpenAIChatCompletions,
			DefaultBaseURL:   "https://api.groq.com/openai/v1",
			DefaultPath:      "/chat/completions",
			DefaultAPIKeyEnv: "GROQ_API_KEY",
			DefaultModel:     "llama-3.3-70b-versatile",
		},
		Priority: 1,
	},
}

func Builtin(key string) (Spec, bool) {
	s, ok := builtinSpecs[CanonicalProviderKey(key)]
	if !ok {
		return Spec{}, false
	}
	return cloneSpec(s), true
}

func Builtins() map[string]Spec {
	out := make(map[string]Spec, len(builtinSpecs))
	for key, spec := range builtinSpecs {
		out[key] = cloneSpec(spec)
	}
	return out
}

// DefaultOrder returns the builtin provider keys in fallback order.
func DefaultOrder() []string {
	keys := make([]string, 0, len(builtinSpecs))
	for key := range builtinSpecs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return builtinSpecs[keys[i]].Priority < builtinSpecs[keys[j]].Priority
	})
	return keys
}

func cloneSpec(in Spec) Spec {
	out := in
	if in.API != nil {
		api := *in.API
		out.API = &api
	}
	out.Aliases = append([]string{}, in.Aliases...)
	return out
}
