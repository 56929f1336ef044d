package oracle

import (
	"context"

	"github.com/danshapiro/opsguard/internal/llm"
)

// ClientProvider adapts one provider registered on an llm.Client.
type ClientProvider struct {
	Client      *llm.Client
	Key         string
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

func (p *ClientProvider) Name() string { return p.Key }

func (p *ClientProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := p.Client.Complete(ctx, llm.Request{
		Provider:    p.Key,
		Model:       p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
