package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/JexSrs/go-ollama"
)

// Ollama generates text with a model served by a local Ollama instance.
type Ollama struct {
	client *ollama.Ollama
	model  string
	system string
}

// NewOllama creates a generator for the given host and model.
func NewOllama(host, model, system string) (*Ollama, error) {
	ollamaURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model must be set")
	}

	slog.Info("Using Ollama generator.", "host", host, "model", model)
	return &Ollama{client: ollama.New(*ollamaURL), model: model, system: system}, nil
}

// Generate issues a single non-streaming request. The client library takes
// no context, so cancellation is only honoured before the call starts.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := o.client.Generate(
		o.client.Generate.WithModel(o.model),
		o.client.Generate.WithSystem(o.system),
		o.client.Generate.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if !res.Done {
		return "", fmt.Errorf("ollama generate: response not marked done")
	}
	if res.Response == "" {
		return "", ErrEmptyResponse
	}
	return res.Response, nil
}
