// Package llm is the boundary to the external generative model. Everything
// past Generator is opaque: latency, failures and output quality belong to
// the model service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrRefusal is returned when the model declined the request.
	ErrRefusal = errors.New("model refused the request")
)

// Generator sends one instruction document and returns the generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// CheckRefusal returns ErrRefusal when text opens with a model refusal.
// Generated code may quote the same phrases in its own string literals, so
// only the start of the response is checked.
func CheckRefusal(text string) error {
	lower := strings.ToLower(strings.TrimLeft(text, " \t\r\n\"'"))
	for _, phrase := range refusalPhrases {
		if strings.HasPrefix(lower, phrase) {
			return fmt.Errorf("%w: response starts with %q", ErrRefusal, phrase)
		}
	}
	return nil
}

// retrying wraps a Generator with exponential backoff.
type retrying struct {
	next        Generator
	maxAttempts int
	backoff     time.Duration
}

// WithRetry retries failed calls up to maxAttempts in total, doubling the
// wait after each failure. Refusals and context errors are not retried.
// maxAttempts <= 1 returns g unchanged.
func WithRetry(g Generator, maxAttempts int, backoff time.Duration) Generator {
	if maxAttempts <= 1 {
		return g
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &retrying{next: g, maxAttempts: maxAttempts, backoff: backoff}
}

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	backoff := r.backoff
	var lastErr error

	for i := 0; i < r.maxAttempts; i++ {
		text, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrRefusal) || ctx.Err() != nil {
			return "", err
		}
		lastErr = err
		if i == r.maxAttempts-1 {
			break
		}

		slog.Warn(
			"Model call failed, will retry.",
			"attempt", i+1,
			"maxAttempts", r.maxAttempts,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", r.maxAttempts, lastErr)
}
