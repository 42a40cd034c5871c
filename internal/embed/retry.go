package embed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for embedding requests.
type RetryConfig struct {
	MaxRetries   int           // Maximum number of retry attempts (not including initial attempt)
	InitialDelay time.Duration // Delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry executes a function with exponential backoff retry logic.
// It retries the function up to MaxRetries times if it fails.
// The delay between retries grows exponentially, capped at MaxDelay.
// If the context is cancelled, it returns the context error immediately.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err

			// Cancellation is not a transient failure
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}

			// If this was the last attempt, don't wait
			if attempt >= cfg.MaxRetries {
				break
			}

			// Wait before retrying (with context cancellation support)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			// Calculate next delay with exponential backoff
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}

		// Success
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// RetryEmbedder wraps an Embedder with exponential backoff retries.
// Transient provider failures (network blips, model loading) are retried
// transparently; context cancellation aborts immediately.
type RetryEmbedder struct {
	inner  Embedder
	config RetryConfig
}

// NewRetryEmbedder creates a retrying embedder wrapping the given embedder.
func NewRetryEmbedder(inner Embedder, cfg RetryConfig) *RetryEmbedder {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultRetryConfig()
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultRetryConfig().InitialDelay
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = DefaultRetryConfig().Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &RetryEmbedder{inner: inner, config: cfg}
}

// Embed generates an embedding, retrying transient failures.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := withRetry(ctx, r.config, func() error {
		var embErr error
		result, embErr = r.inner.Embed(ctx, text)
		return embErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EmbedBatch generates embeddings, retrying the whole batch on failure.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var results [][]float32
	err := withRetry(ctx, r.config, func() error {
		var embErr error
		results, embErr = r.inner.EmbedBatch(ctx, texts)
		return embErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *RetryEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (r *RetryEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available checks if the embedder is ready (passthrough to inner).
func (r *RetryEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close releases resources and closes the inner embedder.
func (r *RetryEmbedder) Close() error {
	return r.inner.Close()
}

// Inner returns the underlying embedder.
func (r *RetryEmbedder) Inner() Embedder {
	return r.inner
}

var _ Embedder = (*RetryEmbedder)(nil)
