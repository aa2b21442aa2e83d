package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/retry"
)

// resilientOracle wraps a provider client with a circuit breaker and
// retry-with-backoff. The pipeline treats an exhausted oracle the same as a
// disabled one and degrades to heuristics, so failing fast here is what keeps
// query latency bounded when a provider is down.
type resilientOracle struct {
	inner    Oracle
	breaker  *CircuitBreaker
	retryCfg *retry.Config
	logger   *zap.Logger
}

// WithResilience wraps an oracle with circuit breaking and retries.
func WithResilience(inner Oracle, logger *zap.Logger) Oracle {
	return &resilientOracle{
		inner:    inner,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("llm"),
	}
}

// GenerateResponse delegates to the wrapped client, retrying transient
// failures. Permanent errors (bad API key, unknown model) surface
// immediately.
func (r *resilientOracle) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float32) (*GenerateResponseResult, error) {
	if err := r.breaker.Allow(); err != nil {
		r.logger.Warn("llm request blocked",
			zap.String("provider", r.inner.Provider()),
			zap.Int("consecutive_failures", r.breaker.ConsecutiveFailures()),
			zap.Error(err))
		return nil, err
	}

	var result *GenerateResponseResult
	err := retry.DoIfRetryable(ctx, r.retryCfg, func() error {
		res, innerErr := r.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
		if innerErr != nil {
			return innerErr
		}
		result = res
		return nil
	})
	if err != nil {
		// The caller giving up is not evidence the provider is down.
		if !errors.Is(err, context.Canceled) {
			r.breaker.RecordFailure()
		}
		return nil, err
	}

	r.breaker.RecordSuccess()
	return result, nil
}

// Model returns the model identifier of the wrapped client.
func (r *resilientOracle) Model() string {
	return r.inner.Model()
}

// Provider returns the provider name of the wrapped client.
func (r *resilientOracle) Provider() string {
	return r.inner.Provider()
}

var _ Oracle = (*resilientOracle)(nil)
