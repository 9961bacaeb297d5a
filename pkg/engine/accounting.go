package engine

import (
	"context"
	"fmt"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/observability"
	"github.com/tkralik/turnstile/pkg/quota"
)

// settleUsage converts a terminal usage record into ledger consumption,
// metric increments, and a fresh remaining-quota snapshot. A nil or
// zero-valued usage still counts one call but leaves token counters
// unchanged. Ledger failures are fatal: usage is billing-relevant and
// must not be silently dropped.
func (e *Engine) settleUsage(ctx context.Context, userID, model string, usage *api.Usage) (map[string]int64, error) {
	providerName := e.provider.Name()
	observability.LLMCallsTotal.WithLabelValues(providerName, model).Inc()

	var inputTokens, outputTokens int64
	if usage != nil {
		inputTokens = usage.InputTokens
		outputTokens = usage.OutputTokens
	}
	if inputTokens > 0 {
		observability.ProviderTokensTotal.WithLabelValues(providerName, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		observability.ProviderTokensTotal.WithLabelValues(providerName, model, "output").Add(float64(outputTokens))
	}

	if err := quota.ConsumeAll(ctx, e.limiters, userID, inputTokens, outputTokens); err != nil {
		return nil, fmt.Errorf("consuming quota: %w", err)
	}

	snapshot, err := quota.Snapshot(ctx, e.limiters, userID)
	if err != nil {
		return nil, fmt.Errorf("reading quota snapshot: %w", err)
	}
	return snapshot, nil
}
