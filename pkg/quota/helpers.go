package quota

import "context"

// CheckAll verifies every configured limiter admits the subject. The
// first failure wins; it is an *api.QuotaExceededError when a ledger is
// exhausted and a plain error when a ledger cannot be reached.
func CheckAll(ctx context.Context, limiters []Limiter, subjectID string) error {
	for _, l := range limiters {
		if err := l.CheckAvailable(ctx, subjectID); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeAll charges the turn's usage to every configured limiter.
func ConsumeAll(ctx context.Context, limiters []Limiter, subjectID string, inputTokens, outputTokens int64) error {
	for _, l := range limiters {
		if err := l.Consume(ctx, subjectID, inputTokens, outputTokens); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot reports the remaining balance of every limiter keyed by its
// name. It is stamped onto terminal stream events and non-streaming
// responses; a deployment with no limiters yields an empty (non-nil) map.
func Snapshot(ctx context.Context, limiters []Limiter, subjectID string) (map[string]int64, error) {
	snapshot := make(map[string]int64, len(limiters))
	for _, l := range limiters {
		available, err := l.Available(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		snapshot[l.Name()] = available
	}
	return snapshot, nil
}
