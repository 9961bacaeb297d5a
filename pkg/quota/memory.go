package quota

import (
	"context"
	"sync"
)

// MemoryLimiter is an in-process quota ledger. Balances live in a map
// guarded by a mutex; rows are created lazily with the initial quota on
// first contact, matching the persistent implementation.
type MemoryLimiter struct {
	name         string
	subjectType  string
	initialQuota int64

	mu       sync.Mutex
	balances map[string]int64
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewUserLimiter creates an in-memory per-user ledger where every user
// starts with initialQuota tokens.
func NewUserLimiter(name string, initialQuota int64) *MemoryLimiter {
	return newMemoryLimiter(name, SubjectUser, initialQuota)
}

// NewClusterLimiter creates an in-memory cluster-wide ledger shared by
// all users.
func NewClusterLimiter(name string, initialQuota int64) *MemoryLimiter {
	return newMemoryLimiter(name, SubjectCluster, initialQuota)
}

func newMemoryLimiter(name, subjectType string, initialQuota int64) *MemoryLimiter {
	return &MemoryLimiter{
		name:         name,
		subjectType:  subjectType,
		initialQuota: initialQuota,
		balances:     make(map[string]int64),
	}
}

// Name identifies the limiter in quota snapshots.
func (l *MemoryLimiter) Name() string { return l.name }

// Available returns the remaining balance for the subject, creating the
// row with the initial quota if the subject is new.
func (l *MemoryLimiter) Available(ctx context.Context, subjectID string) (int64, error) {
	key := subjectKey(l.subjectType, subjectID)

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[key]
	if !ok {
		l.balances[key] = l.initialQuota
		return l.initialQuota, nil
	}
	return balance, nil
}

// CheckAvailable fails with a QuotaExceededError when the balance is gone.
func (l *MemoryLimiter) CheckAvailable(ctx context.Context, subjectID string) error {
	available, err := l.Available(ctx, subjectID)
	if err != nil {
		return err
	}
	if available <= 0 {
		return Exceeded(l.subjectType, subjectID, available)
	}
	return nil
}

// Consume deducts the turn's token usage from the subject's balance.
func (l *MemoryLimiter) Consume(ctx context.Context, subjectID string, inputTokens, outputTokens int64) error {
	key := subjectKey(l.subjectType, subjectID)

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[key]
	if !ok {
		balance = l.initialQuota
	}
	l.balances[key] = balance - inputTokens - outputTokens
	return nil
}

// Revoke resets the subject's balance to the initial quota.
func (l *MemoryLimiter) Revoke(ctx context.Context, subjectID string) error {
	key := subjectKey(l.subjectType, subjectID)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[key] = l.initialQuota
	return nil
}
