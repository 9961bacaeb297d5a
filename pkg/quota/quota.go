// Package quota defines the token-quota ledger consulted before a turn is
// admitted and charged after it completes. A ledger tracks an available
// token balance per subject, where a subject is either a single user or
// the whole cluster.
//
// Implementations: an in-process ledger for tests and single-node
// deployments (this package) and a PostgreSQL-backed ledger
// (pkg/quota/postgres) for shared state across replicas.
package quota

import (
	"context"

	"github.com/tkralik/turnstile/pkg/api"
)

// Subject type discriminators stored in the ledger.
const (
	SubjectUser    = "u"
	SubjectCluster = "c"
)

// Limiter is a single quota ledger. A deployment may configure several
// (e.g. one per-user and one cluster-wide); admission consults all of
// them and consumption charges all of them.
type Limiter interface {
	// Name identifies the limiter in quota snapshots reported to clients.
	Name() string

	// Available returns the remaining token balance for the subject,
	// initializing the ledger row on first contact.
	Available(ctx context.Context, subjectID string) (int64, error)

	// CheckAvailable returns an *api.QuotaExceededError when the subject
	// has no balance left.
	CheckAvailable(ctx context.Context, subjectID string) error

	// Consume deducts input+output tokens from the subject's balance.
	// The balance may go negative; admission of the next turn fails then.
	Consume(ctx context.Context, subjectID string, inputTokens, outputTokens int64) error

	// Revoke resets the subject's balance to the configured initial quota.
	Revoke(ctx context.Context, subjectID string) error
}

// subjectKey collapses the subject id for cluster-scoped limiters, which
// keep a single row regardless of who is asking.
func subjectKey(subjectType, subjectID string) string {
	if subjectType == SubjectCluster {
		return ""
	}
	return subjectID
}

// Exceeded builds the admission error for an exhausted subject.
func Exceeded(subjectType, subjectID string, available int64) error {
	kind := "user"
	if subjectType == SubjectCluster {
		kind = "cluster"
	}
	return &api.QuotaExceededError{
		Subject:     subjectKey(subjectType, subjectID),
		SubjectType: kind,
		Available:   available,
	}
}
