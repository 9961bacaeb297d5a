package engine

import (
	"context"
	"errors"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/observability"
	"github.com/tkralik/turnstile/pkg/provider"
)

// DefaultViolationMessage is returned to the client when a shield blocks
// a turn without supplying its own message.
const DefaultViolationMessage = "I cannot process this request due to policy restrictions."

// llamaGuardProvider identifies shields whose provider_resource_id must
// resolve to a registered model. Custom shield providers configure their
// model internally, so their resource id is not checked.
const llamaGuardProvider = "llama-guard"

// runPolicyGate admits or blocks the turn. Quota is a hard precondition:
// an exhausted ledger rejects before any backend call. Shields are then
// evaluated in catalog order against the input text, short-circuiting on
// the first flag.
func (e *Engine) runPolicyGate(ctx context.Context, userID, input string) (*api.ModerationVerdict, error) {
	for _, l := range e.limiters {
		if err := l.CheckAvailable(ctx, userID); err != nil {
			var quotaErr *api.QuotaExceededError
			if errors.As(err, &quotaErr) {
				observability.QuotaRejectedTotal.WithLabelValues(l.Name()).Inc()
			}
			return nil, err
		}
	}

	shields, err := e.shields(ctx)
	if err != nil {
		return nil, err
	}
	if len(shields) == 0 {
		return &api.ModerationVerdict{}, nil
	}

	models, err := e.models(ctx)
	if err != nil {
		return nil, err
	}

	for _, shield := range shields {
		// The backend does not verify that a llama-guard model is
		// registered; check here to fail fast with a clear error.
		if shield.ProviderID == llamaGuardProvider &&
			(shield.ProviderResourceID == "" || !models[shield.ProviderResourceID]) {
			e.logger.Error("shield model not found",
				"shield", shield.ID, "model", shield.ProviderResourceID)
			return nil, &api.ShieldIntegrityError{
				ShieldID: shield.ID,
				Model:    shield.ProviderResourceID,
			}
		}

		result, err := e.provider.RunModeration(ctx, shield.ProviderResourceID, input)
		if err != nil {
			// A violation the backend could not serialize is still a
			// violation; treat it exactly like an explicit flag.
			if errors.Is(err, provider.ErrMalformedViolation) {
				e.logger.Warn("shield violation detected, treating as blocked",
					"shield", shield.ID)
				observability.ValidationErrorsTotal.Inc()
				return blockedVerdict(shield.ID, api.NewModerationID(), ""), nil
			}
			return nil, err
		}

		if result.Flagged {
			e.logger.Warn("shield flagged content",
				"shield", shield.ID, "categories", result.Categories)
			observability.ValidationErrorsTotal.Inc()
			return blockedVerdict(shield.ID, result.ID, result.UserMessage), nil
		}
	}

	return &api.ModerationVerdict{}, nil
}

// blockedVerdict builds the blocked verdict with the shield's message or
// the default one, plus the refusal item served as response output.
func blockedVerdict(shieldID, moderationID, message string) *api.ModerationVerdict {
	if message == "" {
		message = DefaultViolationMessage
	}
	return &api.ModerationVerdict{
		Blocked:      true,
		ShieldID:     shieldID,
		ModerationID: moderationID,
		Message:      message,
		Refusal:      api.NewRefusalItem(message),
	}
}
