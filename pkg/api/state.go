package api

import "fmt"

// StreamPhase tracks where a streaming turn is in its lifecycle:
// created -> in_progress -> terminal -> ended. The phase advances only
// forward; the sentinel end marker corresponds to PhaseEnded.
type StreamPhase int

const (
	PhaseIdle StreamPhase = iota
	PhaseCreated
	PhaseInProgress
	PhaseTerminal
	PhaseEnded
)

func (p StreamPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCreated:
		return "created"
	case PhaseInProgress:
		return "in_progress"
	case PhaseTerminal:
		return "terminal"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// phaseOf maps a wire event type onto the lifecycle phase it establishes.
// Interior events keep the stream in_progress.
func phaseOf(t WireEventType) StreamPhase {
	switch t {
	case EventResponseCreated:
		return PhaseCreated
	case EventResponseCompleted, EventResponseIncomplete, EventResponseFailed:
		return PhaseTerminal
	default:
		return PhaseInProgress
	}
}

// ValidatePhaseTransition checks that emitting an event of the given type
// is legal from the current phase. It enforces the protocol-ordering
// invariants: created comes first, nothing follows a terminal event, and
// nothing at all follows the end marker.
func ValidatePhaseTransition(current StreamPhase, next WireEventType) error {
	target := phaseOf(next)

	switch current {
	case PhaseIdle:
		if target != PhaseCreated {
			return fmt.Errorf("stream must open with %s, got %s", EventResponseCreated, next)
		}
		return nil
	case PhaseCreated, PhaseInProgress:
		if target == PhaseCreated {
			return fmt.Errorf("duplicate %s event", EventResponseCreated)
		}
		return nil
	case PhaseTerminal, PhaseEnded:
		return fmt.Errorf("cannot emit %s after terminal event", next)
	default:
		return fmt.Errorf("unknown stream phase %s", current)
	}
}
