package verifier

import (
	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/verdict"
)

// Transition is the escalation graph's output for one attempt.
type Transition int

const (
	TransitionPass Transition = iota
	TransitionRevise
	TransitionRetryExecute
	TransitionEscalate
)

func (t Transition) String() string {
	switch t {
	case TransitionPass:
		return "pass"
	case TransitionRevise:
		return "revise"
	case TransitionRetryExecute:
		return "retry_execute"
	case TransitionEscalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// EscalationInputs bundles everything the escalation graph consults to
// decide the next transition.
type EscalationInputs struct {
	Verdict                    verdict.Outcome
	Attempt                    int
	MaxAttempts                int
	ConsecutiveDisagreements   int
	DisagreementThreshold      int
	RevisionAvailable          bool
	ReExecuteOnNeedsRevision   bool
}

// Next computes the escalation graph's transition and, when the outcome is
// TransitionEscalate, the reason to surface in the EscalationError.
func Next(in EscalationInputs) (Transition, lerrors.EscalationReason) {
	if in.Verdict == verdict.Pass {
		return TransitionPass, ""
	}

	if in.Attempt >= in.MaxAttempts {
		return TransitionEscalate, lerrors.EscalationVerifierFailed
	}

	if in.Verdict == verdict.NeedsRevision && !in.RevisionAvailable && !in.ReExecuteOnNeedsRevision {
		return TransitionEscalate, lerrors.EscalationRevisionUnavailable
	}

	if in.DisagreementThreshold > 0 && in.ConsecutiveDisagreements > in.DisagreementThreshold {
		return TransitionEscalate, lerrors.EscalationVerifierDisagreement
	}

	if in.Verdict == verdict.NeedsRevision && in.RevisionAvailable {
		return TransitionRevise, ""
	}
	if in.Verdict == verdict.NeedsRevision && in.ReExecuteOnNeedsRevision {
		return TransitionRetryExecute, ""
	}
	// in.Verdict == verdict.Fail
	return TransitionRetryExecute, ""
}
