package durability

import (
	"github.com/golemproject/workerexec/internal/retrypolicy"
)

// InterruptKind distinguishes the ways execution can be interrupted without
// being a true error.
type InterruptKind int

const (
	InterruptNone InterruptKind = iota
	InterruptInterrupt
	InterruptSuspend
	InterruptRestart
	InterruptJump
)

// TrapKind distinguishes an interrupt, a normal exit, and an actual error
// trap from the underlying component execution.
type TrapKind int

const (
	TrapInterrupt TrapKind = iota
	TrapExit
	TrapError
)

// Trap is what a component execution reports when it stops running
// unexpectedly.
type Trap struct {
	Kind      TrapKind
	Interrupt InterruptKind // valid when Kind == TrapInterrupt
	Err       *WorkerError  // valid when Kind == TrapError
}

// GetRecoveryDecisionOnTrap decides how to proceed after a trap, matching
// get_recovery_decision_on_trap in durable_host/mod.rs line for line:
// interrupts and a clean exit never retry on their own (Suspend/Interrupt
// simply stop; Restart/Jump retry immediately since they are driven by an
// explicit oplog instruction, not a failure); OutOfMemory asks the caller
// to reacquire memory permits before retrying; InvalidRequest, StackOverflow
// and ExceededMemoryLimit are never retried; an Unknown error is retried
// according to the retry policy's configured attempt budget and backoff.
func GetRecoveryDecisionOnTrap(cfg retrypolicy.Config, previousTries map[OplogIndex]uint32, trap Trap) retrypolicy.Result {
	switch trap.Kind {
	case TrapInterrupt:
		switch trap.Interrupt {
		case InterruptInterrupt, InterruptSuspend:
			return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
		case InterruptRestart, InterruptJump:
			return retrypolicy.Result{Decision: retrypolicy.DecisionImmediate}
		default:
			return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
		}
	case TrapExit:
		return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
	case TrapError:
		switch trap.Err.Kind {
		case ErrOutOfMemory:
			return retrypolicy.Result{Decision: retrypolicy.DecisionReacquirePermits}
		case ErrInvalidRequest, ErrStackOverflow, ErrExceededMemoryLimit:
			return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
		case ErrUnknown:
			tries := previousTries[trap.Err.RetryFrom]
			delay, retryable := retrypolicy.GetDelay(cfg, tries)
			if !retryable {
				return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
			}
			return retrypolicy.Result{Decision: retrypolicy.DecisionDelayed, Delay: delay}
		default:
			return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
		}
	default:
		return retrypolicy.Result{Decision: retrypolicy.DecisionNone}
	}
}
