package models

import "errors"

// Validation errors: rejected synchronously with no side effect.
var (
	ErrInvalidRisk        = errors.New("risk percent out of bounds")
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrSessionExists      = errors.New("monitoring session already exists")
	ErrSessionNotFound    = errors.New("monitoring session not found")
	ErrInvalidInterval    = errors.New("unsupported interval")
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrInvalidQuantity    = errors.New("computed quantity is not positive")
	ErrNoActionableSignal = errors.New("no actionable signal for symbol")
)

// Contention: not fatal, the caller decides whether to retry.
var ErrContended = errors.New("lock contended")

var (
	ErrLeaseLost          = errors.New("lease no longer held by caller")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid outbox status transition")
	ErrOutsideTransaction = errors.New("outbox write requires an enclosing transaction")
	ErrOrderRejected      = errors.New("order rejected by exchange")
)
