package boot

import (
	"fmt"
	"time"
)

// ConfigError reports a client misconfiguration that prevents boot entirely.
// The user cannot self-heal beyond fixing the configuration; retry will fail
// the same way.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Reason
}

// BudgetError reports a polling loop that ran out of budget without a single
// successful probe.
type BudgetError struct {
	Attempts int
	Budget   time.Duration
	Last     error // last probe failure
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("budget %s exhausted after %d attempts: %v", e.Budget, e.Attempts, e.Last)
}

func (e *BudgetError) Unwrap() error {
	return e.Last
}

// UnreachableError reports that a boot target stayed unreachable for its
// whole poll budget. Likely a cold start or a connectivity problem; shown to
// the user with a retry action.
type UnreachableError struct {
	Target string // "server" or "data store"
	Err    error
}

func (e *UnreachableError) Error() string {
	return e.Target + " unreachable: " + e.Err.Error()
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}
