package boot

import "time"

// PollPolicy bounds one polling loop: how long to keep trying overall, how
// the wait between attempts grows, and how long a single attempt may run.
// Policies are value objects; nothing is shared between uses.
type PollPolicy struct {
	TotalBudget     time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	BackoffFactor   float64
	RequestTimeout  time.Duration
}

// Policies carries the budgets for each gated boot step.
type Policies struct {
	// Wake polls the liveness route. The budget is generous to absorb the
	// cold start of a suspended backend.
	Wake PollPolicy
	// Ready polls the readiness route once the server is awake.
	Ready PollPolicy
	// Fallback polls the compatibility readiness route after Ready exhausts.
	Fallback PollPolicy

	// SessionWaitCeiling bounds how long boot waits for credential
	// hydration before proceeding with whatever state is there.
	SessionWaitCeiling time.Duration
	// SessionRecheck is the hydration re-poll interval.
	SessionRecheck time.Duration
	// IdentityTimeout bounds the single stored-credential probe.
	IdentityTimeout time.Duration
}

// DefaultPolicies returns the standard budgets.
func DefaultPolicies() Policies {
	return Policies{
		Wake: PollPolicy{
			TotalBudget:     45 * time.Second,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			BackoffFactor:   1.8,
			RequestTimeout:  3 * time.Second,
		},
		Ready: PollPolicy{
			TotalBudget:     15 * time.Second,
			InitialInterval: 400 * time.Millisecond,
			MaxInterval:     3 * time.Second,
			BackoffFactor:   1.6,
			RequestTimeout:  2500 * time.Millisecond,
		},
		Fallback: PollPolicy{
			TotalBudget:     8 * time.Second,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			BackoffFactor:   2.0,
			RequestTimeout:  2500 * time.Millisecond,
		},
		SessionWaitCeiling: 3 * time.Second,
		SessionRecheck:     50 * time.Millisecond,
		IdentityTimeout:    4 * time.Second,
	}
}
