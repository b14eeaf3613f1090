package recon

import "fmt"

// Tier classifies a reconciliation failure. The HTTP layer decides the
// response status purely from the tier: recoverable failures are logged and
// the delivery is still acknowledged, so the upstream sender does not retry
// or disable the subscription.
type Tier int

const (
	// TierRecoverable failures are swallowed after logging.
	TierRecoverable Tier = iota
	// TierFatal failures surface as a processing error to the caller.
	TierFatal
)

// StepError is a failure in a named reconciliation step.
type StepError struct {
	Step string
	Tier Tier
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("reconciliation step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// recoverable wraps err as a recoverable failure of the given step.
func recoverable(step string, err error) *StepError {
	return &StepError{Step: step, Tier: TierRecoverable, Err: err}
}
