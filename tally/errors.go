package tally

import (
	"errors"
	"fmt"

	"github.com/cmwaters/ballot/ledger"
)

var (
	ErrShareMismatch       = errors.New("share is for another vote plan")
	ErrOutOfOrder          = errors.New("out of order")
	ErrUnknownMember       = errors.New("not a committee member")
	ErrAlreadyRunning      = errors.New("tally already running for vote plan")
	ErrCommitteePeriodOver = errors.New("committee period is over")
	ErrInsufficientShares  = errors.New("not enough decryption shares")
	// ErrResendRejected is returned instead of resubmitting the exact bytes the
	// ledger refused for their spending counter.
	ErrResendRejected = errors.New("refusing to resend a counter-rejected fragment")
)

// TallyProtocolError is a failure of the tally protocol for one vote plan.
// When submission retries are exhausted Err wraps the last
// *ledger.SubmissionRejected.
type TallyProtocolError struct {
	VotePlan ledger.VotePlanID
	Err      error
}

func (e *TallyProtocolError) Error() string {
	return fmt.Sprintf("tally of vote plan %s: %v", e.VotePlan, e.Err)
}

func (e *TallyProtocolError) Unwrap() error {
	return e.Err
}

// TimeoutError means a bounded wait ran out.
type TimeoutError struct {
	VotePlan ledger.VotePlanID
	// Waiting describes what was awaited.
	Waiting string
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("vote plan %s: timed out waiting for %s", e.VotePlan, e.Waiting)
	}
	return fmt.Sprintf("vote plan %s: timed out waiting for %s: %v", e.VotePlan, e.Waiting, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func protocolError(plan ledger.VotePlanID, err error) *TallyProtocolError {
	return &TallyProtocolError{VotePlan: plan, Err: err}
}
