package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidVotePlanID    = errors.New("invalid vote plan id")
	ErrInvalidOptionCount   = errors.New("invalid option count")
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")

	// ErrSubmissionRejected is matched by every SubmissionRejected.
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrUnknownVotePlan    = errors.New("unknown vote plan")
	ErrUnknownFragment    = errors.New("unknown fragment")
)

// ConversionError means a proposal cannot be turned into a voting instruction.
// Err wraps one of ErrInvalidVotePlanID, ErrInvalidOptionCount or
// ErrInvalidEncryptionKey.
type ConversionError struct {
	Proposal string
	Field    string
	Err      error
}

func (e *ConversionError) Error() string {
	if e.Proposal == "" {
		return fmt.Sprintf("converting %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("converting proposal %s (%s): %v", e.Proposal, e.Field, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// RejectReason classifies why the ledger refused a fragment.
type RejectReason uint8

const (
	// StaleCounter means the fragment was signed with a spending counter the
	// account is no longer (or not yet) at.
	StaleCounter RejectReason = iota + 1
	// Busy is a transient refusal. The same fragment may be accepted later.
	Busy
	// Invalid fragments will never be accepted.
	Invalid
)

func (r RejectReason) String() string {
	switch r {
	case StaleCounter:
		return "stale counter"
	case Busy:
		return "busy"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// SubmissionRejected is returned when the ledger refuses a fragment.
type SubmissionRejected struct {
	Fragment FragmentID
	Reason   RejectReason
	Message  string
}

func (e *SubmissionRejected) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fragment %.8s rejected: %s", e.Fragment, e.Reason)
	}
	return fmt.Sprintf("fragment %.8s rejected: %s: %s", e.Fragment, e.Reason, e.Message)
}

func (e *SubmissionRejected) Is(target error) bool {
	return target == ErrSubmissionRejected
}
