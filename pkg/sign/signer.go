package sign

import (
	"context"
	"errors"
	"fmt"
)

// Signer is a service that securely manages a wallet's private key and signs
// ledger fragments on its behalf.
//
// Every fragment carries the account's spending counter. The signer should ensure
// it never signs below a counter it has already used, which usually means
// implementing a high-water mark.
//
// Make sure the verify function corresponds to the signature scheme used by
// the signer
type Signer interface {
	// ID should return a unique identifier for the signer that the ledger uses
	// to identify the account. This must always return the same value
	ID() []byte

	Sign(ctx context.Context, counter uint32, msg []byte) ([]byte, error)
}

// CounterSource reports the last confirmed spending counter of an account. The
// bool is false when the account has no confirmed state to sign against.
type CounterSource interface {
	Counter(ctx context.Context, id []byte) (uint32, bool, error)
}

// ErrNoCounter is wrapped by WalletStateError when the account is unknown to
// the counter source.
var ErrNoCounter = errors.New("no confirmed spending counter")

type ErrAlreadySigned uint32

func (e ErrAlreadySigned) Error() string {
	return fmt.Sprintf("already signed up to counter %d", uint32(e))
}

// WalletStateError means the signing preconditions of a wallet are unmet.
type WalletStateError struct {
	ID  []byte
	Err error
}

func (e *WalletStateError) Error() string {
	return fmt.Sprintf("wallet %X: %v", e.ID, e.Err)
}

func (e *WalletStateError) Unwrap() error {
	return e.Err
}
