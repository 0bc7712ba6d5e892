// Package snapshot reads point-in-time snapshots of a voting network, such as
// the initial balances the network was started with.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cmwaters/ballot/round"
)

type EntryKind uint8

const (
	// Wallet entries are accounts created for a named voter.
	Wallet EntryKind = iota + 1
	// External entries fund an address that exists outside the snapshot.
	External
)

func (k EntryKind) String() string {
	switch k {
	case Wallet:
		return "wallet"
	case External:
		return "external"
	default:
		return fmt.Sprintf("entry(%d)", uint8(k))
	}
}

// InitialEntry is one initial balance. Wallet entries carry a name and pin,
// external entries an address.
type InitialEntry struct {
	Name    string `json:"name,omitempty"`
	Pin     string `json:"pin,omitempty"`
	Address string `json:"address,omitempty"`
	Funds   uint64 `json:"funds"`
}

func (e InitialEntry) Kind() EntryKind {
	if e.Address != "" {
		return External
	}
	return Wallet
}

func (e *InitialEntry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return formatError("", errors.New("entry is not an object"))
	}
	var required []string
	switch {
	case fields["name"] != nil:
		required = []string{"name", "funds", "pin"}
	case fields["address"] != nil:
		required = []string{"address", "funds"}
	default:
		return formatError("", errors.New("entry is neither a wallet nor an external address"))
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return formatError(name, errors.New("missing"))
		}
	}

	type plain InitialEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return formatError("", err)
	}
	*e = InitialEntry(p)
	return nil
}

// Initials are the initial balances of a snapshot in document order.
type Initials []InitialEntry

// ReadInitials extracts the "initial" array of a snapshot document. A document
// without it is malformed rather than empty.
func ReadInitials(text []byte) (Initials, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, formatError("", err)
	}
	raw, ok := doc["initial"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, formatError("initial", errors.New("missing"))
	}
	var initials Initials
	if err := json.Unmarshal(raw, &initials); err != nil {
		var dfe *round.DataFormatError
		if errors.As(err, &dfe) {
			return nil, err
		}
		return nil, formatError("initial", err)
	}
	return initials, nil
}

// Wallets returns the wallet entries.
func (in Initials) Wallets() []InitialEntry {
	var wallets []InitialEntry
	for _, e := range in {
		if e.Kind() == Wallet {
			wallets = append(wallets, e)
		}
	}
	return wallets
}

func (in Initials) TotalFunds() uint64 {
	var total uint64
	for _, e := range in {
		total += e.Funds
	}
	return total
}

func formatError(field string, err error) *round.DataFormatError {
	return &round.DataFormatError{Record: "snapshot", Field: field, Err: err}
}
