package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmwaters/ballot/pkg/sign"
)

// TxKind is the kind of transaction a fragment carries.
type TxKind uint8

const (
	VoteCast TxKind = iota + 1
	PublicTally
	EncryptedTally
	DecryptedTally
)

var txKindNames = map[TxKind]string{
	VoteCast:       "vote_cast",
	PublicTally:    "public_tally",
	EncryptedTally: "encrypted_tally",
	DecryptedTally: "decrypted_tally",
}

func (k TxKind) String() string {
	if name, ok := txKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("tx(%d)", uint8(k))
}

func (k TxKind) MarshalText() ([]byte, error) {
	if _, ok := txKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown transaction kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *TxKind) UnmarshalText(text []byte) error {
	for kind, name := range txKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown transaction kind %q", text)
}

// Share is a committee member's partial decryption of one vote plan's
// encrypted tally.
type Share struct {
	VotePlan VotePlanID `json:"vote_plan"`
	Member   []byte     `json:"member"`
	Data     []byte     `json:"data"`
}

// Draft is an unsigned transaction.
type Draft struct {
	Kind       TxKind     `json:"kind"`
	VotePlan   VotePlanID `json:"vote_plan"`
	Proposal   uint8      `json:"proposal,omitempty"`
	Choice     uint8      `json:"choice,omitempty"`
	Ciphertext []byte     `json:"ciphertext,omitempty"`
	Shares     []Share    `json:"shares,omitempty"`
}

// VoteDraft builds the vote-cast draft for in. Private instructions need the
// ciphertext of the choice instead of the choice itself.
func VoteDraft(in Instruction, choice uint8, ciphertext []byte) Draft {
	d := Draft{
		Kind:     VoteCast,
		VotePlan: in.VotePlan,
		Proposal: in.Proposal,
	}
	if ciphertext != nil {
		d.Ciphertext = ciphertext
	} else {
		d.Choice = choice
	}
	return d
}

// Fragment is a signed draft as submitted to the ledger.
type Fragment struct {
	Draft
	Sender    []byte `json:"sender"`
	Counter   uint32 `json:"counter"`
	Signature []byte `json:"signature,omitempty"`
}

// SignBytes returns the bytes covered by the signature.
func (f Fragment) SignBytes() ([]byte, error) {
	unsigned := f
	unsigned.Signature = nil
	return json.Marshal(unsigned)
}

func (f Fragment) Encode() ([]byte, error) {
	return json.Marshal(f)
}

func DecodeFragment(bz []byte) (Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(bz, &f); err != nil {
		return Fragment{}, err
	}
	return f, nil
}

// Seal signs d by signer at counter and returns the encoded fragment.
func Seal(ctx context.Context, signer sign.Signer, counter uint32, d Draft) ([]byte, error) {
	f := Fragment{
		Draft:   d,
		Sender:  signer.ID(),
		Counter: counter,
	}
	msg, err := f.SignBytes()
	if err != nil {
		return nil, err
	}
	f.Signature, err = signer.Sign(ctx, counter, msg)
	if err != nil {
		return nil, err
	}
	return f.Encode()
}
