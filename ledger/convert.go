package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cmwaters/ballot/round"
	"github.com/multiformats/go-base32"
)

// MaxOptions is the largest number of options a ledger proposal can carry.
const MaxOptions = 16

// Instruction is everything the ledger needs to accept a vote for a proposal.
type Instruction struct {
	VotePlan VotePlanID
	Proposal uint8
	Options  uint8
	Payload  round.Payload
	// EncryptionKey is only set for private vote plans.
	EncryptionKey []byte
}

// Converter turns resolved proposals into voting instructions.
//
// Vote plan ids that decode to more than VotePlanIDSize bytes are truncated to
// the first VotePlanIDSize bytes unless Strict is set, in which case they are
// rejected.
type Converter struct {
	Strict bool
}

var defaultConverter = Converter{}

// ToVotingInstruction converts p with the default lenient converter.
func ToVotingInstruction(p round.ResolvedProposal) (Instruction, error) {
	return defaultConverter.ToVotingInstruction(p)
}

func (c Converter) ToVotingInstruction(p round.ResolvedProposal) (Instruction, error) {
	fail := func(field string, err error) (Instruction, error) {
		return Instruction{}, &ConversionError{Proposal: p.ProposalID, Field: field, Err: err}
	}

	bz, err := hex.DecodeString(p.VotePlanID)
	if err != nil {
		return fail("chain_voteplan_id", fmt.Errorf("%w: %v", ErrInvalidVotePlanID, err))
	}
	switch {
	case len(bz) < VotePlanIDSize:
		return fail("chain_voteplan_id", fmt.Errorf("%w: %d bytes", ErrInvalidVotePlanID, len(bz)))
	case len(bz) > VotePlanIDSize && c.Strict:
		return fail("chain_voteplan_id", fmt.Errorf("%w: %d bytes", ErrInvalidVotePlanID, len(bz)))
	}
	var id VotePlanID
	copy(id[:], bz)

	options := p.ChainVoteOptions.Len()
	if options == 0 || options > MaxOptions {
		return fail("chain_vote_options", fmt.Errorf("%w: %d", ErrInvalidOptionCount, options))
	}

	in := Instruction{
		VotePlan: id,
		Proposal: uint8(p.Index()),
		Options:  uint8(options),
		Payload:  p.Payload,
	}
	switch p.Payload {
	case round.Public:
		return in, nil
	case round.Private:
		key, err := decodeKey(p.EncryptionKey)
		if err != nil {
			return fail("chain_vote_encryption_key", fmt.Errorf("%w: %v", ErrInvalidEncryptionKey, err))
		}
		in.EncryptionKey = key
		return in, nil
	default:
		return fail("chain_voteplan_payload", fmt.Errorf("%w: unknown payload %s", round.ErrDataFormat, p.Payload))
	}
}

// decodeKey accepts upper or lower case base32 with or without padding.
func decodeKey(key string) ([]byte, error) {
	key = strings.TrimRight(strings.ToUpper(key), "=")
	if key == "" {
		return nil, errors.New("empty key")
	}
	return base32.RawStdEncoding.DecodeString(key)
}
