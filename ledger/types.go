package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cmwaters/ballot/round"
)

// VotePlanIDSize is the length in bytes of a ledger vote plan id.
const VotePlanIDSize = 32

// VotePlanID binds administrative records to a vote plan on the ledger.
type VotePlanID [VotePlanIDSize]byte

// ParseVotePlanID decodes a hex vote plan id of exactly VotePlanIDSize bytes.
func ParseVotePlanID(s string) (VotePlanID, error) {
	var id VotePlanID
	bz, err := hex.DecodeString(s)
	if err != nil {
		return id, &ConversionError{Field: "chain_voteplan_id", Err: fmt.Errorf("%w: %v", ErrInvalidVotePlanID, err)}
	}
	if len(bz) != VotePlanIDSize {
		return id, &ConversionError{Field: "chain_voteplan_id", Err: fmt.Errorf("%w: %d bytes", ErrInvalidVotePlanID, len(bz))}
	}
	copy(id[:], bz)
	return id, nil
}

func (id VotePlanID) String() string {
	return hex.EncodeToString(id[:])
}

func (id VotePlanID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *VotePlanID) UnmarshalText(text []byte) error {
	parsed, err := ParseVotePlanID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// FragmentID identifies a submitted fragment. It is the hex SHA-256 of the
// fragment bytes.
type FragmentID string

func FragmentIDOf(fragment []byte) FragmentID {
	sum := sha256.Sum256(fragment)
	return FragmentID(hex.EncodeToString(sum[:]))
}

// BlockDate is a position on the ledger's clock.
type BlockDate struct {
	Epoch uint32 `json:"epoch"`
	Slot  uint32 `json:"slot"`
}

func (d BlockDate) Before(other BlockDate) bool {
	if d.Epoch != other.Epoch {
		return d.Epoch < other.Epoch
	}
	return d.Slot < other.Slot
}

func (d BlockDate) String() string {
	return fmt.Sprintf("%d.%d", d.Epoch, d.Slot)
}

// Era maps wall clock time onto block dates.
type Era struct {
	Block0        time.Time
	SlotDuration  time.Duration
	SlotsPerEpoch uint32
}

// DateAt returns the block date containing t. Instants before block zero map
// to the first slot.
func (e Era) DateAt(t round.Timestamp) BlockDate {
	elapsed := t.Time().Sub(e.Block0)
	if elapsed < 0 {
		return BlockDate{}
	}
	slots := uint64(elapsed / e.SlotDuration)
	return BlockDate{
		Epoch: uint32(slots / uint64(e.SlotsPerEpoch)),
		Slot:  uint32(slots % uint64(e.SlotsPerEpoch)),
	}
}

// TimeOf returns the instant at which d starts.
func (e Era) TimeOf(d BlockDate) round.Timestamp {
	slots := uint64(d.Epoch)*uint64(e.SlotsPerEpoch) + uint64(d.Slot)
	return round.TimestampOf(e.Block0.Add(time.Duration(slots) * e.SlotDuration))
}

// Add returns the date n slots after d.
func (e Era) Add(d BlockDate, n uint32) BlockDate {
	slots := uint64(d.Epoch)*uint64(e.SlotsPerEpoch) + uint64(d.Slot) + uint64(n)
	return BlockDate{
		Epoch: uint32(slots / uint64(e.SlotsPerEpoch)),
		Slot:  uint32(slots % uint64(e.SlotsPerEpoch)),
	}
}
