package group

import (
	"errors"
	"fmt"
)

// ErrUnknownMember is returned when a contribution comes from outside the group.
var ErrUnknownMember = errors.New("not a member of the group")

// Quorum accumulates contributions from distinct members of a group until
// their combined weight reaches the required threshold.
type Quorum struct {
	group     Group
	threshold uint64
	weight    uint64
	seen      []bool
}

// NewQuorum starts an empty quorum over the committee's threshold.
func NewQuorum(c *Committee) *Quorum {
	return &Quorum{
		group:     c,
		threshold: c.Threshold(),
		seen:      make([]bool, c.Size()),
	}
}

// Add records a contribution from the member with id. It reports false if the
// member had already contributed.
func (q *Quorum) Add(id []byte) (bool, error) {
	member, index := q.group.GetMemberByID(id)
	if member == nil {
		return false, fmt.Errorf("%w: %X", ErrUnknownMember, id)
	}
	if q.seen[index] {
		return false, nil
	}
	q.seen[index] = true
	q.weight += member.Weight()
	return true, nil
}

func (q *Quorum) Reached() bool {
	return q.weight >= q.threshold
}

func (q *Quorum) Weight() uint64 {
	return q.weight
}

// Signers returns the indexes of the members that contributed
func (q *Quorum) Signers() []uint32 {
	signers := make([]uint32, 0, len(q.seen))
	for i, ok := range q.seen {
		if ok {
			signers = append(signers, uint32(i))
		}
	}
	return signers
}
