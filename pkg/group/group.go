package group

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

type Group interface {
	Member(index uint) Member
	GetMemberByID(id []byte) (Member, uint)
	TotalWeight() uint64
	Size() int
}

type Member interface {
	ID() []byte
	Weight() uint64
	Verify(msg, sig []byte) bool
}

var _ Group = (*Committee)(nil)

// Committee is the set of members entrusted with closing private vote plans.
// A decision needs the combined weight of contributing members to reach the
// threshold.
type Committee struct {
	members     []Member
	totalWeight uint64
	threshold   uint64
}

// NewCommittee orders members deterministically and checks that the threshold
// is reachable.
func NewCommittee(members []Member, threshold uint64) (*Committee, error) {
	if len(members) == 0 {
		return nil, errors.New("committee must have at least one member")
	}
	if threshold == 0 {
		return nil, errors.New("committee threshold must be positive")
	}

	sorted := make([]Member, len(members))
	copy(sorted, members)
	var totalWeight uint64
	for idx, m := range sorted {
		if m.Weight() == 0 {
			return nil, fmt.Errorf("member %d has 0 weight", idx)
		}
		totalWeight += m.Weight()
	}
	if threshold > totalWeight {
		return nil, fmt.Errorf("threshold %d exceeds total weight %d", threshold, totalWeight)
	}

	c := &Committee{
		members:     sorted,
		totalWeight: totalWeight,
		threshold:   threshold,
	}
	c.sort()
	if err := c.checkMemberUniqueness(); err != nil {
		return nil, err
	}
	return c, nil
}

// Member returns the member at index or nil when out of range.
func (c *Committee) Member(index uint) Member {
	if index >= uint(len(c.members)) {
		return nil
	}
	return c.members[index]
}

// GetMemberByID returns the member with id and its index. The member is nil if
// there is no such member.
func (c *Committee) GetMemberByID(id []byte) (Member, uint) {
	for idx, m := range c.members {
		if bytes.Equal(id, m.ID()) {
			return m, uint(idx)
		}
	}
	return nil, 0
}

// Members returns a copy of the members in committee order.
func (c *Committee) Members() []Member {
	members := make([]Member, len(c.members))
	copy(members, c.members)
	return members
}

func (c *Committee) TotalWeight() uint64 {
	return c.totalWeight
}

func (c *Committee) Threshold() uint64 {
	return c.threshold
}

func (c *Committee) Size() int {
	return len(c.members)
}

func (c *Committee) sort() {
	sort.Slice(c.members, func(i, j int) bool {
		return bytes.Compare(c.members[i].ID(), c.members[j].ID()) < 0
	})
}

// checkMemberUniqueness returns an error if there
// is more that one member with the same id.
func (c *Committee) checkMemberUniqueness() error {
	for i := 1; i < len(c.members); i++ {
		if bytes.Equal(c.members[i-1].ID(), c.members[i].ID()) {
			return fmt.Errorf("members %X appears more than once", c.members[i].ID())
		}
	}
	return nil
}
