package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/pkg/group"
)

var (
	ErrNotCommitteeMember = errors.New("share from outside the committee")
	ErrEmptyShare         = errors.New("share has no data")
	ErrConflictingShare   = errors.New("member already sent a different share")
)

var _ Notifiee = (*ShareBoard)(nil)

// ShareBoard collects the decryption shares gossiped by committee members. It
// is both the Notifiee of a Gossip and the share provider of a tally
// coordinator: requests for a share block until the member's share arrives.
type ShareBoard struct {
	committee *group.Committee

	mtx    sync.Mutex
	shares map[ledger.VotePlanID]map[string]ledger.Share
	// changed is closed and replaced every time a share is added
	changed chan struct{}
}

func NewShareBoard(committee *group.Committee) *ShareBoard {
	return &ShareBoard{
		committee: committee,
		shares:    make(map[ledger.VotePlanID]map[string]ledger.Share),
		changed:   make(chan struct{}),
	}
}

// OnShare accepts shares from committee members. A member's first share for a
// vote plan wins, repeating it is harmless and contradicting it is an error.
func (b *ShareBoard) OnShare(_ context.Context, share *ledger.Share) error {
	if m, _ := b.committee.GetMemberByID(share.Member); m == nil {
		return fmt.Errorf("%w: %X", ErrNotCommitteeMember, share.Member)
	}
	if len(share.Data) == 0 {
		return ErrEmptyShare
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()
	plan, ok := b.shares[share.VotePlan]
	if !ok {
		plan = make(map[string]ledger.Share)
		b.shares[share.VotePlan] = plan
	}
	if existing, ok := plan[string(share.Member)]; ok {
		if !bytes.Equal(existing.Data, share.Data) {
			return fmt.Errorf("%w: %X for %s", ErrConflictingShare, share.Member, share.VotePlan)
		}
		return nil
	}
	plan[string(share.Member)] = ledger.Share{
		VotePlan: share.VotePlan,
		Member:   append([]byte(nil), share.Member...),
		Data:     append([]byte(nil), share.Data...),
	}
	close(b.changed)
	b.changed = make(chan struct{})
	return nil
}

// RequestShare waits for member's share of plan.
func (b *ShareBoard) RequestShare(ctx context.Context, plan ledger.VotePlanID, member []byte) (ledger.Share, error) {
	for {
		b.mtx.Lock()
		share, ok := b.shares[plan][string(member)]
		changed := b.changed
		b.mtx.Unlock()
		if ok {
			return share, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ledger.Share{}, fmt.Errorf("waiting for share of %X: %w", member, ctx.Err())
		}
	}
}

// Shares returns the shares received for plan ordered by member.
func (b *ShareBoard) Shares(plan ledger.VotePlanID) []ledger.Share {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	shares := make([]ledger.Share, 0, len(b.shares[plan]))
	for _, s := range b.shares[plan] {
		shares = append(shares, s)
	}
	sort.Slice(shares, func(i, j int) bool {
		return bytes.Compare(shares[i].Member, shares[j].Member) < 0
	})
	return shares
}
