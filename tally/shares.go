package tally

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cmwaters/ballot/ledger"
)

// ShareProvider supplies a committee member's decryption share of a vote plan's
// encrypted tally.
type ShareProvider interface {
	RequestShare(ctx context.Context, plan ledger.VotePlanID, member []byte) (ledger.Share, error)
}

type shareResult struct {
	member []byte
	share  ledger.Share
	err    error
}

// requestShares asks every committee member for its share concurrently within
// ShareTimeout. Results are in committee order. A member's failure is kept in
// its result and never cancels the other requests, since the remaining members
// may still reach the threshold.
func (r *run) requestShares(ctx context.Context) []shareResult {
	ctx, cancel := context.WithTimeout(ctx, r.params.ShareTimeout)
	defer cancel()

	members := r.committee.Members()
	results := make([]shareResult, len(members))
	var g errgroup.Group
	for i, member := range members {
		i, id := i, member.ID()
		g.Go(func() error {
			share, err := r.shares.RequestShare(ctx, r.plan, id)
			results[i] = shareResult{member: id, share: share, err: err}
			return nil
		})
	}
	// per-member errors are carried in results, so Wait is always nil
	_ = g.Wait()
	return results
}
