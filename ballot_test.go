package ballot_test

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cmwaters/ballot"
	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/pkg/group"
	"github.com/cmwaters/ballot/pkg/sign"
	"github.com/cmwaters/ballot/round"
	"github.com/cmwaters/ballot/tally"
)

const testKey = "MFRGGZDFMZTWQ2LKNNWG23TPOBYXE43UOV3HO6DZPI"

var block0 = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func testParameters() tally.Parameters {
	return tally.Parameters{
		PollInterval:         5 * time.Millisecond,
		BoundaryTimeout:      time.Second,
		BoundaryRetries:      1,
		ConfirmationTimeout:  time.Second,
		SubmitRetries:        3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     10 * time.Millisecond,
		ShareTimeout:         5 * time.Second,
	}
}

// TestPrivateRoundOverGossip casts private votes through one node and tallies
// them with shares that committee members gossip to each other.
func TestPrivateRoundOverGossip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	era := ledger.Era{Block0: block0, SlotDuration: time.Second, SlotsPerEpoch: 5}
	signers := []*sign.TestSigner{sign.NewTestSigner(), sign.NewTestSigner()}
	members := []group.Member{signers[0].ToMember(1), signers[1].ToMember(1)}
	committee, err := group.NewCommittee(members, 2)
	require.NoError(t, err)
	l := ledger.NewLocal(era, committee)
	for _, m := range members {
		l.AddAccount(m)
	}

	plan := round.VotePlan{
		ChainVotePlanID:   strings.Repeat(hex.EncodeToString([]byte{0xaa}), ledger.VotePlanIDSize),
		VoteStartTime:     round.TimestampOf(block0),
		VoteEndTime:       round.TimestampOf(block0.Add(10 * time.Second)),
		CommitteeEndTime:  round.TimestampOf(block0.Add(time.Minute)),
		Payload:           round.Private,
		VoteEncryptionKey: testKey,
	}
	options, err := round.NewVoteOptions(
		round.VoteOption{Label: "blank", Choice: 0},
		round.VoteOption{Label: "yes", Choice: 1},
		round.VoteOption{Label: "no", Choice: 2},
	)
	require.NoError(t, err)
	proposal := round.Proposal{
		ProposalID:           "p-0",
		ChainProposalID:      round.ChainProposalID("chain-0"),
		ChainVoteOptions:     options,
		ChainVotePlanID:      plan.ChainVotePlanID,
		ChainVotePlanPayload: round.Private,
	}
	id, err := l.AddVotePlan(plan, []round.Proposal{proposal})
	require.NoError(t, err)
	catalog, err := round.NewCatalog([]round.VotePlan{plan}, []round.Proposal{proposal})
	require.NoError(t, err)

	mn, err := mocknet.FullMeshLinked(2)
	require.NoError(t, err)
	nodes := make([]*ballot.Node, 2)
	for i := range nodes {
		nodes[i], err = ballot.New(ctx, mn.Hosts()[i], l, sign.NewWallet(signers[i], l), committee, catalog,
			ballot.WithLogger(zerolog.Nop()),
			ballot.WithParameters(testParameters()),
			ballot.WithEncryptor(ledger.LocalEncryptor{}),
		)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		for _, n := range nodes {
			require.NoError(t, n.Close())
		}
	})
	require.NoError(t, mn.ConnectAllButSelf())

	// committee members vote too
	_, err = nodes[0].VoteFor(ctx, plan.ChainVotePlanID, 0, 2)
	require.NoError(t, err)
	_, err = nodes[1].VoteFor(ctx, plan.ChainVotePlanID, 0, 1)
	require.NoError(t, err)
	l.SetDate(era.DateAt(plan.VoteEndTime))

	// once the encrypted tally is on the ledger each member gossips its share
	shares := ledger.NewLocalCommittee(l)
	published := make(chan error, 1)
	go func() {
		for {
			status, err := l.VotePlanStatus(ctx, id)
			if err != nil {
				published <- err
				return
			}
			if status.Tally == ledger.Encrypted {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		for i, s := range signers {
			share, err := shares.RequestShare(ctx, id, s.ID())
			if err == nil {
				err = nodes[i].PublishShare(ctx, share)
			}
			if err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()

	report, err := nodes[0].Tally(ctx, id)
	require.NoError(t, err, report.Trace.String())
	require.NoError(t, <-published)
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, []uint64{0, 1, 1}, report.Proposals[0].Result)
	require.Eventually(t, func() bool { return len(nodes[1].Shares(id)) == 2 }, time.Second, 5*time.Millisecond)

	// a node only publishes its own share
	foreign, err := shares.RequestShare(ctx, id, signers[1].ID())
	require.Error(t, err, "no shares once the plan is tallied")
	foreign = ledger.Share{VotePlan: id, Member: signers[1].ID(), Data: []byte{1}}
	require.Error(t, nodes[0].PublishShare(ctx, foreign))
}
