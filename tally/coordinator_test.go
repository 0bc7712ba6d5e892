package tally_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/pkg/group"
	"github.com/cmwaters/ballot/pkg/sign"
	"github.com/cmwaters/ballot/round"
	"github.com/cmwaters/ballot/tally"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testKey = "MFRGGZDFMZTWQ2LKNNWG23TPOBYXE43UOV3HO6DZPI"

var block0 = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func fastParameters() tally.Parameters {
	return tally.Parameters{
		PollInterval:         time.Millisecond,
		BoundaryTimeout:      time.Second,
		BoundaryRetries:      1,
		ConfirmationTimeout:  time.Second,
		SubmitRetries:        3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
		ShareTimeout:         time.Second,
	}
}

type testNetwork struct {
	ledger    *ledger.Local
	era       ledger.Era
	committee *group.Committee
	members   []*sign.TestSigner
	voters    []*sign.TestSigner
	wallet    *sign.Wallet
}

func newTestNetwork(t *testing.T, voters, committeeSize int) *testNetwork {
	return newThresholdNetwork(t, voters, committeeSize, uint64(committeeSize))
}

func newThresholdNetwork(t *testing.T, voters, committeeSize int, threshold uint64) *testNetwork {
	n := &testNetwork{
		era: ledger.Era{Block0: block0, SlotDuration: time.Second, SlotsPerEpoch: 5},
	}
	n.committee, n.members = testThresholdCommittee(t, committeeSize, threshold)
	n.ledger = ledger.NewLocal(n.era, n.committee)
	for _, s := range n.members {
		n.ledger.AddAccount(s.ToMember(1))
	}
	for i := 0; i < voters; i++ {
		s := sign.NewTestSigner()
		n.voters = append(n.voters, s)
		n.ledger.AddAccount(s.ToMember(1))
	}
	n.wallet = sign.NewWallet(n.members[0], n.ledger)
	return n
}

func (n *testNetwork) coordinator(opts ...tally.Option) *tally.Coordinator {
	opts = append([]tally.Option{
		tally.WithLogger(zerolog.Nop()),
		tally.WithParameters(fastParameters()),
	}, opts...)
	return tally.NewCoordinator(n.ledger, n.wallet, n.committee, ledger.NewLocalCommittee(n.ledger), opts...)
}

// addPlan registers a vote plan with a single three option proposal. Voting
// ends at epoch 2 and the committee period at epoch 6.
func (n *testNetwork) addPlan(t *testing.T, b byte, payload round.Payload) (round.VotePlan, ledger.VotePlanID) {
	plan := round.VotePlan{
		ChainVotePlanID:  strings.Repeat(hex.EncodeToString([]byte{b}), ledger.VotePlanIDSize),
		VoteStartTime:    round.TimestampOf(block0),
		VoteEndTime:      round.TimestampOf(block0.Add(10 * time.Second)),
		CommitteeEndTime: round.TimestampOf(block0.Add(30 * time.Second)),
		Payload:          payload,
	}
	if payload == round.Private {
		plan.VoteEncryptionKey = testKey
	}
	options, err := round.NewVoteOptions(
		round.VoteOption{Label: "blank", Choice: 0},
		round.VoteOption{Label: "yes", Choice: 1},
		round.VoteOption{Label: "no", Choice: 2},
	)
	require.NoError(t, err)
	proposal := round.Proposal{
		ProposalID:             fmt.Sprintf("proposal-%d", b),
		ChainProposalID:        round.ChainProposalID(fmt.Sprintf("chain-%d", b)),
		ChainVoteOptions:       options,
		ChainVotePlanID:        plan.ChainVotePlanID,
		ChainVotePlanPayload:   payload,
		ChainVoteEncryptionKey: plan.VoteEncryptionKey,
	}
	id, err := n.ledger.AddVotePlan(plan, []round.Proposal{proposal})
	require.NoError(t, err)
	return plan, id
}

// vote casts one vote per voter, in order, on the plan's only proposal.
func (n *testNetwork) vote(t *testing.T, id ledger.VotePlanID, private bool, choices ...uint8) {
	ctx := context.Background()
	in := ledger.Instruction{VotePlan: id, Options: 3, Payload: round.Public}
	if private {
		var err error
		in, err = ledger.ToVotingInstruction(round.ResolveDenormalized(round.Proposal{
			ChainVotePlanID:        id.String(),
			ChainVotePlanPayload:   round.Private,
			ChainVoteEncryptionKey: testKey,
			ChainVoteOptions:       mustOptions(t, 3),
		}))
		require.NoError(t, err)
	}
	for i, choice := range choices {
		counter, _, err := n.ledger.Counter(ctx, n.voters[i].ID())
		require.NoError(t, err)
		var ciphertext []byte
		if private {
			ciphertext, err = ledger.LocalEncryptor{}.Encrypt(in.EncryptionKey, choice, in.Options)
			require.NoError(t, err)
		}
		bz, err := ledger.Seal(ctx, n.voters[i], counter, ledger.VoteDraft(in, choice, ciphertext))
		require.NoError(t, err)
		_, err = n.ledger.Submit(ctx, bz)
		require.NoError(t, err)
	}
}

func mustOptions(t *testing.T, n int) round.VoteOptions {
	opts := make([]round.VoteOption, n)
	for i := range opts {
		opts[i] = round.VoteOption{Label: fmt.Sprintf("option-%d", i), Choice: uint8(i)}
	}
	vo, err := round.NewVoteOptions(opts...)
	require.NoError(t, err)
	return vo
}

func TestPublicTally(t *testing.T) {
	n := newTestNetwork(t, 3, 1)
	plan, id := n.addPlan(t, 1, round.Public)
	n.vote(t, id, false, 1, 1, 2)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	report, err := n.coordinator().Run(context.Background(), id)
	require.NoError(t, err, report.Trace.String())
	require.Equal(t, tally.Closed, report.State)
	require.Len(t, report.Proposals, 1)
	require.Equal(t, []uint64{0, 2, 1}, report.Proposals[0].Result)
	require.Equal(t, 1, n.ledger.Applied(ledger.PublicTally))
	require.NotEqual(t, uuid.Nil, report.RunID)
}

func TestTallyWaitsForVotingToEnd(t *testing.T) {
	n := newTestNetwork(t, 1, 1)
	_, id := n.addPlan(t, 2, round.Public)
	n.vote(t, id, false, 2)
	n.ledger.SetDate(ledger.BlockDate{Epoch: 1})
	n.ledger.AdvanceOnPoll(1)

	report, err := n.coordinator().Run(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, []uint64{0, 0, 1}, report.Proposals[0].Result)
}

func TestTallyBeforeVotingEndsTimesOut(t *testing.T) {
	n := newTestNetwork(t, 0, 1)
	_, id := n.addPlan(t, 3, round.Public)
	params := fastParameters()
	params.BoundaryTimeout = 10 * time.Millisecond

	report, err := n.coordinator(tally.WithParameters(params)).Run(context.Background(), id)
	var timeout *tally.TimeoutError
	require.True(t, errors.As(err, &timeout), err)
	require.Equal(t, id, timeout.VotePlan)
	require.Equal(t, tally.Failed, report.State)
	require.Zero(t, n.ledger.Submissions())
}

func TestTallyAfterCommitteePeriodFails(t *testing.T) {
	n := newTestNetwork(t, 0, 1)
	plan, id := n.addPlan(t, 4, round.Public)
	n.ledger.SetDate(n.era.DateAt(plan.CommitteeEndTime))

	report, err := n.coordinator().Run(context.Background(), id)
	requireProtocolError(t, err, tally.ErrCommitteePeriodOver)
	require.Equal(t, tally.Failed, report.State)
	require.Zero(t, n.ledger.Submissions())
}

func TestPrivateTally(t *testing.T) {
	n := newTestNetwork(t, 3, 2)
	plan, id := n.addPlan(t, 5, round.Private)
	n.vote(t, id, true, 1, 2, 2)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	report, err := n.coordinator().Run(context.Background(), id)
	require.NoError(t, err, report.Trace.String())
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, []uint64{0, 1, 2}, report.Proposals[0].Result)
	require.Equal(t, 1, n.ledger.Applied(ledger.EncryptedTally))
	require.Equal(t, 1, n.ledger.Applied(ledger.DecryptedTally))
}

// foreignShares hands out shares of another vote plan.
type foreignShares struct {
	committee *ledger.LocalCommittee
	plan      ledger.VotePlanID
}

func (f foreignShares) RequestShare(ctx context.Context, plan ledger.VotePlanID, member []byte) (ledger.Share, error) {
	share, err := f.committee.RequestShare(ctx, plan, member)
	share.VotePlan = f.plan
	return share, err
}

func TestPrivateTallyRejectsForeignShares(t *testing.T) {
	n := newTestNetwork(t, 1, 2)
	plan, id := n.addPlan(t, 6, round.Private)
	_, other := n.addPlan(t, 7, round.Private)
	n.vote(t, id, true, 1)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	shares := foreignShares{committee: ledger.NewLocalCommittee(n.ledger), plan: other}
	c := tally.NewCoordinator(n.ledger, n.wallet, n.committee, shares,
		tally.WithLogger(zerolog.Nop()), tally.WithParameters(fastParameters()))
	report, err := c.Run(context.Background(), id)
	requireProtocolError(t, err, tally.ErrShareMismatch)
	require.ErrorIs(t, err, tally.ErrInsufficientShares)
	require.Equal(t, tally.Failed, report.State)
	require.Equal(t, 1, n.ledger.Applied(ledger.EncryptedTally))
	require.Zero(t, n.ledger.Applied(ledger.DecryptedTally))
}

// oneForeignShare hands out a share of another vote plan for one member only.
type oneForeignShare struct {
	committee *ledger.LocalCommittee
	member    []byte
	plan      ledger.VotePlanID
}

func (f oneForeignShare) RequestShare(ctx context.Context, plan ledger.VotePlanID, member []byte) (ledger.Share, error) {
	share, err := f.committee.RequestShare(ctx, plan, member)
	if bytes.Equal(member, f.member) {
		share.VotePlan = f.plan
	}
	return share, err
}

// silentMember never answers for one member.
type silentMember struct {
	committee *ledger.LocalCommittee
	member    []byte
}

func (s silentMember) RequestShare(ctx context.Context, plan ledger.VotePlanID, member []byte) (ledger.Share, error) {
	if bytes.Equal(member, s.member) {
		return ledger.Share{}, errors.New("member offline")
	}
	return s.committee.RequestShare(ctx, plan, member)
}

func TestPrivateTallyToleratesMissingShare(t *testing.T) {
	n := newThresholdNetwork(t, 2, 3, 2)
	plan, id := n.addPlan(t, 18, round.Private)
	n.vote(t, id, true, 2, 2)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	shares := silentMember{committee: ledger.NewLocalCommittee(n.ledger), member: n.committee.Members()[1].ID()}
	c := tally.NewCoordinator(n.ledger, n.wallet, n.committee, shares,
		tally.WithLogger(zerolog.Nop()), tally.WithParameters(fastParameters()))
	report, err := c.Run(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0, 2}, report.Proposals[0].Result)
}

func TestPrivateTallySkipsInvalidShare(t *testing.T) {
	n := newThresholdNetwork(t, 1, 3, 2)
	plan, id := n.addPlan(t, 16, round.Private)
	_, other := n.addPlan(t, 17, round.Private)
	n.vote(t, id, true, 1)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	// the first member in committee order sends a share of the wrong plan
	bad := n.committee.Members()[0].ID()
	shares := oneForeignShare{committee: ledger.NewLocalCommittee(n.ledger), member: bad, plan: other}
	c := tally.NewCoordinator(n.ledger, n.wallet, n.committee, shares,
		tally.WithLogger(zerolog.Nop()), tally.WithParameters(fastParameters()))
	report, err := c.Run(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, []uint64{0, 1, 0}, report.Proposals[0].Result)
	require.Equal(t, 1, n.ledger.Applied(ledger.DecryptedTally))
}

func TestTallyResumesAppliedSteps(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t, 2, 2)
	plan, id := n.addPlan(t, 8, round.Private)
	n.vote(t, id, true, 2, 2)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	// another member already submitted the encrypted tally
	bz, err := ledger.Seal(ctx, n.members[1], 0, ledger.Draft{Kind: ledger.EncryptedTally, VotePlan: id})
	require.NoError(t, err)
	_, err = n.ledger.Submit(ctx, bz)
	require.NoError(t, err)

	report, err := n.coordinator().Run(ctx, id)
	require.NoError(t, err)
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, 1, n.ledger.Applied(ledger.EncryptedTally))
	require.Equal(t, []uint64{0, 0, 2}, report.Proposals[0].Result)

	// a tallied plan closes straight away
	before := n.ledger.Submissions()
	report, err = n.coordinator().Run(ctx, id)
	require.NoError(t, err)
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, before, n.ledger.Submissions())
}

func TestTallyRetriesRejectedSubmissions(t *testing.T) {
	n := newTestNetwork(t, 1, 1)
	plan, id := n.addPlan(t, 9, round.Public)
	n.vote(t, id, false, 1)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))
	n.ledger.ConfirmAfter(2)
	before := n.ledger.Submissions()

	n.ledger.RejectNext(ledger.Busy, 2)
	report, err := n.coordinator().Run(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, tally.Closed, report.State)
	require.Equal(t, before+3, n.ledger.Submissions())
	require.Equal(t, 1, n.ledger.Applied(ledger.PublicTally))
}

func TestTallyGivesUpAfterRetries(t *testing.T) {
	n := newTestNetwork(t, 0, 1)
	plan, id := n.addPlan(t, 10, round.Public)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))
	params := fastParameters()
	params.SubmitRetries = 2

	n.ledger.RejectNext(ledger.Busy, 10)
	report, err := n.coordinator(tally.WithParameters(params)).Run(context.Background(), id)
	requireProtocolError(t, err, ledger.ErrSubmissionRejected)
	var rej *ledger.SubmissionRejected
	require.True(t, errors.As(err, &rej))
	require.Equal(t, ledger.Busy, rej.Reason)
	require.Equal(t, tally.Failed, report.State)
	require.Equal(t, 3, n.ledger.Submissions())
}

func TestTallyNeverResendsCounterRejectedBytes(t *testing.T) {
	n := newTestNetwork(t, 0, 1)
	plan, id := n.addPlan(t, 11, round.Public)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))

	// the account counter does not move so the rebuilt fragment is identical
	n.ledger.RejectNext(ledger.StaleCounter, 1)
	_, err := n.coordinator().Run(context.Background(), id)
	requireProtocolError(t, err, tally.ErrResendRejected)
	require.Equal(t, 1, n.ledger.Submissions())
}

func TestTallyWithoutCounter(t *testing.T) {
	n := newTestNetwork(t, 0, 1)
	plan, id := n.addPlan(t, 12, round.Public)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))
	// a wallet with no account on the ledger
	n.wallet = sign.NewWallet(sign.NewTestSigner(), n.ledger)

	_, err := n.coordinator().Run(context.Background(), id)
	requireProtocolError(t, err, sign.ErrNoCounter)
	require.Zero(t, n.ledger.Submissions())
}

func TestRunAllIsolatesPlans(t *testing.T) {
	n := newTestNetwork(t, 2, 1)
	plan, first := n.addPlan(t, 13, round.Public)
	_, second := n.addPlan(t, 14, round.Public)
	n.vote(t, first, false, 1, 2)
	n.vote(t, second, false, 2, 2)
	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))
	var missing ledger.VotePlanID

	reports := n.coordinator().RunAll(context.Background(), []ledger.VotePlanID{first, missing, second})
	require.Len(t, reports, 3)
	require.NoError(t, reports[0].Err)
	require.Equal(t, []uint64{0, 1, 1}, reports[0].Proposals[0].Result)
	require.ErrorIs(t, reports[1].Err, ledger.ErrUnknownVotePlan)
	require.Equal(t, tally.Failed, reports[1].State)
	require.NoError(t, reports[2].Err)
	require.Equal(t, []uint64{0, 0, 2}, reports[2].Proposals[0].Result)
}

// blockingClock holds every read of the ledger clock until released.
type blockingClock struct {
	*ledger.Local
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (c *blockingClock) Now(ctx context.Context) (ledger.BlockDate, error) {
	c.once.Do(func() { close(c.entered) })
	select {
	case <-c.release:
	case <-ctx.Done():
		return ledger.BlockDate{}, ctx.Err()
	}
	return c.Local.Now(ctx)
}

func TestOneRunPerVotePlan(t *testing.T) {
	n := newTestNetwork(t, 0, 1)
	plan, id := n.addPlan(t, 15, round.Public)
	clock := &blockingClock{Local: n.ledger, entered: make(chan struct{}), release: make(chan struct{})}
	c := tally.NewCoordinator(clock, n.wallet, n.committee, nil,
		tally.WithLogger(zerolog.Nop()), tally.WithParameters(fastParameters()))

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), id)
		done <- err
	}()
	<-clock.entered

	report, err := c.Run(context.Background(), id)
	require.ErrorIs(t, err, tally.ErrAlreadyRunning)
	require.Equal(t, tally.Failed, report.State)

	n.ledger.SetDate(n.era.DateAt(plan.VoteEndTime))
	close(clock.release)
	require.NoError(t, <-done)

	// the plan can be run again once the first run returned
	report, err = c.Run(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, tally.Closed, report.State)
}
