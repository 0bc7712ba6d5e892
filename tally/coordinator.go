package tally

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/pkg/group"
	"github.com/cmwaters/ballot/pkg/sign"
)

// Coordinator drives the tally of vote plans to completion. The wallet signs
// every tally transaction and must belong to a committee member. Vote plans are
// tallied independently of one another, but only one run per vote plan can be
// active at a time.
type Coordinator struct {
	ledger    ledger.Ledger
	wallet    *sign.Wallet
	committee *group.Committee
	shares    ShareProvider

	params Parameters
	logger zerolog.Logger

	mtx    sync.Mutex
	active map[ledger.VotePlanID]uuid.UUID
}

// NewCoordinator creates a coordinator. The committee and share provider are
// only needed for private vote plans and may be nil otherwise.
func NewCoordinator(
	l ledger.Ledger,
	wallet *sign.Wallet,
	committee *group.Committee,
	shares ShareProvider,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		ledger:    l,
		wallet:    wallet,
		committee: committee,
		shares:    shares,
		params:    DefaultParameters(),
		logger:    zerolog.New(os.Stdout),
		active:    make(map[ledger.VotePlanID]uuid.UUID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report summarizes one tally run.
type Report struct {
	VotePlan ledger.VotePlanID
	RunID    uuid.UUID
	State    State
	Err      error
	// Proposals holds the ledger's results once the plan is Closed.
	Proposals []ledger.ProposalStatus
	Trace     *Trace
}

func (r Report) String() string {
	if r.Err != nil {
		return fmt.Sprintf("tally %s (%s): %s: %v", r.VotePlan, r.RunID, r.State, r.Err)
	}
	return fmt.Sprintf("tally %s (%s): %s", r.VotePlan, r.RunID, r.State)
}

// Run tallies a single vote plan. It waits for voting to end, submits the
// tally, collects decryption shares for private plans and returns once the
// ledger reports the plan as tallied, the protocol fails or ctx is done. A run
// picks up from whatever progress the ledger already records for the plan.
func (c *Coordinator) Run(ctx context.Context, plan ledger.VotePlanID) (Report, error) {
	report := Report{
		VotePlan: plan,
		RunID:    uuid.New(),
		Trace:    newTrace(),
	}
	if other, ok := c.claim(plan, report.RunID); !ok {
		report.State = Failed
		report.Err = fmt.Errorf("%w: %s (run %s)", ErrAlreadyRunning, plan, other)
		return report, report.Err
	}
	defer c.release(plan)

	logger := c.logger.With().
		Str("vote_plan", plan.String()).
		Str("run", report.RunID.String()).
		Logger()

	status, err := c.ledger.VotePlanStatus(ctx, plan)
	if err != nil {
		report.State = Failed
		report.Err = err
		return report, err
	}

	r := &run{
		Coordinator: c,
		plan:        plan,
		machine:     NewMachine(status, c.committee),
		trace:       report.Trace,
		logger:      logger,
	}
	logger.Info().Bool("private", status.Private).Str("tally", status.Tally.String()).Msg("starting tally")
	err = r.execute(ctx, status)
	report.State = r.machine.State()
	report.Err = err
	if err != nil {
		logger.Error().Err(err).Str("state", report.State.String()).Msg("tally failed")
		return report, err
	}

	final, err := c.ledger.VotePlanStatus(ctx, plan)
	if err != nil {
		report.Err = err
		return report, err
	}
	report.Proposals = final.Proposals
	logger.Info().Int("proposals", len(final.Proposals)).Msg("tally closed")
	return report, nil
}

// RunAll runs every vote plan concurrently and returns a report per plan in the
// order given. A failing plan does not affect the others.
func (c *Coordinator) RunAll(ctx context.Context, plans []ledger.VotePlanID) []Report {
	reports := make([]Report, len(plans))
	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan ledger.VotePlanID) {
			defer wg.Done()
			reports[i], _ = c.Run(ctx, plan)
		}(i, plan)
	}
	wg.Wait()
	return reports
}

func (c *Coordinator) claim(plan ledger.VotePlanID, id uuid.UUID) (uuid.UUID, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if other, ok := c.active[plan]; ok {
		return other, false
	}
	c.active[plan] = id
	return id, true
}

func (c *Coordinator) release(plan ledger.VotePlanID) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	delete(c.active, plan)
}

// run is the executor of a single Machine. It turns outputs into ledger and
// committee interactions and feeds their results back as inputs.
type run struct {
	*Coordinator
	plan    ledger.VotePlanID
	machine *Machine
	trace   *Trace
	logger  zerolog.Logger

	// dropped counts fragments accepted by the ledger and later rejected.
	dropped uint64
}

func (r *run) step(input Input) (Output, error) {
	output, err := r.machine.Step(input)
	r.trace.Add(input, output)
	if err == nil {
		r.logger.Debug().Str("input", input.String()).Str("output", output.String()).
			Str("state", r.machine.State().String()).Msg("step")
	}
	return output, err
}

func (r *run) execute(ctx context.Context, status ledger.VotePlanStatus) error {
	output, err := r.step(SyncInput(status))
	for err == nil {
		switch {
		case output.IsClosed():
			return nil
		case output.IsSubmit():
			output, err = r.submit(ctx, output.GetSubmitKind())
		case output.IsAwait():
			output, err = r.confirm(ctx, output.GetAwaitFragment())
		case output.IsRequestShares():
			output, err = r.collectShares(ctx)
		case r.machine.State() == Open:
			output, err = r.waitForTally(ctx)
		default:
			err = protocolError(r.plan, fmt.Errorf("%w: stalled in %s", ErrOutOfOrder, r.machine.State()))
		}
	}
	if !r.machine.Done() {
		_, _ = r.step(FailInput(err))
	}
	return err
}

func (r *run) waitForTally(ctx context.Context) (Output, error) {
	now, err := r.waitForBoundary(ctx, r.machine.TallyStart())
	if err != nil {
		return NoOutput, err
	}
	return r.step(TimeInput(now))
}

func (r *run) submit(ctx context.Context, kind ledger.TxKind) (Output, error) {
	id, applied, err := r.submitWithRetry(ctx, kind)
	if err != nil {
		return NoOutput, err
	}
	if applied != nil {
		r.logger.Info().Str("kind", kind.String()).Msg("tally step already applied on the ledger")
		return r.step(SyncInput(*applied))
	}
	r.logger.Info().Str("kind", kind.String()).Str("fragment", string(id)).Msg("submitted tally transaction")
	return r.step(SubmittedInput(id))
}

func (r *run) confirm(ctx context.Context, id ledger.FragmentID) (Output, error) {
	status, err := r.awaitConfirmation(ctx, id)
	if err != nil {
		return NoOutput, err
	}
	if status.State == ledger.InBlock {
		return r.step(ConfirmedInput(id))
	}

	var reason error = ledger.ErrSubmissionRejected
	if status.Reason != nil {
		reason = status.Reason
	}
	r.dropped++
	r.logger.Info().Err(reason).Str("fragment", string(id)).Uint64("dropped", r.dropped).Msg("tally transaction dropped")
	if r.dropped > r.params.SubmitRetries {
		return NoOutput, protocolError(r.plan, fmt.Errorf("giving up after %d dropped fragments: %w", r.dropped, reason))
	}
	// the counter the dropped fragment used may be free again
	r.wallet.Resync()
	return r.step(RejectedInput(id, reason))
}

// collectShares requests a share from every committee member and feeds them to
// the machine until the threshold is reached.
func (r *run) collectShares(ctx context.Context) (Output, error) {
	status, err := r.ledger.VotePlanStatus(ctx, r.plan)
	if err != nil {
		return NoOutput, err
	}
	output, err := r.step(SyncInput(status))
	if err != nil || !output.IsNone() {
		return output, err
	}
	if r.committee == nil || r.shares == nil {
		return NoOutput, protocolError(r.plan, fmt.Errorf("%w: no committee to request shares from", ErrInsufficientShares))
	}

	var (
		received int
		invalid  error
	)
	for _, res := range r.requestShares(ctx) {
		if res.err != nil {
			r.logger.Info().Err(res.err).Hex("member", res.member).Msg("no share from committee member")
			continue
		}
		output, err = r.step(ShareInput(res.share))
		switch {
		case isInvalidShare(err):
			r.logger.Warn().Err(err).Hex("member", res.member).Msg("skipping invalid share")
			invalid = err
			continue
		case err != nil:
			return NoOutput, err
		}
		received++
		if output.IsSubmit() {
			return output, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return NoOutput, err
	}
	err = fmt.Errorf("%w: received %d of %d, threshold %d",
		ErrInsufficientShares, received, r.committee.Size(), r.committee.Threshold())
	if invalid != nil {
		err = fmt.Errorf("%w, last invalid share: %w", err, invalid)
	}
	return NoOutput, protocolError(r.plan, err)
}

// isInvalidShare reports whether a single member's share was refused while the
// machine can still accept shares from the others.
func isInvalidShare(err error) bool {
	return errors.Is(err, ErrShareMismatch) || errors.Is(err, ErrUnknownMember)
}

func isWalletError(err error) bool {
	var wse *sign.WalletStateError
	return errors.As(err, &wse)
}
