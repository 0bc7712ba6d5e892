package tally

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/pkg/group"
)

type State uint8

const (
	// Open: the vote plan has not been tallied. Exit once the ledger clock
	// reaches the end of voting and the tally transaction is submitted.
	Open State = iota + 1
	// EncryptedTallySubmitted: the encrypted tally of a private plan is
	// awaiting confirmation.
	EncryptedTallySubmitted
	// AwaitingShares: the encrypted tally is on the ledger. Exit once the
	// committee shares for this plan reach the threshold and the decrypted
	// tally is submitted.
	AwaitingShares
	// DecryptedTallySubmitted: the decrypted tally is awaiting confirmation.
	DecryptedTallySubmitted
	// PublicTallySubmitted: the tally of a public plan is awaiting
	// confirmation.
	PublicTallySubmitted
	// Closed is terminal and successful.
	Closed
	// Failed is terminal. Err holds the reason.
	Failed
)

var stateNames = map[State]string{
	Open:                    "open",
	EncryptedTallySubmitted: "encrypted_tally_submitted",
	AwaitingShares:          "awaiting_shares",
	DecryptedTallySubmitted: "decrypted_tally_submitted",
	PublicTallySubmitted:    "public_tally_submitted",
	Closed:                  "closed",
	Failed:                  "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Machine is the tally protocol of a single vote plan written as a single
// threaded Mealy state machine. Every ledger observation, submission result and
// committee share is an input. An input can produce a state transition and an
// output telling the caller what to do next: submit a transaction, await a
// fragment, request shares or nothing.
//
// At most one submission is in flight: after a submit output no other submit is
// produced until the submission is reported or fails.
type Machine struct {
	plan         ledger.VotePlanID
	private      bool
	tallyStart   ledger.BlockDate
	committeeEnd ledger.BlockDate

	state State
	// submitting is set between a submit output and the matching submitted
	// input.
	submitting bool
	inflight   ledger.FragmentID

	encryptedTally []byte
	quorum         *group.Quorum
	shares         map[string]ledger.Share

	err error
}

// NewMachine starts a machine in Open for the plan described by status. Feed
// it SyncInput(status) to resume a tally the ledger has already progressed.
// The committee may be nil for public plans.
func NewMachine(status ledger.VotePlanStatus, committee *group.Committee) *Machine {
	m := &Machine{
		plan:         status.ID,
		private:      status.Private,
		tallyStart:   status.VoteEnd,
		committeeEnd: status.CommitteeEnd,
		state:        Open,
		shares:       make(map[string]ledger.Share),
	}
	if committee != nil {
		m.quorum = group.NewQuorum(committee)
	}
	return m
}

// Step handles a single input according to the tally protocol. Errors are
// *TallyProtocolError values. An input that is out of order for the current
// state is refused without changing it, except when the machine fails.
func (m *Machine) Step(input Input) (Output, error) {
	if m.Done() {
		if input.share != nil {
			return NoOutput, m.outOfOrder("share after the tally is %s", m.state)
		}
		return NoOutput, nil
	}

	switch {
	case input.time != nil:
		return m.onTime(*input.time)
	case input.submitted != nil:
		return m.onSubmitted(*input.submitted)
	case input.confirmed != nil:
		return m.onConfirmed(*input.confirmed)
	case input.rejected != nil:
		return m.onRejected(input.rejected.fragment)
	case input.share != nil:
		return m.onShare(*input.share)
	case input.sync != nil:
		return m.onSync(*input.sync)
	case input.failure != nil:
		m.state = Failed
		m.err = input.failure
		return NoOutput, nil
	default:
		panic("nil input")
	}
}

func (m *Machine) onTime(now ledger.BlockDate) (Output, error) {
	if m.state != Open || m.submitting {
		return NoOutput, nil
	}
	if now.Before(m.tallyStart) {
		return NoOutput, nil
	}
	if !now.Before(m.committeeEnd) {
		return m.fail(fmt.Errorf("%w: it is %s, committee ended at %s", ErrCommitteePeriodOver, now, m.committeeEnd))
	}
	m.submitting = true
	return SubmitOutput(m.nextKind()), nil
}

func (m *Machine) onSubmitted(id ledger.FragmentID) (Output, error) {
	if !m.submitting {
		return NoOutput, m.outOfOrder("fragment %.8s was not requested", id)
	}
	m.submitting = false
	m.inflight = id
	switch m.state {
	case Open:
		if m.private {
			m.state = EncryptedTallySubmitted
		} else {
			m.state = PublicTallySubmitted
		}
	case AwaitingShares:
		m.state = DecryptedTallySubmitted
	}
	return AwaitOutput(id), nil
}

func (m *Machine) onConfirmed(id ledger.FragmentID) (Output, error) {
	if m.inflight == "" || id != m.inflight {
		return NoOutput, m.outOfOrder("confirmation of fragment %.8s which is not in flight", id)
	}
	m.inflight = ""
	switch m.state {
	case EncryptedTallySubmitted:
		m.state = AwaitingShares
		return RequestSharesOutput(), nil
	case PublicTallySubmitted, DecryptedTallySubmitted:
		m.state = Closed
		return ClosedOutput(), nil
	}
	return NoOutput, m.outOfOrder("confirmation in %s", m.state)
}

// onRejected handles a fragment that was accepted for submission but later
// dropped by the ledger. The step is submitted again.
func (m *Machine) onRejected(id ledger.FragmentID) (Output, error) {
	if m.inflight == "" || id != m.inflight {
		return NoOutput, m.outOfOrder("rejection of fragment %.8s which is not in flight", id)
	}
	m.inflight = ""
	switch m.state {
	case EncryptedTallySubmitted, PublicTallySubmitted:
		m.state = Open
	case DecryptedTallySubmitted:
		m.state = AwaitingShares
	}
	m.submitting = true
	return SubmitOutput(m.nextKind()), nil
}

func (m *Machine) onShare(share ledger.Share) (Output, error) {
	if m.state != AwaitingShares {
		return NoOutput, m.outOfOrder("share from %X in %s", share.Member, m.state)
	}
	if share.VotePlan != m.plan {
		return NoOutput, protocolError(m.plan, fmt.Errorf("%w: share from %X is for %s", ErrShareMismatch, share.Member, share.VotePlan))
	}
	if m.quorum == nil {
		return NoOutput, protocolError(m.plan, fmt.Errorf("%w: %X, no committee", ErrUnknownMember, share.Member))
	}
	added, err := m.quorum.Add(share.Member)
	if err != nil {
		if errors.Is(err, group.ErrUnknownMember) {
			return NoOutput, protocolError(m.plan, fmt.Errorf("%w: %X", ErrUnknownMember, share.Member))
		}
		return NoOutput, protocolError(m.plan, err)
	}
	if added {
		m.shares[string(share.Member)] = share
	}
	if m.quorum.Reached() && !m.submitting {
		m.submitting = true
		return SubmitOutput(ledger.DecryptedTally), nil
	}
	return NoOutput, nil
}

// onSync aligns the machine with the ledger's view of the vote plan.
func (m *Machine) onSync(status ledger.VotePlanStatus) (Output, error) {
	if status.ID != m.plan {
		return NoOutput, protocolError(m.plan, fmt.Errorf("%w: status of vote plan %s", ErrOutOfOrder, status.ID))
	}
	switch status.Tally {
	case ledger.Tallied:
		m.state = Closed
		m.submitting = false
		m.inflight = ""
		return ClosedOutput(), nil
	case ledger.Encrypted:
		m.encryptedTally = status.EncryptedTally
		if m.state == Open || m.state == EncryptedTallySubmitted {
			m.state = AwaitingShares
			m.submitting = false
			m.inflight = ""
			return RequestSharesOutput(), nil
		}
	}
	return NoOutput, nil
}

func (m *Machine) nextKind() ledger.TxKind {
	switch {
	case m.state == AwaitingShares:
		return ledger.DecryptedTally
	case m.private:
		return ledger.EncryptedTally
	default:
		return ledger.PublicTally
	}
}

func (m *Machine) fail(err error) (Output, error) {
	perr := protocolError(m.plan, err)
	m.state = Failed
	m.err = perr
	return NoOutput, perr
}

func (m *Machine) outOfOrder(format string, args ...interface{}) error {
	return protocolError(m.plan, fmt.Errorf("%w: %s", ErrOutOfOrder, fmt.Sprintf(format, args...)))
}

// Draft builds the unsigned transaction for a submit output of kind.
func (m *Machine) Draft(kind ledger.TxKind) ledger.Draft {
	d := ledger.Draft{Kind: kind, VotePlan: m.plan}
	if kind == ledger.DecryptedTally {
		d.Shares = m.Shares()
	}
	return d
}

// Shares returns the accepted shares ordered by member.
func (m *Machine) Shares() []ledger.Share {
	shares := make([]ledger.Share, 0, len(m.shares))
	for _, s := range m.shares {
		shares = append(shares, s)
	}
	sort.Slice(shares, func(i, j int) bool {
		return bytes.Compare(shares[i].Member, shares[j].Member) < 0
	})
	return shares
}

func (m *Machine) VotePlan() ledger.VotePlanID {
	return m.plan
}

func (m *Machine) State() State {
	return m.state
}

// TallyStart is the block date from which the tally can be submitted.
func (m *Machine) TallyStart() ledger.BlockDate {
	return m.tallyStart
}

// EncryptedTally is the ledger's reference to the encrypted tally once known.
func (m *Machine) EncryptedTally() []byte {
	return m.encryptedTally
}

func (m *Machine) InFlight() ledger.FragmentID {
	return m.inflight
}

func (m *Machine) Done() bool {
	return m.state == Closed || m.state == Failed
}

func (m *Machine) Err() error {
	return m.err
}

type (
	Input struct {
		time      *ledger.BlockDate
		submitted *ledger.FragmentID
		confirmed *ledger.FragmentID
		rejected  *rejectedEvent
		share     *ledger.Share
		sync      *ledger.VotePlanStatus
		failure   error
	}

	Output struct {
		submit        ledger.TxKind
		await         ledger.FragmentID
		requestShares bool
		closed        bool
	}

	rejectedEvent struct {
		fragment ledger.FragmentID
		reason   error
	}
)

// TimeInput reports the ledger clock.
func TimeInput(now ledger.BlockDate) Input {
	return Input{time: &now}
}

// SubmittedInput reports that the ledger accepted the requested submission.
func SubmittedInput(id ledger.FragmentID) Input {
	return Input{submitted: &id}
}

// ConfirmedInput reports that the fragment in flight is in a block.
func ConfirmedInput(id ledger.FragmentID) Input {
	return Input{confirmed: &id}
}

// RejectedInput reports that the fragment in flight was dropped.
func RejectedInput(id ledger.FragmentID, reason error) Input {
	return Input{rejected: &rejectedEvent{fragment: id, reason: reason}}
}

func ShareInput(share ledger.Share) Input {
	return Input{share: &share}
}

// SyncInput reports the ledger's status of the vote plan.
func SyncInput(status ledger.VotePlanStatus) Input {
	return Input{sync: &status}
}

// FailInput fails the machine with err.
func FailInput(err error) Input {
	if err == nil {
		err = errors.New("failed")
	}
	return Input{failure: err}
}

func (i Input) String() string {
	switch {
	case i.time != nil:
		return fmt.Sprintf("time{%s}", i.time)
	case i.submitted != nil:
		return fmt.Sprintf("submitted{%.8s}", *i.submitted)
	case i.confirmed != nil:
		return fmt.Sprintf("confirmed{%.8s}", *i.confirmed)
	case i.rejected != nil:
		return fmt.Sprintf("rejected{%.8s: %v}", i.rejected.fragment, i.rejected.reason)
	case i.share != nil:
		return fmt.Sprintf("share{%X for %s}", i.share.Member, i.share.VotePlan)
	case i.sync != nil:
		return fmt.Sprintf("sync{%s}", i.sync.Tally)
	case i.failure != nil:
		return fmt.Sprintf("fail{%v}", i.failure)
	default:
		return "none"
	}
}

var NoOutput = Output{}

func SubmitOutput(kind ledger.TxKind) Output {
	return Output{submit: kind}
}

func AwaitOutput(id ledger.FragmentID) Output {
	return Output{await: id}
}

func RequestSharesOutput() Output {
	return Output{requestShares: true}
}

func ClosedOutput() Output {
	return Output{closed: true}
}

func (o Output) IsNone() bool {
	return o == NoOutput
}

func (o Output) IsSubmit() bool {
	return o.submit != 0
}

func (o Output) IsAwait() bool {
	return o.await != ""
}

func (o Output) IsRequestShares() bool {
	return o.requestShares
}

func (o Output) IsClosed() bool {
	return o.closed
}

func (o Output) GetSubmitKind() ledger.TxKind {
	return o.submit
}

func (o Output) GetAwaitFragment() ledger.FragmentID {
	return o.await
}

func (o Output) String() string {
	switch {
	case o.IsSubmit():
		return fmt.Sprintf("submit{%s}", o.submit)
	case o.IsAwait():
		return fmt.Sprintf("await{%.8s}", o.await)
	case o.requestShares:
		return "request_shares"
	case o.closed:
		return "closed"
	default:
		return "none"
	}
}

// Trace records every input and the output it produced.
type Trace struct {
	Input  []Input
	Output []Output
}

func newTrace() *Trace {
	return &Trace{
		Input:  make([]Input, 0),
		Output: make([]Output, 0),
	}
}

func (t *Trace) Add(input Input, output Output) {
	t.Input = append(t.Input, input)
	t.Output = append(t.Output, output)
}

func (t *Trace) String() string {
	str := ""
	for i := 0; i < len(t.Input); i++ {
		str += fmt.Sprintf("%s -> %s\n", t.Input[i].String(), t.Output[i].String())
	}
	return str
}
