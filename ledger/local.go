package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cmwaters/ballot/pkg/group"
	"github.com/cmwaters/ballot/round"
)

var _ Ledger = (*Local)(nil)

// Local is an in-memory ledger for tests and local networks. Fragments are
// applied as soon as they are accepted. Confirmation can be delayed by a
// number of status polls and rejections can be injected.
type Local struct {
	era       Era
	committee *group.Committee
	encryptor LocalEncryptor

	mtx          sync.Mutex
	now          BlockDate
	tick         uint32
	accounts     map[string]*account
	plans        map[VotePlanID]*localPlan
	fragments    map[FragmentID]*fragmentRecord
	submissions  int
	applied      map[TxKind]int
	rejectQueue  []RejectReason
	confirmAfter int
}

type account struct {
	member  group.Member
	counter uint32
}

type localPlan struct {
	status    VotePlanStatus
	key       []byte
	proposals []*localProposal
}

type localProposal struct {
	options uint8
	votes   map[string]localVote
	result  []uint64
}

type localVote struct {
	weight     uint64
	choice     uint8
	ciphertext []byte
}

type fragmentRecord struct {
	status FragmentStatus
	polls  int
}

// NewLocal creates an empty ledger. The committee signs tally transactions and
// supplies decryption shares.
func NewLocal(era Era, committee *group.Committee) *Local {
	return &Local{
		era:       era,
		committee: committee,
		accounts:  make(map[string]*account),
		plans:     make(map[VotePlanID]*localPlan),
		fragments: make(map[FragmentID]*fragmentRecord),
		applied:   make(map[TxKind]int),
	}
}

func (l *Local) Era() Era {
	return l.era
}

// AddAccount registers an account with a spending counter of zero. The member
// weight is the account's voting power.
func (l *Local) AddAccount(member group.Member) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.accounts[string(member.ID())] = &account{member: member}
}

// AddVotePlan registers vp with its proposals. Proposal indexes must be exactly
// 0..len(proposals)-1.
func (l *Local) AddVotePlan(vp round.VotePlan, proposals []round.Proposal) (VotePlanID, error) {
	id, err := ParseVotePlanID(vp.ChainVotePlanID)
	if err != nil {
		return id, err
	}
	p := &localPlan{
		status: VotePlanStatus{
			ID:           id,
			Private:      vp.Payload == round.Private,
			VoteStart:    l.era.DateAt(vp.VoteStartTime),
			VoteEnd:      l.era.DateAt(vp.VoteEndTime),
			CommitteeEnd: l.era.DateAt(vp.CommitteeEndTime),
		},
		proposals: make([]*localProposal, len(proposals)),
	}
	if p.status.Private {
		p.key, err = decodeKey(vp.VoteEncryptionKey)
		if err != nil {
			return id, fmt.Errorf("%w: %v", ErrInvalidEncryptionKey, err)
		}
	}
	for _, proposal := range proposals {
		idx := proposal.ChainProposalIndex
		if idx < 0 || idx >= int64(len(proposals)) || p.proposals[idx] != nil {
			return id, fmt.Errorf("proposal %s has index %d out of %d", proposal.ProposalID, idx, len(proposals))
		}
		options := proposal.ChainVoteOptions.Len()
		if options == 0 || options > MaxOptions {
			return id, fmt.Errorf("%w: %d", ErrInvalidOptionCount, options)
		}
		p.proposals[idx] = &localProposal{
			options: uint8(options),
			votes:   make(map[string]localVote),
		}
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if _, exists := l.plans[id]; exists {
		return id, fmt.Errorf("vote plan %s already exists", id)
	}
	l.plans[id] = p
	return id, nil
}

// SetDate moves the ledger clock to d.
func (l *Local) SetDate(d BlockDate) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.now = d
}

// Advance moves the ledger clock forward by n slots.
func (l *Local) Advance(n uint32) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.now = l.era.Add(l.now, n)
}

// AdvanceOnPoll makes every call to Now move the clock forward by n slots
// after reporting the current date.
func (l *Local) AdvanceOnPoll(n uint32) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.tick = n
}

// RejectNext refuses the next n submissions with reason before looking at them.
func (l *Local) RejectNext(reason RejectReason, n int) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for i := 0; i < n; i++ {
		l.rejectQueue = append(l.rejectQueue, reason)
	}
}

// ConfirmAfter keeps accepted fragments pending for the given number of status
// polls.
func (l *Local) ConfirmAfter(polls int) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.confirmAfter = polls
}

// Submissions counts every call to Submit, accepted or not.
func (l *Local) Submissions() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.submissions
}

// Applied counts accepted fragments of kind.
func (l *Local) Applied(kind TxKind) int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.applied[kind]
}

// Counter implements sign.CounterSource.
func (l *Local) Counter(ctx context.Context, id []byte) (uint32, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	acc, ok := l.accounts[string(id)]
	if !ok {
		return 0, false, nil
	}
	return acc.counter, true, nil
}

func (l *Local) Now(ctx context.Context) (BlockDate, error) {
	if err := ctx.Err(); err != nil {
		return BlockDate{}, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	now := l.now
	if l.tick > 0 {
		l.now = l.era.Add(l.now, l.tick)
	}
	return now, nil
}

func (l *Local) Submit(ctx context.Context, bz []byte) (FragmentID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := FragmentIDOf(bz)

	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.submissions++

	reject := func(reason RejectReason, msg string) (FragmentID, error) {
		rej := &SubmissionRejected{Fragment: id, Reason: reason, Message: msg}
		l.fragments[id] = &fragmentRecord{status: FragmentStatus{State: Rejected, Reason: rej}}
		return id, rej
	}

	if len(l.rejectQueue) > 0 {
		reason := l.rejectQueue[0]
		l.rejectQueue = l.rejectQueue[1:]
		return reject(reason, "refused by test network")
	}
	if rec, ok := l.fragments[id]; ok && rec.status.State != Rejected {
		return id, &SubmissionRejected{Fragment: id, Reason: Invalid, Message: "fragment already submitted"}
	}
	frag, err := DecodeFragment(bz)
	if err != nil {
		return reject(Invalid, err.Error())
	}
	acc, ok := l.accounts[string(frag.Sender)]
	if !ok {
		return reject(Invalid, fmt.Sprintf("unknown account %X", frag.Sender))
	}
	msg, err := frag.SignBytes()
	if err != nil || !acc.member.Verify(msg, frag.Signature) {
		return reject(Invalid, "bad signature")
	}
	if frag.Counter != acc.counter {
		return reject(StaleCounter, fmt.Sprintf("account is at counter %d, fragment has %d", acc.counter, frag.Counter))
	}
	if err := l.apply(frag, acc); err != nil {
		return reject(Invalid, err.Error())
	}

	acc.counter++
	l.applied[frag.Kind]++
	rec := &fragmentRecord{
		status: FragmentStatus{State: Pending},
		polls:  l.confirmAfter,
	}
	if rec.polls == 0 {
		rec.status = FragmentStatus{State: InBlock, Block: l.now}
	}
	l.fragments[id] = rec
	return id, nil
}

func (l *Local) FragmentStatus(ctx context.Context, id FragmentID) (FragmentStatus, error) {
	if err := ctx.Err(); err != nil {
		return FragmentStatus{}, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	rec, ok := l.fragments[id]
	if !ok {
		return FragmentStatus{}, fmt.Errorf("%w: %s", ErrUnknownFragment, id)
	}
	if rec.status.State == Pending {
		rec.polls--
		if rec.polls <= 0 {
			rec.status = FragmentStatus{State: InBlock, Block: l.now}
		}
	}
	return rec.status, nil
}

func (l *Local) VotePlanStatus(ctx context.Context, id VotePlanID) (VotePlanStatus, error) {
	if err := ctx.Err(); err != nil {
		return VotePlanStatus{}, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	p, ok := l.plans[id]
	if !ok {
		return VotePlanStatus{}, fmt.Errorf("%w: %s", ErrUnknownVotePlan, id)
	}
	status := p.status
	status.EncryptedTally = append([]byte(nil), p.status.EncryptedTally...)
	status.Proposals = make([]ProposalStatus, len(p.proposals))
	for i, prop := range p.proposals {
		status.Proposals[i] = ProposalStatus{
			Index:     uint8(i),
			Options:   prop.options,
			VotesCast: len(prop.votes),
		}
		if prop.result != nil {
			status.Proposals[i].Result = append([]uint64(nil), prop.result...)
		}
	}
	return status, nil
}

func (l *Local) apply(frag Fragment, acc *account) error {
	p, ok := l.plans[frag.VotePlan]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVotePlan, frag.VotePlan)
	}
	switch frag.Kind {
	case VoteCast:
		return l.applyVote(p, frag, acc)
	case PublicTally, EncryptedTally, DecryptedTally:
		if l.now.Before(p.status.VoteEnd) || !l.now.Before(p.status.CommitteeEnd) {
			return fmt.Errorf("%s outside of the tally period at %s", frag.Kind, l.now)
		}
		if l.committee == nil {
			return errors.New("no committee")
		}
		if member, _ := l.committee.GetMemberByID(frag.Sender); member == nil {
			return fmt.Errorf("%X is not a committee member", frag.Sender)
		}
	default:
		return fmt.Errorf("unknown transaction kind %s", frag.Kind)
	}

	switch frag.Kind {
	case PublicTally:
		if p.status.Private {
			return errors.New("public tally of a private vote plan")
		}
		if p.status.Tally != NotTallied {
			return errors.New("vote plan already tallied")
		}
		for _, prop := range p.proposals {
			prop.result = make([]uint64, prop.options)
			for _, v := range prop.votes {
				prop.result[v.choice] += v.weight
			}
		}
		p.status.Tally = Tallied

	case EncryptedTally:
		if !p.status.Private {
			return errors.New("encrypted tally of a public vote plan")
		}
		if p.status.Tally != NotTallied {
			return fmt.Errorf("vote plan tally is already %s", p.status.Tally)
		}
		p.status.EncryptedTally = aggregate(frag.VotePlan, p.proposals)
		p.status.Tally = Encrypted

	case DecryptedTally:
		if p.status.Tally != Encrypted {
			return fmt.Errorf("vote plan tally is %s, not encrypted", p.status.Tally)
		}
		quorum := group.NewQuorum(l.committee)
		for _, share := range frag.Shares {
			if share.VotePlan != frag.VotePlan {
				return fmt.Errorf("share for vote plan %s", share.VotePlan)
			}
			if !bytes.Equal(share.Data, ShareData(frag.VotePlan, share.Member, p.status.EncryptedTally)) {
				return fmt.Errorf("invalid share from %X", share.Member)
			}
			if _, err := quorum.Add(share.Member); err != nil {
				return err
			}
		}
		if !quorum.Reached() {
			return fmt.Errorf("shares weigh %d, need %d", quorum.Weight(), l.committee.Threshold())
		}
		results := make([][]uint64, len(p.proposals))
		for i, prop := range p.proposals {
			results[i] = make([]uint64, prop.options)
			for _, v := range prop.votes {
				choice, err := l.encryptor.decrypt(p.key, v.ciphertext)
				if err != nil {
					return err
				}
				results[i][choice] += v.weight
			}
		}
		for i, prop := range p.proposals {
			prop.result = results[i]
		}
		p.status.Tally = Tallied
	}
	return nil
}

func (l *Local) applyVote(p *localPlan, frag Fragment, acc *account) error {
	if l.now.Before(p.status.VoteStart) || !l.now.Before(p.status.VoteEnd) {
		return fmt.Errorf("vote outside of the voting period at %s", l.now)
	}
	if int(frag.Proposal) >= len(p.proposals) {
		return fmt.Errorf("no proposal %d in vote plan %s", frag.Proposal, frag.VotePlan)
	}
	prop := p.proposals[frag.Proposal]
	if _, voted := prop.votes[string(frag.Sender)]; voted {
		return fmt.Errorf("account already voted on proposal %d", frag.Proposal)
	}
	v := localVote{weight: acc.member.Weight()}
	if p.status.Private {
		if len(frag.Ciphertext) == 0 {
			return errors.New("private vote plan needs an encrypted vote")
		}
		choice, err := l.encryptor.decrypt(p.key, frag.Ciphertext)
		if err != nil {
			return err
		}
		if choice >= prop.options {
			return fmt.Errorf("choice out of range for %d options", prop.options)
		}
		v.ciphertext = frag.Ciphertext
	} else {
		if len(frag.Ciphertext) != 0 {
			return errors.New("public vote plan needs a clear vote")
		}
		if frag.Choice >= prop.options {
			return fmt.Errorf("choice %d out of range for %d options", frag.Choice, prop.options)
		}
		v.choice = frag.Choice
	}
	prop.votes[string(frag.Sender)] = v
	return nil
}

// aggregate stands in for the homomorphic sum of a plan's encrypted votes.
func aggregate(id VotePlanID, proposals []*localProposal) []byte {
	h := sha256.New()
	h.Write(id[:])
	for _, prop := range proposals {
		voters := make([]string, 0, len(prop.votes))
		for voter := range prop.votes {
			voters = append(voters, voter)
		}
		sort.Strings(voters)
		for _, voter := range voters {
			h.Write([]byte(voter))
			h.Write(prop.votes[voter].ciphertext)
		}
	}
	return h.Sum(nil)
}
