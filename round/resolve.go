package round

import (
	"fmt"
	"strings"
)

// ResolvedProposal is a Proposal joined with its owning VotePlan. The vote plan
// id, payload and encryption key always come from the plan.
type ResolvedProposal struct {
	Proposal
	VotePlanID    string
	Payload       Payload
	EncryptionKey string

	stale []string
}

// Resolve joins p with plan. It fails with ErrVotePlanMismatch when the
// proposal does not belong to the plan.
func Resolve(p Proposal, plan VotePlan) (ResolvedProposal, error) {
	if !sameHex(p.ChainVotePlanID, plan.ChainVotePlanID) {
		return ResolvedProposal{}, fmt.Errorf("%w: proposal %s belongs to %s, not %s",
			ErrVotePlanMismatch, p.ProposalID, p.ChainVotePlanID, plan.ChainVotePlanID)
	}
	payload, key := plan.PayloadKey()
	rp := ResolvedProposal{
		Proposal:      p,
		VotePlanID:    plan.ChainVotePlanID,
		Payload:       payload,
		EncryptionKey: key,
	}
	if p.ChainVotePlanPayload != plan.Payload {
		rp.stale = append(rp.stale, "chain_voteplan_payload")
	}
	if payload == Private && p.ChainVoteEncryptionKey != plan.VoteEncryptionKey {
		rp.stale = append(rp.stale, "chain_vote_encryption_key")
	}
	return rp, nil
}

// ResolveDenormalized trusts the copies carried by the proposal itself.
func ResolveDenormalized(p Proposal) ResolvedProposal {
	rp := ResolvedProposal{
		Proposal:   p,
		VotePlanID: p.ChainVotePlanID,
		Payload:    p.ChainVotePlanPayload,
	}
	if p.ChainVotePlanPayload == Private {
		rp.EncryptionKey = p.ChainVoteEncryptionKey
	}
	return rp
}

// Stale reports whether the proposal's denormalized copies disagreed with the
// plan it was resolved against.
func (rp ResolvedProposal) Stale() bool {
	return len(rp.stale) > 0
}

func (rp ResolvedProposal) StaleFields() []string {
	return append([]string(nil), rp.stale...)
}

// Index is the proposal's position within its vote plan.
func (rp ResolvedProposal) Index() int64 {
	return rp.ChainProposalIndex
}

type catalogKey struct {
	plan  string
	index int64
}

// Catalog indexes resolved proposals by vote plan id and proposal index.
type Catalog struct {
	plans     map[string]VotePlan
	proposals map[catalogKey]ResolvedProposal
}

// NewCatalog resolves every proposal against its plan. A proposal whose plan is
// not in plans is an error.
func NewCatalog(plans []VotePlan, proposals []Proposal) (*Catalog, error) {
	c := &Catalog{
		plans:     make(map[string]VotePlan, len(plans)),
		proposals: make(map[catalogKey]ResolvedProposal, len(proposals)),
	}
	for _, plan := range plans {
		c.plans[strings.ToLower(plan.ChainVotePlanID)] = plan
	}
	for _, p := range proposals {
		id := strings.ToLower(p.ChainVotePlanID)
		plan, ok := c.plans[id]
		if !ok {
			return nil, fmt.Errorf("%w: no vote plan %s for proposal %s", ErrVotePlanMismatch, p.ChainVotePlanID, p.ProposalID)
		}
		rp, err := Resolve(p, plan)
		if err != nil {
			return nil, err
		}
		key := catalogKey{plan: id, index: p.ChainProposalIndex}
		if _, exists := c.proposals[key]; exists {
			return nil, formatError("proposal", "chain_proposal_index",
				fmt.Errorf("duplicate index %d in vote plan %s", p.ChainProposalIndex, p.ChainVotePlanID))
		}
		c.proposals[key] = rp
	}
	return c, nil
}

func (c *Catalog) Proposal(votePlanID string, index int64) (ResolvedProposal, bool) {
	rp, ok := c.proposals[catalogKey{plan: strings.ToLower(votePlanID), index: index}]
	return rp, ok
}

func (c *Catalog) VotePlan(votePlanID string) (VotePlan, bool) {
	plan, ok := c.plans[strings.ToLower(votePlanID)]
	return plan, ok
}

// VoteStatus describes a choice made for a proposal in human readable form.
type VoteStatus struct {
	ChainProposalID ChainProposalID
	Title           string
	Choice          string
}

// StatusOf labels choice using the proposal's options. Unknown codes are
// rendered numerically.
func StatusOf(p Proposal, choice Choice) VoteStatus {
	label, ok := p.ChainVoteOptions.OptionText(choice)
	if !ok {
		label = fmt.Sprintf("%d", choice)
	}
	return VoteStatus{
		ChainProposalID: p.ChainProposalID,
		Title:           p.Title,
		Choice:          label,
	}
}

func (s VoteStatus) String() string {
	return fmt.Sprintf("# %s, '%s' -> Choice:  %s", s.ChainProposalID, s.Title, s.Choice)
}
