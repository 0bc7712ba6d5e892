package round

import "errors"

// Proposal is a funding proposal together with its position on the ledger. The
// vote plan id, payload and encryption key are denormalized copies of the
// owning VotePlan; use Resolve to join them explicitly.
type Proposal struct {
	InternalID             int64           `json:"internal_id"`
	ProposalID             string          `json:"proposal_id"`
	Category               Category        `json:"proposal_category"`
	Title                  string          `json:"proposal_title"`
	Summary                string          `json:"proposal_summary"`
	Problem                *string         `json:"proposal_problem"`
	Solution               *string         `json:"proposal_solution"`
	PublicKey              string          `json:"proposal_public_key"`
	Funds                  int64           `json:"proposal_funds"`
	URL                    string          `json:"proposal_url"`
	FilesURL               string          `json:"proposal_files_url"`
	Proposer               Proposer        `json:"proposer"`
	ChainProposalID        ChainProposalID `json:"chain_proposal_id"`
	ChainProposalIndex     int64           `json:"chain_proposal_index"`
	ChainVoteOptions       VoteOptions     `json:"chain_vote_options"`
	ChainVotePlanID        string          `json:"chain_voteplan_id"`
	ChainVotePlanPayload   Payload         `json:"chain_voteplan_payload"`
	ChainVoteEncryptionKey string          `json:"chain_vote_encryption_key"`
}

var proposalAliases = map[string]string{
	"internalId":             "internal_id",
	"proposalId":             "proposal_id",
	"category":               "proposal_category",
	"proposalCategory":       "proposal_category",
	"proposalTitle":          "proposal_title",
	"proposalSummary":        "proposal_summary",
	"proposalProblem":        "proposal_problem",
	"proposalSolution":       "proposal_solution",
	"proposalPublicKey":      "proposal_public_key",
	"proposalFunds":          "proposal_funds",
	"proposalUrl":            "proposal_url",
	"proposalFilesUrl":       "proposal_files_url",
	"chainProposalId":        "chain_proposal_id",
	"chainProposalIndex":     "chain_proposal_index",
	"chainVoteOptions":       "chain_vote_options",
	"chainVoteplanId":        "chain_voteplan_id",
	"chainVoteplanPayload":   "chain_voteplan_payload",
	"chainVoteEncryptionKey": "chain_vote_encryption_key",
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	type plain Proposal
	var pl plain
	if err := decodeAliased("proposal", data, proposalAliases, &pl); err != nil {
		return err
	}
	proposal := Proposal(pl)
	if err := proposal.Validate(); err != nil {
		return err
	}
	*p = proposal
	return nil
}

func (p Proposal) Validate() error {
	if p.ChainProposalIndex < 0 {
		return formatError("proposal", "chain_proposal_index", errors.New("negative index"))
	}
	if p.ChainVotePlanPayload != Public && p.ChainVotePlanPayload != Private {
		return formatError("proposal", "chain_voteplan_payload", errors.New("missing payload kind"))
	}
	return checkHex("proposal", "chain_voteplan_id", p.ChainVotePlanID)
}

// Category groups proposals by theme.
type Category struct {
	ID          string `json:"category_id"`
	Name        string `json:"category_name"`
	Description string `json:"category_description"`
}

var categoryAliases = map[string]string{
	"categoryId":          "category_id",
	"categoryName":        "category_name",
	"categoryDescription": "category_description",
}

func (c *Category) UnmarshalJSON(data []byte) error {
	type plain Category
	var p plain
	if err := decodeAliased("category", data, categoryAliases, &p); err != nil {
		return err
	}
	*c = Category(p)
	return nil
}

type Proposer struct {
	Name  string `json:"proposer_name"`
	Email string `json:"proposer_email"`
	URL   string `json:"proposer_url"`
}

var proposerAliases = map[string]string{
	"proposerName":  "proposer_name",
	"proposerEmail": "proposer_email",
	"proposerUrl":   "proposer_url",
}

func (p *Proposer) UnmarshalJSON(data []byte) error {
	type plain Proposer
	var pl plain
	if err := decodeAliased("proposer", data, proposerAliases, &pl); err != nil {
		return err
	}
	*p = Proposer(pl)
	return nil
}
