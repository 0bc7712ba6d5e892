package round

import (
	"fmt"
	"strings"
)

// VotePlan is the administrative description of a ledger vote plan. The
// ChainVotePlanID is the binding key into the ledger.
type VotePlan struct {
	ID                int32     `json:"id"`
	ChainVotePlanID   string    `json:"chain_voteplan_id"`
	VoteStartTime     Timestamp `json:"chain_vote_start_time"`
	VoteEndTime       Timestamp `json:"chain_vote_end_time"`
	CommitteeEndTime  Timestamp `json:"chain_committee_end_time"`
	Payload           Payload   `json:"chain_voteplan_payload"`
	VoteEncryptionKey string    `json:"chain_vote_encryption_key"`
	FundID            int32     `json:"fund_id"`
}

var votePlanAliases = map[string]string{
	"chainVoteplanId":        "chain_voteplan_id",
	"chainVoteStartTime":     "chain_vote_start_time",
	"chainVoteEndTime":       "chain_vote_end_time",
	"chainCommitteeEnd":      "chain_committee_end_time",
	"chainCommitteeEndTime":  "chain_committee_end_time",
	"chainVoteplanPayload":   "chain_voteplan_payload",
	"chainVoteEncryptionKey": "chain_vote_encryption_key",
	"fundId":                 "fund_id",
}

func (vp *VotePlan) UnmarshalJSON(data []byte) error {
	type plain VotePlan
	var p plain
	if err := decodeAliased("vote_plan", data, votePlanAliases, &p); err != nil {
		return err
	}
	plan := VotePlan(p)
	if err := plan.Validate(); err != nil {
		return err
	}
	*vp = plan
	return nil
}

func (vp VotePlan) Validate() error {
	if err := checkHex("vote_plan", "chain_voteplan_id", vp.ChainVotePlanID); err != nil {
		return err
	}
	if vp.Payload != Public && vp.Payload != Private {
		return formatError("vote_plan", "chain_voteplan_payload", fmt.Errorf("missing payload kind"))
	}
	if vp.VoteStartTime > vp.VoteEndTime {
		return formatError("vote_plan", "chain_vote_end_time",
			fmt.Errorf("voting ends (%s) before it starts (%s)", vp.VoteEndTime, vp.VoteStartTime))
	}
	if vp.VoteEndTime > vp.CommitteeEndTime {
		return formatError("vote_plan", "chain_committee_end_time",
			fmt.Errorf("committee period ends (%s) before voting ends (%s)", vp.CommitteeEndTime, vp.VoteEndTime))
	}
	return nil
}

// PayloadKey returns the payload kind together with the encryption key, which
// is only meaningful for private vote plans.
func (vp VotePlan) PayloadKey() (Payload, string) {
	if vp.Payload == Private {
		return Private, vp.VoteEncryptionKey
	}
	return Public, ""
}

func sameHex(a, b string) bool {
	return strings.EqualFold(a, b)
}
