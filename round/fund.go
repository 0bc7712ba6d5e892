package round

import "fmt"

// Fund is a single funding round together with the vote plans and challenges
// it owns.
type Fund struct {
	ID                       int32       `json:"id"`
	Name                     string      `json:"fund_name"`
	Goal                     string      `json:"fund_goal"`
	VotingPowerThreshold     uint64      `json:"voting_power_threshold"`
	RewardsInfo              string      `json:"rewards_info"`
	StartTime                Timestamp   `json:"fund_start_time"`
	EndTime                  Timestamp   `json:"fund_end_time"`
	NextStartTime            Timestamp   `json:"next_fund_start_time"`
	RegistrationSnapshotTime string      `json:"registration_snapshot_time"`
	VotePlans                []VotePlan  `json:"chain_vote_plans"`
	Challenges               []Challenge `json:"challenges"`
	VotingPowerInfo          string      `json:"voting_power_info"`
}

var fundAliases = map[string]string{
	"fundName":                 "fund_name",
	"fundGoal":                 "fund_goal",
	"votingPowerThreshold":     "voting_power_threshold",
	"threshold":                "voting_power_threshold",
	"rewardsInfo":              "rewards_info",
	"fundStartTime":            "fund_start_time",
	"fundEndTime":              "fund_end_time",
	"nextFundStartTime":        "next_fund_start_time",
	"registrationSnapshotTime": "registration_snapshot_time",
	"chainVotePlans":           "chain_vote_plans",
	"votingPowerInfo":          "voting_power_info",
}

func (f *Fund) UnmarshalJSON(data []byte) error {
	type plain Fund
	var p plain
	if err := decodeAliased("fund", data, fundAliases, &p); err != nil {
		return err
	}
	fund := Fund(p)
	if err := fund.Validate(); err != nil {
		return err
	}
	*f = fund
	return nil
}

// Validate checks the invariants of the fund record itself. Owned vote plans
// are validated when they are decoded.
func (f Fund) Validate() error {
	if f.StartTime >= f.EndTime {
		return formatError("fund", "fund_end_time",
			fmt.Errorf("fund ends (%s) before it starts (%s)", f.EndTime, f.StartTime))
	}
	return nil
}

// VotePlan returns the owned vote plan with the given ledger id.
func (f Fund) VotePlan(chainVotePlanID string) (VotePlan, bool) {
	for _, vp := range f.VotePlans {
		if sameHex(vp.ChainVotePlanID, chainVotePlanID) {
			return vp, true
		}
	}
	return VotePlan{}, false
}

// Challenge returns the owned challenge with the given id.
func (f Fund) Challenge(id int32) (Challenge, bool) {
	for _, c := range f.Challenges {
		if c.ID == id {
			return c, true
		}
	}
	return Challenge{}, false
}
