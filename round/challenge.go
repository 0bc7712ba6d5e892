package round

import "fmt"

type ChallengeType uint8

const (
	Simple ChallengeType = iota + 1
	CommunityChoice
)

func (t ChallengeType) String() string {
	switch t {
	case Simple:
		return "simple"
	case CommunityChoice:
		return "community-choice"
	default:
		return fmt.Sprintf("challenge(%d)", uint8(t))
	}
}

func (t ChallengeType) MarshalText() ([]byte, error) {
	if t != Simple && t != CommunityChoice {
		return nil, formatError("challenge", "challenge_type", fmt.Errorf("unknown challenge type %d", uint8(t)))
	}
	return []byte(t.String()), nil
}

func (t *ChallengeType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "simple":
		*t = Simple
	case "community-choice":
		*t = CommunityChoice
	default:
		return formatError("challenge", "challenge_type", fmt.Errorf("unknown challenge type %q", text))
	}
	return nil
}

type Challenge struct {
	ID               int32         `json:"id"`
	Type             ChallengeType `json:"challenge_type"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	RewardsTotal     int64         `json:"rewards_total"`
	ProposersRewards int64         `json:"proposers_rewards"`
	FundID           int32         `json:"fund_id"`
	URL              string        `json:"challenge_url"`
}

var challengeAliases = map[string]string{
	"challengeType":    "challenge_type",
	"rewardsTotal":     "rewards_total",
	"proposersRewards": "proposers_rewards",
	"fundId":           "fund_id",
	"challengeUrl":     "challenge_url",
}

func (c *Challenge) UnmarshalJSON(data []byte) error {
	type plain Challenge
	var p plain
	if err := decodeAliased("challenge", data, challengeAliases, &p); err != nil {
		return err
	}
	if p.Type == 0 {
		return formatError("challenge", "challenge_type", fmt.Errorf("missing challenge type"))
	}
	*c = Challenge(p)
	return nil
}
