package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// ShareData is the decryption share a committee member holds for a vote plan's
// encrypted tally on the Local ledger.
func ShareData(plan VotePlanID, member, encryptedTally []byte) []byte {
	h := sha256.New()
	h.Write(plan[:])
	h.Write(member)
	h.Write(encryptedTally)
	return h.Sum(nil)
}

// LocalCommittee hands out the decryption shares of the Local ledger's
// committee.
type LocalCommittee struct {
	ledger *Local
}

func NewLocalCommittee(l *Local) *LocalCommittee {
	return &LocalCommittee{ledger: l}
}

func (c *LocalCommittee) RequestShare(ctx context.Context, plan VotePlanID, member []byte) (Share, error) {
	if c.ledger.committee == nil {
		return Share{}, fmt.Errorf("no committee")
	}
	if m, _ := c.ledger.committee.GetMemberByID(member); m == nil {
		return Share{}, fmt.Errorf("%X is not a committee member", member)
	}
	status, err := c.ledger.VotePlanStatus(ctx, plan)
	if err != nil {
		return Share{}, err
	}
	if status.Tally != Encrypted {
		return Share{}, fmt.Errorf("vote plan %s has no encrypted tally to decrypt", plan)
	}
	return Share{
		VotePlan: plan,
		Member:   member,
		Data:     ShareData(plan, member, status.EncryptedTally),
	}, nil
}
