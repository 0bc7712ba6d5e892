package ledger

import "context"

type (
	// Ledger is the view of the ledger shared by vote casting and tallying.
	Ledger interface {
		Submitter
		StatusReader
		Clock
	}

	// Submitter appends fragments to the ledger. A refused fragment returns
	// a *SubmissionRejected.
	Submitter interface {
		Submit(ctx context.Context, fragment []byte) (FragmentID, error)
	}

	StatusReader interface {
		FragmentStatus(ctx context.Context, id FragmentID) (FragmentStatus, error)
		VotePlanStatus(ctx context.Context, id VotePlanID) (VotePlanStatus, error)
	}

	Clock interface {
		Now(ctx context.Context) (BlockDate, error)
	}
)

type FragmentState uint8

const (
	Pending FragmentState = iota + 1
	InBlock
	Rejected
)

func (s FragmentState) String() string {
	switch s {
	case Pending:
		return "pending"
	case InBlock:
		return "in_block"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type FragmentStatus struct {
	State FragmentState
	// Block is set once the fragment is in a block.
	Block BlockDate
	// Reason is set when the fragment was rejected after submission.
	Reason *SubmissionRejected
}

// TallyState is how far a vote plan's tally has progressed on the ledger.
type TallyState uint8

const (
	NotTallied TallyState = iota
	Encrypted
	Tallied
)

func (s TallyState) String() string {
	switch s {
	case NotTallied:
		return "none"
	case Encrypted:
		return "encrypted"
	case Tallied:
		return "tallied"
	default:
		return "unknown"
	}
}

type VotePlanStatus struct {
	ID           VotePlanID
	Private      bool
	VoteStart    BlockDate
	VoteEnd      BlockDate
	CommitteeEnd BlockDate
	Tally        TallyState
	// EncryptedTally references the ledger's aggregate of private votes once
	// the encrypted tally is applied.
	EncryptedTally []byte
	Proposals      []ProposalStatus
}

type ProposalStatus struct {
	Index     uint8
	Options   uint8
	VotesCast int
	// Result holds the weight behind each option, in option code order, once
	// the plan is tallied.
	Result []uint64
}
