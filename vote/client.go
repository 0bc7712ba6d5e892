package vote

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/pkg/sign"
	"github.com/cmwaters/ballot/round"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownProposal is returned when the catalog has no proposal at the
	// requested vote plan and index.
	ErrUnknownProposal = errors.New("unknown proposal")
	// ErrNoEncryptor is returned when voting on a private plan without an
	// Encryptor.
	ErrNoEncryptor = errors.New("no encryptor for private vote plans")
)

// Client casts votes from wallets. It does not check choices against the
// proposal's options and never retries a rejected vote.
type Client struct {
	submitter ledger.Submitter
	catalog   *round.Catalog
	converter ledger.Converter
	encryptor ledger.Encryptor
	logger    zerolog.Logger
}

type Option func(c *Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConverter sets the conversion policy. The default is lenient.
func WithConverter(converter ledger.Converter) Option {
	return func(c *Client) {
		c.converter = converter
	}
}

// WithEncryptor sets how choices on private vote plans are encrypted.
func WithEncryptor(encryptor ledger.Encryptor) Option {
	return func(c *Client) {
		c.encryptor = encryptor
	}
}

func NewClient(submitter ledger.Submitter, catalog *round.Catalog, opts ...Option) *Client {
	c := &Client{
		submitter: submitter,
		catalog:   catalog,
		logger:    zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VoteFor casts choice on the proposal at proposalIndex of the vote plan.
func (c *Client) VoteFor(
	ctx context.Context,
	wallet *sign.Wallet,
	votePlanID string,
	proposalIndex int64,
	choice round.Choice,
) (ledger.FragmentID, error) {
	rp, ok := c.catalog.Proposal(votePlanID, proposalIndex)
	if !ok {
		return "", fmt.Errorf("%w: %d in vote plan %s", ErrUnknownProposal, proposalIndex, votePlanID)
	}
	in, err := c.converter.ToVotingInstruction(rp)
	if err != nil {
		return "", err
	}
	return c.Vote(ctx, wallet, in, choice)
}

// Vote builds, signs and submits a vote for in. The fragment is signed with
// the wallet's next spending counter.
func (c *Client) Vote(ctx context.Context, wallet *sign.Wallet, in ledger.Instruction, choice round.Choice) (ledger.FragmentID, error) {
	var ciphertext []byte
	if in.Payload == round.Private {
		if c.encryptor == nil {
			return "", ErrNoEncryptor
		}
		var err error
		ciphertext, err = c.encryptor.Encrypt(in.EncryptionKey, choice, in.Options)
		if err != nil {
			return "", fmt.Errorf("encrypting vote: %w", err)
		}
	}
	draft := ledger.VoteDraft(in, choice, ciphertext)

	var id ledger.FragmentID
	err := wallet.Spend(ctx, func(counter uint32) error {
		bz, err := ledger.Seal(ctx, wallet, counter, draft)
		if err != nil {
			return err
		}
		id, err = c.submitter.Submit(ctx, bz)
		return err
	})
	if err != nil {
		c.logger.Info().
			Err(err).
			Str("vote_plan", in.VotePlan.String()).
			Uint8("proposal", in.Proposal).
			Msg("vote not submitted")
		return "", err
	}
	c.logger.Debug().
		Str("vote_plan", in.VotePlan.String()).
		Uint8("proposal", in.Proposal).
		Str("fragment", string(id)).
		Msg("vote submitted")
	return id, nil
}

// Describe renders a choice on a catalogued proposal.
func (c *Client) Describe(votePlanID string, proposalIndex int64, choice round.Choice) (round.VoteStatus, error) {
	rp, ok := c.catalog.Proposal(votePlanID, proposalIndex)
	if !ok {
		return round.VoteStatus{}, fmt.Errorf("%w: %d in vote plan %s", ErrUnknownProposal, proposalIndex, votePlanID)
	}
	return round.StatusOf(rp.Proposal, choice), nil
}
