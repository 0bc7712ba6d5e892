// Package ballot runs a voting node: it casts votes on the ledger and, for
// committee members, tallies vote plans with decryption shares gossiped over
// libp2p.
package ballot

import (
	"bytes"
	"context"
	"errors"
	"os"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/rs/zerolog"

	"github.com/cmwaters/ballot/ledger"
	"github.com/cmwaters/ballot/network"
	"github.com/cmwaters/ballot/p2p"
	"github.com/cmwaters/ballot/pkg/group"
	"github.com/cmwaters/ballot/pkg/sign"
	"github.com/cmwaters/ballot/round"
	"github.com/cmwaters/ballot/tally"
	"github.com/cmwaters/ballot/vote"
)

// DefaultNamespace is the gossip topic decryption shares are exchanged on.
var DefaultNamespace = []byte("ballot/shares/v1")

type Node struct {
	host   host.Host
	gossip network.Gossip
	board  *network.ShareBoard
	wallet *sign.Wallet

	votes *vote.Client
	tally *tally.Coordinator

	logger zerolog.Logger
}

type config struct {
	namespace  []byte
	parameters tally.Parameters
	encryptor  ledger.Encryptor
	converter  ledger.Converter
	logger     zerolog.Logger
}

type Option func(c *config)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func WithParameters(params tally.Parameters) Option {
	return func(c *config) {
		c.parameters = params
	}
}

func WithNamespace(namespace []byte) Option {
	return func(c *config) {
		c.namespace = namespace
	}
}

func WithEncryptor(encryptor ledger.Encryptor) Option {
	return func(c *config) {
		c.encryptor = encryptor
	}
}

func WithConverter(converter ledger.Converter) Option {
	return func(c *config) {
		c.converter = converter
	}
}

// New joins the share gossip on h and sets up vote casting against catalog and
// tallying with wallet on behalf of committee.
func New(
	ctx context.Context,
	h host.Host,
	l ledger.Ledger,
	wallet *sign.Wallet,
	committee *group.Committee,
	catalog *round.Catalog,
	opts ...Option,
) (*Node, error) {
	cfg := &config{
		namespace:  DefaultNamespace,
		parameters: tally.DefaultParameters(),
		logger:     zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.parameters.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.logger.With().Str("peer", h.ID().String()).Logger()

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	gossip, err := p2p.NewNetwork(ps).Gossip(cfg.namespace)
	if err != nil {
		return nil, err
	}
	board := network.NewShareBoard(committee)
	gossip.Notify(board)

	voteOpts := []vote.Option{vote.WithLogger(logger), vote.WithConverter(cfg.converter)}
	if cfg.encryptor != nil {
		voteOpts = append(voteOpts, vote.WithEncryptor(cfg.encryptor))
	}

	return &Node{
		host:   h,
		gossip: gossip,
		board:  board,
		wallet: wallet,
		votes:  vote.NewClient(l, catalog, voteOpts...),
		tally: tally.NewCoordinator(l, wallet, committee, board,
			tally.WithLogger(logger),
			tally.WithParameters(cfg.parameters),
		),
		logger: logger,
	}, nil
}

// Connect dials committee peers given as multiaddrs with a /p2p/ component.
func (n *Node) Connect(ctx context.Context, addrs []string) error {
	peers, err := p2p.ParsePeers(addrs)
	if err != nil {
		return err
	}
	return p2p.Connect(ctx, n.host, peers, n.logger)
}

// VoteFor casts choice from the node's wallet.
func (n *Node) VoteFor(ctx context.Context, votePlanID string, proposalIndex int64, choice round.Choice) (ledger.FragmentID, error) {
	return n.votes.VoteFor(ctx, n.wallet, votePlanID, proposalIndex, choice)
}

// PublishShare gossips this member's decryption share to the committee.
func (n *Node) PublishShare(ctx context.Context, share ledger.Share) error {
	if !bytes.Equal(share.Member, n.wallet.ID()) {
		return errors.New("can only publish the node's own share")
	}
	return n.gossip.BroadcastShare(ctx, &share)
}

func (n *Node) Tally(ctx context.Context, plan ledger.VotePlanID) (tally.Report, error) {
	return n.tally.Run(ctx, plan)
}

func (n *Node) TallyAll(ctx context.Context, plans []ledger.VotePlanID) []tally.Report {
	return n.tally.RunAll(ctx, plans)
}

// Shares returns the shares received for plan so far.
func (n *Node) Shares(plan ledger.VotePlanID) []ledger.Share {
	return n.board.Shares(plan)
}

func (n *Node) Close() error {
	return n.gossip.Close()
}
