package network

import (
	"context"
	"io"

	"github.com/cmwaters/ballot/ledger"
)

type Network interface {
	Gossip(namespace []byte) (Gossip, error)
}

// Gossip is an interface which allows committee members to both broadcast
// and receive decryption shares to and from other nodes in the network. It
// must eventually propagate shares to all non-faulty nodes within the
// network. How this is done, whether flooding or some form of content
// addressing, is left to the implementer.
type Gossip interface {
	io.Closer
	Broadcaster
	Notifier
}

type Broadcaster interface {
	BroadcastShare(context.Context, *ledger.Share) error
}

type Notifier interface {
	// Notify registers Notifiee wishing to receive notifications about new messages.
	// Any non-nil error returned from On... handlers rejects the message as invalid.
	Notify(Notifiee)
}

type Notifiee interface {
	OnShare(context.Context, *ledger.Share) error
}
