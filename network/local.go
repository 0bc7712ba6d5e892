package network

import (
	"context"
	"errors"
	"sync"

	"github.com/cmwaters/ballot/ledger"
)

var _ Network = (*LocalNetwork)(nil)

// LocalNetwork connects gossips within a single process. Every gossip joined
// on the same namespace receives every share broadcast on it, including its
// own.
type LocalNetwork struct {
	mtx    sync.Mutex
	topics map[string][]*LocalGossip
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		topics: make(map[string][]*LocalGossip),
	}
}

func (n *LocalNetwork) Gossip(namespace []byte) (Gossip, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	g := &LocalGossip{network: n, namespace: string(namespace)}
	n.topics[g.namespace] = append(n.topics[g.namespace], g)
	return g, nil
}

func (n *LocalNetwork) peers(namespace string) []*LocalGossip {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]*LocalGossip(nil), n.topics[namespace]...)
}

func (n *LocalNetwork) leave(g *LocalGossip) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	peers := n.topics[g.namespace]
	for i, p := range peers {
		if p == g {
			n.topics[g.namespace] = append(peers[:i], peers[i+1:]...)
			return
		}
	}
}

var ErrClosed = errors.New("gossip closed")

type LocalGossip struct {
	network   *LocalNetwork
	namespace string

	mtx       sync.RWMutex
	notifiees []Notifiee
	closed    bool
}

// BroadcastShare validates the share with the local notifiees first, like a
// pubsub validator would, and then delivers it to every other peer. Rejections
// by other peers do not fail the broadcast.
func (l *LocalGossip) BroadcastShare(ctx context.Context, share *ledger.Share) error {
	if l.isClosed() {
		return ErrClosed
	}
	if err := l.deliver(ctx, share); err != nil {
		return err
	}
	for _, peer := range l.network.peers(l.namespace) {
		if peer == l {
			continue
		}
		_ = peer.deliver(ctx, share)
	}
	return nil
}

func (l *LocalGossip) Notify(notifiee Notifiee) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.notifiees = append(l.notifiees, notifiee)
}

func (l *LocalGossip) Close() error {
	l.mtx.Lock()
	l.closed = true
	l.notifiees = nil
	l.mtx.Unlock()
	l.network.leave(l)
	return nil
}

func (l *LocalGossip) deliver(ctx context.Context, share *ledger.Share) error {
	l.mtx.RLock()
	notifiees := append([]Notifiee(nil), l.notifiees...)
	l.mtx.RUnlock()
	for _, n := range notifiees {
		// each notifiee gets its own copy
		cp := *share
		if err := n.OnShare(ctx, &cp); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalGossip) isClosed() bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.closed
}
