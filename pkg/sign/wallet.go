package sign

import (
	"context"
	"sync"
)

var _ Signer = (*Wallet)(nil)

// Wallet pairs a Signer with the spending counter of its account. Submissions
// from one wallet are serialized: the counter is read, used and advanced while
// the wallet is held.
type Wallet struct {
	signer Signer
	source CounterSource

	mtx     sync.Mutex
	counter uint32
	synced  bool
}

func NewWallet(signer Signer, source CounterSource) *Wallet {
	return &Wallet{
		signer: signer,
		source: source,
	}
}

func (w *Wallet) ID() []byte {
	return w.signer.ID()
}

func (w *Wallet) Sign(ctx context.Context, counter uint32, msg []byte) ([]byte, error) {
	return w.signer.Sign(ctx, counter, msg)
}

// Spend runs fn with the next spending counter while holding the wallet. The
// counter advances only when fn succeeds. Any failure drops the cached counter
// so that it is read again from the source on the next call.
func (w *Wallet) Spend(ctx context.Context, fn func(counter uint32) error) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if !w.synced {
		counter, ok, err := w.source.Counter(ctx, w.signer.ID())
		if err != nil {
			return &WalletStateError{ID: w.signer.ID(), Err: err}
		}
		if !ok {
			return &WalletStateError{ID: w.signer.ID(), Err: ErrNoCounter}
		}
		w.counter = counter
		w.synced = true
	}

	if err := fn(w.counter); err != nil {
		w.synced = false
		return err
	}
	w.counter++
	return nil
}

// Resync drops the cached counter.
func (w *Wallet) Resync() {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.synced = false
}

// Counter returns the cached counter and whether one is cached.
func (w *Wallet) Counter() (uint32, bool) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.counter, w.synced
}
