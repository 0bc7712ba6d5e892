package sign_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cmwaters/ballot/pkg/sign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counters struct {
	mtx    sync.Mutex
	values map[string]uint32
	reads  int
}

func (c *counters) Counter(_ context.Context, id []byte) (uint32, bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.reads++
	v, ok := c.values[string(id)]
	return v, ok, nil
}

func TestWalletAdvancesOnSuccess(t *testing.T) {
	signer := sign.NewTestSigner()
	source := &counters{values: map[string]uint32{string(signer.ID()): 4}}
	wallet := sign.NewWallet(signer, source)

	var used []uint32
	for i := 0; i < 3; i++ {
		err := wallet.Spend(context.Background(), func(counter uint32) error {
			used = append(used, counter)
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, []uint32{4, 5, 6}, used)
	// the counter is only read once while nothing fails
	require.Equal(t, 1, source.reads)
}

func TestWalletResyncsAfterFailure(t *testing.T) {
	signer := sign.NewTestSigner()
	source := &counters{values: map[string]uint32{string(signer.ID()): 1}}
	wallet := sign.NewWallet(signer, source)
	ctx := context.Background()

	require.NoError(t, wallet.Spend(ctx, func(uint32) error { return nil }))
	counter, ok := wallet.Counter()
	require.True(t, ok)
	require.EqualValues(t, 2, counter)

	rejected := errors.New("rejected")
	err := wallet.Spend(ctx, func(uint32) error { return rejected })
	require.ErrorIs(t, err, rejected)
	_, ok = wallet.Counter()
	require.False(t, ok)

	// the source still says 1 so the wallet starts from there again
	require.NoError(t, wallet.Spend(ctx, func(counter uint32) error {
		require.EqualValues(t, 1, counter)
		return nil
	}))
	require.Equal(t, 2, source.reads)
}

func TestWalletWithoutCounter(t *testing.T) {
	signer := sign.NewTestSigner()
	wallet := sign.NewWallet(signer, &counters{values: map[string]uint32{}})
	called := false
	err := wallet.Spend(context.Background(), func(uint32) error {
		called = true
		return nil
	})
	require.False(t, called)
	var wse *sign.WalletStateError
	require.ErrorAs(t, err, &wse)
	require.ErrorIs(t, err, sign.ErrNoCounter)
	require.Equal(t, signer.ID(), wse.ID)
}

func TestWalletSerializesSpending(t *testing.T) {
	signer := sign.NewTestSigner()
	source := &counters{values: map[string]uint32{string(signer.ID()): 0}}
	wallet := sign.NewWallet(signer, source)

	const n = 20
	seen := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, wallet.Spend(context.Background(), func(counter uint32) error {
				seen <- counter
				return nil
			}))
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint32]bool)
	for c := range seen {
		require.False(t, unique[c], "counter %d used twice", c)
		unique[c] = true
	}
	require.Len(t, unique, n)
}

func TestSignerHighWaterMark(t *testing.T) {
	signer := sign.NewTestSigner()
	ctx := context.Background()
	msg := []byte("fragment")

	sig, err := signer.Sign(ctx, 3, msg)
	require.NoError(t, err)
	require.True(t, signer.ToMember(1).Verify(msg, sig))

	_, err = signer.Sign(ctx, 3, msg)
	require.NoError(t, err)

	_, err = signer.Sign(ctx, 2, msg)
	require.Equal(t, sign.ErrAlreadySigned(3), err)
	require.EqualValues(t, 3, signer.Level())
}
