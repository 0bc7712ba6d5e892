package sign

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/cmwaters/ballot/pkg/group"
)

var _ Signer = (*TestSigner)(nil)

type TestSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	mtx    sync.Mutex
	signed bool
	level  uint32
}

func NewTestSigner() *TestSigner {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &TestSigner{
		privateKey: priv,
		publicKey:  pub,
	}
}

// Sign signs msg at counter. Counters below the highest one signed so far are
// refused. Signing again at the same counter is allowed since the ledger did
// not necessarily accept the earlier fragment.
func (s *TestSigner) Sign(ctx context.Context, counter uint32, msg []byte) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.signed && counter < s.level {
		return nil, ErrAlreadySigned(s.level)
	}
	s.signed = true
	s.level = counter
	return ed25519.Sign(s.privateKey, msg), nil
}

func (s *TestSigner) ID() []byte {
	return s.publicKey
}

func (s *TestSigner) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

func (s *TestSigner) Level() uint32 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.level
}

func (s *TestSigner) ToMember(weight uint64) group.Member {
	return group.NewWeightedMember(s.publicKey, weight, group.DefaultVerifyFunc())
}
