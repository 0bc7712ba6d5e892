package p2p

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
)

// ParsePeers parses committee peer addresses of the form
// /ip4/<ip>/tcp/<port>/p2p/<peer id>.
func ParsePeers(addrs []string) ([]peer.AddrInfo, error) {
	peers := make([]peer.AddrInfo, 0, len(addrs))
	for _, addr := range addrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("parsing peer address %q: %w", addr, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			return nil, fmt.Errorf("parsing peer address %q: %w", addr, err)
		}
		peers = append(peers, *info)
	}
	return peers, nil
}

// Connect dials every peer. It fails only if no peer could be reached.
func Connect(ctx context.Context, h host.Host, peers []peer.AddrInfo, logger zerolog.Logger) error {
	var errs error
	connected := 0
	for _, info := range peers {
		if info.ID == h.ID() {
			continue
		}
		if err := h.Connect(ctx, info); err != nil {
			logger.Info().Err(err).Str("peer", info.ID.String()).Msg("failed to connect to peer")
			errs = errors.Join(errs, err)
			continue
		}
		connected++
		logger.Debug().Str("peer", info.ID.String()).Msg("connected to peer")
	}
	if connected == 0 && errs != nil {
		return errs
	}
	return nil
}
