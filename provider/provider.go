// Package provider is the light client's peer RPC transport: fetching
// light blocks and status from full nodes, and tracking which peer is the
// primary versus a witness (C6's external collaborator).
package provider

import (
	"context"
	"errors"

	"github.com/tolelom/tmlight/types"
)

// ErrHeightNotAvailable is returned by LightBlock when the peer does not
// have (and will never produce) the requested height.
var ErrHeightNotAvailable = errors.New("provider: height not available")

// StatusResult is a peer's self-reported chain tip.
type StatusResult struct {
	LatestHeight    types.Height `json:"latest_height"`
	LatestBlockHash types.Hash   `json:"latest_block_hash"`
}

// Provider fetches light blocks and status from a single peer. A height of
// zero requests the peer's latest block.
type Provider interface {
	ID() types.PeerID
	LightBlock(ctx context.Context, height types.Height) (*types.LightBlock, error)
	Status(ctx context.Context) (*StatusResult, error)
}
