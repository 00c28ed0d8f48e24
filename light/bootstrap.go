package light

import (
	"context"
	"fmt"
	"time"

	"github.com/tolelom/tmlight/predicate"
	"github.com/tolelom/tmlight/provider"
	"github.com/tolelom/tmlight/trustseed"
	"github.com/tolelom/tmlight/types"
)

// VerifyTrustAnchor fetches the light block at anchor.Height from primary
// and checks it against the pinned hash, without running the full
// verifier: a trust anchor is believed by fiat, not derived by skip
// verification. The returned block is fit to seed a store as Trusted.
func VerifyTrustAnchor(ctx context.Context, primary provider.Provider, anchor trustseed.TrustOptions, requestTimeout time.Duration) (*types.LightBlock, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	block, err := primary.LightBlock(fetchCtx, anchor.Height)
	if err != nil {
		return nil, fmt.Errorf("fetch trust anchor light block: %w", err)
	}
	if err := block.ValidateStructure(); err != nil {
		return nil, fmt.Errorf("trust anchor light block malformed: %w", err)
	}
	if f := predicate.HeaderHashMatches(block.SignedHeader.Commit.BlockHash, anchor.Hash); f != nil {
		return nil, fmt.Errorf("trust anchor mismatch: %w", f)
	}
	return block, nil
}
