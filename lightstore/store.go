// Package lightstore holds verified, unverified and failed light blocks
// indexed by height (C4 in the design documents).
package lightstore

import (
	"errors"

	"github.com/tolelom/tmlight/types"
)

// ErrNotFound is returned when a height has no stored entry.
var ErrNotFound = errors.New("lightstore: not found")

// ErrAlreadyExists is returned by Insert when a height already has an
// entry and the requested status is not a valid upgrade from Unverified.
var ErrAlreadyExists = errors.New("lightstore: entry already exists")

// ErrBlockRequired is returned by SetStatus(Verified) when no block was
// ever inserted at that height.
var ErrBlockRequired = errors.New("lightstore: verified status requires an existing block")

// Store holds light blocks indexed by height with a verification status.
// Per the resolved open question in the design documents, Failed is
// recorded per reporting peer rather than poisoning the height globally:
// a height a previous primary failed on may still be retried once a new
// primary is in charge.
type Store interface {
	// Insert adds block at its own height with the given status. It fails
	// with ErrAlreadyExists unless there is no existing entry, or the
	// existing entry is Unverified and status is Verified or Failed (an
	// upgrade).
	Insert(block *types.LightBlock, status types.VerificationStatus) error

	// Get returns the stored block and status at height, or ErrNotFound.
	Get(height types.Height) (*types.LightBlock, types.VerificationStatus, error)

	// SetStatus promotes the entry at height to status. Promoting to
	// Verified requires the block to already be present (ErrBlockRequired
	// otherwise).
	SetStatus(height types.Height, status types.VerificationStatus) error

	// MarkFailed records that peer failed to justify its block at height,
	// without poisoning the height for other peers.
	MarkFailed(height types.Height, peer types.PeerID) error

	// HasFailed reports whether peer has already failed at height.
	HasFailed(height types.Height, peer types.PeerID) bool

	// RemoveUnverified deletes any Unverified entry inserted for height by peer.
	// It is a no-op for Verified/Trusted/Failed entries or for a
	// different peer's entry — used to roll back in-flight inserts when a
	// primary is replaced mid-call.
	RemoveUnverified(height types.Height, peer types.PeerID) error

	// HighestOfStatus returns the block with the greatest height whose
	// status is one of statuses, or ok=false if none match.
	HighestOfStatus(statuses ...types.VerificationStatus) (block *types.LightBlock, ok bool)

	// LowestAboveOfStatus returns the block with the smallest height
	// greater than height whose status is one of statuses.
	LowestAboveOfStatus(height types.Height, statuses ...types.VerificationStatus) (block *types.LightBlock, ok bool)

	// HighestBelowOfStatus returns the block with the greatest height
	// less than height whose status is one of statuses. Used to anchor a
	// fetch-and-verify of a height below the trusted tip that the
	// optimistic skip scheduler jumped over.
	HighestBelowOfStatus(height types.Height, statuses ...types.VerificationStatus) (block *types.LightBlock, ok bool)
}

// LatestTrustedOrVerified returns the highest Verified or Trusted block in
// s, or ok=false for an empty store.
func LatestTrustedOrVerified(s Store) (*types.LightBlock, bool) {
	return s.HighestOfStatus(types.Verified, types.Trusted)
}
