// Package types holds the domain value types shared by every component of
// the light client: heights, hashes, validators, headers, commits and the
// light block that bundles them together.
package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/tolelom/tmlight/crypto"
)

// Height identifies a block. Strictly increasing along a chain.
type Height int64

// PeerID identifies a peer a light block or query result came from.
type PeerID string

// Hash is the output of the chain's canonical header/validator-set hash
// function. Equality is the only operation the core relies on.
type Hash [32]byte

// ZeroHash is the absent/unset hash value.
var ZeroHash Hash

// IsZero reports whether h is the absent hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// String returns the lowercase hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashFromHex decodes a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalJSON encodes Hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON decodes Hash from a hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = ZeroHash
		return nil
	}
	decoded, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// HashBytes returns the canonical Hash of data.
func HashBytes(data []byte) Hash {
	return Hash(sha256Sum(data))
}

func sha256Sum(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.HashBytes(data))
	return out
}

// Validator is a single member of a validator set.
type Validator struct {
	Address string          `json:"address"`
	PubKey  crypto.PublicKey `json:"pub_key"`
	Power   uint64          `json:"power"`
}

// ValidatorSet is an ordered collection of validators.
type ValidatorSet struct {
	Validators []Validator `json:"validators"`
}

// TotalVotingPower sums the voting power of every validator in the set,
// failing on overflow rather than silently wrapping.
func (vs ValidatorSet) TotalVotingPower() (uint64, error) {
	var total uint64
	for _, v := range vs.Validators {
		next := total + v.Power
		if next < total {
			return 0, fmt.Errorf("validator set total voting power overflows uint64")
		}
		total = next
	}
	return total, nil
}

// ByAddress returns the validator with the given address, or false.
func (vs ValidatorSet) ByAddress(addr string) (Validator, bool) {
	for _, v := range vs.Validators {
		if v.Address == addr {
			return v, true
		}
	}
	return Validator{}, false
}

// Hash returns a deterministic commitment to the validator set: validators
// sorted by address, each entry length-prefix encoded, then hashed. This is
// the same length-prefix-then-hash idiom used elsewhere in this module for
// deterministic roots over ordered collections.
func (vs ValidatorSet) Hash() Hash {
	sorted := make([]Validator, len(vs.Validators))
	copy(sorted, vs.Validators)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	var buf bytes.Buffer
	var lenBuf [4]byte
	writeField := func(b []byte) {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	for _, v := range sorted {
		writeField([]byte(v.Address))
		writeField(v.PubKey)
		var powBuf [8]byte
		binary.BigEndian.PutUint64(powBuf[:], v.Power)
		buf.Write(powBuf[:])
	}
	return HashBytes(buf.Bytes())
}

// Header is the portion of a block that is hashed and committed to by a
// Commit.
type Header struct {
	ChainID            string    `json:"chain_id"`
	Height             Height    `json:"height"`
	Time               time.Time `json:"time"`
	LastBlockHash      Hash      `json:"last_block_hash"`
	ValidatorsHash     Hash      `json:"validators_hash"`
	NextValidatorsHash Hash      `json:"next_validators_hash"`
}

// VoteKind distinguishes the three states a commit signature slot can be in.
type VoteKind int

const (
	VoteAbsent VoteKind = iota
	VoteNil
	VoteCommit
)

// CommitSig is one validator's contribution to a Commit.
type CommitSig struct {
	Kind             VoteKind `json:"kind"`
	ValidatorAddress string   `json:"validator_address"`
	BlockHash        Hash     `json:"block_hash,omitempty"`
	Signature        []byte   `json:"signature,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// Commit is the set of precommit votes a block carries.
type Commit struct {
	Height     Height      `json:"height"`
	Round      int32       `json:"round"`
	BlockHash  Hash        `json:"block_hash"`
	Signatures []CommitSig `json:"signatures"`
}

// SignedHeader pairs a Header with the Commit that finalized it.
type SignedHeader struct {
	Header Header `json:"header"`
	Commit Commit `json:"commit"`
}

// VerificationStatus records the verification state of a stored light
// block.
type VerificationStatus int

const (
	Unverified VerificationStatus = iota
	Verified
	Failed
	Trusted
)

func (s VerificationStatus) String() string {
	switch s {
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	case Trusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// LightBlock bundles a signed header with the validator sets needed to
// verify it and extend trust from it.
type LightBlock struct {
	SignedHeader     SignedHeader `json:"signed_header"`
	ValidatorSet     ValidatorSet `json:"validator_set"`
	NextValidatorSet ValidatorSet `json:"next_validator_set"`
	Provider         PeerID       `json:"provider"`
}

// Height is a convenience accessor for SignedHeader.Header.Height.
func (lb *LightBlock) Height() Height { return lb.SignedHeader.Header.Height }

// ValidateStructure checks the ingest-time invariant from the data model:
// the header's validator-set hashes must match the hashes of the attached
// validator sets.
func (lb *LightBlock) ValidateStructure() error {
	if got, want := lb.ValidatorSet.Hash(), lb.SignedHeader.Header.ValidatorsHash; got != want {
		return fmt.Errorf("validator set hash mismatch: header wants %s, set hashes to %s", want, got)
	}
	if got, want := lb.NextValidatorSet.Hash(), lb.SignedHeader.Header.NextValidatorsHash; got != want {
		return fmt.Errorf("next validator set hash mismatch: header wants %s, set hashes to %s", want, got)
	}
	return nil
}

// VoteSignBytes returns the canonical byte sequence a validator signs when
// precommitting for blockHash at (height, round) on chainID. Used both to
// produce commit signatures in tests/fixtures and to verify them in P4.
func VoteSignBytes(chainID string, height Height, round int32, blockHash Hash) []byte {
	var buf bytes.Buffer
	buf.WriteString(chainID)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], uint64(height))
	buf.Write(heightBuf[:])
	var roundBuf [4]byte
	binary.BigEndian.PutUint32(roundBuf[:], uint32(round))
	buf.Write(roundBuf[:])
	buf.Write(blockHash[:])
	return buf.Bytes()
}

// TrustThreshold is a rational numerator/denominator in (0, 1].
type TrustThreshold struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// DefaultTrustThreshold is the conventional 1/3 BFT trust level.
var DefaultTrustThreshold = TrustThreshold{Numerator: 1, Denominator: 3}

// Validate checks that the threshold lies in (0, 1].
func (t TrustThreshold) Validate() error {
	if t.Denominator == 0 {
		return fmt.Errorf("trust threshold denominator must not be zero")
	}
	if t.Numerator == 0 {
		return fmt.Errorf("trust threshold must be > 0")
	}
	if t.Numerator > t.Denominator {
		return fmt.Errorf("trust threshold must be <= 1, got %d/%d", t.Numerator, t.Denominator)
	}
	return nil
}
