package light

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/tolelom/tmlight/config"
	"github.com/tolelom/tmlight/crypto"
	"github.com/tolelom/tmlight/events"
	"github.com/tolelom/tmlight/lightstore"
	"github.com/tolelom/tmlight/provider"
	"github.com/tolelom/tmlight/types"
)

type fakeProvider struct {
	id     types.PeerID
	blocks map[types.Height]*types.LightBlock
	status *provider.StatusResult
	err    error
}

func (p *fakeProvider) ID() types.PeerID { return p.id }

func (p *fakeProvider) LightBlock(_ context.Context, height types.Height) (*types.LightBlock, error) {
	if p.err != nil {
		return nil, p.err
	}
	b, ok := p.blocks[height]
	if !ok {
		return nil, provider.ErrHeightNotAvailable
	}
	return b, nil
}

func (p *fakeProvider) Status(_ context.Context) (*provider.StatusResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.status, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func buildValidatorSet(t *testing.T, n int) (types.ValidatorSet, []crypto.PrivateKey) {
	t.Helper()
	var vs types.ValidatorSet
	var privs []crypto.PrivateKey
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		privs = append(privs, priv)
		vs.Validators = append(vs.Validators, types.Validator{Address: pub.Address(), PubKey: pub, Power: 10})
	}
	return vs, privs
}

func buildBlock(t *testing.T, chainID string, height types.Height, vs types.ValidatorSet, privs []crypto.PrivateKey, when time.Time) *types.LightBlock {
	t.Helper()
	hdr := types.Header{
		ChainID:            chainID,
		Height:             height,
		Time:               when,
		ValidatorsHash:     vs.Hash(),
		NextValidatorsHash: vs.Hash(),
	}
	blockHash := types.HashBytes([]byte(hdr.ChainID + hdr.Time.String()))
	signBytes := types.VoteSignBytes(chainID, height, 0, blockHash)
	commit := types.Commit{Height: height, BlockHash: blockHash}
	for i, v := range vs.Validators {
		sigHex := crypto.Sign(privs[i], signBytes)
		sig, _ := hex.DecodeString(sigHex)
		commit.Signatures = append(commit.Signatures, types.CommitSig{
			Kind: types.VoteCommit, ValidatorAddress: v.Address, BlockHash: blockHash, Signature: sig,
		})
	}
	return &types.LightBlock{
		SignedHeader:     types.SignedHeader{Header: hdr, Commit: commit},
		ValidatorSet:     vs,
		NextValidatorSet: vs,
		Provider:         "primary",
	}
}

// buildBlockRotating is buildBlock generalized to let the signing set and
// the committed-to "next" validator set differ, so a test can model a
// validator set rotation between two heights.
func buildBlockRotating(t *testing.T, chainID string, height types.Height, signSet types.ValidatorSet, signPrivs []crypto.PrivateKey, nextSet types.ValidatorSet, when time.Time) *types.LightBlock {
	t.Helper()
	hdr := types.Header{
		ChainID:            chainID,
		Height:             height,
		Time:               when,
		ValidatorsHash:     signSet.Hash(),
		NextValidatorsHash: nextSet.Hash(),
	}
	blockHash := types.HashBytes([]byte(hdr.ChainID + hdr.Time.String()))
	signBytes := types.VoteSignBytes(chainID, height, 0, blockHash)
	commit := types.Commit{Height: height, BlockHash: blockHash}
	for i, v := range signSet.Validators {
		sigHex := crypto.Sign(signPrivs[i], signBytes)
		sig, _ := hex.DecodeString(sigHex)
		commit.Signatures = append(commit.Signatures, types.CommitSig{
			Kind: types.VoteCommit, ValidatorAddress: v.Address, BlockHash: blockHash, Signature: sig,
		})
	}
	return &types.LightBlock{
		SignedHeader:     types.SignedHeader{Header: hdr, Commit: commit},
		ValidatorSet:     signSet,
		NextValidatorSet: nextSet,
		Provider:         "primary",
	}
}

func newTestClient(t *testing.T, seed *types.LightBlock, primary provider.Provider, now time.Time) *Client {
	t.Helper()
	store := lightstore.NewMemStore()
	if err := store.Insert(seed, types.Trusted); err != nil {
		t.Fatal(err)
	}
	peers := provider.NewPeerSet(primary)
	opts := config.DefaultOptions()
	opts.ChainID = "test-chain"
	return New(opts, store, peers, events.NewEmitter(), fixedClock{now: now})
}

func TestVerifyToTargetSkipsDirectlyWhenOverlapHolds(t *testing.T) {
	chainID := "test-chain"
	vs, privs := buildValidatorSet(t, 4)
	now := time.Now()
	seed := buildBlock(t, chainID, 1, vs, privs, now.Add(-time.Hour))
	target := buildBlock(t, chainID, 5, vs, privs, now.Add(-time.Minute))

	primary := &fakeProvider{id: "primary", blocks: map[types.Height]*types.LightBlock{5: target}}
	client := newTestClient(t, seed, primary, now)

	got, err := client.VerifyToTarget(context.Background(), 5)
	if err != nil {
		t.Fatalf("VerifyToTarget: %v", err)
	}
	if got.Height() != 5 {
		t.Fatalf("got height %d, want 5", got.Height())
	}
}

// TestVerifyToTargetBisectsThroughValidatorRotation covers scenario 3: a
// direct skip from the trusted seed to the target fails because the
// validator set has rotated away from the seed's NextValidatorSet by the
// time the target is reached, so HasSufficientValidatorsOverlap sees zero
// overlap and the scheduler bisects. The midpoint is still signed by the
// seed's own next validator set, so it verifies directly and carries
// forward a NextValidatorSet that matches the target's signers, letting
// the optimistic skip back to the target succeed on the second pass.
func TestVerifyToTargetBisectsThroughValidatorRotation(t *testing.T) {
	chainID := "test-chain"
	now := time.Now()

	vs1, privs1 := buildValidatorSet(t, 4)
	vsTarget, privsTarget := buildValidatorSet(t, 4)

	seed := buildBlockRotating(t, chainID, 1, vs1, privs1, vs1, now.Add(-2*time.Hour))
	mid := buildBlockRotating(t, chainID, 5, vs1, privs1, vsTarget, now.Add(-90*time.Minute))
	target := buildBlockRotating(t, chainID, 10, vsTarget, privsTarget, vsTarget, now.Add(-time.Minute))

	primary := &fakeProvider{id: "primary", blocks: map[types.Height]*types.LightBlock{
		5:  mid,
		10: target,
	}}
	client := newTestClient(t, seed, primary, now)

	var verified []int64
	client.emitter.Subscribe(events.EventVerified, func(e events.Event) {
		verified = append(verified, e.Height)
	})

	got, err := client.VerifyToTarget(context.Background(), 10)
	if err != nil {
		t.Fatalf("VerifyToTarget: %v", err)
	}
	if got.Height() != 10 {
		t.Fatalf("got height %d, want 10", got.Height())
	}
	if len(verified) != 2 || verified[0] != 5 || verified[1] != 10 {
		t.Fatalf("expected bisection through height 5 then 10, got %v", verified)
	}
}

func TestVerifyToTargetFailsWithoutInitialTrustedState(t *testing.T) {
	store := lightstore.NewMemStore()
	primary := &fakeProvider{id: "primary", blocks: map[types.Height]*types.LightBlock{}}
	opts := config.DefaultOptions()
	opts.ChainID = "test-chain"
	client := New(opts, store, provider.NewPeerSet(primary), events.NewEmitter(), fixedClock{now: time.Now()})

	if _, err := client.VerifyToTarget(context.Background(), 10); err != ErrNoInitialTrustedState {
		t.Errorf("got %v, want ErrNoInitialTrustedState", err)
	}
}

func TestVerifyToTargetRotatesPrimaryOnFetchFailure(t *testing.T) {
	chainID := "test-chain"
	vs, privs := buildValidatorSet(t, 4)
	now := time.Now()
	seed := buildBlock(t, chainID, 1, vs, privs, now.Add(-time.Hour))
	target := buildBlock(t, chainID, 2, vs, privs, now.Add(-time.Minute))

	badPrimary := &fakeProvider{id: "bad-primary", err: context.DeadlineExceeded}
	goodWitness := &fakeProvider{id: "good-witness", blocks: map[types.Height]*types.LightBlock{2: target}}

	store := lightstore.NewMemStore()
	if err := store.Insert(seed, types.Trusted); err != nil {
		t.Fatal(err)
	}
	peers := provider.NewPeerSet(badPrimary, goodWitness)
	opts := config.DefaultOptions()
	opts.ChainID = chainID
	client := New(opts, store, peers, events.NewEmitter(), fixedClock{now: now})

	got, err := client.VerifyToTarget(context.Background(), 2)
	if err != nil {
		t.Fatalf("VerifyToTarget: %v", err)
	}
	if got.Height() != 2 {
		t.Fatalf("got height %d, want 2", got.Height())
	}
	if peers.Primary().ID() != "good-witness" {
		t.Errorf("expected good-witness promoted to primary, got %s", peers.Primary().ID())
	}
}
