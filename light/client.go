// Package light implements the Supervisor (C6): the state machine that
// drives the verifier and scheduler against a primary peer, maintains the
// light block store, and hands off to the fork detector once a target
// height is freshly verified.
package light

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/tmlight/config"
	"github.com/tolelom/tmlight/detector"
	"github.com/tolelom/tmlight/events"
	"github.com/tolelom/tmlight/lightstore"
	"github.com/tolelom/tmlight/predicate"
	"github.com/tolelom/tmlight/provider"
	"github.com/tolelom/tmlight/scheduler"
	"github.com/tolelom/tmlight/types"
	"github.com/tolelom/tmlight/verifier"
)

// Client is the light client supervisor. A single Client serializes its
// own calls with an internal mutex: two concurrent VerifyToTarget calls on
// the same Client (and therefore the same store) are unsupported, matching
// the store's single-writer contract.
type Client struct {
	mu sync.Mutex

	chainID        string
	threshold      types.TrustThreshold
	trustingPeriod time.Duration
	clockDrift     time.Duration
	requestTimeout time.Duration
	clock          config.Clock

	store    lightstore.Store
	peers    *provider.PeerSet
	verifier *verifier.Verifier
	detector *detector.Detector
	emitter  *events.Emitter

	// trace maps a target height to the ordered sequence of heights
	// visited to reach it on the most recent successful call, per §9
	// "Trace representation" — heights only, never block pointers.
	trace map[types.Height][]types.Height
}

// New builds a Client from an already-seeded store and peer set.
func New(opts *config.Options, store lightstore.Store, peers *provider.PeerSet, emitter *events.Emitter, clock config.Clock) *Client {
	if clock == nil {
		clock = config.SystemClock
	}
	return &Client{
		chainID:        opts.ChainID,
		threshold:      opts.TrustThreshold,
		trustingPeriod: opts.TrustingPeriod,
		clockDrift:     opts.ClockDrift,
		requestTimeout: opts.RequestTimeout,
		clock:          clock,
		store:          store,
		peers:          peers,
		verifier:       verifier.New(),
		detector:       detector.New(opts.ChainID, opts.TrustThreshold, opts.TrustingPeriod, opts.ClockDrift, opts.RequestTimeout),
		emitter:        emitter,
		trace:          make(map[types.Height][]types.Height),
	}
}

// LatestTrusted returns the highest Verified or Trusted block currently
// held, or nil if the store is empty.
func (c *Client) LatestTrusted() *types.LightBlock {
	block, ok := lightstore.LatestTrustedOrVerified(c.store)
	if !ok {
		return nil
	}
	return block
}

// VerifyToHighest asks the primary for its latest height and verifies up
// to it.
func (c *Client) VerifyToHighest(ctx context.Context) (*types.LightBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	primary := c.peers.Primary()
	if primary == nil {
		return nil, ErrNoPrimary
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	status, err := primary.Status(fetchCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch status from primary %s: %w", primary.ID(), err)
	}
	return c.verifyToTarget(ctx, status.LatestHeight)
}

// VerifyToTarget verifies up to target, extending or using the currently
// trusted state.
func (c *Client) VerifyToTarget(ctx context.Context, target types.Height) (*types.LightBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyToTarget(ctx, target)
}

// verifyToTarget implements spec §4.6 and must be called with c.mu held.
func (c *Client) verifyToTarget(ctx context.Context, target types.Height) (*types.LightBlock, error) {
	for {
		// Step 1: seed.
		seed, ok := lightstore.LatestTrustedOrVerified(c.store)
		if !ok {
			return nil, ErrNoInitialTrustedState
		}

		// Step 2: check expiry.
		now := c.clock.Now()
		if f := predicate.NotExpired(seed, c.trustingPeriod, now); f != nil {
			return nil, ErrTrustedStateExpired
		}

		// Step 3: early exit.
		if target <= seed.Height() {
			return c.resolveBelowTrustedTip(ctx, target, seed)
		}

		// Step 4: loop.
		c.trace[target] = nil
		result, err := c.runToTarget(ctx, seed, target)
		if err != nil {
			if _, restart := err.(errPrimaryFailed); restart {
				continue // restart the whole call from step 1 with the new primary
			}
			return nil, err
		}

		// Step 5: fork detection over the freshly verified target.
		return c.detectForks(ctx, target, seed, result)
	}
}

// resolveBelowTrustedTip handles step 3: a target at or below the current
// trusted tip. If the store already holds that exact height as Verified
// or Trusted, it's returned directly. Otherwise the optimistic skip
// scheduler jumped over it on the way to a higher target, and it is
// fetched once from the primary and checked against the nearest lower
// trusted anchor already in the store, per decision (b).
func (c *Client) resolveBelowTrustedTip(ctx context.Context, target types.Height, seed *types.LightBlock) (*types.LightBlock, error) {
	if target == seed.Height() {
		return seed, nil
	}
	if block, status, err := c.store.Get(target); err == nil && (status == types.Verified || status == types.Trusted) {
		return block, nil
	}
	return c.fetchAndVerifyBelowTip(ctx, target)
}

// fetchAndVerifyBelowTip implements decision (b)'s fallback: fetch target
// once from the primary and verify it against the highest trusted or
// verified anchor already in the store below target, re-deriving trust
// through that single step instead of replaying the whole chain.
func (c *Client) fetchAndVerifyBelowTip(ctx context.Context, target types.Height) (*types.LightBlock, error) {
	anchor, ok := c.store.HighestBelowOfStatus(target, types.Verified, types.Trusted)
	if !ok {
		return nil, ErrHeightNotTrusted
	}
	primary := c.peers.Primary()
	if primary == nil {
		return nil, ErrNoPrimary
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	candidate, err := primary.LightBlock(fetchCtx, target)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch light block at height %d from primary %s: %w", target, primary.ID(), err)
	}
	if err := candidate.ValidateStructure(); err != nil {
		return nil, fmt.Errorf("malformed light block from primary %s at height %d: %w", primary.ID(), target, err)
	}

	result := c.verifier.Verify(c.chainID, anchor, candidate, c.threshold, c.trustingPeriod, c.clockDrift, c.clock.Now())
	if !result.Ok {
		return nil, ErrHeightNotTrusted
	}
	if err := c.store.Insert(candidate, types.Verified); err != nil && err != lightstore.ErrAlreadyExists {
		return nil, err
	}
	return result.NewTrusted, nil
}

// errPrimaryFailed signals that the primary failed mid-call and the whole
// call must restart against a newly promoted primary.
type errPrimaryFailed struct{ err error }

func (e errPrimaryFailed) Error() string { return e.err.Error() }

// runToTarget drives the bisection loop of step 4 starting from seed,
// returning the newly trusted block at target on success.
func (c *Client) runToTarget(ctx context.Context, seed *types.LightBlock, target types.Height) (*types.LightBlock, error) {
	primary := c.peers.Primary()
	if primary == nil {
		return nil, ErrNoPrimary
	}

	trusted := seed
	current := target
	insertedBy := make(map[types.Height]types.PeerID)

	for {
		if block, status, err := c.store.Get(current); err == nil && status == types.Verified {
			trusted = block
			decision := scheduler.Next(trusted.Height(), target, verifier.Verified(block), current)
			c.trace[target] = append(c.trace[target], current)
			if decision.Done {
				return trusted, nil
			}
			current = decision.Next
			continue
		}

		if c.store.HasFailed(current, primary.ID()) {
			return nil, c.failPrimary(primary, insertedBy,
				fmt.Errorf("primary %s previously failed to justify height %d", primary.ID(), current))
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		candidate, err := primary.LightBlock(fetchCtx, current)
		cancel()
		if err != nil {
			return nil, c.failPrimary(primary, insertedBy,
				fmt.Errorf("fetch light block at height %d from primary %s: %w", current, primary.ID(), err))
		}
		if err := candidate.ValidateStructure(); err != nil {
			return nil, c.failPrimary(primary, insertedBy,
				fmt.Errorf("malformed light block from primary %s at height %d: %w", primary.ID(), current, err))
		}

		if err := c.store.Insert(candidate, types.Unverified); err != nil && err != lightstore.ErrAlreadyExists {
			return nil, c.failPrimary(primary, insertedBy, err)
		}
		insertedBy[current] = primary.ID()

		result := c.verifier.Verify(c.chainID, trusted, candidate, c.threshold, c.trustingPeriod, c.clockDrift, c.clock.Now())
		if result.Ok {
			if err := c.store.SetStatus(current, types.Verified); err != nil {
				return nil, c.failPrimary(primary, insertedBy, err)
			}
			c.trace[target] = append(c.trace[target], current)
			trusted = result.NewTrusted
			c.emitter.Emit(events.Event{
				Type: events.EventVerified, Height: int64(current),
				Data: map[string]any{"peer": string(primary.ID())},
			})
			decision := scheduler.Next(trusted.Height(), target, result, current)
			if decision.Done {
				return trusted, nil
			}
			current = decision.Next
			continue
		}

		if result.Bisectable() {
			decision := scheduler.Next(trusted.Height(), target, result, current)
			if decision.Terminal {
				_ = c.store.MarkFailed(current, primary.ID())
				return nil, &InvalidLightBlockError{Kind: result.InvalidKind, Err: result.Err}
			}
			c.emitter.Emit(events.Event{
				Type: events.EventBisected, Height: int64(current),
				Data: map[string]any{"midpoint": int64(decision.Next)},
			})
			current = decision.Next
			continue
		}

		_ = c.store.MarkFailed(current, primary.ID())
		return nil, &InvalidLightBlockError{Kind: result.InvalidKind, Err: result.Err}
	}
}

// failPrimary rolls back this call's Unverified inserts attributed to the
// failing primary, promotes the next witness, and returns an
// errPrimaryFailed wrapping cause so verifyToTarget knows to restart the
// whole call from step 1.
func (c *Client) failPrimary(primary provider.Provider, insertedBy map[types.Height]types.PeerID, cause error) error {
	for h, peer := range insertedBy {
		if peer == primary.ID() {
			_ = c.store.RemoveUnverified(h, peer)
			delete(insertedBy, h)
		}
	}
	if err := c.peers.PromoteWitness(); err != nil {
		return ErrNoPrimary
	}
	c.emitter.Emit(events.Event{
		Type: events.EventPrimaryRotated,
		Data: map[string]any{"failed_primary": string(primary.ID()), "cause": cause.Error()},
	})
	return errPrimaryFailed{err: cause}
}

// detectForks runs step 5 over the freshly verified block at target.
// Faulty witnesses are removed from the peer set; a clean or
// faulty-only report still returns the verified block with a nil error.
func (c *Client) detectForks(ctx context.Context, target types.Height, seed *types.LightBlock, verified *types.LightBlock) (*types.LightBlock, error) {
	witnesses := c.peers.Witnesses()
	if len(witnesses) == 0 {
		return verified, nil
	}
	report := c.detector.Detect(ctx, witnesses, verified, c.trace[target], seed, c.clock.Now())

	for _, id := range report.Faulty {
		c.peers.RemoveWitness(id)
		c.emitter.Emit(events.Event{Type: events.EventWitnessFaulty, Height: int64(target), Data: map[string]any{"peer": string(id)}})
	}
	for _, id := range report.Unreachable {
		c.emitter.Emit(events.Event{Type: events.EventWitnessUnreachable, Height: int64(target), Data: map[string]any{"peer": string(id)}})
	}
	for _, ev := range report.Forks {
		c.emitter.Emit(events.Event{Type: events.EventForkDetected, Height: int64(target), Data: map[string]any{"evidence": ev}})
	}
	if len(report.Forks) > 0 {
		return verified, &ForkDetectedError{Report: report}
	}
	return verified, nil
}
