// Package detector implements fork detection (C5): after the supervisor
// verifies a block from the primary, the detector cross-checks it against
// every witness and reports disagreement as evidence, a faulty witness, or
// an unreachable witness.
package detector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tolelom/tmlight/provider"
	"github.com/tolelom/tmlight/types"
	"github.com/tolelom/tmlight/verifier"
)

// Evidence is a pair of conflicting signed headers for the same height,
// one from the primary and one from a disagreeing witness.
type Evidence struct {
	Height    types.Height       `json:"height"`
	WitnessID types.PeerID       `json:"witness_id"`
	Primary   types.SignedHeader `json:"primary"`
	Witness   types.SignedHeader `json:"witness"`
}

// Report is the outcome of a single Detect call.
type Report struct {
	Forks       []Evidence
	Faulty      []types.PeerID
	Unreachable []types.PeerID
}

// Clean reports whether no witness disagreed, misbehaved, or was
// unreachable.
func (r Report) Clean() bool {
	return len(r.Forks) == 0 && len(r.Faulty) == 0 && len(r.Unreachable) == 0
}

// Detector holds no mutable state across calls: every Detect performs no
// retries and forgets everything once it returns, per the design
// documents.
type Detector struct {
	chainID        string
	threshold      types.TrustThreshold
	trustingPeriod time.Duration
	clockDrift     time.Duration
	requestTimeout time.Duration
	v              *verifier.Verifier
}

// New builds a Detector that verifies replayed traces under the same
// trust parameters the supervisor itself uses.
func New(chainID string, threshold types.TrustThreshold, trustingPeriod, clockDrift, requestTimeout time.Duration) *Detector {
	return &Detector{
		chainID:        chainID,
		threshold:      threshold,
		trustingPeriod: trustingPeriod,
		clockDrift:     clockDrift,
		requestTimeout: requestTimeout,
		v:              verifier.New(),
	}
}

// witnessOutcome is the classification of one witness's response, computed
// independently of the others so fan-out goroutines never need to
// coordinate beyond writing their own slot.
type witnessOutcome struct {
	evidence    *Evidence
	faulty      bool
	unreachable bool
}

// Detect cross-checks primary (freshly Verified at primary.Height()) against
// every witness. trace is the ordered sequence of heights the supervisor
// verified to reach primary, starting from seed; it is replayed against a
// disagreeing witness to decide whether the disagreement is a genuine fork
// or witness misbehavior.
//
// Witness queries are issued concurrently via errgroup, matching the
// pack's idiomatic concurrent-fan-out-with-joined-error pattern; no
// witness's outcome affects whether another witness is queried, so the
// group function always returns nil; a cancelled ctx shows up as failed
// witness fetches, which are reported as unreachable.
func (d *Detector) Detect(ctx context.Context, witnesses []provider.Provider, primary *types.LightBlock, trace []types.Height, seed *types.LightBlock, now time.Time) Report {
	outcomes := make([]witnessOutcome, len(witnesses))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range witnesses {
		i, w := i, w
		g.Go(func() error {
			outcomes[i] = d.checkWitness(gctx, w, primary, trace, seed, now)
			return nil
		})
	}
	_ = g.Wait() // every group function returns nil, so Wait only joins the goroutines.

	var report Report
	for i, outcome := range outcomes {
		switch {
		case outcome.evidence != nil:
			report.Forks = append(report.Forks, *outcome.evidence)
		case outcome.faulty:
			report.Faulty = append(report.Faulty, witnesses[i].ID())
		case outcome.unreachable:
			report.Unreachable = append(report.Unreachable, witnesses[i].ID())
		}
	}
	return report
}

func (d *Detector) checkWitness(ctx context.Context, w provider.Provider, primary *types.LightBlock, trace []types.Height, seed *types.LightBlock, now time.Time) witnessOutcome {
	fetchCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	witnessBlock, err := w.LightBlock(fetchCtx, primary.Height())
	if err != nil {
		return witnessOutcome{unreachable: true}
	}
	if hashesEqual(witnessBlock, primary) {
		return witnessOutcome{}
	}

	if d.replayTrace(ctx, w, trace, seed, witnessBlock, now) {
		return witnessOutcome{evidence: &Evidence{
			Height:    primary.Height(),
			WitnessID: w.ID(),
			Primary:   primary.SignedHeader,
			Witness:   witnessBlock.SignedHeader,
		}}
	}
	return witnessOutcome{faulty: true}
}

// hashesEqual compares header hashes the way the predicates do: by
// recomputing validator-set hashes isn't necessary here, disagreement is
// judged on the header's own commitments (last/validators/next-validators
// hash triple) plus height and time, since Header carries no self-hash
// field — two independently assembled headers with identical fields are
// the same header.
func hashesEqual(a, b *types.LightBlock) bool {
	ah, bh := a.SignedHeader.Header, b.SignedHeader.Header
	return ah.Height == bh.Height &&
		ah.Time.Equal(bh.Time) &&
		ah.LastBlockHash == bh.LastBlockHash &&
		ah.ValidatorsHash == bh.ValidatorsHash &&
		ah.NextValidatorsHash == bh.NextValidatorsHash
}

// replayTrace attempts to verify the same path the supervisor took,
// starting from seed, but fetching every intermediate block from w instead
// of the primary. finalBlock is the witness's own block at the last trace
// height (already fetched by the caller), spliced in so it is not fetched
// twice. Replay succeeding all the way through means w can independently
// justify the disagreeing block: the primary and w have each produced a
// validly committed, differently-hashed chain — a fork.
func (d *Detector) replayTrace(ctx context.Context, w provider.Provider, trace []types.Height, seed *types.LightBlock, finalBlock *types.LightBlock, now time.Time) bool {
	trusted := seed
	for _, h := range trace {
		var candidate *types.LightBlock
		if len(trace) > 0 && h == trace[len(trace)-1] {
			candidate = finalBlock
		} else {
			fetchCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
			block, err := w.LightBlock(fetchCtx, h)
			cancel()
			if err != nil {
				return false
			}
			candidate = block
		}
		result := d.v.Verify(d.chainID, trusted, candidate, d.threshold, d.trustingPeriod, d.clockDrift, now)
		if !result.Ok {
			return false
		}
		trusted = result.NewTrusted
	}
	return true
}
