// Package scheduler chooses the next height to fetch after a verification
// step, implementing the bisection search described in the design
// documents (C3). It is a pure function: no I/O, no state.
package scheduler

import (
	"fmt"

	"github.com/tolelom/tmlight/types"
	"github.com/tolelom/tmlight/verifier"
)

// Decision is what the supervisor should do next.
type Decision struct {
	// Done is true once the target height has been verified.
	Done bool
	// Next is the height to fetch next, meaningful only when !Done && !Terminal.
	Next types.Height
	// Terminal is true when verification cannot proceed at all: either a
	// non-bisectable predicate failure, or a bisectable failure with
	// nothing left to bisect (adjacent verification itself failed).
	Terminal bool
	// Reason explains a terminal decision; empty otherwise.
	Reason string
}

// Next decides the next step given:
//   - trustedHeight: the height currently trusted before this verdict
//   - target: the height the caller ultimately wants verified
//   - verdict: the verifier's outcome for the candidate at candidateHeight
//   - candidateHeight: the height that was just attempted
func Next(trustedHeight, target types.Height, verdict verifier.Result, candidateHeight types.Height) Decision {
	if verdict.Ok {
		newTrusted := verdict.NewTrusted.Height()
		if newTrusted == target {
			return Decision{Done: true}
		}
		// Optimistic skip: try the target directly from the new trusted height.
		return Decision{Next: target}
	}

	if !verdict.Bisectable() {
		return Decision{
			Terminal: true,
			Reason:   fmt.Sprintf("non-bisectable failure (%s) at height %d", verdict.InvalidKind, candidateHeight),
		}
	}

	t, c := trustedHeight, candidateHeight
	mid := t + (c-t)/2
	if mid == t {
		// c == t+1: adjacent verification itself failed on overlap grounds,
		// there is no intermediate height left to try.
		return Decision{
			Terminal: true,
			Reason:   fmt.Sprintf("adjacent verification at height %d failed and cannot be bisected further", c),
		}
	}
	return Decision{Next: mid}
}
