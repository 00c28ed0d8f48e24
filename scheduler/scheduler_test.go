package scheduler_test

import (
	"testing"

	"github.com/tolelom/tmlight/predicate"
	"github.com/tolelom/tmlight/scheduler"
	"github.com/tolelom/tmlight/types"
	"github.com/tolelom/tmlight/verifier"
)

func failure(kind predicate.Kind) *predicate.Failure {
	return &predicate.Failure{Kind: kind, Detail: "test"}
}

func TestNextDoneWhenVerdictReachesTarget(t *testing.T) {
	verdict := verifier.Verified(&types.LightBlock{SignedHeader: types.SignedHeader{Header: types.Header{Height: 10}}})
	decision := scheduler.Next(1, 10, verdict, 10)
	if !decision.Done {
		t.Fatalf("expected Done, got %+v", decision)
	}
}

func TestNextOptimisticallySkipsToTargetAfterSuccess(t *testing.T) {
	verdict := verifier.Verified(&types.LightBlock{SignedHeader: types.SignedHeader{Header: types.Header{Height: 5}}})
	decision := scheduler.Next(1, 10, verdict, 5)
	if decision.Done || decision.Terminal {
		t.Fatalf("expected an in-progress decision, got %+v", decision)
	}
	if decision.Next != 10 {
		t.Fatalf("got next %d, want target 10", decision.Next)
	}
}

func TestNextBisectsOnInsufficientOverlap(t *testing.T) {
	verdict := verifier.Invalid(predicate.KindInsufficientOverlap, failure(predicate.KindInsufficientOverlap))
	decision := scheduler.Next(1, 10, verdict, 10)
	if decision.Done || decision.Terminal {
		t.Fatalf("expected a bisection, got %+v", decision)
	}
	if decision.Next != 5 {
		t.Fatalf("got midpoint %d, want 5 (1 + (10-1)/2)", decision.Next)
	}
}

func TestNextTerminatesWhenAdjacentBisectionFails(t *testing.T) {
	verdict := verifier.Invalid(predicate.KindInsufficientOverlap, failure(predicate.KindInsufficientOverlap))
	decision := scheduler.Next(9, 10, verdict, 10)
	if !decision.Terminal {
		t.Fatalf("expected terminal decision for adjacent bisection failure, got %+v", decision)
	}
	if decision.Reason == "" {
		t.Fatal("expected a non-empty reason on a terminal decision")
	}
}

func TestNextTerminatesOnNonBisectableFailure(t *testing.T) {
	verdict := verifier.Invalid(predicate.KindInvalidCommit, failure(predicate.KindInvalidCommit))
	decision := scheduler.Next(1, 10, verdict, 5)
	if !decision.Terminal {
		t.Fatalf("expected terminal decision for non-bisectable failure, got %+v", decision)
	}
}

func TestNextRepeatedBisectionConverges(t *testing.T) {
	trusted := types.Height(1)
	target := types.Height(1000)
	current := target
	verdict := verifier.Invalid(predicate.KindInsufficientOverlap, failure(predicate.KindInsufficientOverlap))

	for i := 0; i < 32; i++ {
		decision := scheduler.Next(trusted, target, verdict, current)
		if decision.Done {
			t.Fatal("should never succeed: verdict always reports failure")
		}
		if decision.Terminal {
			return // reached the adjacent height and correctly gave up
		}
		current = decision.Next
	}
	t.Fatal("bisection did not converge to a terminal decision within 32 steps")
}
