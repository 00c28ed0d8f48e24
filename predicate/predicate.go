// Package predicate implements the stateless checks (P1-P11 in the design
// documents) the verifier composes to decide whether a trusted light block
// can be extended or skipped to a candidate.
package predicate

import "fmt"

// Kind names why a predicate failed.
type Kind string

const (
	KindInvalidValidatorSet        Kind = "invalid_validator_set"
	KindInvalidNextValidatorSet    Kind = "invalid_next_validator_set"
	KindHeaderHashMismatch         Kind = "header_hash_mismatch"
	KindTrustedStateExpired        Kind = "trusted_state_expired"
	KindHeaderOutOfTrustingPeriod  Kind = "header_out_of_trusting_period"
	KindNonMonotonicBftTime        Kind = "non_monotonic_bft_time"
	KindNonMonotonicHeight         Kind = "non_monotonic_height"
	KindInvalidCommit              Kind = "invalid_commit"
	KindInsufficientOverlap        Kind = "insufficient_overlap" // bisectable
	KindInsufficientSignersOverlap Kind = "insufficient_signers_overlap"
)

// Bisectable reports whether the scheduler may retry at an intermediate
// height after this failure kind.
func (k Kind) Bisectable() bool { return k == KindInsufficientOverlap }

// Failure is a named predicate rejection.
type Failure struct {
	Kind   Kind
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func fail(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
