package light

import (
	"errors"
	"fmt"

	"github.com/tolelom/tmlight/detector"
	"github.com/tolelom/tmlight/predicate"
)

// ErrNoInitialTrustedState is returned when the store holds no Verified or
// Trusted block to seed a verification call from.
var ErrNoInitialTrustedState = errors.New("light: no initial trusted state")

// ErrTrustedStateExpired is returned when the seed block has fallen
// outside the trusting period.
var ErrTrustedStateExpired = errors.New("light: trusted state has expired")

// ErrNoPrimary is returned when the primary has failed and no witness
// remains to promote.
var ErrNoPrimary = errors.New("light: no primary available")

// ErrHeightNotTrusted is returned when a height below the trusted tip was
// never verified directly and can't be derived by fetching it fresh and
// checking it against the nearest lower trusted anchor.
var ErrHeightNotTrusted = errors.New("light: height below trusted tip was never verified and can't be derived")

// InvalidLightBlockError reports a non-bisectable predicate failure that
// terminated a verification attempt.
type InvalidLightBlockError struct {
	Kind predicate.Kind
	Err  error
}

func (e *InvalidLightBlockError) Error() string {
	return fmt.Sprintf("light: invalid light block (%s): %v", e.Kind, e.Err)
}

func (e *InvalidLightBlockError) Unwrap() error { return e.Err }

// ForkDetectedError reports that the fork detector found conflicting
// signed headers after a successful verification. The verified block
// itself is still returned to the caller alongside this error.
type ForkDetectedError struct {
	Report detector.Report
}

func (e *ForkDetectedError) Error() string {
	return fmt.Sprintf("light: fork detected: %d conflicting witness report(s)", len(e.Report.Forks))
}
