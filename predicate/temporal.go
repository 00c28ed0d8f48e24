package predicate

import (
	"time"

	"github.com/tolelom/tmlight/types"
)

// NotExpired is P5: trusted.header.time + trusting_period > now.
func NotExpired(trusted *types.LightBlock, trustingPeriod time.Duration, now time.Time) *Failure {
	expiresAt := trusted.SignedHeader.Header.Time.Add(trustingPeriod)
	if !expiresAt.After(now) {
		return fail(KindTrustedStateExpired,
			"trusted header at height %d expired at %s, now is %s",
			trusted.Height(), expiresAt, now)
	}
	return nil
}

// HeaderInTrustingPeriod is P6: the same expiry check phrased for the
// untrusted candidate header, with a clock-drift tolerance added to now.
func HeaderInTrustingPeriod(candidate *types.LightBlock, trustingPeriod, clockDrift time.Duration, now time.Time) *Failure {
	expiresAt := candidate.SignedHeader.Header.Time.Add(trustingPeriod)
	if !expiresAt.After(now) {
		return fail(KindHeaderOutOfTrustingPeriod,
			"candidate header at height %d expired at %s, now is %s",
			candidate.Height(), expiresAt, now)
	}
	limit := now.Add(clockDrift)
	if candidate.SignedHeader.Header.Time.After(limit) {
		return fail(KindHeaderOutOfTrustingPeriod,
			"candidate header time %s is beyond now+drift %s", candidate.SignedHeader.Header.Time, limit)
	}
	return nil
}

// MonotonicBftTime is P7: candidate.header.time > trusted.header.time.
func MonotonicBftTime(trusted, candidate *types.LightBlock) *Failure {
	if !candidate.SignedHeader.Header.Time.After(trusted.SignedHeader.Header.Time) {
		return fail(KindNonMonotonicBftTime,
			"candidate time %s does not exceed trusted time %s",
			candidate.SignedHeader.Header.Time, trusted.SignedHeader.Header.Time)
	}
	return nil
}

// MonotonicHeight is P8: candidate.header.height > trusted.header.height.
func MonotonicHeight(trusted, candidate *types.LightBlock) *Failure {
	if candidate.Height() <= trusted.Height() {
		return fail(KindNonMonotonicHeight,
			"candidate height %d does not exceed trusted height %d", candidate.Height(), trusted.Height())
	}
	return nil
}
