// Package backoff implements the adaptive spin-then-sleep wait used by
// every hot loop that polls a ring queue or a direct-return slot: the
// syscall threads waiting for work, the enclave-driving side never uses
// it (it blocks in Enter instead), and tests that emulate a producer.
//
// The algorithm is the one the teacher's own host process used for its
// spin/sleep loops (time.Sleep with a growing duration once pure spinning
// stops paying off), generalized to the exact two-phase contract spec'd
// for this system: stay on-CPU for the first SpinThreshold calls, then
// sleep for SleepFactor*min(n-SpinThreshold, cap) nanoseconds with
// geometric growth.
package backoff

import (
	"time"

	"code.hybscloud.com/spin"
)

const maxSleepSteps = 800

// Params are the two process-wide tunables, read once at startup from
// SSPINS and SSLEEP (see config.Snapshot).
type Params struct {
	SpinThreshold uint64 // SSPINS, default 100
	SleepFactor   uint64 // SSLEEP, nanoseconds, default 4000
}

// DefaultParams matches the reference configuration's defaults.
var DefaultParams = Params{SpinThreshold: 100, SleepFactor: 4000}

// Backoff is a per-call-site counter. It is not safe for concurrent use by
// multiple goroutines sharing the same instance -- each spin loop owns its
// own Backoff value, exactly as each call site in the C implementation
// owned its own local "n".
type Backoff struct {
	params Params
	n      uint64
	sw     spin.Wait
}

// New returns a Backoff counter starting at n=0 for the given parameters.
func New(p Params) *Backoff {
	return &Backoff{params: p}
}

// Pause advances the backoff state by one step, spinning or sleeping as
// appropriate, and returns the updated attempt count (mirrors the C
// `backoff(n) -> n'` contract so callers can log/test the raw counter if
// they want to).
func (b *Backoff) Pause() uint64 {
	if b.n <= b.params.SpinThreshold {
		b.sw.Once()
		b.n++
		return b.n
	}
	over := b.n - b.params.SpinThreshold
	if over > maxSleepSteps {
		over = maxSleepSteps
	}
	time.Sleep(time.Duration(b.params.SleepFactor*over) * time.Nanosecond)
	b.n = b.params.SpinThreshold + 2*over
	return b.n
}

// Reset returns the counter to its initial state, for reuse across
// independent wait episodes on the same call site.
func (b *Backoff) Reset() {
	b.n = 0
}

// N returns the current attempt count without advancing it.
func (b *Backoff) N() uint64 {
	return b.n
}
