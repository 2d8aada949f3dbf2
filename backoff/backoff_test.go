package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPauseStaysOnCPUDuringSpinPhase(t *testing.T) {
	b := New(Params{SpinThreshold: 100, SleepFactor: 4000})
	for k := uint64(1); k <= 100; k++ {
		start := time.Now()
		n := b.Pause()
		require.Equal(t, k, n)
		require.Less(t, time.Since(start), 5*time.Millisecond, "spin phase must not sleep")
	}
}

func TestPauseSleepsPastThreshold(t *testing.T) {
	b := New(Params{SpinThreshold: 100, SleepFactor: 4000})
	// n <= SpinThreshold spins, so calls 1..101 (pre-call n 0..100) all
	// spin; the first sleep happens on call 102.
	for k := 0; k < 101; k++ {
		b.Pause()
	}
	start := time.Now()
	n := b.Pause()
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 3500*time.Nanosecond)
	require.Equal(t, uint64(102), n)
}

func TestPauseSleepIsCapped(t *testing.T) {
	b := New(Params{SpinThreshold: 10, SleepFactor: 1000})
	for k := 0; k < 10; k++ {
		b.Pause()
	}
	var last uint64
	for k := 0; k < 20; k++ {
		last = b.Pause()
	}
	// over is capped at maxSleepSteps, so n never diverges unboundedly.
	require.LessOrEqual(t, last, uint64(10+2*maxSleepSteps))
}

func TestResetRestartsSpinPhase(t *testing.T) {
	b := New(DefaultParams)
	for k := 0; k < 150; k++ {
		b.Pause()
	}
	b.Reset()
	require.Equal(t, uint64(0), b.N())
	n := b.Pause()
	require.Equal(t, uint64(1), n)
}
