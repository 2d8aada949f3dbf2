package encbackend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimulationEnterDispatchesToProgram(t *testing.T) {
	sim := NewSimulation(false, 0, 0)
	sim.SetSlotCount(2)
	calls := make(chan CallID, 4)
	sim.SetProgram(func(slotID int, call CallID, sig *SignalDescriptor) ExitResult {
		calls <- call
		return ExitResult{Reason: Terminate, TerminateVal: 7}
	})

	res, err := sim.Enter(0, Run, nil)
	require.NoError(t, err)
	require.Equal(t, Terminate, res.Reason)
	require.Equal(t, 7, res.TerminateVal)
	require.Equal(t, Run, <-calls)
}

func TestSimulationEnterRejectsOutOfRangeSlot(t *testing.T) {
	sim := NewSimulation(false, 0, 0)
	sim.SetSlotCount(1)
	sim.SetProgram(func(int, CallID, *SignalDescriptor) ExitResult { return ExitResult{} })

	_, err := sim.Enter(5, Run, nil)
	require.Error(t, err)
}

func TestSimulationEnterRequiresProgram(t *testing.T) {
	sim := NewSimulation(false, 0, 0)
	_, err := sim.Enter(0, Run, nil)
	require.Error(t, err)
}

func TestSimulationResumeDelegatesToEnter(t *testing.T) {
	sim := NewSimulation(false, 0, 0)
	sim.SetSlotCount(1)
	var seen CallID = -1
	sim.SetProgram(func(_ int, call CallID, _ *SignalDescriptor) ExitResult {
		seen = call
		return ExitResult{Reason: DoResume}
	})
	require.NoError(t, sim.Resume(0))
	require.Equal(t, Resume, seen)
}

func TestExitReasonString(t *testing.T) {
	require.Equal(t, "TERMINATE", Terminate.String())
	require.Equal(t, "CPUID", CPUID.String())
	require.Contains(t, ExitReason(99).String(), "ExitReason")
}

func TestSimulationCreateEnclaveMemMapsHeap(t *testing.T) {
	sim := NewSimulation(false, 0, 0)
	base, err := sim.CreateEnclaveMem("", 4096)
	require.NoError(t, err)
	require.NotZero(t, base)
	require.NoError(t, sim.Close())
}

func TestSimulationCreateEnclaveMemRejectsOverlap(t *testing.T) {
	sim := NewSimulation(true, nonPIELowAddress-0x1000, nonPIELowAddress+0x1000)
	_, err := sim.CreateEnclaveMem("", 4096)
	require.ErrorIs(t, err, ErrOverlapsLauncherText)
}
