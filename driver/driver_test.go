package driver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sishtiaq/sgx-lkl/encbackend"
	"github.com/sishtiaq/sgx-lkl/hostctx"
)

func newStubBackend(t *testing.T, reasons ...encbackend.ExitResult) *stubBackend {
	t.Helper()
	return &stubBackend{results: reasons}
}

type stubBackend struct {
	results []encbackend.ExitResult
	idx     int
	resumes int
}

func (s *stubBackend) CreateEnclaveMem(string, uint64) (uintptr, error) { return 0, nil }
func (s *stubBackend) UpdateHeap(uint64) error                          { return nil }
func (s *stubBackend) SlotCount() int                                  { return 1 }
func (s *stubBackend) Close() error                                    { return nil }
func (s *stubBackend) Resume(int) error {
	s.resumes++
	return nil
}
func (s *stubBackend) Enter(slotID int, call encbackend.CallID, sig *encbackend.SignalDescriptor) (encbackend.ExitResult, error) {
	if s.idx >= len(s.results) {
		return encbackend.ExitResult{Reason: encbackend.Terminate}, nil
	}
	r := s.results[s.idx]
	s.idx++
	return r, nil
}

func TestDriverRunTerminatesOnTerminateReason(t *testing.T) {
	b := newStubBackend(t, encbackend.ExitResult{Reason: encbackend.Terminate, TerminateVal: 42})
	d := &Driver{SlotID: 0, Backend: b, Ctx: hostctx.New()}

	err := d.Run()
	require.Error(t, err)
	term, ok := err.(*Terminated)
	require.True(t, ok)
	require.Equal(t, 42, term.Code)
}

func TestDriverRunLoopsThroughCPUIDAndSleep(t *testing.T) {
	b := newStubBackend(t,
		encbackend.ExitResult{Reason: encbackend.CPUID, CPUID: &encbackend.CPUIDRegs{EAX: 1}},
		encbackend.ExitResult{Reason: encbackend.Sleep, SleepNanos: 1},
		encbackend.ExitResult{Reason: encbackend.Terminate, TerminateVal: 0},
	)
	d := &Driver{SlotID: 0, Backend: b, Ctx: hostctx.New()}

	err := d.Run()
	require.Error(t, err)
	require.Equal(t, 3, b.idx)
}

func TestDriverRunInvokesResumeOnDoResume(t *testing.T) {
	b := newStubBackend(t,
		encbackend.ExitResult{Reason: encbackend.DoResume},
		encbackend.ExitResult{Reason: encbackend.Terminate},
	)
	d := &Driver{SlotID: 0, Backend: b, Ctx: hostctx.New()}

	err := d.Run()
	require.Error(t, err)
	require.Equal(t, 1, b.resumes)
}

func TestDriverRunAbortsOnUnexpectedReason(t *testing.T) {
	b := newStubBackend(t, encbackend.ExitResult{Reason: encbackend.ExitReason(99)})
	d := &Driver{SlotID: 0, Backend: b, Ctx: hostctx.New()}

	err := d.Run()
	require.Error(t, err)
	_, isTerminated := err.(*Terminated)
	require.False(t, isTerminated)
}

func TestDriverRunStopsWhenContextExiting(t *testing.T) {
	ctx := hostctx.New()
	ctx.SetExiting()
	b := newStubBackend(t)
	d := &Driver{SlotID: 0, Backend: b, Ctx: ctx}

	err := d.Run()
	require.NoError(t, err)
	require.Equal(t, 0, b.idx)
}
