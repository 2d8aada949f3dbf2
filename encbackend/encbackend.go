// Package encbackend models the opaque enclave-entry primitives spec.md
// §2 and §9 describe (enter/resume/init_sgx/create_enclave_mem/
// update_heap/slot_count) as a small interface with two implementations,
// so the driver loop in package driver never branches on execution mode.
package encbackend

import "fmt"

// ExitReason is the small integer enter returns that tells the driver
// why the enclave left execution (spec.md §4.E, §9 glossary).
type ExitReason int

const (
	Terminate ExitReason = iota
	CPUID
	Sleep
	DoResume
	Error
)

func (r ExitReason) String() string {
	switch r {
	case Terminate:
		return "TERMINATE"
	case CPUID:
		return "CPUID"
	case Sleep:
		return "SLEEP"
	case DoResume:
		return "DORESUME"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("ExitReason(%d)", int(r))
}

// CallID selects what the enclave should do on its next entry.
type CallID int

const (
	Run CallID = iota
	Resume
	HandleSignal
)

// CPUIDRegs is the register payload for a CPUID exit, read and written
// in place by the host (spec.md §4.E step "CPUID(reg_ptr)").
type CPUIDRegs struct {
	EAX, EBX, ECX, EDX uint32
}

// SignalDescriptor is the small descriptor the signal forwarder builds
// before re-entering the enclave (spec.md §4.F).
type SignalDescriptor struct {
	Signum int
	Aux    uint64 // wall-clock nanoseconds for SIGILL (rdtsc emulation); zero for SIGSEGV, no siginfo is passed
}

// ExitResult is everything a single enter/resume call can hand back to
// the driver loop besides the exit reason itself.
type ExitResult struct {
	Reason       ExitReason
	TerminateVal int        // valid when Reason == Terminate
	SleepNanos   int64      // valid when Reason == Sleep
	CPUID        *CPUIDRegs // valid when Reason == CPUID
	ErrCode      int        // valid when Reason == Error
}

// Backend is the abstract enclave-entry capability spec.md §9's design
// notes direct: enter, resume, init_sgx, create_enclave_mem, update_heap
// and slot_count behind one interface so the driver loop is identical
// regardless of execution mode.
type Backend interface {
	// CreateEnclaveMem reserves heapSize bytes for the enclave's address
	// space, returning the heap base address. Neither implementation
	// loads libPath here: Simulation ignores it (the image is loaded
	// later by elfsim) and Hardware only checks that it can be opened.
	CreateEnclaveMem(libPath string, heapSize uint64) (heapBase uintptr, err error)

	// UpdateHeap records a new heap size. Neither implementation rewrites
	// a heap-size signature in the image, and the launcher does not call
	// it.
	UpdateHeap(newSize uint64) error

	// SlotCount reports how many enclave execution slots are available,
	// bounding how many driver threads (component E) can be started.
	SlotCount() int

	// Enter performs the host->enclave transition for the given slot,
	// blocking until the enclave exits. sig is non-nil only for
	// call == HandleSignal re-entries (spec.md §4.F).
	Enter(slotID int, call CallID, sig *SignalDescriptor) (ExitResult, error)

	// Resume invokes the opaque resume(slot_id) primitive used for the
	// DORESUME exit reason in hardware mode (spec.md §4.E step 4).
	Resume(slotID int) error

	// Close releases any resources held by the backend (unmaps memory,
	// closes enclave device handles).
	Close() error
}
