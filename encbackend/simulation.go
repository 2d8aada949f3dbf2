package encbackend

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrOverlapsLauncherText is returned when a fixed non-PIE placement
// would collide with the launcher's own mapped text range.
var ErrOverlapsLauncherText = fmt.Errorf("encbackend: non-PIE heap placement overlaps launcher text")

// nonPIELowAddress is the fixed low-address placement used when the
// non-PIE flag is set, keeping the guest program's standard text
// address range free (spec.md §4.G step 5 "Simulation").
const nonPIELowAddress = 0x200000

// Program is the enclave-side behavior a Simulation backend drives. In
// production this is the library-OS ELF loaded by elfsim; in tests it
// is a hand-written stub that submits work directly against the
// syscall-bridge queues and slots without any real enclave.
type Program func(slotID int, call CallID, sig *SignalDescriptor) ExitResult

// Simulation is the in-process Backend used when no SGX-capable host is
// available: enclave memory is an ordinary anonymous mapping and
// "entering the enclave" is a direct call into a Program value.
type Simulation struct {
	mu        sync.Mutex
	mapping   []byte
	heapBase  uintptr
	heapSize  uint64
	nonPIE    bool
	slots     int
	program   Program
	selfTextLo, selfTextHi uintptr
}

// NewSimulation returns a Simulation backend. nonPIE mirrors
// SGXLKL_NON_PIE; selfText is the launcher's own mapped text range,
// read from /proc/self/maps, used to reject an overlapping placement.
func NewSimulation(nonPIE bool, selfTextLo, selfTextHi uintptr) *Simulation {
	return &Simulation{nonPIE: nonPIE, selfTextLo: selfTextLo, selfTextHi: selfTextHi}
}

// SetProgram installs the enclave-side behavior Enter dispatches to.
// Must be called before the first Enter.
func (s *Simulation) SetProgram(p Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

// SetSlotCount fixes the number of driver slots this simulated enclave
// exposes; the launcher sets it to the configured enclave-thread count
// (SGXLKL_ETHREADS).
func (s *Simulation) SetSlotCount(n int) {
	s.mu.Lock()
	s.slots = n
	s.mu.Unlock()
}

// CreateEnclaveMem allocates an anonymous read/write/exec mapping for
// the simulated enclave heap (spec.md §4.G step 5 "Simulation"). The
// non-PIE placement and overlap check are resolved here rather than in
// the launcher, since only the backend knows the mapping's real address
// once the kernel has chosen or been forced to use one.
func (s *Simulation) CreateEnclaveMem(_ string, heapSize uint64) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prot := unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if s.nonPIE {
		flags |= unix.MAP_FIXED
		if nonPIELowAddress < s.selfTextHi && nonPIELowAddress+uintptr(heapSize) > s.selfTextLo {
			return 0, ErrOverlapsLauncherText
		}
	}

	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, uintptr(mmapHint(s.nonPIE)), uintptr(heapSize),
		uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return 0, fmt.Errorf("encbackend: anonymous heap mmap: %w", errno)
	}
	base := addr
	s.mapping = unsafe.Slice((*byte)(unsafe.Pointer(base)), heapSize)
	s.heapBase = base
	s.heapSize = heapSize
	return base, nil
}

func mmapHint(nonPIE bool) uintptr {
	if nonPIE {
		return nonPIELowAddress
	}
	return 0
}

// HeapBytes returns the mapped heap region for direct manipulation by
// the simulation-mode ELF loader. Only valid after CreateEnclaveMem.
func (s *Simulation) HeapBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping
}

func (s *Simulation) SlotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}

func (s *Simulation) UpdateHeap(newSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heapSize = newSize
	return nil
}

func (s *Simulation) Enter(slotID int, call CallID, sig *SignalDescriptor) (ExitResult, error) {
	s.mu.Lock()
	p := s.program
	n := s.slots
	s.mu.Unlock()
	if p == nil {
		return ExitResult{}, fmt.Errorf("encbackend: Simulation.Enter called before SetProgram")
	}
	if slotID < 0 || (n > 0 && slotID >= n) {
		return ExitResult{}, fmt.Errorf("encbackend: slot %d out of range [0,%d)", slotID, n)
	}
	return p(slotID, call, sig), nil
}

func (s *Simulation) Resume(slotID int) error {
	_, err := s.Enter(slotID, Resume, nil)
	return err
}

func (s *Simulation) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping != nil {
		_ = unix.Munmap(s.mapping)
		s.mapping = nil
	}
	return nil
}
