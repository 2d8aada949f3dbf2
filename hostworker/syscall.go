package hostworker

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// rawSyscall6 executes the syscall verbatim with the six argument words
// loaded from the slot, exactly as spec.md §4.D step 3's "otherwise"
// branch requires: no interpretation, no retry, the raw kernel return
// value (including negative errno encodings) goes straight back to the
// slot for the in-enclave kernel to interpret.
func rawSyscall6(no, a1, a2, a3, a4, a5, a6 uint64) uint64 {
	r1, _, errno := unix.Syscall6(uintptr(no), uintptr(a1), uintptr(a2), uintptr(a3), uintptr(a4), uintptr(a5), uintptr(a6))
	if errno != 0 {
		return uint64(-int64(errno))
	}
	return uint64(r1)
}

// writeTimespec copies ts into the enclave-visible memory at addr. addr
// is a raw address within the shared heap mapping (simulation mode) or
// the enclave's mapped memory (hardware mode) -- either way it is valid
// host-process memory by construction, never a guest-virtual address
// requiring translation.
func writeTimespec(addr uint64, ts unix.Timespec) {
	dst := (*unix.Timespec)(unsafe.Pointer(uintptr(addr)))
	*dst = ts
}
