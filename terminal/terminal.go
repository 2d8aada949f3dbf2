// Package terminal implements the two process-wide mutual-exclusion
// primitives that serialize writes to stdout and stderr (spec component
// I), preventing interleaved bytes when multiple host syscall workers
// relay concurrent in-enclave `write` calls to the same terminal.
//
// Each lock is a simple CAS spinlock, matching the teacher's choice of a
// pthread_spinlock_t rather than a blocking mutex: the critical section
// is a single write(2) syscall, short enough that spinning beats
// parking a goroutine's OS thread.
package terminal

import (
	"code.hybscloud.com/atomix"
)

// Lock is a spin-based mutual exclusion primitive for one terminal fd.
type Lock struct {
	held atomix.Bool
}

// Acquire spins until the lock is obtained.
func (l *Lock) Acquire() {
	for !l.held.CompareAndSwapAcqRel(false, true) {
	}
}

// Release releases a held lock.
func (l *Lock) Release() {
	l.held.StoreRelease(false)
}

// Serializer owns the stdout and stderr locks. Only syscall dispatch
// (component D, for SYS_write on fd 1 or 2) and, optionally, trace-print
// sites take these locks -- no other syscall touches them.
type Serializer struct {
	Stdout Lock
	Stderr Lock
}

// New returns a Serializer with both locks unheld.
func New() *Serializer {
	return &Serializer{}
}

// ForFD returns the lock guarding writes to fd, or nil if fd is neither
// stdout (1) nor stderr (2).
func (s *Serializer) ForFD(fd int) *Lock {
	switch fd {
	case 1:
		return &s.Stdout
	case 2:
		return &s.Stderr
	default:
		return nil
	}
}
