// Package syscallslot implements the fixed array of syscall descriptor
// slots (spec component C) shared between the enclave and the host. The
// host side only ever touches a slot after popping its index from the
// submission queue; it never scans the table, and free-slot allocation is
// entirely the in-enclave side's responsibility.
package syscallslot

import (
	"code.hybscloud.com/atomix"
)

// Status values for Slot.status, per the wire protocol in spec.md §3/§6.
const (
	StatusIdle          uint32 = 0 // idle or queued on the submission ring
	StatusDirectPending uint32 = 1 // producer is polling in place
	StatusDirectDone    uint32 = 2 // host has published ret_val
)

// Slot is one syscall request/response record. Field order matches the
// wire layout spec.md §6 specifies: syscallno, six argument words,
// ret_val, then a 32-bit status -- the enclave and host must agree on
// this layout bit-for-bit since it straddles the enclave boundary.
type Slot struct {
	Syscallno uint64
	Arg1      uint64
	Arg2      uint64
	Arg3      uint64
	Arg4      uint64
	Arg5      uint64
	Arg6      uint64
	RetVal    uint64
	status    atomix.Int32
}

// Args returns the six raw argument words in register order, for handing
// straight to a raw syscall invocation.
func (s *Slot) Args() (a1, a2, a3, a4, a5, a6 uint64) {
	return s.Arg1, s.Arg2, s.Arg3, s.Arg4, s.Arg5, s.Arg6
}

// LoadStatus reads the current status with acquire semantics. A direct
// producer polling in place must use this and must not read RetVal until
// it observes StatusDirectDone.
func (s *Slot) LoadStatus() uint32 {
	return uint32(s.status.LoadAcquire())
}

// StoreStatusRelaxed sets the status without a memory barrier. It stands
// in for the in-enclave producer logic this package does not implement (out of scope per spec.md §4.C), kept here
// only so tests can drive a slot through its states without importing
// unsafe.
func (s *Slot) StoreStatusRelaxed(v uint32) {
	s.status.StoreRelaxed(int32(v))
}

// PublishDirectDone writes RetVal then publishes StatusDirectDone with a
// release barrier, exactly as spec.md §3/§4.D requires for the
// direct-return fast path. The caller must have observed
// StatusDirectPending on this slot before calling this.
func (s *Slot) PublishDirectDone(retVal uint64) {
	s.RetVal = retVal
	s.status.StoreRelease(int32(StatusDirectDone))
}

// Table is the fixed-size array of slots, sized to max_user_threads at
// launch time and zero-initialized.
type Table struct {
	slots []Slot
}

// NewTable allocates a zero-initialized table of n slots.
func NewTable(n int) *Table {
	return &Table{slots: make([]Slot, n)}
}

// Len returns the slot count (max_user_threads).
func (t *Table) Len() int {
	return len(t.slots)
}

// At returns a pointer to the slot at index i. The host only calls this
// with indices popped off the submission queue.
func (t *Table) At(i int) *Slot {
	return &t.slots[i]
}
