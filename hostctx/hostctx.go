// Package hostctx carries the small amount of process-wide mutable state
// the launcher needs: the sticky exit flag enclave threads and the signal
// forwarder consult before every re-entry, and the per-OS-thread slot
// registry the signal forwarder uses to find "my enclave slot".
//
// This replaces the C implementation's file-scope globals
// (__state_exiting, my_tcs_id) with a value threaded through constructors,
// per the redesign note in the launcher design notes.
package hostctx

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// Context is handed to every component that needs to observe process-wide
// shutdown state or resolve the current OS thread's enclave slot.
type Context struct {
	exiting atomix.Bool

	mu     sync.RWMutex
	slotOf map[int]int // OS tid -> enclave slot id
}

// New returns a fresh, non-exiting Context.
func New() *Context {
	return &Context{
		slotOf: make(map[int]int),
	}
}

// Exiting reports whether shutdown has been requested. Checked before
// every enclave re-entry.
func (c *Context) Exiting() bool {
	return c.exiting.LoadAcquire()
}

// SetExiting sets the sticky exit flag. Once set it is never cleared.
func (c *Context) SetExiting() {
	c.exiting.StoreRelease(true)
}

// BindSlot associates the calling goroutine's OS thread id with an enclave
// slot id. Enclave driver goroutines call this once, immediately after
// runtime.LockOSThread, before entering their drive loop.
func (c *Context) BindSlot(tid, slotID int) {
	c.mu.Lock()
	c.slotOf[tid] = slotID
	c.mu.Unlock()
}

// UnbindSlot removes the association created by BindSlot. Called when a
// driver thread terminates without exiting the whole process.
func (c *Context) UnbindSlot(tid int) {
	c.mu.Lock()
	delete(c.slotOf, tid)
	c.mu.Unlock()
}

// SlotFor returns the enclave slot id bound to the given OS thread id, if
// any. Used by the signal forwarder, which runs on whichever OS thread
// the host kernel chose to deliver the signal to.
func (c *Context) SlotFor(tid int) (slotID int, ok bool) {
	c.mu.RLock()
	slotID, ok = c.slotOf[tid]
	c.mu.RUnlock()
	return
}
