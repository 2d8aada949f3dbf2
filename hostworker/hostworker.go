// Package hostworker implements the host syscall worker loop (spec
// component D): dequeue a slot index from the submission ring, execute
// the requested syscall against the real host kernel, and publish the
// result either directly into the slot (release-ordered) or onto the
// return ring.
package hostworker

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/sishtiaq/sgx-lkl/backoff"
	"github.com/sishtiaq/sgx-lkl/hostctx"
	"github.com/sishtiaq/sgx-lkl/hostlog"
	"github.com/sishtiaq/sgx-lkl/ring"
	"github.com/sishtiaq/sgx-lkl/syscallslot"
	"github.com/sishtiaq/sgx-lkl/terminal"
)

// Bridge bundles the shared state a pool of workers dispatches against:
// the two rings, the slot table, the terminal serializer, the
// process-wide exit flag, and a logger for optional syscall tracing.
type Bridge struct {
	Submission *ring.Queue
	Return     *ring.Queue
	Slots      *syscallslot.Table
	Terminal   *terminal.Serializer
	Ctx        *hostctx.Context
	Log        *hostlog.Logger
	Trace      bool
	BackoffP   backoff.Params
}

// Run drains the submission ring until Ctx reports exiting, dispatching
// each popped slot and publishing its result. It never returns unless
// shutdown has been requested; in the reference system the enclave's own
// exit() ends the process before this loop would ever return on its own.
func (b *Bridge) Run() {
	bo := backoff.New(b.BackoffP)
	for !b.Ctx.Exiting() {
		idx, ok := b.Submission.Dequeue()
		if !ok {
			bo.Pause()
			continue
		}
		bo.Reset()
		b.dispatch(int(idx))
	}
}

func (b *Bridge) dispatch(idx int) {
	slot := b.Slots.At(idx)
	a1, a2, a3, a4, a5, a6 := slot.Args()
	ret := b.execute(slot.Syscallno, a1, a2, a3, a4, a5, a6)

	if b.Trace && b.Log != nil {
		b.Log.Debug("host syscall",
			hostlog.KV("no", slot.Syscallno),
			hostlog.KV("args", [6]uint64{a1, a2, a3, a4, a5, a6}),
			hostlog.KV("ret", ret),
		)
	}

	if slot.LoadStatus() == syscallslot.StatusDirectPending {
		slot.PublishDirectDone(ret)
		return
	}
	for !b.Return.Enqueue(uint64(idx)) {
		bo := backoff.New(b.BackoffP)
		bo.Pause()
	}
}

// execute runs the raw syscall, with one fast path: clock_gettime is
// served directly via unix.ClockGettime rather than a generic
// unix.Syscall6 dispatch, matching the vDSO-style shortcut spec.md §4.D
// calls out explicitly. Writes to fd 1 or 2 take the terminal serializer
// first so concurrent enclave producers never interleave their bytes.
func (b *Bridge) execute(no, a1, a2, a3, a4, a5, a6 uint64) uint64 {
	switch no {
	case unix.SYS_CLOCK_GETTIME:
		return b.clockGettime(a1, a2)
	case unix.SYS_WRITE:
		if lock := b.Terminal.ForFD(int(a1)); lock != nil {
			lock.Acquire()
			defer lock.Release()
		}
	}
	return rawSyscall6(no, a1, a2, a3, a4, a5, a6)
}

func (b *Bridge) clockGettime(clockID, tsPtr uint64) uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(int32(clockID), &ts); err != nil {
		return uint64(negErrno(err))
	}
	writeTimespec(tsPtr, ts)
	return 0
}

func negErrno(err error) int64 {
	if errno, ok := err.(unix.Errno); ok {
		return -int64(errno)
	}
	return -int64(unix.EINVAL)
}

// SleepNanos implements the SLEEP exit-reason action from component E,
// kept here so the driver package can share the same time source the
// worker pool uses for clock_gettime.
func SleepNanos(ns int64) {
	time.Sleep(time.Duration(ns) * time.Nanosecond)
}
