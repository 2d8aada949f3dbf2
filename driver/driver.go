// Package driver implements the enclave thread driver loop (spec
// component E) and the hardware-mode signal forwarder (component F).
// Both re-enter the same Backend with the same exit-reason dispatch;
// the forwarder is simply a nested, restricted instance of the same
// state machine triggered by a host signal instead of a loop iteration.
package driver

import (
	"fmt"
	"runtime"

	"github.com/sishtiaq/sgx-lkl/encbackend"
	"github.com/sishtiaq/sgx-lkl/hostctx"
	"github.com/sishtiaq/sgx-lkl/hostlog"
	"github.com/sishtiaq/sgx-lkl/hostworker"
)

// Driver drives one enclave execution slot to completion. One Driver
// runs per enclave-thread pool member, pinned to its own OS thread for
// the lifetime of the process (affinity and, optionally, SCHED_FIFO are
// per-OS-thread properties).
type Driver struct {
	SlotID  int
	Backend encbackend.Backend
	Ctx     *hostctx.Context
	Log     *hostlog.Logger
	Trace   bool
}

// Terminated is returned by Run when the enclave requested termination.
// Callers translate it into the process exit code.
type Terminated struct {
	Code int
}

func (t *Terminated) Error() string { return fmt.Sprintf("enclave requested termination (%d)", t.Code) }

// Run performs the "Entered -> dispatch -> Entered" loop from spec.md
// §4.E until Ctx.Exiting() is set, the enclave calls TERMINATE, or an
// unexpected condition forces an abort. It must be called with the
// calling goroutine already locked to its OS thread
// (runtime.LockOSThread) and bound in Ctx via BindSlot, both of which
// the launcher's pool-start step performs before calling Run.
func (d *Driver) Run() error {
	call := encbackend.Run
	for !d.Ctx.Exiting() {
		res, err := d.Backend.Enter(d.SlotID, call, nil)
		if err != nil {
			return fmt.Errorf("driver: slot %d enter: %w", d.SlotID, err)
		}
		if d.Trace && d.Log != nil {
			d.Log.Debug("enclave exit", hostlog.KV("slot", d.SlotID), hostlog.KV("reason", res.Reason.String()))
		}
		next, done, err := dispatch(d.Backend, d.SlotID, res)
		if done {
			return err
		}
		call = next
	}
	return nil
}

// dispatch implements spec.md §4.E step 2's switch, shared between the
// main driver loop and the signal forwarder's nested, restricted entry.
func dispatch(b encbackend.Backend, slotID int, res encbackend.ExitResult) (next encbackend.CallID, done bool, err error) {
	switch res.Reason {
	case encbackend.Terminate:
		return 0, true, &Terminated{Code: res.TerminateVal}
	case encbackend.CPUID:
		if res.CPUID != nil {
			executeCPUID(res.CPUID)
		}
		return encbackend.Resume, false, nil
	case encbackend.Sleep:
		hostworker.SleepNanos(res.SleepNanos)
		return encbackend.Resume, false, nil
	case encbackend.DoResume:
		if err := b.Resume(slotID); err != nil {
			return 0, true, fmt.Errorf("driver: slot %d resume: %w", slotID, err)
		}
		return encbackend.Resume, false, nil
	case encbackend.Error:
		return 0, true, fmt.Errorf("driver: slot %d enclave error code %d", slotID, res.ErrCode)
	default:
		return 0, true, fmt.Errorf("driver: slot %d unexpected exit reason %v", slotID, res.Reason)
	}
}

// BindCurrentThread locks the calling goroutine to its OS thread and
// registers the slot binding in Ctx, the pattern every driver and the
// signal forwarder goroutine must follow before touching the backend
// (spec.md §9's "current slot id" resolution via OS-tid map).
func BindCurrentThread(ctx *hostctx.Context, tid, slotID int) {
	runtime.LockOSThread()
	ctx.BindSlot(tid, slotID)
}
