package driver

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sishtiaq/sgx-lkl/encbackend"
	"github.com/sishtiaq/sgx-lkl/hostctx"
	"github.com/sishtiaq/sgx-lkl/hostlog"
)

// SignalForwarder implements component F: in hardware mode, SIGILL and
// SIGSEGV delivered to a driver thread are turned into a HANDLE_SIGNAL
// re-entry on that thread's own bound slot, using the same dispatch
// switch as the main driver loop but restricted to CPUID, DORESUME and
// TERMINATE, per spec.md §4.F.
type SignalForwarder struct {
	Backend encbackend.Backend
	Ctx     *hostctx.Context
	Log     *hostlog.Logger

	mu  sync.Mutex
	ch  chan os.Signal
}

// NewSignalForwarder installs handlers for SIGILL and SIGSEGV. It must
// be called once, from the launcher's setup sequence, before any driver
// thread starts (spec.md §4.G step 2).
func NewSignalForwarder(backend encbackend.Backend, ctx *hostctx.Context, log *hostlog.Logger) *SignalForwarder {
	f := &SignalForwarder{
		Backend: backend,
		Ctx:     ctx,
		Log:     log,
		ch:      make(chan os.Signal, 16),
	}
	signal.Notify(f.ch, unix.SIGILL, unix.SIGSEGV)
	return f
}

// Serve blocks, handling forwarded signals until the channel is closed
// by Stop. It is meant to run on its own goroutine for the lifetime of
// the process; signal.Notify delivery is not tied to any one OS thread,
// so the tid used to resolve "my slot" must be read at delivery time.
func (f *SignalForwarder) Serve() {
	for sig := range f.ch {
		f.handle(sig)
	}
}

// Stop disables forwarding, allowing Serve to return.
func (f *SignalForwarder) Stop() {
	signal.Stop(f.ch)
	close(f.ch)
}

func (f *SignalForwarder) handle(sig os.Signal) {
	if f.Ctx.Exiting() {
		return
	}
	tid := unix.Gettid()
	slotID, ok := f.Ctx.SlotFor(tid)
	if !ok {
		if f.Log != nil {
			f.Log.Error("signal forwarder: no slot bound for thread", hostlog.KV("tid", tid), hostlog.KV("signal", sig.String()))
		}
		return
	}

	desc := &encbackend.SignalDescriptor{Signum: signum(sig)}
	if desc.Signum == int(unix.SIGILL) {
		desc.Aux = uint64(time.Now().UnixNano())
	}

	res, err := f.Backend.Enter(slotID, encbackend.HandleSignal, desc)
	if err != nil {
		if f.Log != nil {
			f.Log.Error("signal forwarder: enter failed", hostlog.KVErr(err))
		}
		return
	}

	if err := dispatchRestricted(f.Backend, slotID, res); err != nil {
		if term, ok := err.(*Terminated); ok {
			f.Ctx.SetExiting()
			if f.Log != nil {
				f.Log.FatalCode(term.Code, "enclave requested termination during signal handling")
			}
			os.Exit(term.Code)
		}
		if f.Log != nil {
			f.Log.Fatal("signal forwarder: unexpected exit reason during signal handling", hostlog.KVErr(err))
		}
	}
}

// dispatchRestricted is the "restricted dispatch" spec.md §4.F requires:
// only CPUID, DORESUME and TERMINATE are legal outcomes of a
// HANDLE_SIGNAL re-entry. Anything else means the enclave and host have
// desynchronized, which is unsafe to paper over (a resolved open
// question: abort rather than silently resume).
func dispatchRestricted(b encbackend.Backend, slotID int, res encbackend.ExitResult) error {
	switch res.Reason {
	case encbackend.CPUID:
		if res.CPUID != nil {
			executeCPUID(res.CPUID)
		}
		next, err := b.Enter(slotID, encbackend.Resume, nil)
		if err != nil {
			return err
		}
		return dispatchRestricted(b, slotID, next)
	case encbackend.DoResume:
		return b.Resume(slotID)
	case encbackend.Terminate:
		return &Terminated{Code: res.TerminateVal}
	default:
		return fmt.Errorf("driver: slot %d unexpected exit reason %v during signal handling", slotID, res.Reason)
	}
}

func signum(sig os.Signal) int {
	if s, ok := sig.(unix.Signal); ok {
		return int(s)
	}
	return 0
}
