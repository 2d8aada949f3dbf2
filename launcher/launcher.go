// Package launcher implements the ordered launch sequencer (spec
// component G): it builds the configuration record, allocates the
// syscall bridge, registers disks/network/shared-memory, and starts the
// two fixed thread pools, then joins them.
package launcher

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sishtiaq/sgx-lkl/backoff"
	"github.com/sishtiaq/sgx-lkl/config"
	"github.com/sishtiaq/sgx-lkl/driver"
	"github.com/sishtiaq/sgx-lkl/elfsim"
	"github.com/sishtiaq/sgx-lkl/encbackend"
	"github.com/sishtiaq/sgx-lkl/hostctx"
	"github.com/sishtiaq/sgx-lkl/hostlog"
	"github.com/sishtiaq/sgx-lkl/hostworker"
	"github.com/sishtiaq/sgx-lkl/ring"
	"github.com/sishtiaq/sgx-lkl/syscallslot"
	"github.com/sishtiaq/sgx-lkl/terminal"
)

const queueCapacity = 256

// Mode selects which encbackend.Backend the sequencer builds.
type Mode int

const (
	Hardware Mode = iota
	Simulation
)

// Launcher holds everything the sequencer assembles. Exported so tests
// can construct one with a stub Program and drive Run without any real
// enclave, per the in-process syscall-relay smoke test spec.md §8 calls
// for.
type Launcher struct {
	Cfg *config.Snapshot
	Log *hostlog.Logger
	Ctx *hostctx.Context

	Mode    Mode
	LibOS   string // path to the library-OS image, for simulation mode
	DevPath string // SGX device node, for hardware mode

	Backend    encbackend.Backend
	Submission *ring.Queue
	Return     *ring.Queue
	Slots      *syscallslot.Table
	Term       *terminal.Serializer
	Forwarder  *driver.SignalForwarder

	NProc int
}

// New builds the fixed, side-effect-free parts of a Launcher: logger
// binding, host context, and the nproc count used by later affinity
// resolution. It does not touch the filesystem, devices, or threads --
// that is Run's job, per spec.md §4.G's ordered steps.
func New(cfg *config.Snapshot, log *hostlog.Logger) *Launcher {
	return &Launcher{
		Cfg:   cfg,
		Log:   log,
		Ctx:   hostctx.New(),
		NProc: runtime.NumCPU(),
	}
}

// Run executes spec.md §4.G's ordered sequence and then joins the host
// syscall worker pool. A *driver.Terminated error is the expected,
// non-failure outcome of an enclave-initiated TERMINATE; any other
// error is a launcher-side failure (configuration, resource
// acquisition).
func (l *Launcher) Run() error {
	if l.Cfg.SIGPIPE {
		signalDefault(unix.SIGPIPE)
	} else {
		signalIgnore(unix.SIGPIPE)
	}

	bp := backoff.Params{SpinThreshold: l.Cfg.SpinThreshold, SleepFactor: l.Cfg.SleepFactor}

	if err := l.allocateHeap(); err != nil {
		return fmt.Errorf("launcher: heap allocation: %w", err)
	}

	l.Submission = ring.New(queueCapacity)
	l.Return = ring.New(queueCapacity)
	l.Slots = syscallslot.NewTable(int(l.Cfg.MaxUserThreads))
	l.Term = terminal.New()

	if l.Cfg.Verbose {
		l.Log.Info("syscall bridge allocated",
			hostlog.KV("slots", l.Slots.Len()),
			hostlog.KV("queue_capacity", l.Submission.Cap()),
		)
	}

	diskEntries := append([]config.DiskEntry(nil), l.Cfg.Disks...)
	if len(diskEntries) > 0 && diskEntries[0].Path == "" {
		diskEntries[0].Path = l.Cfg.DiskImage
	}
	disks, err := registerDisks(diskEntries)
	if err != nil {
		return fmt.Errorf("launcher: disk registration: %w", err)
	}
	if l.Cfg.Verbose {
		for _, d := range disks {
			l.Log.Info("disk registered", hostlog.KV("path", d.Entry.Path), hostlog.KV("mount", d.Entry.Mount), hostlog.KV("encrypted", d.Encrypted))
		}
	}

	net, err := registerNetwork(l.Cfg.Net)
	if err != nil {
		return fmt.Errorf("launcher: network registration: %w", err)
	}
	if net != nil {
		defer net.Close()
	}

	shm, err := registerShmem(l.Cfg.Shmem)
	if err != nil {
		return fmt.Errorf("launcher: shared memory registration: %w", err)
	}
	if shm != nil {
		defer shm.Close()
	}

	// spec.md §4.G step 13 spawns exactly SGXLKL_ETHREADS drivers
	// regardless of host CPU count; affinity pinning (pinnedCPU) is what
	// maps that count down onto the available CPUs, not this count itself.
	nEnclave := int(l.Cfg.EThreads)

	eAffinity, err := config.ParseAffinity(l.Cfg.EThreadsAffinityRaw, l.NProc)
	if err != nil {
		return fmt.Errorf("launcher: SGXLKL_ETHREADS_AFFINITY: %w", err)
	}
	sAffinity, err := config.ParseAffinity(l.Cfg.SThreadsAffinityRaw, l.NProc)
	if err != nil {
		return fmt.Errorf("launcher: SGXLKL_STHREADS_AFFINITY: %w", err)
	}

	if l.Mode == Simulation {
		sim := l.Backend.(*encbackend.Simulation)
		sim.SetSlotCount(nEnclave)
		entry, loadErr := loadLibOS(l.LibOS, sim)
		if loadErr != nil {
			return fmt.Errorf("launcher: simulation ELF load: %w", loadErr)
		}
		if l.Cfg.Verbose {
			l.Log.Info("library-OS loaded", hostlog.KV("entry", entry))
		}
	}

	if l.Mode == Hardware {
		l.Forwarder = driver.NewSignalForwarder(l.Backend, l.Ctx, l.Log)
		go l.Forwarder.Serve()
	}

	var wg sync.WaitGroup
	workerErrs := make(chan error, int(l.Cfg.SThreads)+nEnclave)

	for i := 0; i < int(l.Cfg.SThreads); i++ {
		wg.Add(1)
		cpu := pinnedCPU(sAffinity, i, l.NProc)
		go func(i, cpu int) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if cpu >= 0 {
				if err := setAffinity(cpu); err != nil && l.Log != nil {
					l.Log.Error("host syscall worker affinity pin failed", hostlog.KVErr(err), hostlog.KV("worker", i))
				}
			}
			b := &hostworker.Bridge{
				Submission: l.Submission,
				Return:     l.Return,
				Slots:      l.Slots,
				Terminal:   l.Term,
				Ctx:        l.Ctx,
				Log:        l.Log,
				Trace:      l.Cfg.TraceHostSyscall,
				BackoffP:   bp,
			}
			b.Run()
		}(i, cpu)
	}

	for i := 0; i < nEnclave; i++ {
		wg.Add(1)
		cpu := pinnedCPU(eAffinity, i, l.NProc)
		slotID := i
		go func(i, cpu, slotID int) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if cpu >= 0 {
				if err := setAffinity(cpu); err != nil && l.Log != nil {
					l.Log.Error("enclave driver affinity pin failed", hostlog.KVErr(err), hostlog.KV("driver", i))
				}
			}
			if l.Cfg.RealTimePrio {
				if err := setFIFOPriority(); err != nil {
					l.Log.FatalCode(1, "real-time FIFO scheduling denied; see rtprio in /etc/security/limits.conf", hostlog.KVErr(err))
				}
			}
			l.Ctx.BindSlot(unix.Gettid(), slotID)
			d := &driver.Driver{
				SlotID:  slotID,
				Backend: l.Backend,
				Ctx:     l.Ctx,
				Log:     l.Log,
				Trace:   l.Cfg.TraceThread,
			}
			workerErrs <- d.Run()
		}(i, cpu, slotID)
	}

	var result error
	for i := 0; i < nEnclave; i++ {
		if err := <-workerErrs; err != nil {
			if _, ok := err.(*driver.Terminated); ok {
				l.Ctx.SetExiting()
				if result == nil {
					result = err
				}
				continue
			}
			l.Ctx.SetExiting()
			if result == nil {
				result = err
			}
		}
	}
	wg.Wait()
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// loadLibOS reads the already-mapped enclave heap from sim (allocated by
// allocateHeap before Run starts the thread pools) and loads the
// library-OS ELF image into it, installing the resulting entry point as
// sim's default Program.
func loadLibOS(path string, sim *encbackend.Simulation) (uintptr, error) {
	res, err := elfsim.Load(path, sim.HeapBytes())
	if err != nil {
		return 0, err
	}
	sim.SetProgram(stubEntryProgram(res.Entry))
	return res.Entry, nil
}

// stubEntryProgram is the default Program for a successfully loaded
// library-OS image in simulation mode: spec.md describes entry(config)
// as the actual in-enclave behavior, which this launcher never
// implements (the enclave runtime is opaque, §2); running it here would
// require interpreting x86-64 machine code. This default program
// terminates immediately, and is only ever reached when Simulation is
// used outside tests without a custom Program installed by the caller.
func stubEntryProgram(entry uintptr) encbackend.Program {
	return func(slotID int, call encbackend.CallID, sig *encbackend.SignalDescriptor) encbackend.ExitResult {
		return encbackend.ExitResult{Reason: encbackend.Terminate, TerminateVal: 0}
	}
}

func pinnedCPU(affinity []int, i, nproc int) int {
	if len(affinity) > 0 {
		return affinity[i%len(affinity)]
	}
	if nproc <= 0 {
		return -1
	}
	return i % nproc
}

func signalIgnore(sig unix.Signal) {
	signalAction(sig, true)
}

func signalDefault(sig unix.Signal) {
	signalAction(sig, false)
}
