package launcher

import (
	"fmt"
	"os/signal"

	"golang.org/x/sys/unix"
)

// setAffinity pins the calling OS thread to a single CPU, per spec.md
// §4.G step 13's "pinned round-robin to its affinity list" requirement.
// The caller must already have called runtime.LockOSThread.
func setAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity cpu=%d: %w", cpu, err)
	}
	return nil
}

// setFIFOPriority gives the calling OS thread SCHED_FIFO scheduling at
// the minimum real-time priority, per spec.md §4.G step 13's "may be
// given real-time FIFO priority." EPERM from the kernel (no rtprio
// capability) is returned verbatim so the caller can print the
// remediation hint spec.md §7 requires.
func setFIFOPriority() error {
	prio, err := unix.SchedGetPriorityMin(unix.SCHED_FIFO)
	if err != nil {
		return err
	}
	return unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: int32(prio)})
}

// signalAction sets a signal's disposition to ignored or default, used
// for SGXLKL_SIGPIPE's "ignore unless enabled" behavior (spec.md §4.G
// step 2). Go's os/signal.Ignore/Reset are used rather than a raw
// sigaction(2) call so the change composes correctly with the runtime's
// own signal bookkeeping.
func signalAction(sig unix.Signal, ignore bool) {
	if ignore {
		signal.Ignore(sig)
	} else {
		signal.Reset(sig)
	}
}
