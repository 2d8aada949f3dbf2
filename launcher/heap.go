package launcher

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sishtiaq/sgx-lkl/encbackend"
)

// allocateHeap implements spec.md §4.G step 5: build the backend for
// l.Mode and reserve the enclave heap through it. Hardware mode checks
// that the library-OS file can be opened and maps the heap through the
// SGX device (the image itself is not loaded);
// simulation mode reserves an anonymous mapping, optionally at the fixed
// non-PIE address, after checking it would not overlap the launcher's
// own mapped text range.
func (l *Launcher) allocateHeap() error {
	switch l.Mode {
	case Hardware:
		hw, err := encbackend.NewHardware(l.DevPath)
		if err != nil {
			return err
		}
		if _, err := hw.CreateEnclaveMem(l.LibOS, l.Cfg.HeapSize); err != nil {
			return err
		}
		l.Backend = hw
		return nil
	case Simulation:
		lo, hi, err := selfTextRange()
		if err != nil {
			return fmt.Errorf("reading /proc/self/maps: %w", err)
		}
		sim := encbackend.NewSimulation(l.Cfg.NonPIE, lo, hi)
		if _, err := sim.CreateEnclaveMem(l.LibOS, l.Cfg.HeapSize); err != nil {
			return err
		}
		l.Backend = sim
		return nil
	default:
		return fmt.Errorf("unknown launcher mode %v", l.Mode)
	}
}

// selfTextRange reads /proc/self/maps and returns the lowest and
// highest address of this process's own executable mapping, the Go
// equivalent of the teacher-C linker's __text_segment_start/_end
// symbols, which Go binaries do not expose the same way.
func selfTextRange() (lo, hi uintptr, err error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	lo = ^uintptr(0)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.Contains(fields[1], "x") {
			continue
		}
		rangeParts := strings.SplitN(fields[0], "-", 2)
		if len(rangeParts) != 2 {
			continue
		}
		start, err1 := strconv.ParseUint(rangeParts[0], 16, 64)
		end, err2 := strconv.ParseUint(rangeParts[1], 16, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if uintptr(start) < lo {
			lo = uintptr(start)
		}
		if uintptr(end) > hi {
			hi = uintptr(end)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, err
	}
	if lo == ^uintptr(0) {
		lo = 0
	}
	return lo, hi, nil
}
