// Snapshot assembles every environment-derived value spec.md §6 lists
// into one immutable struct, built once at startup (spec component K).
// Nothing downstream of config.Load ever calls os.Getenv directly.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	defaultHeapSize  = 200 * 1024 * 1024
	defaultStackSize = 512 * 1024
	defaultIPv4Addr  = "10.0.1.1"
	defaultIPv4GW    = "10.0.1.254"
	defaultIPv4Mask  = 24
	defaultHostname  = "lkl"

	// EXT4MagicOffset is the byte offset of the ext4 superblock magic,
	// used by the disk-encryption probe (spec.md §8).
	EXT4MagicOffset = 1024 + 0x38
)

// DiskEntry is one registered disk (the root disk plus SGXLKL_HDS
// entries), before the launcher opens the backing file and probes it.
type DiskEntry struct {
	Path     string
	Mount    string
	ReadOnly bool
}

// NetConfig is the parsed SGXLKL_TAP* / SGXLKL_{IP4,GW4,MASK4,HOSTNAME}
// network configuration.
type NetConfig struct {
	Tap       string // empty means "no networking"
	Offload   bool
	MTU       uint64
	IP4       net.IP
	GW4       net.IP
	Mask4     int
	Hostname  string
	HostNet   bool
	VNetHdrSz int
}

// ShmemConfig is the parsed SGXLKL_SHMEM_FILE / SGXLKL_SHMEM_SIZE triple.
type ShmemConfig struct {
	File string // empty means "no shared memory"
	Size uint64
}

// Snapshot is every parsed SGXLKL_* environment value plus the two
// positional CLI arguments identifying the disk image and in-enclave
// executable.
type Snapshot struct {
	DiskImage  string
	Executable string
	Args       []string

	Cmdline string
	SIGPIPE bool
	NonPIE  bool

	EThreads       uint64
	SThreads       uint64
	MaxUserThreads uint64
	StackSize      uint64
	HeapSize       uint64

	SpinThreshold uint64
	SleepFactor   uint64

	RealTimePrio bool

	EThreadsAffinityRaw string
	SThreadsAffinityRaw string

	GetTimeVDSO bool

	Disks []DiskEntry
	Net   NetConfig
	Shmem ShmemConfig

	Verbose          bool
	TraceHostSyscall bool
	TraceThread      bool
}

// Load reads every recognized SGXLKL_* variable from src and the two
// positional arguments, returning a fully populated, validated Snapshot.
// It mirrors spec.md §6's table exactly, including defaults.
func Load(src Source, diskImage, executable string, args []string) (*Snapshot, error) {
	s := &Snapshot{
		DiskImage:  diskImage,
		Executable: executable,
		Args:       args,
	}

	var err error
	if s.Cmdline, err = Str(src, "SGXLKL_CMDLINE", ""); err != nil {
		return nil, err
	}
	if s.SIGPIPE, err = Bool(src, "SGXLKL_SIGPIPE", false); err != nil {
		return nil, err
	}
	if s.NonPIE, err = Bool(src, "SGXLKL_NON_PIE", false); err != nil {
		return nil, err
	}
	if s.EThreads, err = U64(src, "SGXLKL_ETHREADS", 1, 1025); err != nil {
		return nil, err
	}
	if s.SThreads, err = U64(src, "SGXLKL_STHREADS", 4, 1025); err != nil {
		return nil, err
	}
	if s.MaxUserThreads, err = U64(src, "SGXLKL_MAX_USER_THREADS", 256, 100001); err != nil {
		return nil, err
	}
	if s.StackSize, err = U64(src, "SGXLKL_STACK_SIZE", defaultStackSize, 1<<62); err != nil {
		return nil, err
	}
	if s.HeapSize, err = U64(src, "SGXLKL_HEAP", defaultHeapSize, 1<<62); err != nil {
		return nil, err
	}
	if s.SpinThreshold, err = U64(src, "SGXLKL_SSPINS", 100, 1<<62); err != nil {
		return nil, err
	}
	if s.SleepFactor, err = U64(src, "SGXLKL_SSLEEP", 4000, 1<<62); err != nil {
		return nil, err
	}
	if s.RealTimePrio, err = Bool(src, "SGXLKL_REAL_TIME_PRIO", false); err != nil {
		return nil, err
	}
	if s.EThreadsAffinityRaw, err = Str(src, "SGXLKL_ETHREADS_AFFINITY", ""); err != nil {
		return nil, err
	}
	if s.SThreadsAffinityRaw, err = Str(src, "SGXLKL_STHREADS_AFFINITY", ""); err != nil {
		return nil, err
	}
	if s.GetTimeVDSO, err = Bool(src, "SGXLKL_GETTIME_VDSO", true); err != nil {
		return nil, err
	}
	if s.Verbose, err = Bool(src, "SGXLKL_VERBOSE", false); err != nil {
		return nil, err
	}
	if s.TraceHostSyscall, err = Bool(src, "SGXLKL_TRACE_HOST_SYSCALL", false); err != nil {
		return nil, err
	}
	if s.TraceThread, err = Bool(src, "SGXLKL_TRACE_THREAD", false); err != nil {
		return nil, err
	}

	if s.Disks, err = loadDisks(src); err != nil {
		return nil, err
	}
	if s.Net, err = loadNet(src); err != nil {
		return nil, err
	}
	if s.Shmem, err = loadShmem(src); err != nil {
		return nil, err
	}

	return s, nil
}

// MaxMountPathLen bounds a disk's mount path, per spec.md §3/§4.G step 8.
const MaxMountPathLen = 255

func loadDisks(src Source) ([]DiskEntry, error) {
	roRoot, err := Bool(src, "SGXLKL_HD_RO", false)
	if err != nil {
		return nil, err
	}
	disks := []DiskEntry{{Mount: "/", ReadOnly: roRoot}} // Path filled by launcher from argv[1]

	hdsStr, err := Str(src, "SGXLKL_HDS", "")
	if err != nil {
		return nil, err
	}
	for _, item := range splitNonEmpty(hdsStr, ',') {
		parts := strings.SplitN(item, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("SGXLKL_HDS: malformed entry %q (want path:mount[:ro])", item)
		}
		path, mount := parts[0], parts[1]
		ro := len(parts) == 3 && parts[2] == "1"
		if len(mount) > MaxMountPathLen {
			return nil, fmt.Errorf("SGXLKL_HDS: mount path for %q exceeds %d bytes", path, MaxMountPathLen)
		}
		disks = append(disks, DiskEntry{Path: path, Mount: mount, ReadOnly: ro})
	}
	return disks, nil
}

func splitNonEmpty(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, string(sep)) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadNet(src Source) (NetConfig, error) {
	var nc NetConfig
	var err error
	if nc.Tap, err = Str(src, "SGXLKL_TAP", ""); err != nil {
		return nc, err
	}
	if nc.Offload, err = Bool(src, "SGXLKL_TAP_OFFLOAD", false); err != nil {
		return nc, err
	}
	if nc.MTU, err = U64(src, "SGXLKL_TAP_MTU", 0, 1<<32); err != nil {
		return nc, err
	}
	if nc.HostNet, err = Bool(src, "SGXLKL_HOSTNET", false); err != nil {
		return nc, err
	}
	ip4Str, err := Str(src, "SGXLKL_IP4", defaultIPv4Addr)
	if err != nil {
		return nc, err
	}
	if nc.IP4 = net.ParseIP(ip4Str).To4(); nc.IP4 == nil {
		return nc, fmt.Errorf("SGXLKL_IP4: invalid IPv4 address %q", ip4Str)
	}
	gw4Str, err := Str(src, "SGXLKL_GW4", defaultIPv4GW)
	if err != nil {
		return nc, err
	}
	if nc.GW4 = net.ParseIP(gw4Str).To4(); nc.GW4 == nil {
		return nc, fmt.Errorf("SGXLKL_GW4: invalid IPv4 gateway %q", gw4Str)
	}
	mask4Str, err := Str(src, "SGXLKL_MASK4", strconv.Itoa(defaultIPv4Mask))
	if err != nil {
		return nc, err
	}
	mask4, err := strconv.Atoi(mask4Str)
	if err != nil || mask4 < 1 || mask4 > 32 {
		return nc, fmt.Errorf("SGXLKL_MASK4: invalid mask %q", mask4Str)
	}
	nc.Mask4 = mask4
	if nc.Hostname, err = Str(src, "SGXLKL_HOSTNAME", defaultHostname); err != nil {
		return nc, err
	}
	return nc, nil
}

func loadShmem(src Source) (ShmemConfig, error) {
	var sc ShmemConfig
	var err error
	if sc.File, err = Str(src, "SGXLKL_SHMEM_FILE", ""); err != nil {
		return sc, err
	}
	if sc.Size, err = U64(src, "SGXLKL_SHMEM_SIZE", 0, 1024*1024*1024); err != nil {
		return sc, err
	}
	return sc, nil
}
