package launcher

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sishtiaq/sgx-lkl/config"
)

const (
	ifNameSize  = 16
	tunDevice   = "/dev/net/tun"
	iffTap      = 0x0002
	iffNoPI     = 0x1000
	iffVnetHdr  = 0x4000
	tunSetIff   = 0x400454ca
	tunSetOffl  = 0x400454d0
	tunOffload  = 0x00000001 | 0x00000002 | 0x00000004 // TUN_F_CSUM|TUN_F_TSO4|TUN_F_TSO6
)

// ifreqFlags is the subset of struct ifreq the TUNSETIFF ioctl needs:
// a 16-byte interface name followed by a 16-bit flags field (plus
// padding the kernel ignores for this request).
type ifreqFlags struct {
	name  [ifNameSize]byte
	flags uint16
	_     [22]byte
}

// RegisteredNet holds the opened TUN file descriptor for a configured
// network device. Close releases it; a nil *RegisteredNet from
// registerNetwork means SGXLKL_TAP was unset (no networking).
type RegisteredNet struct {
	File *os.File
	Cfg  config.NetConfig
}

func (n *RegisteredNet) Close() error {
	if n == nil || n.File == nil {
		return nil
	}
	return n.File.Close()
}

// registerNetwork implements spec.md §4.G step 9: open /dev/net/tun
// non-blocking, TUNSETIFF with TAP|NO_PI (optionally VNET_HDR),
// optionally enable offloads, and validate the parsed IPv4 settings
// config.Load already produced.
func registerNetwork(cfg config.NetConfig) (*RegisteredNet, error) {
	if cfg.Tap == "" {
		return nil, nil
	}
	if cfg.Mask4 < 1 || cfg.Mask4 > 32 {
		return nil, fmt.Errorf("invalid netmask /%d", cfg.Mask4)
	}

	f, err := os.OpenFile(tunDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tunDevice, err)
	}
	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		f.Close()
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}

	var req ifreqFlags
	copy(req.name[:], cfg.Tap)
	req.flags = iffTap | iffNoPI
	if cfg.VNetHdrSz > 0 {
		req.flags |= iffVnetHdr
	}
	if err := ioctl(f.Fd(), tunSetIff, uintptr(unsafe.Pointer(&req))); err != nil {
		f.Close()
		return nil, fmt.Errorf("TUNSETIFF %s: %w", cfg.Tap, err)
	}

	if cfg.Offload {
		if err := ioctl(f.Fd(), tunSetOffl, uintptr(tunOffload)); err != nil {
			f.Close()
			return nil, fmt.Errorf("TUNSETOFFLOAD %s: %w", cfg.Tap, err)
		}
	}

	return &RegisteredNet{File: f, Cfg: cfg}, nil
}

func ioctl(fd uintptr, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}
