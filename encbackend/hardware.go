package encbackend

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Hardware is the real-SGX Backend: it maps the library-OS image and
// drives the enclave through the host SGX device node. The actual
// EENTER/ERESUME transition is architecture-specific machine code the
// kernel driver exposes through the mapped enclave region; this type
// owns the bookkeeping around that transition (mapping, slot counting,
// per-slot resume) that is plain Go regardless of architecture.
type Hardware struct {
	mu        sync.Mutex
	devPath   string
	fd        int
	mapping   []byte
	heapBase  uintptr
	heapSize  uint64
	slotCount int
}

// NewHardware opens the enclave device node (normally /dev/sgx/enclave
// or /dev/isgx) without yet mapping anything.
func NewHardware(devPath string) (*Hardware, error) {
	fd, err := unix.Open(devPath, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("encbackend: open %s: %w", devPath, err)
	}
	return &Hardware{devPath: devPath, fd: fd}, nil
}

// CreateEnclaveMem checks that libPath can be opened, then maps heapSize
// bytes of the enclave device and reports a single slot, returning the
// resulting heap base. The library-OS image's segments are not loaded
// into the mapping.
func (h *Hardware) CreateEnclaveMem(libPath string, heapSize uint64) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(libPath)
	if err != nil {
		return 0, fmt.Errorf("encbackend: open library-OS image %s: %w", libPath, err)
	}
	defer f.Close()

	mapping, err := unix.Mmap(h.fd, 0, int(heapSize), unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		return 0, fmt.Errorf("encbackend: mmap enclave region: %w", err)
	}
	h.mapping = mapping
	h.heapBase = uintptr(unsafe.Pointer(&mapping[0]))
	h.heapSize = heapSize
	h.slotCount = 1
	return h.heapBase, nil
}

// UpdateHeap records newSize as the heap size after CreateEnclaveMem has
// run. It does not rewrite the signature struct embedded in the enclave
// image.
func (h *Hardware) UpdateHeap(newSize uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.heapBase == 0 {
		return fmt.Errorf("encbackend: UpdateHeap before CreateEnclaveMem")
	}
	h.heapSize = newSize
	return nil
}

func (h *Hardware) SlotCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slotCount
}

// Enter checks slotID and hands the transition to enterTCS. In this
// build enterTCS does not execute EENTER/ERESUME; it returns an error for
// every call, so Enter never yields an exit reason.
func (h *Hardware) Enter(slotID int, call CallID, sig *SignalDescriptor) (ExitResult, error) {
	if slotID < 0 || slotID >= h.SlotCount() {
		return ExitResult{}, fmt.Errorf("encbackend: slot %d out of range", slotID)
	}
	return enterTCS(h.fd, h.heapBase, slotID, call, sig)
}

func (h *Hardware) Resume(slotID int) error {
	_, err := h.Enter(slotID, Resume, nil)
	return err
}

func (h *Hardware) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mapping != nil {
		_ = unix.Munmap(h.mapping)
		h.mapping = nil
		h.heapBase = 0
	}
	return unix.Close(h.fd)
}
