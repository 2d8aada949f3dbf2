package launcher

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sishtiaq/sgx-lkl/config"
)

// shmemSuffixes are the three files spec.md §4.G step 10 requires:
// the common region, the enclave-to-outside region (-eo) and the
// outside-to-enclave region (-oe).
var shmemSuffixes = [3]string{"", "-eo", "-oe"}

// RegisteredShmem holds the three mapped shared-memory regions.
type RegisteredShmem struct {
	Mappings [3][]byte
}

func (s *RegisteredShmem) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, m := range s.Mappings {
		if m == nil {
			continue
		}
		if err := unix.Munmap(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerShmem implements spec.md §4.G step 10: map three files named
// name, name-eo, name-oe at the configured size. A nil result means
// SGXLKL_SHMEM_FILE was unset.
func registerShmem(cfg config.ShmemConfig) (*RegisteredShmem, error) {
	if cfg.File == "" {
		return nil, nil
	}
	if cfg.Size == 0 {
		return nil, fmt.Errorf("SGXLKL_SHMEM_SIZE must be nonzero when SGXLKL_SHMEM_FILE is set")
	}

	out := &RegisteredShmem{}
	for i, suffix := range shmemSuffixes {
		path := cfg.File + suffix
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0600)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		if err := unix.Ftruncate(fd, int64(cfg.Size)); err != nil {
			unix.Close(fd)
			out.Close()
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
		mapping, err := unix.Mmap(fd, 0, int(cfg.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		unix.Close(fd)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		out.Mappings[i] = mapping
	}
	return out, nil
}
