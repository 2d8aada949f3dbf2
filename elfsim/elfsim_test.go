package elfsim

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMinimalELF writes a tiny valid ET_DYN ELF64 image with a single
// PT_LOAD segment containing known byte content, for Load to parse.
func buildMinimalELF(t *testing.T) string {
	t.Helper()

	const (
		ehsize = 64
		phsize = 56
	)
	payload := []byte("EXEC-PAYLOAD")
	fileSize := uint64(ehsize + phsize + len(payload))

	buf := make([]byte, fileSize)
	copy(buf[0:4], "\x7fELF")
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(buf[16:18], uint16(elf.ET_DYN))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(buf[20:24], 1) // e_version
	binary.LittleEndian.PutUint64(buf[24:32], 0x1010)
	binary.LittleEndian.PutUint64(buf[32:40], ehsize) // e_phoff
	binary.LittleEndian.PutUint16(buf[52:54], ehsize)
	binary.LittleEndian.PutUint16(buf[54:56], phsize)
	binary.LittleEndian.PutUint16(buf[56:58], 1) // e_phnum

	ph := buf[ehsize : ehsize+phsize]
	binary.LittleEndian.PutUint32(ph[0:4], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(ph[4:8], uint32(elf.PF_X|elf.PF_R))
	binary.LittleEndian.PutUint64(ph[8:16], ehsize+phsize) // p_offset
	binary.LittleEndian.PutUint64(ph[16:24], 0x1000)       // p_vaddr
	binary.LittleEndian.PutUint64(ph[24:32], 0x1000)       // p_paddr
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(payload)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(payload)))
	binary.LittleEndian.PutUint64(ph[48:56], 0x1000) // p_align

	copy(buf[ehsize+phsize:], payload)

	f, err := os.CreateTemp(t.TempDir(), "lib-os-*.so")
	require.NoError(t, err)
	_, err = f.Write(buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestLoadMapsSegmentIntoHeap(t *testing.T) {
	path := buildMinimalELF(t)
	heap := make([]byte, 1<<16)

	res, err := Load(path, heap)
	require.NoError(t, err)
	require.Len(t, res.Loaded, 1)
	require.Equal(t, uintptr(0x10), res.Entry)
	require.Equal(t, "EXEC-PAYLOAD", string(heap[0:len("EXEC-PAYLOAD")]))
}

func TestLoadRejectsOversizedImage(t *testing.T) {
	path := buildMinimalELF(t)
	tooSmall := make([]byte, 4)
	_, err := Load(path, tooSmall)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.so", make([]byte, 64))
	require.Error(t, err)
}
