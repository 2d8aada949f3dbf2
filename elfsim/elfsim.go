// Package elfsim loads the library-OS ELF image into a pre-reserved
// heap region for simulation-mode launches, producing the (base, entry)
// pair the launch sequencer needs (spec.md §3's "ELF loader" collaborator
// contract). It is standard-library only: no third-party ELF reader
// appears anywhere in the retrieved pack, and debug/elf is the
// idiomatic choice for this in Go.
package elfsim

import (
	"debug/elf"
	"fmt"
	"os"
)

// LoadResult is the (base, entry) pair spec.md §3 requires from the
// loader collaborator, plus the segments actually copied in, useful for
// tests that want to assert on what got mapped. Base is always 0: Entry
// (and every relocated pointer) is an offset from the start of heap.
type LoadResult struct {
	Base   uintptr
	Entry  uintptr
	Loaded []LoadedSegment
}

// LoadedSegment records one PT_LOAD segment's placement within the
// destination heap.
type LoadedSegment struct {
	VAddr      uint64
	FileSize   uint64
	MemSize    uint64
	Executable bool
}

// Load reads the ELF image at path and copies its PT_LOAD segments into
// heap, starting at heap[0], applying the load bias implied by the
// lowest segment's virtual address. heap must be at least as large as
// the image's total memory footprint; Load never grows it.
func Load(path string, heap []byte) (LoadResult, error) {
	f, err := elf.Open(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("elfsim: open %s: %w", path, err)
	}
	defer f.Close()

	var loadable []*elf.Prog
	var lo uint64 = ^uint64(0)
	var hi uint64
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		loadable = append(loadable, p)
		if p.Vaddr < lo {
			lo = p.Vaddr
		}
		if end := p.Vaddr + p.Memsz; end > hi {
			hi = end
		}
	}
	if len(loadable) == 0 {
		return LoadResult{}, fmt.Errorf("elfsim: %s has no PT_LOAD segments", path)
	}
	span := hi - lo
	if span > uint64(len(heap)) {
		return LoadResult{}, fmt.Errorf("elfsim: image footprint %d exceeds heap size %d", span, len(heap))
	}

	result := LoadResult{Base: 0, Loaded: make([]LoadedSegment, 0, len(loadable))}
	for _, p := range loadable {
		off := p.Vaddr - lo
		n, err := p.ReadAt(heap[off:off+p.Filesz], 0)
		if err != nil || uint64(n) != p.Filesz {
			return LoadResult{}, fmt.Errorf("elfsim: read segment at vaddr 0x%x: %w", p.Vaddr, err)
		}
		for i := p.Filesz; i < p.Memsz; i++ {
			heap[off+i] = 0
		}
		result.Loaded = append(result.Loaded, LoadedSegment{
			VAddr:      p.Vaddr,
			FileSize:   p.Filesz,
			MemSize:    p.Memsz,
			Executable: p.Flags&elf.PF_X != 0,
		})
	}

	if err := applyRelocations(f, heap, lo); err != nil {
		return LoadResult{}, err
	}

	result.Entry = uintptr(f.Entry - lo)
	return result, nil
}

// applyRelocations resolves RELA relocations needed by the library-OS
// shared object once it has been copied to its load bias. Only the
// relative relocation kind is handled: the library-OS image is built to
// require nothing else for a position-independent load.
func applyRelocations(f *elf.File, heap []byte, bias uint64) error {
	relaSection := f.Section(".rela.dyn")
	if relaSection == nil {
		return nil
	}
	data, err := relaSection.Data()
	if err != nil {
		return fmt.Errorf("elfsim: read .rela.dyn: %w", err)
	}
	const relaEntSize = 24 // Elf64_Rela: r_offset, r_info, r_addend
	for off := 0; off+relaEntSize <= len(data); off += relaEntSize {
		r_offset := leUint64(data[off : off+8])
		r_info := leUint64(data[off+8 : off+16])
		r_addend := leUint64(data[off+16 : off+24])
		relType := r_info & 0xffffffff
		const rX8664Relative = 8
		if relType != rX8664Relative {
			continue
		}
		dst := r_offset - bias
		if dst+8 > uint64(len(heap)) {
			return fmt.Errorf("elfsim: relocation offset 0x%x out of range", r_offset)
		}
		val := r_addend - bias
		putLeUint64(heap[dst:dst+8], val)
	}
	return nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// Open is a convenience wrapper returning *os.File for callers (tests)
// that want to stat the image before calling Load.
func Open(path string) (*os.File, error) {
	return os.Open(path)
}
