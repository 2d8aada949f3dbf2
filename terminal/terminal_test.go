package terminal

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConcurrentWritesNeverInterleave drives N goroutines each "writing"
// (through the lock) a multi-chunk message to a shared buffer and checks
// that messages never interleave at the byte level -- the scenario
// spec.md §8 describes for the terminal serializer.
func TestConcurrentWritesNeverInterleave(t *testing.T) {
	s := New()
	var buf bytes.Buffer
	var bufMu sync.Mutex // guards the test's observation buffer only

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte(fmt.Sprintf("worker-%02d:payload-chunk-that-is-long\n", i))
			lock := s.ForFD(1)
			lock.Acquire()
			// simulate a write(2) done as several small chunks, the
			// way a real syscall relay might split a large buffer.
			for off := 0; off < len(msg); off += 7 {
				end := off + 7
				if end > len(msg) {
					end = len(msg)
				}
				bufMu.Lock()
				buf.Write(msg[off:end])
				bufMu.Unlock()
			}
			lock.Release()
		}(i)
	}
	wg.Wait()

	// the transcript must decompose exactly into `workers` complete,
	// non-interleaved messages.
	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, workers)
	want := make(map[string]bool)
	for i := 0; i < workers; i++ {
		want[fmt.Sprintf("worker-%02d:payload-chunk-that-is-long", i)] = true
	}
	seen := make(map[string]bool)
	for _, l := range lines {
		seen[string(l)] = true
	}
	require.Equal(t, want, seen)
}

func TestForFDOnlyStdoutStderr(t *testing.T) {
	s := New()
	require.Same(t, &s.Stdout, s.ForFD(1))
	require.Same(t, &s.Stderr, s.ForFD(2))
	require.Nil(t, s.ForFD(3))
}
