package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAffinity parses the CPU affinity grammar from spec.md §4.H:
//
//	list := item (',' item)*
//	item := N | N '-' M
//
// yielding the ordered union of specified CPU ids. Every id must lie in
// [0, nproc); an id outside that range is an error, not clamped.
// An empty input yields an empty, non-error result (meaning "no affinity
// restriction"; the launcher falls back to "i mod nproc" round robin in
// that case). Malformed input returns an error and an empty list, per
// spec.md §8's "parse("0-") -> diagnostic, empty" testable property.
func ParseAffinity(s string, nproc int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if nproc <= 0 {
		return nil, fmt.Errorf("affinity: invalid nproc %d", nproc)
	}

	seen := make(map[int]bool)
	var out []int
	add := func(v int) error {
		if v < 0 || v >= nproc {
			return fmt.Errorf("affinity: cpu %d is out of range [0,%d)", v, nproc)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
		return nil
	}

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if idx := strings.IndexByte(item, '-'); idx >= 0 {
			loStr, hiStr := item[:idx], item[idx+1:]
			lo, err := strconv.Atoi(strings.TrimSpace(loStr))
			if err != nil {
				return nil, fmt.Errorf("affinity: invalid range %q", item)
			}
			hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
			if err != nil {
				return nil, fmt.Errorf("affinity: invalid range %q", item)
			}
			if lo > hi {
				return nil, fmt.Errorf("affinity: invalid range %q (start after end)", item)
			}
			for v := lo; v <= hi; v++ {
				if err := add(v); err != nil {
					return nil, err
				}
			}
		} else {
			v, err := strconv.Atoi(item)
			if err != nil {
				return nil, fmt.Errorf("affinity: invalid cpu id %q", item)
			}
			if err := add(v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
