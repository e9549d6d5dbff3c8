// Package idlist parses the comma separated id lists accepted by DELETE endpoints.
package idlist

import (
	"strconv"
	"strings"
)

// Parse returns the positive integers found in raw. Non-numeric entries are
// dropped and duplicates collapse to their first occurrence.
func Parse(raw string) []int64 {
	parts := strings.Split(raw, ",")
	seen := make(map[int64]struct{}, len(parts))
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
