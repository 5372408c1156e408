package tegrastats

import (
	"cmp"
	"slices"
	"time"
)

// Record is one parsed tegrastats line.
type Record struct {
	// TimestampRaw is the timestamp text as it appeared in the line.
	TimestampRaw string
	// Second is the parsed whole-second timestamp.
	Second time.Time
	// TimestampNS starts as Second in nanoseconds and gains a sub-second
	// offset in Reconstruct.
	TimestampNS int64
	// ArrivalIndex is the position of the line among the parsed lines
	// of its log.
	ArrivalIndex int
	Fields       Fields
}

// Reconstruct orders records by second, keeping arrival order within a
// second, and spreads the n records of each second evenly across it: the
// record ranked r gets an offset of 1e9*r/n nanoseconds. Offsets within
// a second are strictly increasing and stay below one second.
//
// The input slice is not modified.
func Reconstruct(records []Record) []Record {
	out := slices.Clone(records)
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(
			cmp.Compare(a.Second.Unix(), b.Second.Unix()),
			cmp.Compare(a.ArrivalIndex, b.ArrivalIndex),
		)
	})

	for start := 0; start < len(out); {
		end := start + 1
		for end < len(out) && out[end].Second.Unix() == out[start].Second.Unix() {
			end++
		}
		size := int64(end - start)
		for i := start; i < end; i++ {
			rank := int64(i - start)
			out[i].TimestampNS = out[i].Second.UnixNano() + int64(time.Second)*rank/size
		}
		start = end
	}
	return out
}
