package srm

import (
	"fmt"
	"strconv"
)

// Interval is a half-open [Start, Stop) range of elapsed seconds. Name is the
// marker number for named intervals and "" for the gaps between them.
type Interval struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Name  string  `json:"name"`
}

// buildIntervals turns markers 1..n into named intervals and fills the time
// before, between and after them with unnamed ones. The result tiles
// [0, last sample + recint) without overlap.
func buildIntervals(markers []Marker, samples []Sample, recInt float64) ([]Interval, []string) {
	n := len(samples)
	if n == 0 {
		return nil, nil
	}

	var (
		out      []Interval
		warnings []string
		last     float64
		lastEnd  int
	)
	for k := 1; k < len(markers); k++ {
		m := markers[k]
		startIdx := m.Start - 1
		if startIdx >= n {
			warnings = append(warnings,
				fmt.Sprintf("marker %d starts at sample %d past the last sample %d, skipped", k, m.Start, n))
			continue
		}
		endIdx := min(m.End-1, n-1)

		startSecs := samples[startIdx].Secs
		if startSecs < last {
			startSecs = last
		}
		endSecs := samples[endIdx].Secs + recInt
		if endSecs <= startSecs {
			warnings = append(warnings,
				fmt.Sprintf("marker %d overlaps the previous marker, skipped", k))
			continue
		}

		if startSecs > last {
			out = append(out, Interval{Start: last, Stop: startSecs})
		}
		out = append(out, Interval{Start: startSecs, Stop: endSecs, Name: strconv.Itoa(k)})
		last = endSecs
		lastEnd = endIdx + 1
	}

	if lastEnd < n {
		out = append(out, Interval{Start: last, Stop: samples[n-1].Secs + recInt})
	}
	return out, warnings
}
