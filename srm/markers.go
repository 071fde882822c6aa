package srm

import "fmt"

const (
	markerCommentSize = 255
	markerRecordSize  = 270
)

// Marker is one entry of the marker table. Start and End are 1-based,
// inclusive sample indices. Entry 0 of the table covers the lead-in and is
// never turned into a named interval.
type Marker struct {
	Comment    string `json:"comment"`
	Active     bool   `json:"active"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	AvgWatts   uint16 `json:"avg_watts"`
	AvgHR      uint16 `json:"avg_hr"`
	AvgCadence uint16 `json:"avg_cadence"`
	AvgSpeed   uint16 `json:"avg_speed"`
	PWC150     uint16 `json:"pwc150"`
}

// FixMarker repairs indices written by some head-unit firmware: indices below
// 1 become 1, and an inverted pair is swapped. Applying it twice is a no-op.
func FixMarker(m Marker) Marker {
	if m.Start < 1 {
		m.Start = 1
	}
	if m.End < 1 {
		m.End = 1
	}
	if m.Start > m.End {
		m.Start, m.End = m.End, m.Start
	}
	return m
}

// markerCapacity bounds the header's marker count by the bytes left.
func markerCapacity(c *cursor, markerCount int) int {
	return min(markerCount, c.remaining()/markerRecordSize) + 1
}

func parseMarkers(c *cursor, markerCount int) ([]Marker, error) {
	markers := make([]Marker, 0, markerCapacity(c, markerCount))
	for i := 0; i <= markerCount; i++ {
		start := c.pos
		rec, err := c.take(markerRecordSize, fmt.Sprintf("marker %d", i))
		if err != nil {
			return nil, err
		}
		m := Marker{
			Comment:    decodeComment(rec[:markerCommentSize], markerCommentSize),
			Active:     rec[255] != 0,
			Start:      int(be16(rec[256:258])),
			End:        int(be16(rec[258:260])),
			AvgWatts:   be16(rec[260:262]),
			AvgHR:      be16(rec[262:264]),
			AvgCadence: be16(rec[264:266]),
			AvgSpeed:   be16(rec[266:268]),
			PWC150:     be16(rec[268:270]),
		}
		markers = append(markers, FixMarker(m))
		c.record(SpanMarker, i, start)
	}
	return markers, nil
}
