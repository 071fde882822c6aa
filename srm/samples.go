package srm

import (
	"fmt"
	"math"
	"time"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

// Sample is one decoded data record with its derived values.
type Sample struct {
	Secs        float64 `json:"secs"`
	Cadence     int     `json:"cadence"`
	HeartRate   int     `json:"heart_rate"`
	Km          float64 `json:"km"`
	Kph         float64 `json:"kph"`
	Torque      float64 `json:"torque"`
	Watts       int     `json:"watts"`
	Altitude    float64 `json:"altitude"`
	Temperature float64 `json:"temperature,omitempty"`
	Interval    int     `json:"interval"`
}

func (s Sample) point() ridefile.Point {
	return ridefile.Point{
		Secs:     s.Secs,
		Cad:      float64(s.Cadence),
		HR:       float64(s.HeartRate),
		Km:       s.Km,
		Kph:      s.Kph,
		Nm:       s.Torque,
		Watts:    float64(s.Watts),
		Alt:      s.Altitude,
		Interval: s.Interval,
	}
}

// decodeRecord unpacks the raw fields of one sample. len(raw) must equal the
// version's sample size.
func decodeRecord(version int, raw []byte) Sample {
	if version == 6 {
		return Sample{
			Kph:       float64((uint(raw[1]&0xF0)<<3)|uint(raw[0]&0x7F)) * 3.0 / 26.0,
			Watts:     int(raw[1]&0x0F) | int(raw[2])<<4,
			Cadence:   int(raw[3]),
			HeartRate: int(raw[4]),
		}
	}
	return Sample{
		Watts:       int(be16(raw[0:2])),
		Cadence:     int(raw[2]),
		HeartRate:   int(raw[3]),
		Kph:         float64(be32(raw[4:8])) * 3.6 / 1000.0,
		Altitude:    float64(int32(be32(raw[8:12]))),
		Temperature: 0.1 * float64(int16(be16(raw[12:14]))),
	}
}

// torque in Nm from power and cadence. Zero cadence yields 0.
func torque(watts, cadence int) float64 {
	if cadence == 0 {
		return 0
	}
	return float64(watts) / (2 * math.Pi * float64(cadence)) * 60.0
}

// sampleDecoder carries the per-sample state: block position, marker
// position, current interval index, cumulative distance and elapsed time.
type sampleDecoder struct {
	recInt   float64
	recIntMS int64
	markers  []Marker
	blocks   []Block

	blk, blkIdx int
	mrk         int
	interval    int
	km, secs    float64

	warnings []string
}

func decodeSamples(c *cursor, h Header, markers []Marker, blocks []Block, count int) ([]Sample, []string, error) {
	d := &sampleDecoder{
		recInt:   h.RecIntSecs(),
		recIntMS: h.recIntMillis(),
		markers:  markers,
		blocks:   blocks,
	}
	if h.MarkerCount > 0 {
		d.mrk = 1
	}

	size := h.SampleSize()
	samples := make([]Sample, 0, min(count, c.remaining()/size))
	for i := 0; i < count; i++ {
		start := c.pos
		raw, err := c.take(size, fmt.Sprintf("sample %d", i))
		if err != nil {
			return nil, d.warnings, err
		}
		s := decodeRecord(h.Version, raw)
		d.assignInterval(i)
		d.km += d.recInt * s.Kph / 3600.0

		s.Secs = d.secs
		s.Km = d.km
		s.Torque = torque(s.Watts, s.Cadence)
		s.Interval = d.interval
		samples = append(samples, s)
		c.record(SpanSample, i, start)

		d.advance()
	}
	return samples, d.warnings, nil
}

func (d *sampleDecoder) assignInterval(i int) {
	if d.mrk < len(d.markers) && i == d.markers[d.mrk].End {
		d.interval++
		d.mrk++
	}
	if i > 0 && d.mrk < len(d.markers) && i == d.markers[d.mrk].Start-1 {
		d.interval++
	}
}

// advance moves the elapsed-time axis past the current sample. Leaving a
// block jumps to the next block's timestamp unless that would not move time
// forward by at least one interval.
func (d *sampleDecoder) advance() {
	d.blkIdx++
	cur := d.blocks[d.blk]
	if cur.ChunkCount == 0 && d.blkIdx == 1 && d.blk+1 < len(d.blocks) {
		d.warnings = append(d.warnings,
			fmt.Sprintf("block %d has no samples, later block gaps ignored", d.blk))
	}
	if d.blkIdx != cur.ChunkCount || d.blk+1 >= len(d.blocks) {
		d.secs += d.recInt
		return
	}

	end := cur.Timestamp.Add(time.Duration(d.recIntMS*int64(cur.ChunkCount)) * time.Millisecond)
	d.blk++
	d.blkIdx = 0
	gap := d.blocks[d.blk].Timestamp.Sub(end).Seconds()
	if gap < d.recInt {
		d.warnings = append(d.warnings,
			fmt.Sprintf("time goes backwards by %g s on transition to block %d", gap, d.blk))
		d.secs += d.recInt
		return
	}
	d.secs += gap
}
