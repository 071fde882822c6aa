// Package srm decodes the binary training files written by SRM power-meter
// head units (format versions 6 and 7) into normalized ride samples and
// marker intervals.
package srm

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

// DeviceType is reported to sinks for every decoded file.
const DeviceType = "SRM"

// Sink receives a successfully decoded ride: device type and start time
// first, then every point in time order, then the intervals.
type Sink interface {
	SetDeviceType(deviceType string)
	SetStartTime(t time.Time)
	SetRecIntSecs(secs float64)
	AppendPoint(p ridefile.Point)
	AddInterval(start, stop float64, name string)
}

// TagSink is implemented by sinks that keep free-form metadata.
type TagSink interface {
	SetTag(key, value string)
}

// File is the complete decode result of one SRM file.
type File struct {
	Header    Header     `json:"header"`
	Markers   []Marker   `json:"markers"`
	Blocks    []Block    `json:"blocks"`
	Trailer   Trailer    `json:"trailer"`
	Samples   []Sample   `json:"samples"`
	Intervals []Interval `json:"intervals"`
	Warnings  []string   `json:"warnings,omitempty"`
	Spans     []Span     `json:"-"`
	// Leftover counts bytes after the last sample.
	Leftover int `json:"leftover_bytes"`
}

type options struct {
	loc *time.Location
}

// Option configures decoding.
type Option func(*options)

// WithLocation interprets the file's date and block times in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// Parse decodes a complete SRM file held in memory.
func Parse(data []byte, opts ...Option) (*File, error) {
	cfg := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &cursor{data: data}
	f := &File{}

	var err error
	if f.Header, err = parseHeader(c, cfg.loc); err != nil {
		return nil, err
	}
	if f.Markers, err = parseMarkers(c, f.Header.MarkerCount); err != nil {
		return nil, err
	}
	if f.Blocks, err = parseBlocks(c, f.Header); err != nil {
		return nil, err
	}
	if f.Trailer, err = parseTrailer(c); err != nil {
		return nil, err
	}

	samples, warnings, err := decodeSamples(c, f.Header, f.Markers, f.Blocks, f.Trailer.DataCount)
	if err != nil {
		return nil, err
	}
	f.Samples = samples
	f.Warnings = append(f.Warnings, warnings...)

	intervals, warnings := buildIntervals(f.Markers, f.Samples, f.Header.RecIntSecs())
	f.Intervals = intervals
	f.Warnings = append(f.Warnings, warnings...)

	f.Spans = c.spans
	f.Leftover = c.remaining()
	return f, nil
}

// ParseReader reads r to EOF and parses the result.
func ParseReader(r io.Reader, opts ...Option) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read srm data: %w", err)
	}
	return Parse(data, opts...)
}

// Decode parses r and, on success, emits the ride into sink. A fatal error
// leaves sink untouched.
func Decode(r io.Reader, sink Sink, opts ...Option) ([]string, error) {
	f, err := ParseReader(r, opts...)
	if err != nil {
		return nil, err
	}
	f.Emit(sink)
	return f.Warnings, nil
}

// StartTime is the timestamp of the first block.
func (f *File) StartTime() time.Time {
	if len(f.Blocks) == 0 {
		return f.Header.Date
	}
	return f.Blocks[0].Timestamp
}

// Emit replays the decoded ride into sink.
func (f *File) Emit(sink Sink) {
	sink.SetDeviceType(DeviceType)
	sink.SetStartTime(f.StartTime())
	sink.SetRecIntSecs(f.Header.RecIntSecs())
	if ts, ok := sink.(TagSink); ok {
		ts.SetTag("srm_version", strconv.Itoa(f.Header.Version))
		ts.SetTag("wheel_circumference_mm", strconv.Itoa(int(f.Header.WheelCircumference)))
		if f.Header.Comment != "" {
			ts.SetTag("comment", f.Header.Comment)
		}
		for k := 1; k < len(f.Markers); k++ {
			if f.Markers[k].Comment != "" {
				ts.SetTag("marker_"+strconv.Itoa(k), f.Markers[k].Comment)
			}
		}
	}
	for _, s := range f.Samples {
		sink.AppendPoint(s.point())
	}
	for _, iv := range f.Intervals {
		sink.AddInterval(iv.Start, iv.Stop, iv.Name)
	}
}
