package srm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lucasjlepore/srm-analyzer/internal/srmtest"
	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

func mustParse(t *testing.T, f srmtest.File) *File {
	t.Helper()
	out, err := Parse(f.Bytes())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseSteadyRide(t *testing.T) {
	out := mustParse(t, srmtest.Steady(60))

	if out.Header.Version != 7 {
		t.Fatalf("version = %d", out.Header.Version)
	}
	if out.Header.Comment != "steady ride" {
		t.Fatalf("comment = %q", out.Header.Comment)
	}
	if out.Header.WheelCircumference != 2096 {
		t.Fatalf("wheel = %d", out.Header.WheelCircumference)
	}
	wantStart := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	if !out.StartTime().Equal(wantStart) {
		t.Fatalf("start = %s, want %s", out.StartTime(), wantStart)
	}
	if len(out.Samples) != 60 {
		t.Fatalf("samples = %d, want 60", len(out.Samples))
	}

	s := out.Samples[10]
	if s.Secs != 10 || s.Watts != 200 || s.Cadence != 90 || s.HeartRate != 140 {
		t.Fatalf("unexpected sample: %+v", s)
	}
	if !almostEqual(s.Kph, 36) || s.Altitude != 120 || !almostEqual(s.Temperature, 21.5) {
		t.Fatalf("unexpected v7 fields: %+v", s)
	}
	if !almostEqual(out.Samples[59].Km, 0.6) {
		t.Fatalf("distance = %f, want 0.6", out.Samples[59].Km)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", out.Warnings)
	}
	if out.Leftover != 0 {
		t.Fatalf("leftover = %d", out.Leftover)
	}
}

func TestSampleCountMatchesDataCount(t *testing.T) {
	f := srmtest.Steady(25)
	f.Trailing = []byte{1, 2, 3}
	out := mustParse(t, f)
	if len(out.Samples) != out.Trailer.DataCount || out.Trailer.DataCount != 25 {
		t.Fatalf("samples = %d, datacnt = %d", len(out.Samples), out.Trailer.DataCount)
	}
	if out.Leftover != 3 {
		t.Fatalf("leftover = %d, want 3", out.Leftover)
	}
}

func TestVersion6SampleVector(t *testing.T) {
	s := decodeRecord(6, []byte{0x7F, 0xF0, 0x0F, 90, 150})

	wantKph := float64(0x7FF) * 3.0 / 26.0
	if !almostEqual(s.Kph, wantKph) {
		t.Fatalf("kph = %f, want %f", s.Kph, wantKph)
	}
	if s.Watts != 240 || s.Cadence != 90 || s.HeartRate != 150 || s.Altitude != 0 {
		t.Fatalf("unexpected v6 sample: %+v", s)
	}
	wantNm := 240 / (2 * math.Pi * 90) * 60
	if !almostEqual(torque(s.Watts, s.Cadence), wantNm) {
		t.Fatalf("torque = %f, want %f", torque(s.Watts, s.Cadence), wantNm)
	}
}

func TestVersion7SampleVector(t *testing.T) {
	raw := []byte{
		0x00, 0x96,
		80,
		140,
		0x00, 0x00, 0x03, 0xE8,
		0x00, 0x00, 0x00, 0x64,
		0xFF, 0xEC,
	}
	s := decodeRecord(7, raw)
	if s.Watts != 150 || s.Cadence != 80 || s.HeartRate != 140 {
		t.Fatalf("unexpected v7 sample: %+v", s)
	}
	if !almostEqual(s.Kph, 3.6) || s.Altitude != 100 || !almostEqual(s.Temperature, -2.0) {
		t.Fatalf("unexpected v7 values: %+v", s)
	}
}

func TestVersion7NegativeAltitude(t *testing.T) {
	s := decodeRecord(7, srmtest.V7(100, 80, 120, 0, -12, 0))
	if s.Altitude != -12 {
		t.Fatalf("altitude = %f, want -12", s.Altitude)
	}
}

func TestVersion6FileDecodes(t *testing.T) {
	f := srmtest.File{
		Version: 6,
		RecInt1: 1,
		RecInt2: 1,
		Blocks:  []srmtest.Block{{HSecs: srmtest.HSecs(7, 30, 0), Chunks: 3}},
		Samples: [][]byte{
			srmtest.V6(260, 180, 85, 130),
			srmtest.V6(260, 4095, 100, 170),
			srmtest.V6(0, 0, 0, 0),
		},
	}
	out := mustParse(t, f)
	if len(out.Samples) != 3 {
		t.Fatalf("samples = %d", len(out.Samples))
	}
	if !almostEqual(out.Samples[0].Kph, 30) || out.Samples[0].Watts != 180 {
		t.Fatalf("sample 0 = %+v", out.Samples[0])
	}
	if out.Samples[1].Watts != 4095 {
		t.Fatalf("sample 1 watts = %d", out.Samples[1].Watts)
	}
	if out.Samples[2].Torque != 0 {
		t.Fatalf("zero cadence torque = %f", out.Samples[2].Torque)
	}
}

func TestTimeAndDistanceAreNonDecreasing(t *testing.T) {
	f := srmtest.Steady(0)
	f.RecInt1, f.RecInt2 = 1, 2
	f.Blocks = []srmtest.Block{
		{HSecs: srmtest.HSecs(10, 0, 0), Chunks: 4},
		{HSecs: srmtest.HSecs(10, 5, 0), Chunks: 3},
		{HSecs: srmtest.HSecs(10, 0, 1), Chunks: 3},
	}
	for i := 0; i < 10; i++ {
		f.Samples = append(f.Samples, srmtest.V7(uint16(100+i), 90, 140, uint32(1000*i), 0, 0))
	}
	out := mustParse(t, f)

	for i := 1; i < len(out.Samples); i++ {
		if out.Samples[i].Secs < out.Samples[i-1].Secs {
			t.Fatalf("time went backwards at %d: %f < %f", i, out.Samples[i].Secs, out.Samples[i-1].Secs)
		}
		if out.Samples[i].Km < out.Samples[i-1].Km {
			t.Fatalf("distance went backwards at %d", i)
		}
	}
}

func TestBlockGapAdvancesElapsedTime(t *testing.T) {
	f := srmtest.Steady(0)
	f.Blocks = []srmtest.Block{
		{HSecs: srmtest.HSecs(9, 0, 0), Chunks: 2},
		{HSecs: srmtest.HSecs(9, 1, 0), Chunks: 2},
	}
	for i := 0; i < 4; i++ {
		f.Samples = append(f.Samples, srmtest.V7(200, 90, 140, 10000, 0, 0))
	}
	out := mustParse(t, f)

	want := []float64{0, 1, 59, 60}
	for i, w := range want {
		if out.Samples[i].Secs != w {
			t.Fatalf("secs[%d] = %f, want %f", i, out.Samples[i].Secs, w)
		}
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", out.Warnings)
	}
}

func TestBackwardBlockJumpWarnsAndAdvancesOneInterval(t *testing.T) {
	f := srmtest.Steady(0)
	f.Blocks = []srmtest.Block{
		{HSecs: srmtest.HSecs(9, 0, 0), Chunks: 3},
		{HSecs: srmtest.HSecs(8, 0, 0), Chunks: 2},
	}
	for i := 0; i < 5; i++ {
		f.Samples = append(f.Samples, srmtest.V7(200, 90, 140, 10000, 0, 0))
	}
	out := mustParse(t, f)

	if len(out.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", out.Warnings)
	}
	if !strings.Contains(out.Warnings[0], "time goes backwards") || !strings.Contains(out.Warnings[0], "block 1") {
		t.Fatalf("unexpected warning: %q", out.Warnings[0])
	}
	if out.Samples[3].Secs != out.Samples[2].Secs+1 {
		t.Fatalf("secs after jump = %f, want %f", out.Samples[3].Secs, out.Samples[2].Secs+1)
	}
}

func TestFixMarkerIsIdempotent(t *testing.T) {
	cases := []Marker{
		{Start: 0, End: 0},
		{Start: 5, End: 2},
		{Start: 0, End: 7},
		{Start: 3, End: 3},
		{Start: 9, End: 0},
	}
	for _, m := range cases {
		once := FixMarker(m)
		twice := FixMarker(once)
		if once != twice {
			t.Fatalf("FixMarker not idempotent for %+v: %+v vs %+v", m, once, twice)
		}
		if once.Start < 1 || once.Start > once.End {
			t.Fatalf("FixMarker(%+v) = %+v violates 1 <= start <= end", m, once)
		}
	}

	if got := FixMarker(Marker{}); got.Start != 1 || got.End != 1 {
		t.Fatalf("FixMarker(0,0) = %d,%d, want 1,1", got.Start, got.End)
	}
	if got := FixMarker(Marker{Start: 5, End: 2}); got.Start != 2 || got.End != 5 {
		t.Fatalf("FixMarker(5,2) = %d,%d, want 2,5", got.Start, got.End)
	}
}

func TestMarkersProduceNamedIntervals(t *testing.T) {
	f := srmtest.Steady(100)
	f.Markers = []srmtest.Marker{
		{Comment: "effort 1", Active: true, Start: 11, End: 30},
		{Comment: "effort 2", Start: 61, End: 80},
	}
	out := mustParse(t, f)

	if len(out.Markers) != 3 {
		t.Fatalf("markers = %d, want 3 including lead-in", len(out.Markers))
	}
	if out.Markers[1].Comment != "effort 1" || !out.Markers[1].Active {
		t.Fatalf("marker 1 = %+v", out.Markers[1])
	}

	want := []Interval{
		{Start: 0, Stop: 10},
		{Start: 10, Stop: 30, Name: "1"},
		{Start: 30, Stop: 60},
		{Start: 60, Stop: 80, Name: "2"},
		{Start: 80, Stop: 100},
	}
	if len(out.Intervals) != len(want) {
		t.Fatalf("intervals = %+v", out.Intervals)
	}
	for i := range want {
		if out.Intervals[i] != want[i] {
			t.Fatalf("interval %d = %+v, want %+v", i, out.Intervals[i], want[i])
		}
	}

	if out.Samples[5].Interval != 0 || out.Samples[15].Interval != 1 || out.Samples[45].Interval != 2 ||
		out.Samples[70].Interval != 3 || out.Samples[90].Interval != 4 {
		t.Fatalf("unexpected interval indexes: %d %d %d %d %d",
			out.Samples[5].Interval, out.Samples[15].Interval, out.Samples[45].Interval,
			out.Samples[70].Interval, out.Samples[90].Interval)
	}
}

func TestIntervalIndexAtMarkerBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		samples   int
		markers   []srmtest.Marker
		indexes   []int
		intervals []Interval
	}{
		{
			name:    "single sample and overlapping markers",
			samples: 6,
			markers: []srmtest.Marker{{Start: 1, End: 1}, {Start: 2, End: 3}, {Start: 3, End: 6}},
			indexes: []int{0, 2, 2, 3, 3, 3},
			intervals: []Interval{
				{Start: 0, Stop: 1, Name: "1"},
				{Start: 1, Stop: 3, Name: "2"},
				{Start: 3, Stop: 6, Name: "3"},
			},
		},
		{
			name:    "first sample and last sample",
			samples: 8,
			markers: []srmtest.Marker{{Start: 1, End: 3}, {Start: 5, End: 8}},
			indexes: []int{0, 0, 0, 1, 2, 2, 2, 2},
			intervals: []Interval{
				{Start: 0, Stop: 3, Name: "1"},
				{Start: 3, Stop: 4},
				{Start: 4, Stop: 8, Name: "2"},
			},
		},
		{
			name:    "adjacent markers",
			samples: 7,
			markers: []srmtest.Marker{{Start: 2, End: 4}, {Start: 5, End: 6}},
			indexes: []int{0, 1, 1, 1, 3, 3, 4},
			intervals: []Interval{
				{Start: 0, Stop: 1},
				{Start: 1, Stop: 4, Name: "1"},
				{Start: 4, Stop: 6, Name: "2"},
				{Start: 6, Stop: 7},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := srmtest.Steady(tc.samples)
			f.Markers = tc.markers
			out := mustParse(t, f)

			for i, want := range tc.indexes {
				if got := out.Samples[i].Interval; got != want {
					t.Fatalf("sample %d interval = %d, want %d", i, got, want)
				}
			}
			if len(out.Intervals) != len(tc.intervals) {
				t.Fatalf("intervals = %+v, want %+v", out.Intervals, tc.intervals)
			}
			for i := range tc.intervals {
				if out.Intervals[i] != tc.intervals[i] {
					t.Fatalf("interval %d = %+v, want %+v", i, out.Intervals[i], tc.intervals[i])
				}
			}
		})
	}
}

func TestMarkerCapacityIsBoundedByData(t *testing.T) {
	c := &cursor{data: make([]byte, 3*markerRecordSize+10)}
	if got := markerCapacity(c, 0xFFFF); got != 4 {
		t.Fatalf("markerCapacity(0xFFFF) = %d, want 4", got)
	}
	if got := markerCapacity(c, 1); got != 2 {
		t.Fatalf("markerCapacity(1) = %d, want 2", got)
	}
}

func TestEmptyBlockWarnsThatLaterGapsAreIgnored(t *testing.T) {
	f := srmtest.Steady(3)
	f.Blocks = []srmtest.Block{
		{HSecs: srmtest.HSecs(9, 0, 0), Chunks: 0},
		{HSecs: srmtest.HSecs(9, 10, 0), Chunks: 3},
	}
	out := mustParse(t, f)

	for i, want := range []float64{0, 1, 2} {
		if out.Samples[i].Secs != want {
			t.Fatalf("secs[%d] = %f, want %f", i, out.Samples[i].Secs, want)
		}
	}
	if len(out.Warnings) != 1 || out.Warnings[0] != "block 0 has no samples, later block gaps ignored" {
		t.Fatalf("unexpected warnings: %q", out.Warnings)
	}
}

func TestIntervalsTileTheRide(t *testing.T) {
	f := srmtest.Steady(50)
	f.Markers = []srmtest.Marker{
		{Start: 30, End: 10},
		{Start: 0, End: 5},
		{Start: 20, End: 45},
		{Start: 48, End: 200},
	}
	out := mustParse(t, f)

	last := out.Samples[len(out.Samples)-1].Secs + out.Header.RecIntSecs()
	pos := 0.0
	for _, iv := range out.Intervals {
		if iv.Start != pos {
			t.Fatalf("gap or overlap at %f: %+v in %+v", pos, iv, out.Intervals)
		}
		if iv.Stop <= iv.Start {
			t.Fatalf("empty interval %+v", iv)
		}
		pos = iv.Stop
	}
	if pos != last {
		t.Fatalf("intervals end at %f, want %f", pos, last)
	}
}

func TestNoMarkersYieldsSingleUnnamedInterval(t *testing.T) {
	out := mustParse(t, srmtest.Steady(30))
	if len(out.Intervals) != 1 {
		t.Fatalf("intervals = %+v", out.Intervals)
	}
	if iv := out.Intervals[0]; iv.Name != "" || iv.Start != 0 || iv.Stop != 30 {
		t.Fatalf("interval = %+v", iv)
	}
}

func TestMarkerPastDataIsSkipped(t *testing.T) {
	f := srmtest.Steady(20)
	f.Markers = []srmtest.Marker{{Start: 40, End: 50}}
	out := mustParse(t, f)
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "marker 1") {
		t.Fatalf("warnings = %v", out.Warnings)
	}
	if len(out.Intervals) != 1 || out.Intervals[0].Name != "" {
		t.Fatalf("intervals = %+v", out.Intervals)
	}
}

func TestNoSamplesYieldsNoIntervals(t *testing.T) {
	out := mustParse(t, srmtest.Steady(0))
	if len(out.Samples) != 0 || len(out.Intervals) != 0 {
		t.Fatalf("samples=%d intervals=%d", len(out.Samples), len(out.Intervals))
	}
}

func TestHeaderComment(t *testing.T) {
	f := srmtest.Steady(1)
	f.Comment = "abc\x00def"
	f.CommentLen = 8
	out := mustParse(t, f)
	if out.Header.Comment != "abc" {
		t.Fatalf("comment = %q, want cut at NUL", out.Header.Comment)
	}

	f.Comment = "abcdef"
	f.CommentLen = 4
	if out = mustParse(t, f); out.Header.Comment != "abc" {
		t.Fatalf("comment = %q, want first commentlen-1 bytes", out.Header.Comment)
	}

	f.CommentLen = 0
	f.Comment = ""
	if out = mustParse(t, f); out.Header.Comment != "" {
		t.Fatalf("comment = %q, want empty", out.Header.Comment)
	}

	f.Comment = strings.Repeat("x", 70)
	f.CommentLen = 255
	if out = mustParse(t, f); len(out.Header.Comment) != 70 {
		t.Fatalf("comment length = %d, want 70", len(out.Header.Comment))
	}
}

func TestFatalErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*srmtest.File)
		data   func([]byte) []byte
		want   error
	}{
		{name: "bad magic", mutate: func(f *srmtest.File) { f.Magic = "XRM7" }, want: ErrBadMagic},
		{name: "non digit version", mutate: func(f *srmtest.File) { f.Magic = "SRMx" }, want: ErrBadMagic},
		{name: "version 5", mutate: func(f *srmtest.File) { f.Version = 5 }, want: ErrUnsupportedVersion},
		{name: "zero recint2", mutate: func(f *srmtest.File) { f.RecInt2 = 0 }, want: ErrZeroInterval},
		{name: "zero recint1", mutate: func(f *srmtest.File) { f.RecInt1 = 0 }, want: ErrZeroInterval},
		{name: "no blocks", mutate: func(f *srmtest.File) { f.Blocks = nil }, want: ErrNoBlocks},
		{name: "short header", data: func(b []byte) []byte { return b[:40] }, want: ErrTruncated},
		{name: "short samples", data: func(b []byte) []byte { return b[:len(b)-3] }, want: ErrTruncated},
		{name: "datacnt beyond data", mutate: func(f *srmtest.File) { f.DataCount = 500 }, want: ErrTruncated},
		{name: "marker count beyond data", mutate: func(f *srmtest.File) { f.MarkerCount = 0xFFFF }, want: ErrTruncated},
		{name: "empty", data: func([]byte) []byte { return nil }, want: ErrTruncated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := srmtest.Steady(10)
			if tc.mutate != nil {
				tc.mutate(&f)
			}
			data := f.Bytes()
			if tc.data != nil {
				data = tc.data(data)
			}

			out, err := Parse(data)
			if err == nil {
				t.Fatalf("expected error, got %+v", out)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not a *FormatError", err)
			}
			if fe.Offset < 0 || fe.Offset > len(data) {
				t.Fatalf("offset %d out of range", fe.Offset)
			}
		})
	}
}

func TestDecodeLeavesSinkUntouchedOnError(t *testing.T) {
	data := srmtest.Steady(10).Bytes()
	ride := ridefile.New()
	warnings, err := Decode(bytes.NewReader(data[:len(data)-1]), ride)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v", err)
	}
	if warnings != nil || ride.DeviceType != "" || len(ride.Points) != 0 || len(ride.Intervals) != 0 {
		t.Fatalf("sink was written on failure: %+v", ride)
	}
}

func TestDecodeEmitsIntoRide(t *testing.T) {
	f := srmtest.Steady(20)
	f.Markers = []srmtest.Marker{{Comment: "sprint", Start: 5, End: 10}}
	ride := ridefile.New()
	loc := time.FixedZone("CEST", 2*3600)

	warnings, err := Decode(bytes.NewReader(f.Bytes()), ride, WithLocation(loc))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if ride.DeviceType != DeviceType || ride.RecIntSecs != 1 {
		t.Fatalf("ride meta = %q %f", ride.DeviceType, ride.RecIntSecs)
	}
	want := time.Date(2024, time.May, 1, 9, 0, 0, 0, loc)
	if !ride.StartTime.Equal(want) {
		t.Fatalf("start = %s, want %s", ride.StartTime, want)
	}
	if len(ride.Points) != 20 || len(ride.Intervals) != 3 {
		t.Fatalf("points=%d intervals=%d", len(ride.Points), len(ride.Intervals))
	}
	p := ride.Points[7]
	if p.Watts != 200 || p.Cad != 90 || p.HR != 140 || p.Alt != 120 || p.Lat != 0 || p.Interval != 1 {
		t.Fatalf("point = %+v", p)
	}
	if ride.Tag("marker_1") != "sprint" || ride.Tag("srm_version") != "7" || ride.Tag("comment") != "steady ride" {
		t.Fatalf("tags = %v", ride.Tags)
	}
}

func TestSpansCoverStructure(t *testing.T) {
	f := srmtest.Steady(4)
	f.Markers = []srmtest.Marker{{Start: 1, End: 2}}
	data := f.Bytes()
	out, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	counts := map[SpanKind]int{}
	pos := 0
	for _, sp := range out.Spans {
		if sp.Offset != pos {
			t.Fatalf("span %+v does not start at %d", sp, pos)
		}
		pos += sp.Length
		counts[sp.Kind]++
	}
	if pos != len(data) {
		t.Fatalf("spans cover %d of %d bytes", pos, len(data))
	}
	if counts[SpanHeader] != 1 || counts[SpanMarker] != 2 || counts[SpanBlock] != 1 ||
		counts[SpanTrailer] != 1 || counts[SpanSample] != 4 {
		t.Fatalf("span counts = %v", counts)
	}
	if out.Spans[0].Length != headerSize {
		t.Fatalf("header span = %d bytes", out.Spans[0].Length)
	}
}

func TestRegisterAddsReader(t *testing.T) {
	reg := ridefile.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := Register(reg); !errors.Is(err, ridefile.ErrDuplicateFormat) {
		t.Fatalf("second Register error = %v", err)
	}
	formats := reg.Formats()
	if len(formats) != 1 || formats[0].Tag != "srm" || formats[0].Description != "SRM training files" {
		t.Fatalf("formats = %+v", formats)
	}

	ride, _, err := reg.Decode("SRM", bytes.NewReader(srmtest.Steady(5).Bytes()))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(ride.Points) != 5 {
		t.Fatalf("points = %d", len(ride.Points))
	}

	ride, _, err = reg.Decode("srm", strings.NewReader("nope"))
	if err == nil || ride != nil {
		t.Fatalf("expected failure, got ride=%v err=%v", ride, err)
	}
}
