// Package srmtest builds SRM byte streams for tests.
package srmtest

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Marker is a marker table entry as written to disk.
type Marker struct {
	Comment string
	Active  bool
	Start   uint16
	End     uint16
	Watts   uint16
}

// Block is a block table entry.
type Block struct {
	HSecs  int32
	Chunks uint16
}

// File describes an SRM file to serialize. Zero values are filled with
// usable defaults by Bytes.
type File struct {
	Magic   string // overrides "SRM<version>" when set
	Version int
	Date    time.Time
	Wheel   uint16
	RecInt1 uint8
	RecInt2 uint8
	Comment string
	// CommentLen overrides len(Comment)+1 when non-zero.
	CommentLen uint8
	LeadIn     Marker
	Markers    []Marker
	// MarkerCount overrides len(Markers) in the header when non-zero.
	MarkerCount uint16
	Blocks      []Block
	Samples     [][]byte
	// DataCount overrides len(Samples) when non-zero.
	DataCount uint16
	Trailing  []byte
}

// Days converts a calendar date to the header's day offset.
func Days(date time.Time) uint16 {
	base := time.Date(1880, time.January, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return uint16(day.Sub(base).Hours() / 24)
}

// HSecs returns hundredths of a second since midnight.
func HSecs(h, m, s int) int32 {
	return int32((h*3600 + m*60 + s) * 100)
}

// V6 packs a version 6 sample. speedRaw is km/h × 26/3 (11 bits), watts is 12 bits.
func V6(speedRaw uint16, watts uint16, cadence, hr uint8) []byte {
	return []byte{
		byte(speedRaw & 0x7F),
		byte((speedRaw>>7)&0x0F)<<4 | byte(watts&0x0F),
		byte(watts >> 4),
		cadence,
		hr,
	}
}

// V7 packs a version 7 sample. speed is mm/s, temp is tenths of °C.
func V7(watts uint16, cadence, hr uint8, speed uint32, alt int32, temp int16) []byte {
	b := make([]byte, 14)
	binary.BigEndian.PutUint16(b[0:], watts)
	b[2] = cadence
	b[3] = hr
	binary.BigEndian.PutUint32(b[4:], speed)
	binary.BigEndian.PutUint32(b[8:], uint32(alt))
	binary.BigEndian.PutUint16(b[12:], uint16(temp))
	return b
}

// Steady returns a version 7 file with n one-second samples at 200 W,
// 90 rpm, 140 bpm and 36 km/h in a single block starting 09:00.
func Steady(n int) File {
	f := File{
		Version: 7,
		Date:    time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		Wheel:   2096,
		RecInt1: 1,
		RecInt2: 1,
		Comment: "steady ride",
		Blocks:  []Block{{HSecs: HSecs(9, 0, 0), Chunks: uint16(n)}},
	}
	for i := 0; i < n; i++ {
		f.Samples = append(f.Samples, V7(200, 90, 140, 10000, 120, 215))
	}
	return f
}

// Bytes serializes f.
func (f File) Bytes() []byte {
	var buf bytes.Buffer
	be := binary.BigEndian

	version := f.Version
	if version == 0 {
		version = 7
	}
	magic := f.Magic
	if magic == "" {
		magic = "SRM" + string(rune('0'+version))
	}
	buf.WriteString(magic)

	date := f.Date
	if date.IsZero() {
		date = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	}
	_ = binary.Write(&buf, be, Days(date))
	_ = binary.Write(&buf, be, f.Wheel)
	buf.WriteByte(f.RecInt1)
	buf.WriteByte(f.RecInt2)
	_ = binary.Write(&buf, be, uint16(len(f.Blocks)))
	markerCount := f.MarkerCount
	if markerCount == 0 {
		markerCount = uint16(len(f.Markers))
	}
	_ = binary.Write(&buf, be, markerCount)
	buf.WriteByte(0)
	commentLen := f.CommentLen
	if commentLen == 0 && f.Comment != "" {
		commentLen = uint8(len(f.Comment) + 1)
	}
	buf.WriteByte(commentLen)
	buf.Write(fixed(f.Comment, 70))

	for _, m := range append([]Marker{f.LeadIn}, f.Markers...) {
		buf.Write(fixed(m.Comment, 255))
		if m.Active {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		_ = binary.Write(&buf, be, m.Start)
		_ = binary.Write(&buf, be, m.End)
		_ = binary.Write(&buf, be, m.Watts)
		buf.Write(make([]byte, 8))
	}

	for _, b := range f.Blocks {
		_ = binary.Write(&buf, be, b.HSecs)
		_ = binary.Write(&buf, be, b.Chunks)
	}

	count := f.DataCount
	if count == 0 {
		count = uint16(len(f.Samples))
	}
	_ = binary.Write(&buf, be, uint16(0))
	_ = binary.Write(&buf, be, uint16(0))
	_ = binary.Write(&buf, be, count)
	buf.WriteByte(0)

	for _, s := range f.Samples {
		buf.Write(s)
	}
	buf.Write(f.Trailing)
	return buf.Bytes()
}

func fixed(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}
