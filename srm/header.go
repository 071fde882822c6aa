package srm

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	magicPrefix    = "SRM"
	headerSize     = 86
	commentBufSize = 70
)

// Header is the fixed 86-byte file preamble.
type Header struct {
	Version            int       `json:"version"`
	DaysSince1880      uint16    `json:"days_since_1880"`
	Date               time.Time `json:"date"`
	WheelCircumference uint16    `json:"wheel_circumference_mm"`
	RecInt1            uint8     `json:"recint1"`
	RecInt2            uint8     `json:"recint2"`
	BlockCount         int       `json:"block_count"`
	MarkerCount        int       `json:"marker_count"`
	CommentLength      uint8     `json:"comment_length"`
	Comment            string    `json:"comment"`
}

// RecIntSecs is the recording interval in seconds, RecInt1/RecInt2.
func (h Header) RecIntSecs() float64 {
	if h.RecInt2 == 0 {
		return 0
	}
	return float64(h.RecInt1) / float64(h.RecInt2)
}

func (h Header) recIntMillis() int64 {
	return int64(math.Round(h.RecIntSecs() * 1000))
}

// SampleSize is the on-disk size of one sample record for the header's version.
func (h Header) SampleSize() int {
	if h.Version == 6 {
		return 5
	}
	return 14
}

func parseHeader(c *cursor, loc *time.Location) (Header, error) {
	start := c.pos
	var h Header

	magic, err := c.take(4, "magic")
	if err != nil {
		return h, err
	}
	if string(magic[:3]) != magicPrefix || magic[3] < '0' || magic[3] > '9' {
		return h, formatErr(start, "magic", fmt.Errorf("%w: %q", ErrBadMagic, magic))
	}
	h.Version = int(magic[3] - '0')
	if h.Version != 6 && h.Version != 7 {
		return h, formatErr(start+3, "version", fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version))
	}

	if h.DaysSince1880, err = c.u16("days since 1880"); err != nil {
		return h, err
	}
	h.Date = time.Date(1880, time.January, 1+int(h.DaysSince1880), 0, 0, 0, 0, loc)

	if h.WheelCircumference, err = c.u16("wheel circumference"); err != nil {
		return h, err
	}
	recIntOffset := c.pos
	if h.RecInt1, err = c.u8("recint1"); err != nil {
		return h, err
	}
	if h.RecInt2, err = c.u8("recint2"); err != nil {
		return h, err
	}
	if h.RecInt1 == 0 || h.RecInt2 == 0 {
		return h, formatErr(recIntOffset, "recording interval",
			fmt.Errorf("%w: %d/%d", ErrZeroInterval, h.RecInt1, h.RecInt2))
	}

	blocks, err := c.u16("block count")
	if err != nil {
		return h, err
	}
	h.BlockCount = int(blocks)
	markers, err := c.u16("marker count")
	if err != nil {
		return h, err
	}
	h.MarkerCount = int(markers)

	if err := c.skip(1, "header padding"); err != nil {
		return h, err
	}
	if h.CommentLength, err = c.u8("comment length"); err != nil {
		return h, err
	}
	raw, err := c.take(commentBufSize, "comment")
	if err != nil {
		return h, err
	}
	h.Comment = decodeComment(raw, int(h.CommentLength)-1)

	c.record(SpanHeader, 0, start)
	return h, nil
}

// decodeComment copies at most n bytes of a fixed comment buffer, stopping at
// the first NUL. Bytes are Latin-1.
func decodeComment(raw []byte, n int) string {
	if n <= 0 {
		return ""
	}
	if n > len(raw) {
		n = len(raw)
	}
	s := raw[:n]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		b.WriteRune(rune(ch))
	}
	return b.String()
}
