package srm

import (
	"encoding/binary"
	"fmt"
)

// SpanKind names a structural record of an SRM file.
type SpanKind string

const (
	SpanHeader  SpanKind = "header"
	SpanMarker  SpanKind = "marker"
	SpanBlock   SpanKind = "block"
	SpanTrailer SpanKind = "trailer"
	SpanSample  SpanKind = "sample"
)

// Span locates one structural record in the input.
type Span struct {
	Kind   SpanKind `json:"kind"`
	Index  int      `json:"index"`
	Offset int      `json:"offset"`
	Length int      `json:"length"`
}

// SRM stores every multi-byte integer big-endian regardless of host order.
func be16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func be32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// cursor is a forward-only reader over the whole file. Every read is bounds
// checked and fails with ErrTruncated.
type cursor struct {
	data  []byte
	pos   int
	spans []Span
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) take(n int, field string) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, formatErr(c.pos, field,
			fmt.Errorf("%w: need %d bytes, %d left", ErrTruncated, n, c.remaining()))
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) skip(n int, field string) error {
	_, err := c.take(n, field)
	return err
}

func (c *cursor) u8(field string) (uint8, error) {
	b, err := c.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16(field string) (uint16, error) {
	b, err := c.take(2, field)
	if err != nil {
		return 0, err
	}
	return be16(b), nil
}

func (c *cursor) u32(field string) (uint32, error) {
	b, err := c.take(4, field)
	if err != nil {
		return 0, err
	}
	return be32(b), nil
}

func (c *cursor) i16(field string) (int16, error) {
	v, err := c.u16(field)
	return int16(v), err
}

func (c *cursor) i32(field string) (int32, error) {
	v, err := c.u32(field)
	return int32(v), err
}

// record closes a span that started at offset start.
func (c *cursor) record(kind SpanKind, index, start int) {
	c.spans = append(c.spans, Span{Kind: kind, Index: index, Offset: start, Length: c.pos - start})
}
