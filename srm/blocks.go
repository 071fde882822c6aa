package srm

import (
	"fmt"
	"time"
)

const (
	blockRecordSize = 6
	trailerSize     = 7
)

// Block is a contiguous run of ChunkCount samples starting at Timestamp.
type Block struct {
	HSecsSinceMidnight int32     `json:"hsecs_since_midnight"`
	Timestamp          time.Time `json:"timestamp"`
	ChunkCount         int       `json:"chunk_count"`
}

// Trailer follows the block table. DataCount is the number of samples.
type Trailer struct {
	Zero      uint16 `json:"zero"`
	Slope     uint16 `json:"slope"`
	DataCount int    `json:"data_count"`
}

func parseBlocks(c *cursor, h Header) ([]Block, error) {
	if h.BlockCount == 0 {
		return nil, formatErr(c.pos, "block table", ErrNoBlocks)
	}
	blocks := make([]Block, 0, min(h.BlockCount, c.remaining()/blockRecordSize))
	for i := 0; i < h.BlockCount; i++ {
		start := c.pos
		field := fmt.Sprintf("block %d", i)
		hsecs, err := c.i32(field)
		if err != nil {
			return nil, err
		}
		chunks, err := c.u16(field)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, Block{
			HSecsSinceMidnight: hsecs,
			Timestamp:          h.Date.Add(time.Duration(hsecs) * 10 * time.Millisecond),
			ChunkCount:         int(chunks),
		})
		c.record(SpanBlock, i, start)
	}
	return blocks, nil
}

func parseTrailer(c *cursor) (Trailer, error) {
	start := c.pos
	var t Trailer
	var err error
	if t.Zero, err = c.u16("trailer zero"); err != nil {
		return t, err
	}
	if t.Slope, err = c.u16("trailer slope"); err != nil {
		return t, err
	}
	count, err := c.u16("data count")
	if err != nil {
		return t, err
	}
	t.DataCount = int(count)
	if err := c.skip(1, "trailer padding"); err != nil {
		return t, err
	}
	c.record(SpanTrailer, 0, start)
	return t, nil
}
