package llmexport

import (
	"encoding/hex"
	"fmt"

	"github.com/lucasjlepore/srm-analyzer/srm"
)

type parseOutput struct {
	File               *srm.File
	Header             HeaderInfo
	Records            []RecordEnvelope
	MarkerCount        int
	BlockCount         int
	SampleCount        int
	LeftoverBytesCount int64
	Warnings           []string
}

func parseSRMBytes(data []byte) (*parseOutput, error) {
	f, err := srm.Parse(data)
	if err != nil {
		return nil, err
	}

	header := headerInfo(f)
	records := make([]RecordEnvelope, 0, len(f.Spans))
	for i, span := range f.Spans {
		raw := data[span.Offset : span.Offset+span.Length]
		rec := RecordEnvelope{
			FormatVersion: ExportFormatVersion,
			RecordIndex:   i,
			FileOffset:    int64(span.Offset),
			RecordKind:    string(span.Kind),
			KindIndex:     span.Index,
			Size:          span.Length,
			RawRecordHex:  hex.EncodeToString(raw),
			Fields:        decodeFields(raw, layoutFor(string(span.Kind), f.Header.Version)),
		}
		attachDecoded(&rec, f, &header, raw)
		records = append(records, rec)
	}

	return &parseOutput{
		File:               f,
		Header:             header,
		Records:            records,
		MarkerCount:        f.Header.MarkerCount,
		BlockCount:         len(f.Blocks),
		SampleCount:        len(f.Samples),
		LeftoverBytesCount: int64(f.Leftover),
		Warnings:           f.Warnings,
	}, nil
}

func headerInfo(f *srm.File) HeaderInfo {
	h := f.Header
	return HeaderInfo{
		Version:              h.Version,
		Date:                 h.Date.Format("2006-01-02"),
		DaysSince1880:        h.DaysSince1880,
		WheelCircumferenceMM: h.WheelCircumference,
		RecInt1:              h.RecInt1,
		RecInt2:              h.RecInt2,
		RecIntSecs:           h.RecIntSecs(),
		BlockCount:           h.BlockCount,
		MarkerCount:          h.MarkerCount,
		DataCount:            f.Trailer.DataCount,
		Comment:              h.Comment,
	}
}

func attachDecoded(rec *RecordEnvelope, f *srm.File, header *HeaderInfo, raw []byte) {
	idx := rec.KindIndex
	switch rec.RecordKind {
	case kindHeader:
		rec.Header = header
	case kindMarker:
		m := f.Markers[idx]
		rec.Marker = &m
		rawStart := int(raw[256])<<8 | int(raw[257])
		rawEnd := int(raw[258])<<8 | int(raw[259])
		if rawStart != m.Start || rawEnd != m.End {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("marker %d indices repaired from %d-%d to %d-%d", idx, rawStart, rawEnd, m.Start, m.End))
		}
	case kindBlock:
		b := f.Blocks[idx]
		rec.Block = &b
		if b.ChunkCount == 0 {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("block %d has no samples", idx))
		}
	case kindTrailer:
		t := f.Trailer
		rec.Trailer = &t
	case kindSample:
		s := f.Samples[idx]
		rec.Sample = &s
	}
}

func countRecordKind(records []RecordEnvelope, kind string) int {
	n := 0
	for _, rec := range records {
		if rec.RecordKind == kind {
			n++
		}
	}
	return n
}
