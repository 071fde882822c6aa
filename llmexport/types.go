package llmexport

import (
	"time"

	"github.com/lucasjlepore/srm-analyzer/srm"
)

const (
	// ExportFormatVersion identifies the on-disk schema for LLM exports.
	ExportFormatVersion = "srm_llm_jsonl_v1"
)

// Record kinds in records.jsonl.
const (
	kindHeader   = string(srm.SpanHeader)
	kindMarker   = string(srm.SpanMarker)
	kindBlock    = string(srm.SpanBlock)
	kindTrailer  = string(srm.SpanTrailer)
	kindSample   = string(srm.SpanSample)
	kindSampleV6 = "sample_v6"
	kindSampleV7 = "sample_v7"
)

// ExportOptions controls export behavior.
type ExportOptions struct {
	// Overwrite allows writing into a non-empty output directory.
	Overwrite bool

	// CopySourceFile writes a byte-for-byte copy of the source SRM file to the output directory.
	CopySourceFile bool
}

// ExportResult describes generated files.
type ExportResult struct {
	OutputDir       string   `json:"output_dir"`
	ManifestPath    string   `json:"manifest_path"`
	RecordsPath     string   `json:"records_path"`
	SourceCopyPath  string   `json:"source_copy_path,omitempty"`
	RecordCount     int      `json:"record_count"`
	MarkerCount     int      `json:"marker_count"`
	BlockCount      int      `json:"block_count"`
	SampleCount     int      `json:"sample_count"`
	SourceSHA256    string   `json:"source_sha256"`
	SourceSizeBytes int64    `json:"source_size_bytes"`
	LeftoverBytes   int64    `json:"leftover_bytes"`
	Warnings        []string `json:"warnings,omitempty"`

	// File is the decoded source, for callers that go on to build a ride.
	File *srm.File `json:"-"`
}

// Manifest captures export metadata and pointers to exported files.
type Manifest struct {
	FormatVersion     string         `json:"format_version"`
	GeneratedAt       time.Time      `json:"generated_at"`
	SourceFile        string         `json:"source_file"`
	SourceFileName    string         `json:"source_file_name"`
	SourceSHA256      string         `json:"source_sha256"`
	SourceSizeBytes   int64          `json:"source_size_bytes"`
	Header            HeaderInfo     `json:"header"`
	StartTime         string         `json:"start_time"`
	DurationSeconds   float64        `json:"duration_seconds"`
	RecordsPath       string         `json:"records_path"`
	RecordCount       int            `json:"record_count"`
	MarkerCount       int            `json:"marker_count"`
	BlockCount        int            `json:"block_count"`
	SampleCount       int            `json:"sample_count"`
	LeftoverBytes     int64          `json:"leftover_bytes"`
	Intervals         []srm.Interval `json:"intervals"`
	Warnings          []string       `json:"warnings,omitempty"`
	SchemaDescription SchemaDetails  `json:"schema_description"`
}

// SchemaDetails documents the record shape for downstream applications.
type SchemaDetails struct {
	RecordType string                   `json:"record_type"`
	Notes      []string                 `json:"notes"`
	Layouts    map[string][]FieldLayout `json:"layouts"`
}

// FieldLayout documents one field of a fixed record layout.
type FieldLayout struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
	Type   string `json:"type"`
	Units  string `json:"units,omitempty"`
}

// HeaderInfo stores parsed SRM header values.
type HeaderInfo struct {
	Version              int     `json:"version"`
	Date                 string  `json:"date"`
	DaysSince1880        uint16  `json:"days_since_1880"`
	WheelCircumferenceMM uint16  `json:"wheel_circumference_mm"`
	RecInt1              uint8   `json:"recint1"`
	RecInt2              uint8   `json:"recint2"`
	RecIntSecs           float64 `json:"recint_secs"`
	BlockCount           int     `json:"block_count"`
	MarkerCount          int     `json:"marker_count"`
	DataCount            int     `json:"data_count"`
	Comment              string  `json:"comment"`
}

// RecordEnvelope is one JSONL line in records.jsonl.
// The stream preserves file order: header, markers, blocks, trailer, samples.
type RecordEnvelope struct {
	FormatVersion string       `json:"format_version"`
	RecordIndex   int          `json:"record_index"`
	FileOffset    int64        `json:"file_offset"`
	RecordKind    string       `json:"record_kind"`
	KindIndex     int          `json:"kind_index"`
	Size          int          `json:"size"`
	RawRecordHex  string       `json:"raw_record_hex"`
	Fields        []FieldValue `json:"fields"`
	Header        *HeaderInfo  `json:"header,omitempty"`
	Marker        *srm.Marker  `json:"marker,omitempty"`
	Block         *srm.Block   `json:"block,omitempty"`
	Trailer       *srm.Trailer `json:"trailer,omitempty"`
	Sample        *srm.Sample  `json:"sample,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// FieldValue is one raw field of a record with its decoded value.
type FieldValue struct {
	FieldIndex  int    `json:"field_index"`
	Name        string `json:"name"`
	Offset      int    `json:"offset"`
	Size        int    `json:"size"`
	Type        string `json:"type"`
	Units       string `json:"units,omitempty"`
	RawHex      string `json:"raw_hex"`
	Decoded     any    `json:"decoded"`
	Scaled      any    `json:"scaled,omitempty"`
	DecodeError string `json:"decode_error,omitempty"`
}
