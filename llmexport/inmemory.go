package llmexport

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasjlepore/srm-analyzer/srm"
)

// ParsedBundle is the in-memory representation of a decoded SRM stream.
type ParsedBundle struct {
	File               *srm.File
	Header             HeaderInfo
	Records            []RecordEnvelope
	MarkerCount        int
	BlockCount         int
	SampleCount        int
	LeftoverBytesCount int64
	DecodeWarnings     []string
	SourceSHA256       string
	SourceSizeBytes    int64
}

// ParseBytes parses raw SRM bytes into the same record model used by JSONL export.
func ParseBytes(data []byte) (*ParsedBundle, error) {
	parsed, err := parseSRMBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse srm bytes: %w", err)
	}
	sum := sha256.Sum256(data)
	return &ParsedBundle{
		File:               parsed.File,
		Header:             parsed.Header,
		Records:            parsed.Records,
		MarkerCount:        parsed.MarkerCount,
		BlockCount:         parsed.BlockCount,
		SampleCount:        parsed.SampleCount,
		LeftoverBytesCount: parsed.LeftoverBytesCount,
		DecodeWarnings:     parsed.Warnings,
		SourceSHA256:       hex.EncodeToString(sum[:]),
		SourceSizeBytes:    int64(len(data)),
	}, nil
}

// BuildManifest returns the manifest ExportFile would write for this bundle.
func BuildManifest(sourceName string, bundle *ParsedBundle) Manifest {
	return buildManifest(sourceName, bundle.SourceSHA256, bundle.SourceSizeBytes, &parseOutput{
		File:               bundle.File,
		Header:             bundle.Header,
		Records:            bundle.Records,
		MarkerCount:        bundle.MarkerCount,
		BlockCount:         bundle.BlockCount,
		SampleCount:        bundle.SampleCount,
		LeftoverBytesCount: bundle.LeftoverBytesCount,
		Warnings:           bundle.DecodeWarnings,
	})
}

// MarshalJSON renders indented JSON with deterministic key order.
func MarshalJSON(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	out = append(out, '\n')
	return out, nil
}

// MarshalJSONL renders record envelopes as JSONL bytes.
func MarshalJSONL(records []RecordEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriterSize(&buf, 1<<20)
	if err := encodeJSONL(w, records); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildWarningsFromBundle returns deterministic parse-quality warning notes.
func BuildWarningsFromBundle(bundle *ParsedBundle) []string {
	if bundle == nil {
		return nil
	}
	return buildWarnings(bundle.DecodeWarnings, bundle.LeftoverBytesCount, bundle.Records)
}

func buildWarnings(decode []string, leftover int64, records []RecordEnvelope) []string {
	warnings := make([]string, 0, len(decode)+1)
	warnings = append(warnings, decode...)
	if leftover > 0 {
		warnings = append(warnings, fmt.Sprintf("leftover trailing bytes detected: %d", leftover))
	}
	for _, rec := range records {
		// marker 0 is the lead-in; firmware routinely writes it with zero indices
		if rec.RecordKind == kindMarker && rec.KindIndex == 0 {
			continue
		}
		for _, w := range rec.Warnings {
			if s := strings.TrimSpace(w); s != "" {
				warnings = append(warnings, s)
			}
		}
	}
	return dedupeStrings(warnings)
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
