package llmexport

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportFile parses an SRM file and writes an LLM-friendly, lossless export bundle.
// Output files:
//   - manifest.json
//   - records.jsonl
//   - source.srm (optional)
func ExportFile(inputPath, outputDir string, opts ExportOptions) (*ExportResult, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read srm file: %w", err)
	}
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])

	parsed, err := parseSRMBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse srm file: %w", err)
	}

	if err := ensureOutputDir(outputDir, opts.Overwrite); err != nil {
		return nil, err
	}

	recordsPath := filepath.Join(outputDir, "records.jsonl")
	if err := writeJSONL(recordsPath, parsed.Records); err != nil {
		return nil, fmt.Errorf("write records.jsonl: %w", err)
	}

	manifest := buildManifest(inputPath, sha, int64(len(data)), parsed)
	manifestPath := filepath.Join(outputDir, "manifest.json")
	if err := writeJSON(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write manifest.json: %w", err)
	}

	sourceCopyPath := ""
	if opts.CopySourceFile {
		sourceCopyPath = filepath.Join(outputDir, "source.srm")
		if err := copyFile(inputPath, sourceCopyPath); err != nil {
			return nil, fmt.Errorf("copy source srm file: %w", err)
		}
	}

	return &ExportResult{
		OutputDir:       outputDir,
		ManifestPath:    manifestPath,
		RecordsPath:     recordsPath,
		SourceCopyPath:  sourceCopyPath,
		RecordCount:     len(parsed.Records),
		MarkerCount:     parsed.MarkerCount,
		BlockCount:      parsed.BlockCount,
		SampleCount:     parsed.SampleCount,
		SourceSHA256:    sha,
		SourceSizeBytes: int64(len(data)),
		LeftoverBytes:   parsed.LeftoverBytesCount,
		Warnings:        manifest.Warnings,
		File:            parsed.File,
	}, nil
}

func buildManifest(sourcePath, sha string, size int64, parsed *parseOutput) Manifest {
	f := parsed.File
	duration := 0.0
	if n := len(f.Samples); n > 0 {
		duration = f.Samples[n-1].Secs + f.Header.RecIntSecs()
	}
	return Manifest{
		FormatVersion:   ExportFormatVersion,
		GeneratedAt:     time.Now().UTC(),
		SourceFile:      sourcePath,
		SourceFileName:  filepath.Base(sourcePath),
		SourceSHA256:    sha,
		SourceSizeBytes: size,
		Header:          parsed.Header,
		StartTime:       f.StartTime().Format(time.RFC3339),
		DurationSeconds: duration,
		RecordsPath:     "records.jsonl",
		RecordCount:     len(parsed.Records),
		MarkerCount:     parsed.MarkerCount,
		BlockCount:      parsed.BlockCount,
		SampleCount:     parsed.SampleCount,
		LeftoverBytes:   parsed.LeftoverBytesCount,
		Intervals:       f.Intervals,
		Warnings:        buildWarnings(parsed.Warnings, parsed.LeftoverBytesCount, parsed.Records),
		SchemaDescription: SchemaDetails{
			RecordType: "JSONL line-per-SRM-record preserving file order and byte offsets",
			Notes: []string{
				"Lossless: every structural record is exported with raw hex; concatenating raw_record_hex in order rebuilds the file up to leftover_bytes.",
				"All multi-byte integers are big-endian.",
				"Marker start/end are shown after repair; the raw field values keep what the head unit wrote.",
				"Sample secs/km/torque/interval are derived values from the full decode, not stored bytes.",
				"Use record_index and file_offset for deterministic chunking in LLM pipelines.",
			},
			Layouts: layoutDocs(),
		},
	}
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(path string, records []RecordEnvelope) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 1<<20)
	if err := encodeJSONL(buf, records); err != nil {
		return err
	}
	return buf.Flush()
}

func encodeJSONL(w io.Writer, records []RecordEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
