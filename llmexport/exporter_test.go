package llmexport

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasjlepore/srm-analyzer/internal/srmtest"
)

func TestParseSRMBytesParsesRecords(t *testing.T) {
	data := buildTestSRM(t)

	out, err := parseSRMBytes(data)
	if err != nil {
		t.Fatalf("parseSRMBytes error: %v", err)
	}

	if out.Header.Version != 7 {
		t.Fatalf("unexpected header version: %d", out.Header.Version)
	}
	if out.Header.Comment != "club ride" {
		t.Fatalf("unexpected comment: %q", out.Header.Comment)
	}
	// header + lead-in + 1 marker + 1 block + trailer + 60 samples
	if len(out.Records) != 65 {
		t.Fatalf("expected 65 records, got %d", len(out.Records))
	}
	if got := countRecordKind(out.Records, kindSample); got != 60 {
		t.Fatalf("expected 60 sample records, got %d", got)
	}
	if got := countRecordKind(out.Records, kindMarker); got != 2 {
		t.Fatalf("expected 2 marker records, got %d", got)
	}
	if out.LeftoverBytesCount != 3 {
		t.Fatalf("expected 3 leftover bytes, got %d", out.LeftoverBytesCount)
	}
}

func TestParseSRMBytesIsLossless(t *testing.T) {
	data := buildTestSRM(t)

	out, err := parseSRMBytes(data)
	if err != nil {
		t.Fatalf("parseSRMBytes error: %v", err)
	}

	var b strings.Builder
	var offset int64
	for i, rec := range out.Records {
		if rec.RecordIndex != i {
			t.Fatalf("record %d has index %d", i, rec.RecordIndex)
		}
		if rec.FileOffset != offset {
			t.Fatalf("record %d at offset %d, want %d", i, rec.FileOffset, offset)
		}
		offset += int64(rec.Size)
		b.WriteString(rec.RawRecordHex)
	}
	want := hex.EncodeToString(data[:len(data)-3])
	if b.String() != want {
		t.Fatal("concatenated raw hex does not rebuild the source bytes")
	}
}

func TestParseSRMBytesDecodesFields(t *testing.T) {
	out, err := parseSRMBytes(buildTestSRM(t))
	if err != nil {
		t.Fatalf("parseSRMBytes error: %v", err)
	}

	var sample *RecordEnvelope
	for i := range out.Records {
		if out.Records[i].RecordKind == kindSample {
			sample = &out.Records[i]
			break
		}
	}
	if sample == nil || sample.Sample == nil {
		t.Fatal("expected a decoded sample record")
	}
	if sample.Size != 14 {
		t.Fatalf("unexpected v7 sample size: %d", sample.Size)
	}
	fields := map[string]FieldValue{}
	for _, fv := range sample.Fields {
		fields[fv.Name] = fv
	}
	if got := fields["power"].Decoded; got != uint16(250) {
		t.Fatalf("unexpected power field: %#v", got)
	}
	if got := fields["altitude"].Decoded; got != int32(-5) {
		t.Fatalf("unexpected altitude field: %#v", got)
	}
	if got := fields["temperature"].Scaled.(float64); got < 18.49 || got > 18.51 {
		t.Fatalf("unexpected scaled temperature: %v", got)
	}
	if sample.Sample.Watts != 250 {
		t.Fatalf("unexpected decoded watts: %d", sample.Sample.Watts)
	}
}

func TestParseSRMBytesReportsRepairedMarker(t *testing.T) {
	bundle, err := ParseBytes(buildTestSRM(t))
	if err != nil {
		t.Fatalf("ParseBytes error: %v", err)
	}

	warnings := BuildWarningsFromBundle(bundle)
	joined := strings.Join(warnings, "\n")
	if !strings.Contains(joined, "marker 1 indices repaired from 30-11 to 11-30") {
		t.Fatalf("expected marker repair warning, got %q", warnings)
	}
	if !strings.Contains(joined, "leftover trailing bytes detected: 3") {
		t.Fatalf("expected leftover warning, got %q", warnings)
	}
	if strings.Contains(joined, "marker 0") {
		t.Fatalf("lead-in marker should not produce warnings: %q", warnings)
	}
}

func TestParseBytesRejectsBadInput(t *testing.T) {
	if _, err := ParseBytes([]byte("not an srm file")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestExportFileWritesBundle(t *testing.T) {
	data := buildTestSRM(t)

	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "sample.srm")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		t.Fatalf("write sample srm: %v", err)
	}

	outDir := filepath.Join(tmp, "export")
	result, err := ExportFile(inputPath, outDir, ExportOptions{
		Overwrite:      true,
		CopySourceFile: true,
	})
	if err != nil {
		t.Fatalf("ExportFile error: %v", err)
	}

	if result.RecordCount == 0 {
		t.Fatal("expected exported records")
	}
	if result.SampleCount != 60 || result.BlockCount != 1 || result.MarkerCount != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.File == nil || len(result.File.Samples) != 60 {
		t.Fatalf("expected the decoded file on the result, got %+v", result.File)
	}
	if _, err := os.Stat(result.ManifestPath); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	if _, err := os.Stat(result.RecordsPath); err != nil {
		t.Fatalf("records missing: %v", err)
	}
	copied, err := os.ReadFile(result.SourceCopyPath)
	if err != nil {
		t.Fatalf("source copy missing: %v", err)
	}
	if string(copied) != string(data) {
		t.Fatal("source copy differs from input")
	}

	manifestData, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if manifest.FormatVersion != ExportFormatVersion {
		t.Fatalf("unexpected format version: %q", manifest.FormatVersion)
	}
	if manifest.RecordCount != result.RecordCount {
		t.Fatalf("manifest record count mismatch: %d != %d", manifest.RecordCount, result.RecordCount)
	}
	if manifest.StartTime != "2024-05-01T09:00:00Z" {
		t.Fatalf("unexpected start time: %q", manifest.StartTime)
	}
	if manifest.DurationSeconds != 60 {
		t.Fatalf("unexpected duration: %v", manifest.DurationSeconds)
	}
	if len(manifest.Intervals) != 3 || manifest.Intervals[1].Name != "1" {
		t.Fatalf("unexpected intervals: %+v", manifest.Intervals)
	}
	if len(manifest.SchemaDescription.Layouts[kindSampleV7]) != 6 {
		t.Fatalf("expected v7 sample layout in manifest")
	}

	recordsData, err := os.ReadFile(result.RecordsPath)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(recordsData)), "\n")
	if len(lines) != result.RecordCount {
		t.Fatalf("records line count mismatch: %d != %d", len(lines), result.RecordCount)
	}
}

func TestExportFileRefusesNonEmptyDir(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "sample.srm")
	if err := os.WriteFile(inputPath, buildTestSRM(t), 0o644); err != nil {
		t.Fatalf("write sample srm: %v", err)
	}

	if _, err := ExportFile(inputPath, tmp, ExportOptions{}); err == nil {
		t.Fatal("expected error for non-empty output directory")
	}
}

func TestMarshalJSONLMatchesRecordCount(t *testing.T) {
	bundle, err := ParseBytes(buildTestSRM(t))
	if err != nil {
		t.Fatalf("ParseBytes error: %v", err)
	}
	out, err := MarshalJSONL(bundle.Records)
	if err != nil {
		t.Fatalf("MarshalJSONL error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != len(bundle.Records) {
		t.Fatalf("jsonl line count mismatch: %d != %d", len(lines), len(bundle.Records))
	}
}

func buildTestSRM(t *testing.T) []byte {
	t.Helper()

	f := srmtest.Steady(60)
	f.Comment = "club ride"
	f.Markers = []srmtest.Marker{{Comment: "climb", Active: true, Start: 30, End: 11}}
	f.Samples[0] = srmtest.V7(250, 95, 150, 9000, -5, 185)
	f.Trailing = []byte{0xde, 0xad, 0x00}
	return f.Bytes()
}
