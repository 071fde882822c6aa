package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasjlepore/srm-analyzer/internal/srmtest"
)

func TestRunWritesCSVArtifacts(t *testing.T) {
	tmp := t.TempDir()
	srmPath := writeSRM(t, tmp, threeByFour())
	outDir := filepath.Join(tmp, "out")

	res, err := Run(Options{
		SRMPath:     srmPath,
		OutDir:      outDir,
		FTPOverride: 250,
		Format:      "csv",
		CopySource:  true,
		ExportFIT:   true,
		ExportBlob:  true,
		DBPath:      filepath.Join(tmp, "rides.db"),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	f, err := os.Open(res.CanonicalSamplesPath)
	if err != nil {
		t.Fatalf("open canonical samples: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read canonical csv: %v", err)
	}
	if len(rows) != 1681 {
		t.Fatalf("expected 1680 samples, got %d rows", len(rows)-1)
	}
	for i, col := range canonicalHeader {
		if rows[0][i] != col {
			t.Fatalf("unexpected header column %d: got %q want %q", i, rows[0][i], col)
		}
	}
	if rows[1][0] != "2024-05-01T06:15:00Z" || rows[1][2] != "150.000000" {
		t.Fatalf("unexpected first row: %q", rows[1])
	}

	var intervals IntervalsFile
	readJSON(t, res.IntervalsPath, &intervals)
	if len(intervals.Intervals) != 7 {
		t.Fatalf("expected 7 intervals, got %d", len(intervals.Intervals))
	}
	vo2 := intervals.Intervals[1]
	if vo2.Name != "1" || vo2.MarkerComment != "vo2 1" || vo2.Label != "work" {
		t.Fatalf("unexpected first marker row: %+v", vo2)
	}
	if vo2.StartSampleIndex != 300 || vo2.EndSampleIndex != 539 || vo2.DurationS != 240 {
		t.Fatalf("unexpected first marker bounds: %+v", vo2)
	}

	var structure WorkoutStructureFile
	readJSON(t, res.WorkoutStructurePath, &structure)
	if structure.FTPWUsed == nil || structure.FTPWUsed.Source != "user_override" || structure.FTPWUsed.FTPW != 250 {
		t.Fatalf("expected the override to win, got %+v", structure.FTPWUsed)
	}
	if len(structure.FTPSources) != 2 {
		t.Fatalf("expected override and estimate candidates, got %+v", structure.FTPSources)
	}
	if structure.Structure.MainSet == nil || structure.Structure.MainSet.Reps != 3 {
		t.Fatalf("expected a 3-rep main set, got %+v", structure.Structure.MainSet)
	}

	sampleCount := len(rows) - 1
	markers := 0
	for _, step := range structure.Steps {
		if step.StartSampleIndex < 0 || step.EndSampleIndex < step.StartSampleIndex || step.EndSampleIndex >= sampleCount {
			t.Fatalf("invalid sample indices for step %d: %d..%d", step.StepIndex, step.StartSampleIndex, step.EndSampleIndex)
		}
		start, err := time.Parse(time.RFC3339, step.StartTSUTC)
		if err != nil {
			t.Fatalf("parse step start time: %v", err)
		}
		end, err := time.Parse(time.RFC3339, step.EndTSUTC)
		if err != nil {
			t.Fatalf("parse step end time: %v", err)
		}
		if got := end.Sub(start).Seconds(); got != *step.DurationS {
			t.Fatalf("step %d spans %.1fs but lasts %.1fs", step.StepIndex, got, *step.DurationS)
		}
		if step.Source == "marker" {
			markers++
			if step.TimeInTargetPct == nil || *step.TimeInTargetPct != 100 {
				t.Fatalf("steady marker step should sit inside its target: %+v", step)
			}
		}
	}
	if markers != 3 {
		t.Fatalf("expected 3 marker steps, got %d", markers)
	}

	var summary ActivitySummaryFile
	readJSON(t, res.ActivitySummaryPath, &summary)
	if summary.NPW <= summary.AvgPowerW {
		t.Fatalf("expected np_w above avg_power_w, got %v <= %v", summary.NPW, summary.AvgPowerW)
	}
	if summary.FTPWUsed == nil || *summary.FTPWUsed != 250 || summary.IF == nil || summary.TSSLike == nil {
		t.Fatalf("expected load metrics, got %+v", summary)
	}
	if len(summary.Warnings) != 0 {
		t.Fatalf("unexpected summary warnings: %q", summary.Warnings)
	}

	notes, err := os.ReadFile(res.TrainingSummaryPath)
	if err != nil {
		t.Fatalf("read training summary: %v", err)
	}
	if !strings.Contains(string(notes), "| 2 | 1 vo2 1 | work |") {
		t.Fatalf("training summary should list markers:\n%s", notes)
	}

	for _, path := range []string{res.SourceCopyPath, res.FITPath, res.BlobPath, res.ManifestPath, res.RecordsPath} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Fatalf("expected non-empty artifact %q: %v", path, err)
		}
	}
	if res.RideID <= 0 {
		t.Fatalf("expected the ride to be stored, got id %d", res.RideID)
	}
}

func TestRunWritesParquet(t *testing.T) {
	tmp := t.TempDir()
	res, err := Run(Options{
		SRMPath: writeSRM(t, tmp, srmtest.Steady(90)),
		OutDir:  filepath.Join(tmp, "out"),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if filepath.Ext(res.CanonicalSamplesPath) != ".parquet" {
		t.Fatalf("parquet should be the default format: %s", res.CanonicalSamplesPath)
	}
	data, err := os.ReadFile(res.CanonicalSamplesPath)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("canonical samples are not a parquet file")
	}
	if res.FITPath != "" || res.BlobPath != "" || res.RideID != 0 {
		t.Fatalf("optional artifacts were not requested: %+v", res)
	}

	var summary ActivitySummaryFile
	readJSON(t, res.ActivitySummaryPath, &summary)
	if summary.FTPWUsed != nil || len(summary.Warnings) != 1 {
		t.Fatalf("short ride should have no ftp, got %+v", summary)
	}
}

func TestRunAcceptsAnyExtension(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "ride.dat")
	if err := os.WriteFile(path, threeByFour().Bytes(), 0o644); err != nil {
		t.Fatalf("write srm: %v", err)
	}

	res, err := Run(Options{SRMPath: path, OutDir: filepath.Join(tmp, "out"), Format: "csv"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	var intervals IntervalsFile
	readJSON(t, res.IntervalsPath, &intervals)
	if len(intervals.Intervals) != 7 || intervals.Intervals[1].MarkerComment != "vo2 1" {
		t.Fatalf("unexpected intervals: %+v", intervals.Intervals)
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	tmp := t.TempDir()
	if _, err := Run(Options{OutDir: tmp}); err == nil {
		t.Fatalf("expected error without srm path")
	}
	if _, err := Run(Options{SRMPath: "ride.srm", OutDir: tmp, Format: "xlsx"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestRunBytesProducesArtifacts(t *testing.T) {
	res, err := RunBytes(BytesOptions{
		SourceFileName: "threebyfour.srm",
		SRMData:        threeByFour().Bytes(),
		Format:         "csv",
		CopySource:     true,
		ExportFIT:      true,
		ExportBlob:     true,
	})
	if err != nil {
		t.Fatalf("RunBytes() error: %v", err)
	}

	required := []string{
		"manifest.json",
		"records.jsonl",
		"canonical_samples.csv",
		"intervals.json",
		"workout_structure.json",
		"activity_summary.json",
		"training_summary.md",
		"source.srm",
		"ride.fit",
		"samples.mebo",
	}
	for _, name := range required {
		if len(res.Files[name]) == 0 {
			t.Fatalf("missing artifact %s", name)
		}
	}

	var structure WorkoutStructureFile
	if err := json.Unmarshal(res.Files["workout_structure.json"], &structure); err != nil {
		t.Fatalf("unmarshal workout structure: %v", err)
	}
	if structure.FTPWUsed == nil || structure.FTPWUsed.Source != "best_20min_estimate" {
		t.Fatalf("expected an estimated ftp, got %+v", structure.FTPWUsed)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "ftp_w_used estimated from best 20-minute power" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected estimated ftp warning, got %q", res.Warnings)
	}
}

func TestBuildCanonicalSamplesVersion6(t *testing.T) {
	f := srmtest.Steady(2)
	f.Version = 6
	f.Samples = [][]byte{srmtest.V6(260, 220, 85, 0), srmtest.V6(260, 220, 85, 150)}

	res, err := RunBytes(BytesOptions{SRMData: f.Bytes(), Format: "csv"})
	if err != nil {
		t.Fatalf("RunBytes() error: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(res.Files["canonical_samples.csv"])).ReadAll()
	if err != nil {
		t.Fatalf("read canonical csv: %v", err)
	}
	first, second := rows[1], rows[2]
	// hr_bpm, altitude_m and temperature_c stay empty when not recorded
	if first[3] != "" || first[8] != "" || first[9] != "" {
		t.Fatalf("unexpected optional columns: %q", first)
	}
	if first[12] != "false" || second[12] != "true" || second[3] != "150.000000" {
		t.Fatalf("unexpected heart rate validity: %q / %q", first, second)
	}
}

// threeByFour is 5 min at 150 W, 3 x (4 min at 280 W marked, 2 min at
// 120 W), then 5 min at 130 W.
func threeByFour() srmtest.File {
	f := srmtest.Steady(0)
	add := func(n int, watts uint16) {
		for i := 0; i < n; i++ {
			f.Samples = append(f.Samples, srmtest.V7(watts, 90, 140, 10000, 120, 200))
		}
	}
	add(300, 150)
	for k := 0; k < 3; k++ {
		start := uint16(301 + 360*k)
		f.Markers = append(f.Markers, srmtest.Marker{
			Comment: "vo2 " + string(rune('1'+k)),
			Active:  true,
			Start:   start,
			End:     start + 239,
		})
		add(240, 280)
		add(120, 120)
	}
	add(300, 130)
	f.Blocks = []srmtest.Block{{HSecs: srmtest.HSecs(6, 15, 0), Chunks: uint16(len(f.Samples))}}
	return f
}

func writeSRM(t *testing.T, dir string, f srmtest.File) string {
	t.Helper()
	path := filepath.Join(dir, "ride.srm")
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		t.Fatalf("write srm: %v", err)
	}
	return path
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}
