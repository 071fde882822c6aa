package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	srmnotes "github.com/lucasjlepore/srm-analyzer"
	"github.com/lucasjlepore/srm-analyzer/blobexport"
	"github.com/lucasjlepore/srm-analyzer/fitexport"
	"github.com/lucasjlepore/srm-analyzer/llmexport"
	"github.com/lucasjlepore/srm-analyzer/ridefile"
	"github.com/lucasjlepore/srm-analyzer/srm"
	"github.com/lucasjlepore/srm-analyzer/store"
)

// Artifact file names.
const (
	manifestFile         = "manifest.json"
	recordsFile          = "records.jsonl"
	sourceFile           = "source.srm"
	intervalsFile        = "intervals.json"
	workoutStructureFile = "workout_structure.json"
	activitySummaryFile  = "activity_summary.json"
	trainingSummaryFile  = "training_summary.md"
	fitFile              = "ride.fit"
	blobFile             = "samples.mebo"
)

// Run executes the full srm_analyze pipeline and writes all artifacts.
func Run(opts Options) (*Result, error) {
	return RunContext(context.Background(), opts)
}

// RunContext is Run with a context for the optional store write.
func RunContext(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.SRMPath) == "" {
		return nil, fmt.Errorf("srm path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	baseExport, err := llmexport.ExportFile(opts.SRMPath, opts.OutDir, llmexport.ExportOptions{
		Overwrite:      opts.Overwrite,
		CopySourceFile: opts.CopySource,
	})
	if err != nil {
		return nil, err
	}

	records, err := loadRecords(baseExport.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("load records.jsonl: %w", err)
	}
	samples, err := buildCanonicalSamples(records)
	if err != nil {
		return nil, fmt.Errorf("build canonical samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sample records found")
	}

	canonicalPath := filepath.Join(opts.OutDir, "canonical_samples."+format)
	switch format {
	case "csv":
		err = writeCanonicalCSVFile(canonicalPath, samples)
	case "parquet":
		err = writeCanonicalParquet(canonicalPath, samples)
	}
	if err != nil {
		return nil, fmt.Errorf("write canonical %s: %w", format, err)
	}

	ride := rideFromFile(baseExport.File)
	analysis, err := analyzeRide(ride, baseExport.File.Warnings, opts.FTPOverride)
	if err != nil {
		return nil, err
	}
	analysis.FilePath = opts.SRMPath

	arts, err := buildArtifacts(filepath.Base(opts.SRMPath), ride, analysis, samples, artifactOptions{
		ftpOverride: opts.FTPOverride,
		exportFIT:   opts.ExportFIT,
		exportBlob:  opts.ExportBlob,
	})
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(arts.files))
	for name, data := range arts.files {
		path := filepath.Join(opts.OutDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		paths[name] = path
	}

	result := &Result{
		OutputDir:            opts.OutDir,
		ManifestPath:         baseExport.ManifestPath,
		RecordsPath:          baseExport.RecordsPath,
		SourceCopyPath:       baseExport.SourceCopyPath,
		CanonicalSamplesPath: canonicalPath,
		IntervalsPath:        paths[intervalsFile],
		WorkoutStructurePath: paths[workoutStructureFile],
		ActivitySummaryPath:  paths[activitySummaryFile],
		TrainingSummaryPath:  paths[trainingSummaryFile],
		FITPath:              paths[fitFile],
		BlobPath:             paths[blobFile],
	}

	if strings.TrimSpace(opts.DBPath) != "" {
		id, err := saveToStore(ctx, opts.DBPath, filepath.Base(opts.SRMPath), ride)
		if err != nil {
			return nil, err
		}
		result.RideID = id
	}

	result.Warnings = dedupeStrings(append(baseExport.Warnings, arts.warnings...))
	return result, nil
}

// RunBytes executes the pipeline in memory and returns every artifact.
func RunBytes(opts BytesOptions) (*BytesResult, error) {
	if len(opts.SRMData) == 0 {
		return nil, fmt.Errorf("srm data is required")
	}
	name := strings.TrimSpace(opts.SourceFileName)
	if name == "" {
		name = "input.srm"
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	bundle, err := llmexport.ParseBytes(opts.SRMData)
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, 12)
	manifest := llmexport.BuildManifest(name, bundle)
	if files[manifestFile], err = llmexport.MarshalJSON(manifest); err != nil {
		return nil, fmt.Errorf("marshal manifest.json: %w", err)
	}
	if files[recordsFile], err = llmexport.MarshalJSONL(bundle.Records); err != nil {
		return nil, fmt.Errorf("marshal records.jsonl: %w", err)
	}
	if opts.CopySource {
		files[sourceFile] = append([]byte(nil), opts.SRMData...)
	}

	samples, err := buildCanonicalSamples(bundle.Records)
	if err != nil {
		return nil, fmt.Errorf("build canonical samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sample records found")
	}
	canonicalName := "canonical_samples." + format
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := writeCanonicalCSV(&buf, samples); err != nil {
			return nil, fmt.Errorf("write canonical csv: %w", err)
		}
		files[canonicalName] = buf.Bytes()
	case "parquet":
		if files[canonicalName], err = marshalCanonicalParquet(samples); err != nil {
			return nil, fmt.Errorf("write canonical parquet: %w", err)
		}
	}

	ride := rideFromFile(bundle.File)
	analysis, err := analyzeRide(ride, bundle.File.Warnings, opts.FTPOverride)
	if err != nil {
		return nil, err
	}
	analysis.FilePath = name

	arts, err := buildArtifacts(name, ride, analysis, samples, artifactOptions{
		ftpOverride: opts.FTPOverride,
		exportFIT:   opts.ExportFIT,
		exportBlob:  opts.ExportBlob,
	})
	if err != nil {
		return nil, err
	}
	for k, v := range arts.files {
		files[k] = v
	}

	return &BytesResult{
		Files:    files,
		Warnings: dedupeStrings(append(manifest.Warnings, arts.warnings...)),
	}, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return format, nil
}

// rideFromFile replays an already parsed file so the source is decoded once.
func rideFromFile(f *srm.File) *ridefile.Ride {
	ride := ridefile.New()
	f.Emit(ride)
	return ride
}

func analyzeRide(ride *ridefile.Ride, decodeWarnings []string, ftp float64) (*srmnotes.Analysis, error) {
	analysis, err := srmnotes.AnalyzeRide(ride, srmnotes.Config{FTPWatts: ftp})
	if err != nil {
		return nil, fmt.Errorf("analyze ride: %w", err)
	}
	analysis.Warnings = append(append([]string(nil), decodeWarnings...), analysis.Warnings...)
	return analysis, nil
}

func saveToStore(ctx context.Context, dbPath, name string, ride *ridefile.Ride) (int64, error) {
	st, err := store.Open(ctx, dbPath, log.Printf)
	if err != nil {
		return 0, fmt.Errorf("open ride store: %w", err)
	}
	defer st.Close()

	id, err := st.SaveRide(ctx, name, ride)
	if err != nil {
		return 0, fmt.Errorf("save ride %s: %w", name, err)
	}
	return id, nil
}

type artifactOptions struct {
	ftpOverride float64
	exportFIT   bool
	exportBlob  bool
}

type artifacts struct {
	files    map[string][]byte
	warnings []string
}

// buildArtifacts renders the derived artifacts shared by Run and RunBytes.
func buildArtifacts(sourceName string, ride *ridefile.Ride, analysis *srmnotes.Analysis, samples []CanonicalSample, opts artifactOptions) (*artifacts, error) {
	out := &artifacts{files: make(map[string][]byte, 6)}
	out.warnings = append(out.warnings, analysis.Warnings...)

	intervals := buildIntervalsFile(ride, analysis, samples)
	if err := out.addJSON(intervalsFile, intervals); err != nil {
		return nil, err
	}

	ftpCandidates := collectFTPCandidates(analysis, opts.ftpOverride)
	ftpUsed := chooseFTPCandidate(ftpCandidates)
	ftp := 0.0
	if ftpUsed != nil {
		ftp = ftpUsed.FTPW
	}
	steps := buildWorkoutSteps(intervals, ftp)
	window := npWindow(ride.RecIntSecs)
	for i := range steps {
		enrichStepCompliance(&steps[i], samples, window)
	}
	if err := out.addJSON(workoutStructureFile, WorkoutStructureFile{
		FTPSources: ftpCandidates,
		FTPWUsed:   ftpUsed,
		Structure:  analysis.WorkoutStructure,
		Steps:      steps,
	}); err != nil {
		return nil, err
	}

	summary := buildActivitySummary(analysis, ftpUsed)
	out.warnings = append(out.warnings, summary.Warnings...)
	if err := out.addJSON(activitySummaryFile, summary); err != nil {
		return nil, err
	}
	out.files[trainingSummaryFile] = renderTrainingSummary(sourceName, analysis, intervals)

	if opts.exportFIT {
		var buf bytes.Buffer
		if err := fitexport.Encode(&buf, ride); err != nil {
			out.warnings = append(out.warnings, fmt.Sprintf("%s skipped: %v", fitFile, err))
		} else {
			out.files[fitFile] = buf.Bytes()
		}
	}
	if opts.exportBlob {
		blob, err := blobexport.Encode(ride)
		if err != nil {
			out.warnings = append(out.warnings, fmt.Sprintf("%s skipped: %v", blobFile, err))
		} else {
			out.files[blobFile] = blob
		}
	}
	return out, nil
}

func (a *artifacts) addJSON(name string, v any) error {
	data, err := llmexport.MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	a.files[name] = data
	return nil
}

func loadRecords(path string) ([]llmexport.RecordEnvelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 16*1024*1024)

	records := make([]llmexport.RecordEnvelope, 0, 4096)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec llmexport.RecordEnvelope
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal jsonl line: %w", err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// buildCanonicalSamples flattens sample records. Timestamps are anchored at
// the first block; altitude and temperature exist only in version 7 files.
func buildCanonicalSamples(records []llmexport.RecordEnvelope) ([]CanonicalSample, error) {
	out := make([]CanonicalSample, 0, len(records))
	var (
		start     time.Time
		haveStart bool
		version   int
	)
	for _, rec := range records {
		switch srm.SpanKind(rec.RecordKind) {
		case srm.SpanHeader:
			if rec.Header != nil {
				version = rec.Header.Version
			}
		case srm.SpanBlock:
			if rec.Block != nil && !haveStart {
				start = rec.Block.Timestamp
				haveStart = true
			}
		case srm.SpanSample:
			s := rec.Sample
			if s == nil {
				continue
			}
			if !haveStart {
				return nil, fmt.Errorf("sample record %d precedes the block table", rec.RecordIndex)
			}
			ts := start.Add(time.Duration(math.Round(s.Secs*1000)) * time.Millisecond).UTC()
			cs := CanonicalSample{
				TSUTCISO:      ts.Format(time.RFC3339Nano),
				Timestamp:     ts,
				ElapsedS:      s.Secs,
				PowerW:        floatPtr(float64(s.Watts)),
				CadenceRPM:    floatPtr(float64(s.Cadence)),
				SpeedKPH:      floatPtr(s.Kph),
				DistanceM:     floatPtr(s.Km * 1000),
				TorqueNM:      floatPtr(s.Torque),
				IntervalIndex: s.Interval,
				ValidPower:    true,
				ValidHR:       s.HeartRate > 0,
				ValidCadence:  true,
				FileOffset:    rec.FileOffset,
				RecordIndex:   rec.RecordIndex,
			}
			if cs.ValidHR {
				cs.HRBPM = floatPtr(float64(s.HeartRate))
			}
			if version == 7 {
				cs.AltitudeM = floatPtr(s.Altitude)
				cs.TemperatureC = floatPtr(s.Temperature)
			}
			out = append(out, cs)
		}
	}
	return out, nil
}

func buildIntervalsFile(ride *ridefile.Ride, analysis *srmnotes.Analysis, samples []CanonicalSample) IntervalsFile {
	rows := make([]IntervalRow, 0, len(analysis.Segments))
	for _, seg := range analysis.Segments {
		row := IntervalRow{
			Index:            seg.Index,
			Name:             seg.Name,
			Label:            seg.Label,
			StartS:           seg.StartOffsetSeconds,
			StopS:            seg.EndOffsetSeconds,
			DurationS:        seg.DurationSeconds,
			StartTS:          offsetTS(ride.StartTime, seg.StartOffsetSeconds),
			EndTS:            offsetTS(ride.StartTime, seg.EndOffsetSeconds),
			DistanceM:        seg.DistanceMeters,
			AvgPowerW:        seg.AvgPowerWatts,
			MaxPowerW:        seg.MaxPowerWatts,
			AvgHRBPM:         seg.AvgHeartRate,
			AvgCadenceRPM:    seg.AvgCadence,
			StartSampleIndex: sampleIndexAtOrAfter(samples, seg.StartOffsetSeconds),
			EndSampleIndex:   sampleIndexBefore(samples, seg.EndOffsetSeconds),
		}
		if seg.Name != "" {
			row.MarkerComment = ride.Tag("marker_" + seg.Name)
		}
		rows = append(rows, row)
	}
	return IntervalsFile{Intervals: rows}
}

func collectFTPCandidates(analysis *srmnotes.Analysis, ftpOverride float64) []FTPCandidate {
	out := make([]FTPCandidate, 0, 2)
	if ftpOverride > 0 {
		out = append(out, FTPCandidate{
			FTPW:       ftpOverride,
			Source:     "user_override",
			Confidence: 1,
			Reason:     "supplied by the user",
		})
	}
	if analysis.RecordedSeconds >= 20*60 && analysis.Best20MinPower > 0 {
		out = append(out, FTPCandidate{
			FTPW:       analysis.Best20MinPower * 0.95,
			Source:     "best_20min_estimate",
			Confidence: 0.5,
			Reason:     "95% of best 20-minute power in this ride",
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ftpPriority(out[i].Source) < ftpPriority(out[j].Source)
	})
	return out
}

func ftpPriority(source string) int {
	switch source {
	case "user_override":
		return 0
	case "best_20min_estimate":
		return 1
	default:
		return 2
	}
}

func chooseFTPCandidate(candidates []FTPCandidate) *FTPCandidate {
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0]
	return &c
}

func buildWorkoutSteps(intervals IntervalsFile, ftp float64) []WorkoutStep {
	steps := make([]WorkoutStep, 0, len(intervals.Intervals))
	for i, row := range intervals.Intervals {
		step := WorkoutStep{
			StepIndex:        i + 1,
			StepName:         row.Label,
			Marker:           row.Name,
			DurationS:        floatPtr(row.DurationS),
			TargetType:       "power_w",
			TargetLowW:       floatPtr(roundToNearest(row.AvgPowerW*0.95, 5)),
			TargetHighW:      floatPtr(roundToNearest(row.AvgPowerW*1.05, 5)),
			StartTSUTC:       row.StartTS,
			EndTSUTC:         row.EndTS,
			StartSampleIndex: row.StartSampleIndex,
			EndSampleIndex:   row.EndSampleIndex,
			Source:           "gap",
		}
		if row.Name != "" {
			step.Source = "marker"
		}
		if ftp > 0 && (row.Label == "work" || row.Label == "recovery") {
			step.TargetType = "percent_ftp"
		}
		applyFTPConversions(&step, ftp)
		steps = append(steps, step)
	}
	return steps
}

func applyFTPConversions(step *WorkoutStep, ftp float64) {
	if ftp <= 0 {
		return
	}
	if step.TargetLowW != nil && step.TargetLowPctFTP == nil {
		step.TargetLowPctFTP = floatPtr(roundToNearest(*step.TargetLowW/ftp*100.0, 1))
	}
	if step.TargetHighW != nil && step.TargetHighPctFTP == nil {
		step.TargetHighPctFTP = floatPtr(roundToNearest(*step.TargetHighW/ftp*100.0, 1))
	}
}

func enrichStepCompliance(step *WorkoutStep, samples []CanonicalSample, window int) {
	if len(samples) == 0 || step.StartSampleIndex < 0 || step.EndSampleIndex < step.StartSampleIndex || step.EndSampleIndex >= len(samples) {
		return
	}
	segment := samples[step.StartSampleIndex : step.EndSampleIndex+1]

	lowW, highW := -1.0, -1.0
	if step.TargetLowW != nil {
		lowW = *step.TargetLowW
	}
	if step.TargetHighW != nil {
		highW = *step.TargetHighW
	}

	powers := make([]float64, 0, len(segment))
	inTarget := 0
	for _, s := range segment {
		if s.PowerW == nil || !s.ValidPower {
			continue
		}
		p := *s.PowerW
		powers = append(powers, p)
		if lowW > 0 && highW > 0 && p >= lowW && p <= highW {
			inTarget++
		}
	}
	if len(powers) == 0 {
		return
	}

	avg := avgFloat(powers)
	step.ObservedAvgPowerW = floatPtr(avg)
	step.ObservedNPW = floatPtr(normalizedPowerFromFloats(powers, window))
	step.PowerStdDev = floatPtr(stddevFloat(powers, avg))
	if lowW > 0 && highW > 0 {
		step.TimeInTargetPct = floatPtr(float64(inTarget) / float64(len(powers)) * 100.0)
	}
}

func buildActivitySummary(a *srmnotes.Analysis, ftpUsed *FTPCandidate) ActivitySummaryFile {
	summary := ActivitySummaryFile{
		DurationS:      a.ElapsedSeconds,
		RecordedS:      a.RecordedSeconds,
		DistanceKM:     a.DistanceMeters / 1000.0,
		ElevationGainM: a.ElevationGainM,
		AvgPowerW:      a.AvgPowerWatts,
		NPW:            a.NormalizedPower,
		MaxPowerW:      a.MaxPowerWatts,
		AvgHRBPM:       a.AvgHeartRate,
		MaxHRBPM:       a.MaxHeartRate,
		AvgCadenceRPM:  a.AvgCadence,
		MaxCadenceRPM:  a.MaxCadence,
		AvgTorqueNM:    a.AvgTorqueNm,
		TotalWorkKJ:    a.WorkKilojoules,
		Analysis:       a,
	}
	if ftpUsed == nil || ftpUsed.FTPW <= 0 {
		summary.Warnings = append(summary.Warnings, "ftp_w_used unavailable: IF and tss_like omitted")
		return summary
	}

	ftp := ftpUsed.FTPW
	summary.FTPWUsed = floatPtr(ftp)
	ifv := a.NormalizedPower / ftp
	summary.IF = floatPtr(ifv)
	summary.TSSLike = floatPtr((a.RecordedSeconds / 3600.0) * ifv * ifv * 100.0)
	if ftpUsed.Source == "best_20min_estimate" {
		summary.Warnings = append(summary.Warnings, "ftp_w_used estimated from best 20-minute power")
	}
	return summary
}

func renderTrainingSummary(sourceName string, a *srmnotes.Analysis, intervals IntervalsFile) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Training Summary: %s\n\n", sourceName)
	for _, line := range strings.Split(a.Notes, "\n") {
		b.WriteString(line)
		b.WriteString("  \n")
	}

	if len(intervals.Intervals) > 0 {
		b.WriteString("\n## Intervals\n\n")
		b.WriteString("| # | Marker | Label | Start | Duration | Avg W | Max W | Avg HR | Avg rpm |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
		for _, row := range intervals.Intervals {
			marker := row.Name
			if row.MarkerComment != "" {
				marker = fmt.Sprintf("%s %s", row.Name, row.MarkerComment)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %.0fs | %.0fs | %.0f | %.0f | %.0f | %.0f |\n",
				row.Index, marker, row.Label, row.StartS, row.DurationS,
				row.AvgPowerW, row.MaxPowerW, row.AvgHRBPM, row.AvgCadenceRPM)
		}
	}
	return []byte(b.String())
}

func npWindow(recInt float64) int {
	if recInt <= 0 {
		return 30
	}
	if n := int(math.Round(30 / recInt)); n > 1 {
		return n
	}
	return 1
}

func normalizedPowerFromFloats(power []float64, window int) float64 {
	if len(power) == 0 {
		return 0
	}
	if window < 1 || len(power) < window {
		return avgFloat(power)
	}
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += power[i]
	}
	totalFourth := 0.0
	count := 0
	for i := window - 1; i < len(power); i++ {
		if i >= window {
			sum += power[i] - power[i-window]
		}
		roll := sum / float64(window)
		totalFourth += math.Pow(roll, 4)
		count++
	}
	return math.Pow(totalFourth/float64(count), 0.25)
}

func avgFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevFloat(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

var canonicalHeader = []string{
	"ts_utc_iso", "elapsed_s", "power_w", "hr_bpm", "cadence_rpm", "speed_kph", "distance_m", "torque_nm",
	"altitude_m", "temperature_c", "interval_index", "valid_power", "valid_hr", "valid_cadence", "file_offset", "record_index",
}

func writeCanonicalCSVFile(path string, samples []CanonicalSample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeCanonicalCSV(f, samples)
}

func writeCanonicalCSV(out io.Writer, samples []CanonicalSample) error {
	w := csv.NewWriter(out)
	if err := w.Write(canonicalHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			s.TSUTCISO,
			formatFloat(s.ElapsedS),
			formatFloatPtr(s.PowerW),
			formatFloatPtr(s.HRBPM),
			formatFloatPtr(s.CadenceRPM),
			formatFloatPtr(s.SpeedKPH),
			formatFloatPtr(s.DistanceM),
			formatFloatPtr(s.TorqueNM),
			formatFloatPtr(s.AltitudeM),
			formatFloatPtr(s.TemperatureC),
			strconv.Itoa(s.IntervalIndex),
			strconv.FormatBool(s.ValidPower),
			strconv.FormatBool(s.ValidHR),
			strconv.FormatBool(s.ValidCadence),
			strconv.FormatInt(s.FileOffset, 10),
			strconv.Itoa(s.RecordIndex),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func sampleIndexAtOrAfter(samples []CanonicalSample, secs float64) int {
	if len(samples) == 0 {
		return 0
	}
	i := sort.Search(len(samples), func(i int) bool {
		return samples[i].ElapsedS >= secs
	})
	if i >= len(samples) {
		return len(samples) - 1
	}
	return i
}

// sampleIndexBefore is the last sample strictly before secs.
func sampleIndexBefore(samples []CanonicalSample, secs float64) int {
	i := sort.Search(len(samples), func(i int) bool {
		return samples[i].ElapsedS >= secs
	})
	if i <= 0 {
		return 0
	}
	return i - 1
}

func offsetTS(start time.Time, secs float64) string {
	return start.Add(time.Duration(math.Round(secs*1000)) * time.Millisecond).UTC().Format(time.RFC3339Nano)
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

func roundToNearest(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}

func floatPtr(v float64) *float64 {
	out := v
	return &out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
