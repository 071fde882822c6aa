package srmnotes

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
	"github.com/lucasjlepore/srm-analyzer/srm"
)

const (
	secondsPerHour = 3600.0
	npWindowSecs   = 30.0
	best20Secs     = 20 * 60.0
)

// ErrEmptyRide is returned when a ride has no samples to analyze.
var ErrEmptyRide = errors.New("ride has no samples")

// Config controls optional calculations that require athlete-specific inputs.
type Config struct {
	FTPWatts float64
}

// Analysis contains extracted metrics and generated notes for an SRM ride.
type Analysis struct {
	FilePath          string           `json:"file_path,omitempty"`
	DeviceType        string           `json:"device_type"`
	Comment           string           `json:"comment,omitempty"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	RecIntSecs        float64          `json:"recint_secs"`
	SampleCount       int              `json:"sample_count"`
	ElapsedSeconds    float64          `json:"elapsed_seconds"`
	RecordedSeconds   float64          `json:"recorded_seconds"`
	MovingSeconds     float64          `json:"moving_seconds"`
	DistanceMeters    float64          `json:"distance_meters"`
	ElevationGainM    float64          `json:"elevation_gain_m"`
	ElevationLossM    float64          `json:"elevation_loss_m"`
	AvgSpeedKph       float64          `json:"avg_speed_kph"`
	MaxSpeedKph       float64          `json:"max_speed_kph"`
	AvgPowerWatts     float64          `json:"avg_power_watts"`
	MaxPowerWatts     float64          `json:"max_power_watts"`
	NormalizedPower   float64          `json:"normalized_power_watts"`
	VariabilityIndex  float64          `json:"variability_index"`
	WorkKilojoules    float64          `json:"work_kilojoules"`
	AvgTorqueNm       float64          `json:"avg_torque_nm"`
	AvgHeartRate      float64          `json:"avg_heart_rate_bpm"`
	MaxHeartRate      float64          `json:"max_heart_rate_bpm"`
	AvgCadence        float64          `json:"avg_cadence_rpm"`
	MaxCadence        float64          `json:"max_cadence_rpm"`
	FTPWatts          float64          `json:"ftp_watts"`
	FTPSource         string           `json:"ftp_source"`
	IntensityFactor   float64          `json:"intensity_factor"`
	TrainingStress    float64          `json:"training_stress_score"`
	Best20MinPower    float64          `json:"best_20min_power_watts"`
	PowerHRDecoupling float64          `json:"power_hr_decoupling_pct"`
	PowerZones        []ZoneDuration   `json:"power_zones,omitempty"`
	Segments          []SegmentSummary `json:"segments,omitempty"`
	Intervals         IntervalSummary  `json:"intervals"`
	WorkoutStructure  WorkoutStructure `json:"workout_structure"`
	Warnings          []string         `json:"warnings,omitempty"`
	Notes             string           `json:"notes"`
}

// ZoneDuration stores duration spent in a given FTP-based power zone.
type ZoneDuration struct {
	Zone       string  `json:"zone"`
	MinPctFTP  float64 `json:"min_pct_ftp"`
	MaxPctFTP  float64 `json:"max_pct_ftp"`
	Seconds    float64 `json:"seconds"`
	Percentage float64 `json:"percentage"`
}

// SegmentSummary describes one ride interval. Named segments come from head
// unit markers, unnamed ones fill the time between them.
type SegmentSummary struct {
	Index              int     `json:"index"`
	Name               string  `json:"name,omitempty"`
	StartOffsetSeconds float64 `json:"start_offset_seconds"`
	EndOffsetSeconds   float64 `json:"end_offset_seconds"`
	DurationSeconds    float64 `json:"duration_seconds"`
	DistanceMeters     float64 `json:"distance_meters"`
	AvgPowerWatts      float64 `json:"avg_power_watts"`
	MaxPowerWatts      float64 `json:"max_power_watts"`
	AvgHeartRate       float64 `json:"avg_heart_rate_bpm"`
	AvgCadence         float64 `json:"avg_cadence_rpm"`
	Label              string  `json:"label"`
}

// IntervalSummary captures the detected interval structure of the workout.
type IntervalSummary struct {
	MarkerCount                int     `json:"marker_count"`
	WorkCount                  int     `json:"work_count"`
	RecoveryCount              int     `json:"recovery_count"`
	ActivationCount            int     `json:"activation_count"`
	AvgWorkDurationSeconds     float64 `json:"avg_work_duration_seconds"`
	AvgRecoveryDurationSeconds float64 `json:"avg_recovery_duration_seconds"`
	AvgWorkPowerWatts          float64 `json:"avg_work_power_watts"`
	AvgRecoveryPowerWatts      float64 `json:"avg_recovery_power_watts"`
	WorkPowerChangePct         float64 `json:"work_power_change_pct"`
	WorkCadenceChangePct       float64 `json:"work_cadence_change_pct"`
	WorkHeartRateChange        float64 `json:"work_heart_rate_change_bpm"`
}

type sampleSeries struct {
	recInt float64

	power  []float64
	hr     []float64
	cad    []float64
	kph    []float64
	torque []float64

	pairedPower []float64
	pairedHR    []float64

	movingSamples int
	gainM, lossM  float64
}

// AnalyzeFile decodes a ride file through the format registry and analyzes it.
func AnalyzeFile(path string, cfg Config) (*Analysis, error) {
	reg := ridefile.NewRegistry()
	if err := srm.Register(reg); err != nil {
		return nil, fmt.Errorf("register srm reader: %w", err)
	}
	ride, warnings, err := reg.Open(path)
	if err != nil {
		return nil, err
	}

	analysis, err := AnalyzeRide(ride, cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", path, err)
	}
	analysis.FilePath = path
	analysis.Warnings = append(warnings, analysis.Warnings...)
	return analysis, nil
}

// AnalyzeRide computes ride metrics and training notes from decoded samples.
func AnalyzeRide(ride *ridefile.Ride, cfg Config) (*Analysis, error) {
	if ride == nil || len(ride.Points) == 0 {
		return nil, ErrEmptyRide
	}

	recInt := ride.RecIntSecs
	if !isFinite(recInt) || recInt <= 0 {
		recInt = 1
	}
	series := buildSampleSeries(ride.Points, recInt)

	analysis := &Analysis{
		DeviceType:      ride.DeviceType,
		Comment:         ride.Tag("comment"),
		StartTime:       ride.StartTime,
		EndTime:         ride.EndTime(),
		RecIntSecs:      recInt,
		SampleCount:     len(ride.Points),
		ElapsedSeconds:  ride.Duration(),
		RecordedSeconds: float64(len(ride.Points)) * recInt,
		MovingSeconds:   float64(series.movingSamples) * recInt,
		DistanceMeters:  ride.DistanceKm() * 1000.0,
		ElevationGainM:  series.gainM,
		ElevationLossM:  series.lossM,
	}
	if analysis.ElapsedSeconds > analysis.RecordedSeconds {
		analysis.Warnings = append(analysis.Warnings, fmt.Sprintf(
			"recording paused for %s between blocks", formatDuration(analysis.ElapsedSeconds-analysis.RecordedSeconds)))
	}

	if analysis.MovingSeconds > 0 {
		analysis.AvgSpeedKph = analysis.DistanceMeters / 1000.0 / (analysis.MovingSeconds / secondsPerHour)
	}
	analysis.MaxSpeedKph = maxValue(series.kph)

	analysis.AvgPowerWatts = average(series.power)
	analysis.MaxPowerWatts = maxValue(series.power)
	analysis.NormalizedPower = normalizedPower(series.power, samplesFor(npWindowSecs, recInt))
	if analysis.NormalizedPower == 0 {
		analysis.NormalizedPower = analysis.AvgPowerWatts
	}
	analysis.WorkKilojoules = sum(series.power) * recInt / 1000.0
	analysis.AvgTorqueNm = averagePositive(series.torque)

	analysis.AvgHeartRate = averagePositive(series.hr)
	analysis.MaxHeartRate = maxValue(series.hr)
	analysis.AvgCadence = averagePositive(series.cad)
	analysis.MaxCadence = maxValue(series.cad)

	best20 := samplesFor(best20Secs, recInt)
	analysis.Best20MinPower = bestRollingPower(series.power, best20)
	analysis.FTPWatts = safePositive(cfg.FTPWatts)
	if analysis.FTPWatts > 0 {
		analysis.FTPSource = "input"
	} else if estimated := estimateFTP(series.power, best20); estimated > 0 {
		analysis.FTPWatts = estimated
		analysis.FTPSource = "estimated"
	} else {
		analysis.FTPSource = "unavailable"
	}

	if analysis.AvgPowerWatts > 0 {
		analysis.VariabilityIndex = analysis.NormalizedPower / analysis.AvgPowerWatts
	}
	if analysis.FTPWatts > 0 && analysis.NormalizedPower > 0 {
		analysis.IntensityFactor = analysis.NormalizedPower / analysis.FTPWatts
	}
	if analysis.RecordedSeconds > 0 && analysis.IntensityFactor > 0 {
		analysis.TrainingStress = (analysis.RecordedSeconds / secondsPerHour) * analysis.IntensityFactor * analysis.IntensityFactor * 100.0
	}

	analysis.PowerHRDecoupling = powerHRDecoupling(series.pairedPower, series.pairedHR)
	analysis.PowerZones = buildPowerZones(series.power, analysis.FTPWatts, recInt)
	analysis.Segments, analysis.Intervals = summarizeSegments(ride, analysis.AvgPowerWatts)
	analysis.WorkoutStructure = InferWorkoutStructure(analysis.Segments, analysis.FTPWatts, analysis.Intervals)
	analysis.Notes = BuildTrainingNotes(analysis)

	return analysis, nil
}

func buildSampleSeries(points []ridefile.Point, recInt float64) sampleSeries {
	ss := sampleSeries{recInt: recInt}
	n := len(points)
	ss.power = make([]float64, 0, n)
	ss.hr = make([]float64, 0, n)
	ss.cad = make([]float64, 0, n)
	ss.kph = make([]float64, 0, n)
	ss.torque = make([]float64, 0, n)

	for i, p := range points {
		ss.power = append(ss.power, safePositive(p.Watts))
		ss.hr = append(ss.hr, safePositive(p.HR))
		ss.cad = append(ss.cad, safePositive(p.Cad))
		ss.kph = append(ss.kph, safePositive(p.Kph))
		ss.torque = append(ss.torque, safePositive(p.Nm))

		if p.Kph > 0 || p.Cad > 0 {
			ss.movingSamples++
		}
		if p.Watts > 0 && p.HR > 0 {
			ss.pairedPower = append(ss.pairedPower, p.Watts)
			ss.pairedHR = append(ss.pairedHR, p.HR)
		}
		if i > 0 && isFinite(p.Alt) && isFinite(points[i-1].Alt) {
			if d := p.Alt - points[i-1].Alt; d > 0 {
				ss.gainM += d
			} else {
				ss.lossM -= d
			}
		}
	}
	return ss
}

func summarizeSegments(ride *ridefile.Ride, rideAvgPower float64) ([]SegmentSummary, IntervalSummary) {
	if len(ride.Intervals) == 0 {
		return nil, IntervalSummary{}
	}
	recInt := ride.RecIntSecs
	if recInt <= 0 {
		recInt = 1
	}

	summaries := make([]SegmentSummary, 0, len(ride.Intervals))
	segmentPowers := make([]float64, 0, len(ride.Intervals))
	markers := 0
	for idx, iv := range ride.Intervals {
		points := ride.PointsIn(iv)
		power := make([]float64, 0, len(points))
		hr := make([]float64, 0, len(points))
		cad := make([]float64, 0, len(points))
		meters := 0.0
		for _, p := range points {
			power = append(power, safePositive(p.Watts))
			hr = append(hr, safePositive(p.HR))
			cad = append(cad, safePositive(p.Cad))
			meters += safePositive(p.Kph) * recInt / 3.6
		}
		avgPower := average(power)
		if avgPower > 0 {
			segmentPowers = append(segmentPowers, avgPower)
		}
		if iv.Name != "" {
			markers++
		}

		summaries = append(summaries, SegmentSummary{
			Index:              idx + 1,
			Name:               iv.Name,
			StartOffsetSeconds: iv.Start,
			EndOffsetSeconds:   iv.Stop,
			DurationSeconds:    iv.Duration(),
			DistanceMeters:     meters,
			AvgPowerWatts:      avgPower,
			MaxPowerWatts:      maxValue(power),
			AvgHeartRate:       averagePositive(hr),
			AvgCadence:         averagePositive(cad),
			Label:              "steady",
		})
	}

	baselinePower := rideAvgPower
	if baselinePower <= 0 {
		baselinePower = average(segmentPowers)
	}
	if baselinePower <= 0 {
		baselinePower = 150
	}
	intervals := labelSegments(summaries, baselinePower)
	intervals.MarkerCount = markers
	return summaries, intervals
}

// labelSegments tags each segment relative to baseline power and summarizes
// the work/recovery pattern.
func labelSegments(summaries []SegmentSummary, baselinePower float64) IntervalSummary {
	hardThreshold := baselinePower * 1.20
	easyThreshold := baselinePower * 0.90

	var workIndices, recoveryIndices []int
	activationCount := 0

	for i := range summaries {
		seg := &summaries[i]
		if seg.AvgPowerWatts <= 0 || seg.DurationSeconds <= 0 {
			continue
		}
		if seg.AvgPowerWatts >= hardThreshold {
			if seg.DurationSeconds < 90 {
				seg.Label = "activation"
				activationCount++
			} else {
				seg.Label = "work"
				workIndices = append(workIndices, i)
			}
			continue
		}
		if seg.DurationSeconds >= 60 && seg.AvgPowerWatts <= easyThreshold {
			seg.Label = "easy"
		}
	}

	for _, wi := range workIndices {
		next := wi + 1
		if next >= len(summaries) {
			continue
		}
		candidate := &summaries[next]
		if candidate.Label == "easy" && candidate.DurationSeconds >= 60 {
			candidate.Label = "recovery"
			recoveryIndices = append(recoveryIndices, next)
		}
	}

	if len(workIndices) > 0 {
		firstWork := workIndices[0]
		lastWork := workIndices[len(workIndices)-1]
		for i := 0; i < firstWork; i++ {
			if summaries[i].Label == "easy" || i == 0 {
				summaries[i].Label = "warmup"
			}
		}
		for i := lastWork + 1; i < len(summaries); i++ {
			if summaries[i].Label == "recovery" {
				continue
			}
			if summaries[i].Label == "easy" || summaries[i].AvgPowerWatts <= easyThreshold {
				summaries[i].Label = "cooldown"
			}
		}
	}

	out := IntervalSummary{
		WorkCount:       len(workIndices),
		RecoveryCount:   len(recoveryIndices),
		ActivationCount: activationCount,
	}

	var workPowers, workDurations, workCadences, workHR []float64
	for _, idx := range workIndices {
		seg := summaries[idx]
		workPowers = append(workPowers, seg.AvgPowerWatts)
		workDurations = append(workDurations, seg.DurationSeconds)
		if seg.AvgCadence > 0 {
			workCadences = append(workCadences, seg.AvgCadence)
		}
		if seg.AvgHeartRate > 0 {
			workHR = append(workHR, seg.AvgHeartRate)
		}
	}
	var recoveryPowers, recoveryDurations []float64
	for _, idx := range recoveryIndices {
		recoveryPowers = append(recoveryPowers, summaries[idx].AvgPowerWatts)
		recoveryDurations = append(recoveryDurations, summaries[idx].DurationSeconds)
	}

	out.AvgWorkPowerWatts = average(workPowers)
	out.AvgWorkDurationSeconds = average(workDurations)
	out.AvgRecoveryPowerWatts = average(recoveryPowers)
	out.AvgRecoveryDurationSeconds = average(recoveryDurations)
	out.WorkPowerChangePct = pctChange(firstValue(workPowers), lastValue(workPowers))
	out.WorkCadenceChangePct = pctChange(firstValue(workCadences), lastValue(workCadences))
	if len(workHR) >= 2 {
		out.WorkHeartRateChange = lastValue(workHR) - firstValue(workHR)
	}
	return out
}

func buildPowerZones(power []float64, ftp, recInt float64) []ZoneDuration {
	if ftp <= 0 || len(power) == 0 {
		return nil
	}

	zones := []struct {
		zone     string
		min, max float64
	}{
		{"Z1 Active Recovery", 0, 55},
		{"Z2 Endurance", 55, 75},
		{"Z3 Tempo", 75, 90},
		{"Z4 Threshold", 90, 105},
		{"Z5 VO2", 105, 120},
		{"Z6 Anaerobic", 120, 150},
		{"Z7 Neuromuscular", 150, math.Inf(1)},
	}

	counts := make([]int, len(zones))
	total := 0
	for _, p := range power {
		percent := (p / ftp) * 100.0
		for i, z := range zones {
			if percent >= z.min && percent < z.max {
				counts[i]++
				total++
				break
			}
		}
	}
	if total == 0 {
		return nil
	}

	out := make([]ZoneDuration, 0, len(zones))
	for i, z := range zones {
		maxPct := z.max
		if math.IsInf(maxPct, 1) {
			maxPct = 1000
		}
		out = append(out, ZoneDuration{
			Zone:       z.zone,
			MinPctFTP:  z.min,
			MaxPctFTP:  maxPct,
			Seconds:    float64(counts[i]) * recInt,
			Percentage: float64(counts[i]) / float64(total) * 100.0,
		})
	}
	return out
}

// samplesFor converts a duration to a whole number of samples, at least one.
func samplesFor(seconds, recInt float64) int {
	n := int(math.Round(seconds / recInt))
	if n < 1 {
		return 1
	}
	return n
}

func normalizedPower(power []float64, window int) float64 {
	if len(power) == 0 {
		return 0
	}
	if len(power) < window {
		return average(power)
	}

	rolling := 0.0
	for i := 0; i < window; i++ {
		rolling += power[i]
	}
	fourth := 0.0
	count := 0
	for i := window - 1; i < len(power); i++ {
		if i >= window {
			rolling += power[i] - power[i-window]
		}
		fourth += math.Pow(rolling/float64(window), 4)
		count++
	}
	return math.Pow(fourth/float64(count), 0.25)
}

func estimateFTP(power []float64, window int) float64 {
	if len(power) < window {
		return 0
	}
	return bestRollingPower(power, window) * 0.95
}

func bestRollingPower(power []float64, window int) float64 {
	if len(power) == 0 || window <= 0 {
		return 0
	}
	if len(power) < window {
		return average(power)
	}

	total := 0.0
	for i := 0; i < window; i++ {
		total += power[i]
	}
	best := total / float64(window)
	for i := window; i < len(power); i++ {
		total += power[i] - power[i-window]
		if current := total / float64(window); current > best {
			best = current
		}
	}
	return best
}

func powerHRDecoupling(power, hr []float64) float64 {
	n := len(power)
	if n == 0 || n != len(hr) || n < 20 {
		return 0
	}
	mid := n / 2

	p1, h1 := average(power[:mid]), average(hr[:mid])
	p2, h2 := average(power[mid:]), average(hr[mid:])
	if p1 == 0 || p2 == 0 || h1 == 0 || h2 == 0 {
		return 0
	}
	return ((p2/h2)/(p1/h1) - 1.0) * 100.0
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		if isFinite(v) {
			total += v
		}
	}
	return total
}

func average(values []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// averagePositive ignores zero readings, which SRM writes for a missing sensor.
func averagePositive(values []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) || v <= 0 {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func maxValue(values []float64) float64 {
	max := 0.0
	found := false
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max
}

func pctChange(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return ((end / start) - 1.0) * 100.0
}

func firstValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}
