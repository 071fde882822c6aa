package srmnotes

import (
	"fmt"
	"math"
	"strings"
)

const workoutStructureSchemaVersion = "srm_workout_structure_v1"

// WorkoutStructure groups labelled segments into warmup, main set and
// cooldown blocks with a one-line prescription.
type WorkoutStructure struct {
	SchemaVersion  string          `json:"schema_version"`
	Confidence     float64         `json:"confidence"`
	CanonicalLabel string          `json:"canonical_label"`
	Blocks         []WorkoutBlock  `json:"blocks,omitempty"`
	MainSet        *MainSetSummary `json:"main_set,omitempty"`
}

// WorkoutBlock is a contiguous run of segments.
type WorkoutBlock struct {
	BlockType          string  `json:"block_type"`
	FirstSegment       int     `json:"first_segment"`
	LastSegment        int     `json:"last_segment"`
	StartOffsetSeconds float64 `json:"start_offset_seconds"`
	EndOffsetSeconds   float64 `json:"end_offset_seconds"`
	DurationSeconds    float64 `json:"duration_seconds"`
	AvgPowerWatts      float64 `json:"avg_power_watts"`
	AvgHeartRate       float64 `json:"avg_heart_rate_bpm"`
	AvgCadence         float64 `json:"avg_cadence_rpm"`
	Description        string  `json:"description"`
}

// MainSetSummary describes the repeated work efforts.
type MainSetSummary struct {
	Reps                    int          `json:"reps"`
	WorkDurationSeconds     float64      `json:"work_duration_seconds"`
	RecoveryDurationSeconds float64      `json:"recovery_duration_seconds"`
	WorkPowerWatts          float64      `json:"work_power_watts"`
	RecoveryPowerWatts      float64      `json:"recovery_power_watts"`
	WorkTargetWatts         float64      `json:"work_target_watts"`
	WorkPctFTP              float64      `json:"work_pct_ftp,omitempty"`
	PowerDriftPct           float64      `json:"power_drift_pct"`
	CadenceDriftPct         float64      `json:"cadence_drift_pct"`
	HeartRateDriftBPM       float64      `json:"heart_rate_drift_bpm"`
	Prescription            string       `json:"prescription"`
	RepsDetail              []MainSetRep `json:"reps_detail,omitempty"`
}

// MainSetRep is one work effort and the recovery that follows it.
type MainSetRep struct {
	Rep                     int     `json:"rep"`
	WorkSegment             int     `json:"work_segment"`
	Marker                  string  `json:"marker,omitempty"`
	WorkDurationSeconds     float64 `json:"work_duration_seconds"`
	WorkPowerWatts          float64 `json:"work_power_watts"`
	WorkVsTargetPct         float64 `json:"work_vs_target_pct"`
	RecoverySegment         int     `json:"recovery_segment,omitempty"`
	RecoveryDurationSeconds float64 `json:"recovery_duration_seconds,omitempty"`
	RecoveryPowerWatts      float64 `json:"recovery_power_watts,omitempty"`
}

// InferWorkoutStructure converts segment labels into workout blocks.
func InferWorkoutStructure(segments []SegmentSummary, ftp float64, intervals IntervalSummary) WorkoutStructure {
	ws := WorkoutStructure{
		SchemaVersion: workoutStructureSchemaVersion,
		Confidence:    0.25,
	}
	if len(segments) == 0 {
		ws.CanonicalLabel = "unable to infer workout structure (no intervals)"
		return ws
	}

	blocks := make([]string, len(segments))
	mainStart, mainEnd := mainSetWindow(segments)
	if mainStart >= 0 {
		mark(blocks, mainStart, mainEnd, "main_set")
		for i := 0; i < mainStart; i++ {
			mark(blocks, i, i, "warmup")
		}
		ms := buildMainSet(segments, mainStart, mainEnd, ftp, intervals)
		ws.MainSet = &ms
		ws.Confidence += 0.36
		if ms.Reps >= 4 {
			ws.Confidence += 0.08
		}
		for i := mainEnd + 1; i < len(segments); i++ {
			if segments[i].Label == "cooldown" {
				mark(blocks, i, len(segments)-1, "cooldown")
				ws.Confidence += 0.08
				break
			}
		}
	}

	for i := 0; i < len(segments); {
		kind := blocks[i]
		if kind == "" {
			kind = "steady"
		}
		j := i
		for j+1 < len(segments) && blocks[j+1] == blocks[i] {
			j++
		}
		ws.Blocks = append(ws.Blocks, buildBlock(segments, kind, i, j, blockDescription(kind, ws.MainSet)))
		if kind == "warmup" {
			ws.Confidence += 0.08
		}
		i = j + 1
	}

	if len(ws.Blocks) >= 3 {
		ws.Confidence += 0.05
	}
	ws.Confidence = math.Min(ws.Confidence, 0.99)
	ws.CanonicalLabel = canonicalLabel(ws)
	return ws
}

func mark(blocks []string, from, to int, kind string) {
	for i := from; i <= to && i < len(blocks); i++ {
		if blocks[i] == "" {
			blocks[i] = kind
		}
	}
}

func mainSetWindow(segments []SegmentSummary) (int, int) {
	start, end := -1, -1
	for i, seg := range segments {
		if seg.Label == "work" {
			if start < 0 {
				start = i
			}
			end = i
		}
	}
	if end >= 0 && end+1 < len(segments) && segments[end+1].Label == "recovery" {
		end++
	}
	return start, end
}

func buildMainSet(segments []SegmentSummary, start, end int, ftp float64, intervals IntervalSummary) MainSetSummary {
	ms := MainSetSummary{
		WorkDurationSeconds:     intervals.AvgWorkDurationSeconds,
		RecoveryDurationSeconds: intervals.AvgRecoveryDurationSeconds,
		WorkPowerWatts:          intervals.AvgWorkPowerWatts,
		RecoveryPowerWatts:      intervals.AvgRecoveryPowerWatts,
		WorkTargetWatts:         roundToNearest(intervals.AvgWorkPowerWatts, 5),
		PowerDriftPct:           intervals.WorkPowerChangePct,
		CadenceDriftPct:         intervals.WorkCadenceChangePct,
		HeartRateDriftBPM:       intervals.WorkHeartRateChange,
	}
	if ftp > 0 {
		ms.WorkPctFTP = ms.WorkPowerWatts / ftp * 100.0
	}

	for i := start; i <= end; i++ {
		seg := segments[i]
		if seg.Label != "work" {
			continue
		}
		rep := MainSetRep{
			Rep:                 len(ms.RepsDetail) + 1,
			WorkSegment:         seg.Index,
			Marker:              seg.Name,
			WorkDurationSeconds: seg.DurationSeconds,
			WorkPowerWatts:      seg.AvgPowerWatts,
		}
		if ms.WorkTargetWatts > 0 {
			rep.WorkVsTargetPct = (seg.AvgPowerWatts/ms.WorkTargetWatts - 1) * 100
		}
		if i+1 < len(segments) && segments[i+1].Label == "recovery" {
			next := segments[i+1]
			rep.RecoverySegment = next.Index
			rep.RecoveryDurationSeconds = next.DurationSeconds
			rep.RecoveryPowerWatts = next.AvgPowerWatts
		}
		ms.RepsDetail = append(ms.RepsDetail, rep)
	}
	ms.Reps = len(ms.RepsDetail)

	ms.Prescription = fmt.Sprintf("%dx%s @%.0fW", ms.Reps, shortDuration(ms.WorkDurationSeconds), ms.WorkTargetWatts)
	if ms.RecoveryDurationSeconds > 0 {
		ms.Prescription += fmt.Sprintf(" with %s @%.0fW recoveries",
			shortDuration(ms.RecoveryDurationSeconds), roundToNearest(ms.RecoveryPowerWatts, 5))
	}
	return ms
}

func blockDescription(kind string, ms *MainSetSummary) string {
	switch kind {
	case "warmup":
		return "Aerobic warmup before intensity"
	case "main_set":
		if ms != nil {
			return ms.Prescription
		}
	case "cooldown":
		return "Easy cooldown to finish the session"
	}
	return "Unclassified steady riding block"
}

func canonicalLabel(ws WorkoutStructure) string {
	parts := make([]string, 0, len(ws.Blocks))
	for _, b := range ws.Blocks {
		switch b.BlockType {
		case "warmup", "cooldown":
			parts = append(parts, fmt.Sprintf("%s %s", b.BlockType, shortDuration(b.DurationSeconds)))
		case "main_set":
			label := ws.MainSet.Prescription
			if ws.MainSet.WorkPctFTP > 0 {
				label = fmt.Sprintf("%s (%.0f%% FTP)", label, ws.MainSet.WorkPctFTP)
			}
			parts = append(parts, label)
		}
	}
	if len(parts) == 0 {
		return "unclassified session structure"
	}
	return strings.Join(parts, " + ")
}

func buildBlock(segments []SegmentSummary, kind string, first, last int, description string) WorkoutBlock {
	var dur, sumP, sumHR, sumCad, wP, wHR, wCad float64
	for _, seg := range segments[first : last+1] {
		d := seg.DurationSeconds
		dur += d
		if seg.AvgPowerWatts > 0 {
			sumP += seg.AvgPowerWatts * d
			wP += d
		}
		if seg.AvgHeartRate > 0 {
			sumHR += seg.AvgHeartRate * d
			wHR += d
		}
		if seg.AvgCadence > 0 {
			sumCad += seg.AvgCadence * d
			wCad += d
		}
	}
	return WorkoutBlock{
		BlockType:          kind,
		FirstSegment:       segments[first].Index,
		LastSegment:        segments[last].Index,
		StartOffsetSeconds: segments[first].StartOffsetSeconds,
		EndOffsetSeconds:   segments[last].EndOffsetSeconds,
		DurationSeconds:    dur,
		AvgPowerWatts:      safeDiv(sumP, wP),
		AvgHeartRate:       safeDiv(sumHR, wHR),
		AvgCadence:         safeDiv(sumCad, wCad),
		Description:        description,
	}
}

func shortDuration(seconds float64) string {
	s := int(math.Round(seconds))
	switch {
	case s <= 0:
		return "0s"
	case s%60 == 0:
		return fmt.Sprintf("%dm", s/60)
	case s < 60:
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", s/60, s%60)
}

func roundToNearest(v, step float64) float64 {
	if v == 0 || step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}

func safeDiv(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
