package pipeline

import (
	"time"

	srmnotes "github.com/lucasjlepore/srm-analyzer"
)

// Options configures the srm_analyze pipeline.
type Options struct {
	SRMPath     string
	OutDir      string
	FTPOverride float64
	Format      string // parquet|csv
	Overwrite   bool
	CopySource  bool
	ExportFIT   bool
	ExportBlob  bool
	// DBPath, when set, also saves the decoded ride into a SQLite store.
	DBPath string
}

// BytesOptions configures the in-memory pipeline used by the wasm build.
type BytesOptions struct {
	SourceFileName string
	SRMData        []byte
	FTPOverride    float64
	Format         string // parquet|csv
	CopySource     bool
	ExportFIT      bool
	ExportBlob     bool
}

// Result returns generated output paths.
type Result struct {
	OutputDir            string   `json:"output_dir"`
	ManifestPath         string   `json:"manifest_path"`
	RecordsPath          string   `json:"records_path"`
	SourceCopyPath       string   `json:"source_copy_path,omitempty"`
	CanonicalSamplesPath string   `json:"canonical_samples_path"`
	IntervalsPath        string   `json:"intervals_path"`
	WorkoutStructurePath string   `json:"workout_structure_path"`
	ActivitySummaryPath  string   `json:"activity_summary_path"`
	TrainingSummaryPath  string   `json:"training_summary_path"`
	FITPath              string   `json:"fit_path,omitempty"`
	BlobPath             string   `json:"blob_path,omitempty"`
	RideID               int64    `json:"ride_id,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
}

// BytesResult holds every artifact keyed by file name.
type BytesResult struct {
	Files    map[string][]byte
	Warnings []string
}

// CanonicalSample is one SRM sample with derived time and distance.
type CanonicalSample struct {
	TSUTCISO      string    `json:"ts_utc_iso"`
	Timestamp     time.Time `json:"-"`
	ElapsedS      float64   `json:"elapsed_s"`
	PowerW        *float64  `json:"power_w,omitempty"`
	HRBPM         *float64  `json:"hr_bpm,omitempty"`
	CadenceRPM    *float64  `json:"cadence_rpm,omitempty"`
	SpeedKPH      *float64  `json:"speed_kph,omitempty"`
	DistanceM     *float64  `json:"distance_m,omitempty"`
	TorqueNM      *float64  `json:"torque_nm,omitempty"`
	AltitudeM     *float64  `json:"altitude_m,omitempty"`
	TemperatureC  *float64  `json:"temperature_c,omitempty"`
	IntervalIndex int       `json:"interval_index"`
	ValidPower    bool      `json:"valid_power"`
	ValidHR       bool      `json:"valid_hr"`
	ValidCadence  bool      `json:"valid_cadence"`
	FileOffset    int64     `json:"file_offset"`
	RecordIndex   int       `json:"record_index"`
}

// IntervalsFile lists the ride intervals with per-interval aggregates.
type IntervalsFile struct {
	Intervals []IntervalRow `json:"intervals"`
}

// IntervalRow is one interval summary row. Named rows come from markers.
type IntervalRow struct {
	Index            int     `json:"index"`
	Name             string  `json:"name,omitempty"`
	MarkerComment    string  `json:"marker_comment,omitempty"`
	Label            string  `json:"label"`
	StartS           float64 `json:"start_s"`
	StopS            float64 `json:"stop_s"`
	DurationS        float64 `json:"duration_s"`
	StartTS          string  `json:"start_ts"`
	EndTS            string  `json:"end_ts"`
	DistanceM        float64 `json:"distance_m"`
	AvgPowerW        float64 `json:"avg_power_w"`
	MaxPowerW        float64 `json:"max_power_w"`
	AvgHRBPM         float64 `json:"avg_hr_bpm"`
	AvgCadenceRPM    float64 `json:"avg_cadence_rpm"`
	StartSampleIndex int     `json:"start_sample_index"`
	EndSampleIndex   int     `json:"end_sample_index"`
}

// WorkoutStructureFile is the semantic workout plan/execution output.
type WorkoutStructureFile struct {
	FTPSources []FTPCandidate            `json:"ftp_sources"`
	FTPWUsed   *FTPCandidate             `json:"ftp_w_used,omitempty"`
	Structure  srmnotes.WorkoutStructure `json:"structure"`
	Steps      []WorkoutStep             `json:"steps,omitempty"`
}

// FTPCandidate is one FTP source hypothesis.
type FTPCandidate struct {
	FTPW       float64 `json:"ftp_w"`
	Source     string  `json:"source"` // user_override|best_20min_estimate
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// WorkoutStep describes one interval as an executed prescription.
type WorkoutStep struct {
	StepIndex         int      `json:"step_index"`
	StepName          string   `json:"step_name,omitempty"`
	Marker            string   `json:"marker,omitempty"`
	DurationS         *float64 `json:"duration_s,omitempty"`
	TargetType        string   `json:"target_type"` // power_w|percent_ftp
	TargetLowW        *float64 `json:"target_low_w,omitempty"`
	TargetHighW       *float64 `json:"target_high_w,omitempty"`
	TargetLowPctFTP   *float64 `json:"target_low_pct_ftp,omitempty"`
	TargetHighPctFTP  *float64 `json:"target_high_pct_ftp,omitempty"`
	StartTSUTC        string   `json:"start_ts_utc,omitempty"`
	EndTSUTC          string   `json:"end_ts_utc,omitempty"`
	StartSampleIndex  int      `json:"start_sample_index"`
	EndSampleIndex    int      `json:"end_sample_index"`
	Source            string   `json:"source"` // marker|gap
	ObservedAvgPowerW *float64 `json:"observed_avg_power_w,omitempty"`
	ObservedNPW       *float64 `json:"observed_np_w,omitempty"`
	TimeInTargetPct   *float64 `json:"time_in_target_pct,omitempty"`
	PowerStdDev       *float64 `json:"power_stddev,omitempty"`
}

// ActivitySummaryFile contains one-ride aggregate metrics.
type ActivitySummaryFile struct {
	DurationS      float64            `json:"duration_s"`
	RecordedS      float64            `json:"recorded_s"`
	DistanceKM     float64            `json:"distance_km"`
	ElevationGainM float64            `json:"elevation_gain_m"`
	AvgPowerW      float64            `json:"avg_power_w"`
	NPW            float64            `json:"np_w"`
	MaxPowerW      float64            `json:"max_power_w"`
	AvgHRBPM       float64            `json:"avg_hr_bpm"`
	MaxHRBPM       float64            `json:"max_hr_bpm"`
	AvgCadenceRPM  float64            `json:"avg_cadence_rpm"`
	MaxCadenceRPM  float64            `json:"max_cadence_rpm"`
	AvgTorqueNM    float64            `json:"avg_torque_nm"`
	TotalWorkKJ    float64            `json:"total_work_kj"`
	FTPWUsed       *float64           `json:"ftp_w_used,omitempty"`
	IF             *float64           `json:"if,omitempty"`
	TSSLike        *float64           `json:"tss_like,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
	Analysis       *srmnotes.Analysis `json:"analysis"`
}
