package pipeline

import (
	"math"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type canonicalParquetRow struct {
	TSUTCISO      string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS      float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	PowerW        float64 `parquet:"name=power_w, type=DOUBLE"`
	HRBPM         float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceRPM    float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	SpeedKPH      float64 `parquet:"name=speed_kph, type=DOUBLE"`
	DistanceM     float64 `parquet:"name=distance_m, type=DOUBLE"`
	TorqueNM      float64 `parquet:"name=torque_nm, type=DOUBLE"`
	AltitudeM     float64 `parquet:"name=altitude_m, type=DOUBLE"`
	TemperatureC  float64 `parquet:"name=temperature_c, type=DOUBLE"`
	IntervalIndex int32   `parquet:"name=interval_index, type=INT32"`
	ValidPower    bool    `parquet:"name=valid_power, type=BOOLEAN"`
	ValidHR       bool    `parquet:"name=valid_hr, type=BOOLEAN"`
	ValidCadence  bool    `parquet:"name=valid_cadence, type=BOOLEAN"`
	FileOffset    int64   `parquet:"name=file_offset, type=INT64"`
	RecordIndex   int64   `parquet:"name=record_index, type=INT64"`
}

func writeCanonicalParquet(path string, samples []CanonicalSample) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	defer fw.Close()
	return writeParquetRows(fw, samples)
}

func marshalCanonicalParquet(samples []CanonicalSample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeParquetRows(fw, samples); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeParquetRows(fw source.ParquetFile, samples []CanonicalSample) error {
	pw, err := writer.NewParquetWriter(fw, new(canonicalParquetRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := canonicalParquetRow{
			TSUTCISO:      s.TSUTCISO,
			ElapsedS:      s.ElapsedS,
			PowerW:        valueOrNaN(s.PowerW),
			HRBPM:         valueOrNaN(s.HRBPM),
			CadenceRPM:    valueOrNaN(s.CadenceRPM),
			SpeedKPH:      valueOrNaN(s.SpeedKPH),
			DistanceM:     valueOrNaN(s.DistanceM),
			TorqueNM:      valueOrNaN(s.TorqueNM),
			AltitudeM:     valueOrNaN(s.AltitudeM),
			TemperatureC:  valueOrNaN(s.TemperatureC),
			IntervalIndex: int32(s.IntervalIndex),
			ValidPower:    s.ValidPower,
			ValidHR:       s.ValidHR,
			ValidCadence:  s.ValidCadence,
			FileOffset:    s.FileOffset,
			RecordIndex:   int64(s.RecordIndex),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
