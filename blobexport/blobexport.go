// Package blobexport packs ride channels into a compressed mebo numeric blob.
package blobexport

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/mebo"
	"github.com/arloliu/mebo/blob"
	"github.com/arloliu/mebo/format"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

// Channel names stored in the blob.
const (
	ChannelPower    = "power_w"
	ChannelHR       = "heart_rate_bpm"
	ChannelCadence  = "cadence_rpm"
	ChannelSpeed    = "speed_kph"
	ChannelDistance = "distance_km"
	ChannelTorque   = "torque_nm"
	ChannelAltitude = "altitude_m"
	ChannelInterval = "interval_index"
)

var (
	ErrEmptyRide    = errors.New("ride has no points")
	ErrRideTooLong  = errors.New("ride exceeds the per-metric point limit")
	ErrUnknownField = errors.New("channel not present in blob")
)

type channel struct {
	name  string
	value func(ridefile.Point) float64
}

var channels = []channel{
	{ChannelPower, func(p ridefile.Point) float64 { return p.Watts }},
	{ChannelHR, func(p ridefile.Point) float64 { return p.HR }},
	{ChannelCadence, func(p ridefile.Point) float64 { return p.Cad }},
	{ChannelSpeed, func(p ridefile.Point) float64 { return p.Kph }},
	{ChannelDistance, func(p ridefile.Point) float64 { return p.Km }},
	{ChannelTorque, func(p ridefile.Point) float64 { return p.Nm }},
	{ChannelAltitude, func(p ridefile.Point) float64 { return p.Alt }},
	{ChannelInterval, func(p ridefile.Point) float64 { return float64(p.Interval) }},
}

// Channels lists the stored channel names in blob order.
func Channels() []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = c.name
	}
	return out
}

// Encode writes every channel as its own metric. Timestamps are Unix
// microseconds of StartTime+Secs, delta encoded; values are Gorilla encoded
// and S2 compressed.
func Encode(ride *ridefile.Ride) ([]byte, error) {
	if ride == nil || len(ride.Points) == 0 {
		return nil, ErrEmptyRide
	}
	n := len(ride.Points)
	if n > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d points", ErrRideTooLong, n)
	}

	enc, err := mebo.NewNumericEncoder(ride.StartTime,
		blob.WithTimestampEncoding(format.TypeDelta),
		blob.WithValueEncoding(format.TypeGorilla),
		blob.WithValueCompression(format.CompressionS2),
	)
	if err != nil {
		return nil, fmt.Errorf("new numeric encoder: %w", err)
	}

	timestamps := make([]int64, n)
	for i, p := range ride.Points {
		timestamps[i] = ride.StartTime.Add(time.Duration(p.Secs * float64(time.Second))).UnixMicro()
	}

	for _, ch := range channels {
		if err := enc.StartMetricName(ch.name, n); err != nil {
			return nil, fmt.Errorf("start metric %s: %w", ch.name, err)
		}
		for i, p := range ride.Points {
			if err := enc.AddDataPoint(timestamps[i], ch.value(p), ""); err != nil {
				return nil, fmt.Errorf("add %s point %d: %w", ch.name, i, err)
			}
		}
		if err := enc.EndMetric(); err != nil {
			return nil, fmt.Errorf("end metric %s: %w", ch.name, err)
		}
	}

	data, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish blob: %w", err)
	}
	return data, nil
}

// Series is a decoded blob: shared timestamps and one value slice per channel.
type Series struct {
	StartTime  time.Time
	Timestamps []time.Time
	Values     map[string][]float64
}

// Decode reads a blob written by Encode.
func Decode(data []byte) (*Series, error) {
	dec, err := mebo.NewNumericDecoder(data)
	if err != nil {
		return nil, fmt.Errorf("new numeric decoder: %w", err)
	}
	b, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}

	s := &Series{StartTime: b.StartTime(), Values: make(map[string][]float64, len(channels))}
	for _, ch := range channels {
		if b.LenByName(ch.name) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, ch.name)
		}
		values := make([]float64, 0, b.LenByName(ch.name))
		for _, dp := range b.AllByName(ch.name) {
			values = append(values, dp.Val)
			if ch.name == ChannelPower {
				s.Timestamps = append(s.Timestamps, time.UnixMicro(dp.Ts).UTC())
			}
		}
		s.Values[ch.name] = values
	}
	return s, nil
}
