// Package fitexport converts decoded rides into FIT activity files.
package fitexport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

var ErrEmptyRide = errors.New("ride has no points")

// Encode writes ride as a little-endian FIT activity.
func Encode(w io.Writer, ride *ridefile.Ride) error {
	file, err := BuildFile(ride)
	if err != nil {
		return err
	}
	if err := fit.Encode(w, file, binary.LittleEndian); err != nil {
		return fmt.Errorf("encode fit: %w", err)
	}
	return nil
}

// BuildFile assembles the FIT activity: one record per point, one lap per
// named interval (or a single lap), a session, timer events and the activity.
func BuildFile(ride *ridefile.Ride) (*fit.File, error) {
	if ride == nil || len(ride.Points) == 0 {
		return nil, ErrEmptyRide
	}
	if ride.StartTime.Before(fitEpoch) {
		return nil, fmt.Errorf("start time %s is before the FIT epoch", ride.StartTime.UTC().Format(time.RFC3339))
	}

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		return nil, fmt.Errorf("new fit file: %w", err)
	}
	file.FileId.Manufacturer = fit.ManufacturerSrm
	file.FileId.TimeCreated = ride.StartTime

	activity, err := file.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity accessor: %w", err)
	}

	start := ride.StartTime
	end := at(start, ride.Duration())
	withAlt := ride.HasAltitude()

	activity.Events = append(activity.Events, timerEvent(start, fit.EventTypeStart))
	for _, p := range ride.Points {
		activity.Records = append(activity.Records, recordMsg(start, p, withAlt))
	}
	activity.Events = append(activity.Events, timerEvent(end, fit.EventTypeStopAll))

	laps := lapRanges(ride)
	for _, iv := range laps {
		activity.Laps = append(activity.Laps, lapMsg(start, iv, ride.PointsIn(iv), ride.RecIntSecs))
	}

	whole := ridefile.Interval{Start: 0, Stop: ride.Duration()}
	session := fit.NewSessionMsg()
	session.Timestamp = end
	session.StartTime = start
	session.Sport = fit.SportCycling
	session.NumLaps = uint16(len(laps))
	session.FirstLapIndex = 0
	fillTotals(&totals{
		elapsed:  &session.TotalElapsedTime,
		timer:    &session.TotalTimerTime,
		distance: &session.TotalDistance,
		avgSpeed: &session.AvgSpeed,
		maxSpeed: &session.MaxSpeed,
		avgHR:    &session.AvgHeartRate,
		maxHR:    &session.MaxHeartRate,
		avgCad:   &session.AvgCadence,
		maxCad:   &session.MaxCadence,
		avgPower: &session.AvgPower,
		maxPower: &session.MaxPower,
	}, whole, ride.Points, ride.RecIntSecs)
	activity.Sessions = append(activity.Sessions, session)

	act := fit.NewActivityMsg()
	act.Timestamp = end
	act.TotalTimerTime = session.TotalTimerTime
	act.NumSessions = 1
	activity.Activity = act

	return file, nil
}

// lapRanges returns the named intervals, or the whole ride when there are none.
func lapRanges(ride *ridefile.Ride) []ridefile.Interval {
	named := ride.NamedIntervals()
	if len(named) > 0 {
		return named
	}
	return []ridefile.Interval{{Start: 0, Stop: ride.Duration()}}
}

func at(start time.Time, secs float64) time.Time {
	return start.Add(time.Duration(secs * float64(time.Second)))
}

func timerEvent(ts time.Time, typ fit.EventType) *fit.EventMsg {
	ev := fit.NewEventMsg()
	ev.Timestamp = ts
	ev.Event = fit.EventTimer
	ev.EventType = typ
	return ev
}

func recordMsg(start time.Time, p ridefile.Point, withAlt bool) *fit.RecordMsg {
	rec := fit.NewRecordMsg()
	rec.Timestamp = at(start, p.Secs)
	rec.Power = clampU16(p.Watts)
	rec.HeartRate = clampU8(p.HR)
	rec.Cadence = clampU8(p.Cad)
	rec.Speed = clampU16(p.Kph / 3.6 * 1000)
	rec.Distance = clampU32(p.Km * 1000 * 100)
	if withAlt {
		rec.Altitude = clampU16((p.Alt + 500) * 5)
	}
	return rec
}

func lapMsg(start time.Time, iv ridefile.Interval, points []ridefile.Point, recInt float64) *fit.LapMsg {
	lap := fit.NewLapMsg()
	lap.StartTime = at(start, iv.Start)
	lap.Timestamp = at(start, iv.Stop)
	lap.Event = fit.EventLap
	lap.EventType = fit.EventTypeStop
	fillTotals(&totals{
		elapsed:  &lap.TotalElapsedTime,
		timer:    &lap.TotalTimerTime,
		distance: &lap.TotalDistance,
		avgSpeed: &lap.AvgSpeed,
		maxSpeed: &lap.MaxSpeed,
		avgHR:    &lap.AvgHeartRate,
		maxHR:    &lap.MaxHeartRate,
		avgCad:   &lap.AvgCadence,
		maxCad:   &lap.MaxCadence,
		avgPower: &lap.AvgPower,
		maxPower: &lap.MaxPower,
	}, iv, points, recInt)
	return lap
}

// totals points at the summary fields shared by lap and session messages.
type totals struct {
	elapsed, timer     *uint32
	distance           *uint32
	avgSpeed, maxSpeed *uint16
	avgHR, maxHR       *uint8
	avgCad, maxCad     *uint8
	avgPower, maxPower *uint16
}

func fillTotals(t *totals, iv ridefile.Interval, points []ridefile.Point, recInt float64) {
	*t.elapsed = clampU32(iv.Duration() * 1000)
	*t.timer = *t.elapsed
	if len(points) == 0 {
		return
	}

	var sumKph, maxKph, sumHR, maxHR, sumCad, maxCad, sumW, maxW float64
	for _, p := range points {
		sumKph += p.Kph
		sumHR += p.HR
		sumCad += p.Cad
		sumW += p.Watts
		maxKph = math.Max(maxKph, p.Kph)
		maxHR = math.Max(maxHR, p.HR)
		maxCad = math.Max(maxCad, p.Cad)
		maxW = math.Max(maxW, p.Watts)
	}
	n := float64(len(points))
	// Each point's Km already includes its own recording interval.
	before := points[0].Km - recInt*points[0].Kph/3600
	*t.distance = clampU32((points[len(points)-1].Km - before) * 1000 * 100)
	*t.avgSpeed = clampU16(sumKph / n / 3.6 * 1000)
	*t.maxSpeed = clampU16(maxKph / 3.6 * 1000)
	*t.avgHR = clampU8(sumHR / n)
	*t.maxHR = clampU8(maxHR)
	*t.avgCad = clampU8(sumCad / n)
	*t.maxCad = clampU8(maxCad)
	*t.avgPower = clampU16(sumW / n)
	*t.maxPower = clampU16(maxW)
}

// The clamp helpers keep values below the FIT invalid sentinel of each width.
func clampU8(v float64) uint8 {
	return uint8(clamp(v, math.MaxUint8-1))
}

func clampU16(v float64) uint16 {
	return uint16(clamp(v, math.MaxUint16-1))
}

func clampU32(v float64) uint32 {
	return uint32(clamp(v, math.MaxUint32-1))
}

func clamp(v, hi float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return math.Round(v)
}
