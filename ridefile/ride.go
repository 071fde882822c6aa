package ridefile

import (
	"sort"
	"time"
)

// Point is one normalized ride sample. Lon, Lat and Headwind are carried for
// formats that record them and stay zero otherwise.
type Point struct {
	Secs     float64 `json:"secs"`
	Cad      float64 `json:"cad"`
	HR       float64 `json:"hr"`
	Km       float64 `json:"km"`
	Kph      float64 `json:"kph"`
	Nm       float64 `json:"nm"`
	Watts    float64 `json:"watts"`
	Alt      float64 `json:"alt"`
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
	Headwind float64 `json:"headwind"`
	Interval int     `json:"interval"`
}

// Interval is a half-open [Start, Stop) range of elapsed seconds. An empty
// Name marks an unnamed gap between named intervals.
type Interval struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Name  string  `json:"name"`
}

// Duration returns Stop-Start, or 0 for inverted ranges.
func (iv Interval) Duration() float64 {
	if iv.Stop <= iv.Start {
		return 0
	}
	return iv.Stop - iv.Start
}

// Contains reports whether secs falls inside the half-open range.
func (iv Interval) Contains(secs float64) bool {
	return secs >= iv.Start && secs < iv.Stop
}

// Ride is the in-memory container format decoders emit into.
type Ride struct {
	DeviceType string            `json:"device_type"`
	StartTime  time.Time         `json:"start_time"`
	RecIntSecs float64           `json:"rec_int_secs"`
	Points     []Point           `json:"points"`
	Intervals  []Interval        `json:"intervals"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// New returns an empty ride ready to be filled by a decoder.
func New() *Ride {
	return &Ride{Tags: make(map[string]string)}
}

func (r *Ride) SetDeviceType(deviceType string) { r.DeviceType = deviceType }
func (r *Ride) SetStartTime(t time.Time)        { r.StartTime = t }
func (r *Ride) SetRecIntSecs(secs float64)      { r.RecIntSecs = secs }
func (r *Ride) AppendPoint(p Point)             { r.Points = append(r.Points, p) }

func (r *Ride) AddInterval(start, stop float64, name string) {
	r.Intervals = append(r.Intervals, Interval{Start: start, Stop: stop, Name: name})
}

func (r *Ride) SetTag(key, value string) {
	if r.Tags == nil {
		r.Tags = make(map[string]string)
	}
	r.Tags[key] = value
}

// Tag returns the tag value or "" when unset.
func (r *Ride) Tag(key string) string {
	if r.Tags == nil {
		return ""
	}
	return r.Tags[key]
}

// Duration is the elapsed seconds covered by the ride, including the last
// sample's recording interval.
func (r *Ride) Duration() float64 {
	if len(r.Points) == 0 {
		return 0
	}
	return r.Points[len(r.Points)-1].Secs + r.RecIntSecs
}

// EndTime is StartTime plus Duration.
func (r *Ride) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.Duration() * float64(time.Second)))
}

// DistanceKm returns the cumulative distance of the last point.
func (r *Ride) DistanceKm() float64 {
	if len(r.Points) == 0 {
		return 0
	}
	return r.Points[len(r.Points)-1].Km
}

// NamedIntervals returns the intervals with a non-empty name, in order.
func (r *Ride) NamedIntervals() []Interval {
	out := make([]Interval, 0, len(r.Intervals))
	for _, iv := range r.Intervals {
		if iv.Name != "" {
			out = append(out, iv)
		}
	}
	return out
}

// PointsIn returns the points whose Secs fall inside iv. Points are sorted by
// Secs, so the result is a sub-slice of r.Points.
func (r *Ride) PointsIn(iv Interval) []Point {
	lo := sort.Search(len(r.Points), func(i int) bool { return r.Points[i].Secs >= iv.Start })
	hi := sort.Search(len(r.Points), func(i int) bool { return r.Points[i].Secs >= iv.Stop })
	if hi < lo {
		hi = lo
	}
	return r.Points[lo:hi]
}

// HasAltitude reports whether any point carries a non-zero altitude.
func (r *Ride) HasAltitude() bool {
	for _, p := range r.Points {
		if p.Alt != 0 {
			return true
		}
	}
	return false
}
