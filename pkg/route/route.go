// Package route is a demo instruction source: it replays a GeoJSON route and
// emits voice announcements as a simulated position passes them.
package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"navvoice/pkg/model"
)

const metersPerDegree = 111320.0

// Detour moves the replayed position sideways off the line for a stretch,
// which is how a replay exercises off-route handling.
type Detour struct {
	Start  float64 `json:"start"`  // meters along the route
	Length float64 `json:"length"` // meters
	Offset float64 `json:"offset"` // meters to the right of travel
}

// Route is a line with voice instructions placed along it.
type Route struct {
	Line         orb.LineString
	Instructions []model.Announcement // sorted by DistanceAlongGeometry
	Detour       *Detour

	cumulative []float64
}

type voiceInstruction struct {
	Distance float64 `json:"distanceAlongGeometry"`
	Text     string  `json:"announcement"`
	SSML     string  `json:"ssmlAnnouncement"`
}

// Load reads a route from a GeoJSON file.
func Load(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse route %s: %w", path, err)
	}
	return r, nil
}

// Parse reads the first LineString feature of a FeatureCollection. Its
// "voiceInstructions" property lists the announcements; an optional "detour"
// property describes an off-route stretch.
func Parse(data []byte) (*Route, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	for _, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		if len(line) < 2 {
			return nil, errors.New("route line needs at least two points")
		}

		r := &Route{Line: line}
		r.measure()

		var raw []voiceInstruction
		if err := decodeProp(f.Properties, "voiceInstructions", &raw); err != nil {
			return nil, err
		}
		for i, vi := range raw {
			r.Instructions = append(r.Instructions, model.Announcement{
				ID:                    fmt.Sprintf("vi-%d", i),
				Text:                  vi.Text,
				SSML:                  vi.SSML,
				DistanceAlongGeometry: vi.Distance,
			})
		}
		sort.SliceStable(r.Instructions, func(i, j int) bool {
			return r.Instructions[i].DistanceAlongGeometry < r.Instructions[j].DistanceAlongGeometry
		})

		if _, ok := f.Properties["detour"]; ok {
			r.Detour = &Detour{}
			if err := decodeProp(f.Properties, "detour", r.Detour); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	return nil, errors.New("no LineString feature found")
}

func decodeProp(props geojson.Properties, key string, v any) error {
	val, ok := props[key]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

func (r *Route) measure() {
	r.cumulative = make([]float64, len(r.Line))
	for i := 1; i < len(r.Line); i++ {
		r.cumulative[i] = r.cumulative[i-1] + geo.Distance(r.Line[i-1], r.Line[i])
	}
}

// Length returns the route length in meters.
func (r *Route) Length() float64 {
	return r.cumulative[len(r.cumulative)-1]
}

// PointAt returns the position d meters along the route and the direction of
// travel there.
func (r *Route) PointAt(d float64) (orb.Point, float64) {
	d = math.Max(0, math.Min(d, r.Length()))
	return geo.PointAtDistanceAlongLine(r.Line, d)
}

// Project returns how far along the route the closest point to p lies, and
// how far p is from it, both in meters.
func (r *Route) Project(p orb.Point) (along, deviation float64) {
	deviation = math.MaxFloat64
	for i := 0; i < len(r.Line)-1; i++ {
		t, dist := projectSegment(p, r.Line[i], r.Line[i+1])
		if dist < deviation {
			deviation = dist
			along = r.cumulative[i] + t*(r.cumulative[i+1]-r.cumulative[i])
		}
	}
	return along, deviation
}

// projectSegment works in a local equirectangular frame centred on a, which
// is accurate enough at route-segment scale.
func projectSegment(p, a, b orb.Point) (t, dist float64) {
	scale := math.Cos(a[1] * math.Pi / 180)
	local := func(q orb.Point) orb.Point {
		return orb.Point{(q[0] - a[0]) * scale * metersPerDegree, (q[1] - a[1]) * metersPerDegree}
	}
	lp, lb := local(p), local(b)

	l2 := lb[0]*lb[0] + lb[1]*lb[1]
	if l2 > 0 {
		t = (lp[0]*lb[0] + lp[1]*lb[1]) / l2
		t = math.Max(0, math.Min(1, t))
	}
	closest := orb.Point{t * lb[0], t * lb[1]}
	return t, planar.Distance(lp, closest)
}
