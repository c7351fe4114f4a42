package route

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navvoice/pkg/config"
	"navvoice/pkg/model"
)

// About 1113 m due east along the equator.
const testRoute = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [0, 0]},
      "properties": {}
    },
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[0, 0], [0.005, 0], [0.01, 0]]},
      "properties": {
        "voiceInstructions": [
          {"distanceAlongGeometry": 100, "announcement": "Head east"},
          {"distanceAlongGeometry": 1000, "announcement": "You have arrived", "ssmlAnnouncement": "<speak>You have arrived</speak>"},
          {"distanceAlongGeometry": 500, "announcement": "Continue straight"}
        ],
        "detour": {"start": 400, "length": 200, "offset": 100}
      }
    }
  ]
}`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(testRoute))
	require.NoError(t, err)

	assert.InDelta(t, 1113, r.Length(), 2)
	require.Len(t, r.Instructions, 3)
	assert.Equal(t, "Head east", r.Instructions[0].Text)
	assert.Equal(t, "Continue straight", r.Instructions[1].Text)
	assert.Equal(t, "<speak>You have arrived</speak>", r.Instructions[2].SSML)
	assert.Equal(t, "vi-1", r.Instructions[2].ID)

	require.NotNil(t, r.Detour)
	assert.Equal(t, Detour{Start: 400, Length: 200, Offset: 100}, *r.Detour)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "Invalid JSON", data: `{"type": `},
		{name: "No Line", data: `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`},
		{name: "Single Point Line", data: `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0]]},"properties":{}}]}`},
		{name: "Bad Instructions", data: `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]},"properties":{"voiceInstructions":"soon"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.geojson")
	require.NoError(t, os.WriteFile(path, []byte(testRoute), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, r.Instructions, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestProject(t *testing.T) {
	r, err := Parse([]byte(testRoute))
	require.NoError(t, err)

	tests := []struct {
		name      string
		p         orb.Point
		along     float64
		deviation float64
	}{
		{name: "Start", p: orb.Point{0, 0}, along: 0, deviation: 0},
		{name: "Midpoint", p: orb.Point{0.005, 0}, along: 556.6, deviation: 0},
		{name: "Beside Line", p: orb.Point{0.0025, 0.0005}, along: 278.3, deviation: 55.7},
		{name: "Before Start", p: orb.Point{-0.001, 0}, along: 0, deviation: 111.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			along, dev := r.Project(tt.p)
			assert.InDelta(t, tt.along, along, 1)
			assert.InDelta(t, tt.deviation, dev, 1)
		})
	}
}

func TestProgress(t *testing.T) {
	r, err := Parse([]byte(testRoute))
	require.NoError(t, err)
	p := NewProgress(r, 50)

	at := func(d float64) orb.Point {
		pt, _ := r.PointAt(d)
		return pt
	}

	u := p.Update(at(50))
	assert.Empty(t, u.Due)

	u = p.Update(at(150))
	require.Len(t, u.Due, 1)
	assert.Equal(t, "Head east", u.Due[0].Text)

	// Passed twice, announced once.
	u = p.Update(at(160))
	assert.Empty(t, u.Due)

	off := orb.Point{at(450)[0], 0.001}
	u = p.Update(off)
	assert.True(t, u.OffRoute)
	assert.True(t, p.OffRoute())

	// Still off: no second signal.
	u = p.Update(orb.Point{at(550)[0], 0.001})
	assert.False(t, u.OffRoute)
	assert.Empty(t, u.Due)

	// Rejoining past the 500 m instruction skips it.
	u = p.Update(at(700))
	assert.True(t, u.Rejoined)
	assert.Empty(t, u.Due)
	assert.False(t, p.Done())

	u = p.Update(at(1100))
	require.Len(t, u.Due, 1)
	assert.Equal(t, "You have arrived", u.Due[0].Text)
	assert.True(t, p.Done())
}

type sinkEvent struct {
	kind string
	id   string
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *fakeSink) Play(a *model.Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "play", id: a.ID})
}

func (s *fakeSink) OnOffRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "offroute"})
}

func (s *fakeSink) snapshot() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEvent(nil), s.events...)
}

func testRouteConfig() config.RouteConfig {
	return config.RouteConfig{
		OffRouteThreshold: config.Distance(50),
		Speed:             50,
		Tick:              config.Duration(time.Millisecond),
	}
}

func TestReplayer_Advance(t *testing.T) {
	r, err := Parse([]byte(testRoute))
	require.NoError(t, err)
	sink := &fakeSink{}
	rp := NewReplayer(r, sink, testRouteConfig())

	steps := 0
	for rp.Advance(50) {
		steps++
		require.Less(t, steps, 100, "replay never reached the end")
	}

	want := []sinkEvent{
		{kind: "play", id: "vi-0"},
		{kind: "offroute"},
		{kind: "play", id: "vi-1"},
	}
	assert.Equal(t, want, sink.snapshot())
}

func TestReplayer_Position(t *testing.T) {
	r, err := Parse([]byte(testRoute))
	require.NoError(t, err)
	rp := NewReplayer(r, &fakeSink{}, testRouteConfig())

	rp.Advance(450)
	_, dev := r.Project(rp.Position())
	assert.InDelta(t, 100, dev, 1, "inside the detour")

	rp.Advance(200)
	_, dev = r.Project(rp.Position())
	assert.InDelta(t, 0, dev, 1, "after the detour")
}

func TestReplayer_Run(t *testing.T) {
	r, err := Parse([]byte(testRoute))
	require.NoError(t, err)

	t.Run("Completes", func(t *testing.T) {
		sink := &fakeSink{}
		cfg := testRouteConfig()
		cfg.Speed = 300000
		rp := NewReplayer(r, sink, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, rp.Run(ctx))
		// 300 m steps never land inside the detour, so every instruction plays.
		assert.Len(t, sink.snapshot(), 3)
	})

	t.Run("Canceled", func(t *testing.T) {
		cfg := testRouteConfig()
		cfg.Speed = 0.001
		rp := NewReplayer(r, &fakeSink{}, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, rp.Run(ctx), context.Canceled)
	})
}
