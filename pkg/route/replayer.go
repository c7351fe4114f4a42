package route

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"navvoice/pkg/config"
	"navvoice/pkg/logging"
	"navvoice/pkg/model"
)

// Sink receives what the replay produces. voice.Player satisfies it.
type Sink interface {
	Play(a *model.Announcement)
	OnOffRoute()
}

// Replayer moves a simulated position along a route at constant speed.
type Replayer struct {
	route    *Route
	progress *Progress
	sink     Sink
	speed    float64 // m/s
	tick     time.Duration

	traveled float64
}

// NewReplayer creates a replayer from the route settings.
func NewReplayer(r *Route, sink Sink, cfg config.RouteConfig) *Replayer {
	rp := &Replayer{
		route:    r,
		progress: NewProgress(r, float64(cfg.OffRouteThreshold)),
		sink:     sink,
		speed:    cfg.Speed,
		tick:     time.Duration(cfg.Tick),
	}
	if rp.speed <= 0 {
		rp.speed = 15
	}
	if rp.tick <= 0 {
		rp.tick = time.Second
	}
	return rp
}

// Run replays until the end of the route or until ctx is done.
func (rp *Replayer) Run(ctx context.Context) error {
	slog.Info("Route: Replay started",
		"length_m", int(rp.route.Length()),
		"instructions", len(rp.route.Instructions),
		"speed_mps", rp.speed)

	ticker := time.NewTicker(rp.tick)
	defer ticker.Stop()

	rp.Advance(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !rp.Advance(rp.speed * rp.tick.Seconds()) {
				slog.Info("Route: Replay finished")
				return nil
			}
		}
	}
}

// Advance moves the position by meters and forwards what became due.
// It returns false once the end of the route has been reached.
func (rp *Replayer) Advance(meters float64) bool {
	rp.traveled += meters
	pos := rp.Position()
	u := rp.progress.Update(pos)
	logging.TraceDefault("Route: Position", "traveled_m", int(rp.traveled), "deviation_m", int(u.Deviation))

	if u.OffRoute {
		slog.Info("Route: Off route", "deviation_m", int(u.Deviation), "along_m", int(u.Along))
		rp.sink.OnOffRoute()
	}
	if u.Rejoined {
		slog.Info("Route: Back on route", "along_m", int(u.Along))
	}
	for i := range u.Due {
		a := u.Due[i]
		slog.Debug("Route: Instruction due", "id", a.ID, "at_m", a.DistanceAlongGeometry)
		rp.sink.Play(&a)
	}

	return rp.traveled < rp.route.Length()
}

// Position returns the simulated position, shifted sideways inside a detour.
func (rp *Replayer) Position() orb.Point {
	p, bearing := rp.route.PointAt(rp.traveled)
	if d := rp.route.Detour; d != nil && rp.traveled >= d.Start && rp.traveled < d.Start+d.Length {
		return geo.PointAtBearingAndDistance(p, bearing+90, d.Offset)
	}
	return p
}
