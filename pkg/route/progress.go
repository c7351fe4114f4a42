package route

import (
	"github.com/paulmach/orb"

	"navvoice/pkg/model"
)

// Update is the outcome of feeding one position to Progress.
type Update struct {
	Along     float64
	Deviation float64
	Due       []model.Announcement
	OffRoute  bool // became off-route with this position
	Rejoined  bool
}

// Progress tracks a traveller along a route.
type Progress struct {
	route     *Route
	threshold float64
	next      int
	offRoute  bool
}

// NewProgress tracks r with the given off-route threshold in meters.
func NewProgress(r *Route, threshold float64) *Progress {
	return &Progress{route: r, threshold: threshold}
}

// Update projects pos onto the route. Announcements are due once their
// distance has been passed, each at most once and in route order. Nothing is
// due while off-route; instructions passed during a detour are skipped.
func (p *Progress) Update(pos orb.Point) Update {
	along, dev := p.route.Project(pos)
	u := Update{Along: along, Deviation: dev}

	if dev > p.threshold {
		if !p.offRoute {
			p.offRoute = true
			u.OffRoute = true
		}
		return u
	}

	if p.offRoute {
		p.offRoute = false
		u.Rejoined = true
		for p.next < len(p.route.Instructions) && p.route.Instructions[p.next].DistanceAlongGeometry < along {
			p.next++
		}
	}

	for p.next < len(p.route.Instructions) && p.route.Instructions[p.next].DistanceAlongGeometry <= along {
		u.Due = append(u.Due, p.route.Instructions[p.next])
		p.next++
	}
	return u
}

// OffRoute reports whether the last position was off-route.
func (p *Progress) OffRoute() bool {
	return p.offRoute
}

// Done reports whether every instruction has been handed out or skipped.
func (p *Progress) Done() bool {
	return p.next >= len(p.route.Instructions)
}
