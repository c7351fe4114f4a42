package playback

// Sequencer hands out arrival numbers for fetches and releases their assets
// strictly in that order. A fetch that completes early is parked until all
// earlier fetches have resolved, so it can only ever join the queue tail.
//
// Sequencer is not safe for concurrent use; it belongs to a single owner.
type Sequencer struct {
	issued  uint64
	release uint64
	parked  map[uint64]slot
}

type slot struct {
	asset Asset
	ok    bool
}

// NewSequencer creates a sequencer whose first issued number is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{
		release: 1,
		parked:  make(map[uint64]slot),
	}
}

// Issue reserves the next arrival number.
func (s *Sequencer) Issue() uint64 {
	s.issued++
	return s.issued
}

// Resolve records the outcome for seq. ok=false marks a fetch that produced
// nothing to play. It returns the assets that are now releasable, in order.
func (s *Sequencer) Resolve(seq uint64, a Asset, ok bool) []Asset {
	if seq < s.release || seq > s.issued {
		return nil
	}
	s.parked[seq] = slot{asset: a, ok: ok}

	var out []Asset
	for {
		sl, found := s.parked[s.release]
		if !found {
			break
		}
		delete(s.parked, s.release)
		s.release++
		if sl.ok {
			out = append(out, sl.asset)
		}
	}
	return out
}

// DrainParked hands over every asset that completed early and is still
// waiting on an earlier fetch. Their slots stay resolved as empty so later
// releases are not blocked.
func (s *Sequencer) DrainParked() []Asset {
	var out []Asset
	for seq := s.release; seq <= s.issued; seq++ {
		sl, found := s.parked[seq]
		if !found || !sl.ok {
			continue
		}
		out = append(out, sl.asset)
		s.parked[seq] = slot{}
	}
	return out
}

// Abandon gives up on every issued number that has not been released yet and
// returns how many of them were still unresolved. Parked assets are dropped
// from the buffer, so callers drain them first. Results that arrive later for
// an abandoned number are reported by Abandoned and ignored by Resolve.
func (s *Sequencer) Abandon() int {
	unresolved := 0
	for seq := s.release; seq <= s.issued; seq++ {
		if _, found := s.parked[seq]; !found {
			unresolved++
		}
	}
	clear(s.parked)
	s.release = s.issued + 1
	return unresolved
}

// Abandoned reports whether seq was issued but can no longer be released.
// Each fetch resolves once, so a result for such a number was abandoned.
func (s *Sequencer) Abandoned(seq uint64) bool {
	return seq >= 1 && seq < s.release
}

// Outstanding returns how many issued fetches have not been released yet.
func (s *Sequencer) Outstanding() int {
	return int(s.issued - (s.release - 1))
}
