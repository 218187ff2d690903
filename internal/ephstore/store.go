package ephstore

import (
	"errors"
	"math"
	"sync"

	"github.com/gnss-corr/rtcmpipe/internal/ssrcorr"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/sirupsen/logrus"
)

// CheckState is the ephemeris lifecycle tag from §4.5/§9:
// Fresh -> Ok <-> Outdated -> Evicted, or Fresh -> Bad -> Evicted.
type CheckState int

const (
	Fresh CheckState = iota
	Ok
	Bad
	Outdated
)

func (s CheckState) String() string {
	switch s {
	case Ok:
		return "ok"
	case Bad:
		return "bad"
	case Outdated:
		return "outdated"
	default:
		return "fresh"
	}
}

// CheckPolicy selects whether Insert runs the freshness sanity pass.
type CheckPolicy int

const (
	NoCheck CheckPolicy = iota
	Check
)

var (
	// ErrOutdatedEphemeris is returned by SatState when the only
	// available ephemeris for a satellite has aged out of its system
	// validity window.
	ErrOutdatedEphemeris = errors.New("ephstore: outdated ephemeris")
	// ErrNoEphemeris is returned when a satellite has no usable entry.
	ErrNoEphemeris = errors.New("ephstore: no ephemeris for satellite")
)

// Record wraps a decoded Eph with the store's mutable bookkeeping
// fields: check state and any correlated SSR corrections.
type Record struct {
	Eph   Eph
	State CheckState

	OrbCorr *ssrcorr.OrbitCorrection
	ClkCorr *ssrcorr.ClockCorrection

	// DivergenceMeters/DivergenceClockMeters are exposed regardless of
	// whether the divergence actually poisoned this record, per the
	// design's explicit metric requirement (§9 Open Question).
	DivergenceMeters      float64
	DivergenceClockMeters float64
}

// systemWindow returns the system-specific freshness window (§4.5).
func systemWindow(sys int) float64 {
	switch sys {
	case gnssgo.SYS_GLO:
		return 3600
	case gnssgo.SYS_CMP:
		return 6 * 3600
	default: // GPS, GAL, QZS, SBS
		return 4 * 3600
	}
}

// Store is the per-satellite bounded-deque ephemeris store, guarded by
// a single RWMutex per the concurrency model's shared-resource policy:
// mutations take the write path, Snapshot clones for I/O so writers
// never hold the lock during file output.
type Store struct {
	mu    sync.RWMutex
	deque map[int][]*Record
	bound int
	log   *logrus.Entry
}

// New creates a Store bounded to maxQueueSize entries per satellite.
func New(maxQueueSize int, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 5
	}
	return &Store{
		deque: make(map[int][]*Record),
		bound: maxQueueSize,
		log:   log.WithField("component", "ephstore"),
	}
}

// isNewerThan reports whether candidate's ToE strictly postdates
// last's, tolerating absent last (always newer).
func isNewerThan(candidate Eph, last *Record) bool {
	if last == nil {
		return true
	}
	d, err := gtime.TimeDiff(candidate.ToE(), last.Eph.ToE())
	if err != nil {
		// Different time systems should not happen within one
		// satellite's deque; treat as newer rather than wedge the
		// store on a comparison it cannot make.
		return true
	}
	return d > 0
}

// Insert runs the freshness/sanity check (if policy == Check) and
// accepts the ephemeris into the satellite's deque per §4.5's three
// numbered steps.
func (s *Store) Insert(e Eph, policy CheckPolicy) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sat := e.Sat()
	deque := s.deque[sat]

	// "If the store's current last is bad/outdated, treat it as
	// absent for the newer-than check."
	var effectiveLast *Record
	if n := len(deque); n > 0 {
		last := deque[n-1]
		if last.State != Bad && last.State != Outdated {
			effectiveLast = last
		}
	}

	rec := &Record{Eph: e, State: Fresh}

	if policy == Check {
		s.runFreshnessCheck(rec, deque)
	}

	if rec.State == Bad || rec.State == Outdated {
		s.log.WithFields(logrus.Fields{
			"sat": gnssgo.SatID(sat), "state": rec.State.String(),
		}).Warn("ephemeris rejected by freshness check")
		return rec, nil
	}

	if !isNewerThan(e, effectiveLast) {
		return rec, nil
	}

	deque = append(deque, rec)
	if len(deque) > s.bound {
		deque = deque[len(deque)-s.bound:]
	}
	s.deque[sat] = deque
	return rec, nil
}

// runFreshnessCheck implements §4.5 step 1: radial-distance sanity,
// age-window rejection, and the divergence-vs-prior comparison, whose
// "only poison when prior was ok" behavior is the design's resolved
// Open Question, not a guess.
func (s *Store) runFreshnessCheck(rec *Record, deque []*Record) {
	sys, _ := gnssgo.SatSys(rec.Eph.Sat())

	pos, _, clkBias := rec.Eph.Pos(rec.Eph.ToC())
	radius := vecnorm(pos)
	if radius < 2e7 || radius > 6e7 {
		rec.State = Bad
		return
	}

	now := gtime.Now(rec.Eph.ToC().Sys)
	if age, err := gtime.TimeDiff(now, rec.Eph.ToC()); err == nil {
		if age < 0 {
			age = -age
		}
		if age > systemWindow(sys) {
			rec.State = Outdated
			return
		}
	}

	if len(deque) == 0 {
		rec.State = Ok
		return
	}
	prev := deque[len(deque)-1]
	if prev.State == Bad || prev.State == Outdated {
		// "silently accepted" when the prior was not itself trusted.
		rec.State = Ok
		return
	}

	prevPos, _, prevClk := prev.Eph.Pos(prev.Eph.ToC())
	posDiverge := vecdist(pos, prevPos)
	clkDiverge := (clkBias - prevClk) * gnssgo.CLIGHT
	if clkDiverge < 0 {
		clkDiverge = -clkDiverge
	}
	rec.DivergenceMeters = posDiverge
	rec.DivergenceClockMeters = clkDiverge

	if posDiverge <= 1000 && clkDiverge <= 1000 {
		rec.State = Ok
		prev.State = Ok
		return
	}

	// Divergence only poisons the newer entry when the prior was
	// already trusted (ok); otherwise accept silently per §9.
	if prev.State == Ok {
		rec.State = Bad
		return
	}
	rec.State = Ok
}

func vecnorm(v [3]float64) float64 {
	return vecdist(v, [3]float64{})
}

func vecdist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Last returns the most recent Record for sat, or nil.
func (s *Store) Last(sat int) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deque := s.deque[sat]
	if len(deque) == 0 {
		return nil
	}
	return deque[len(deque)-1]
}

// Prev returns the second-most-recent Record for sat, or nil.
func (s *Store) Prev(sat int) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deque := s.deque[sat]
	if len(deque) < 2 {
		return nil
	}
	return deque[len(deque)-2]
}

// Len reports the current deque length for sat (for the maxQueueSize
// invariant test).
func (s *Store) Len(sat int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deque[sat])
}

// ApplyOrbitCorrection attaches orb to whichever of last/prev has a
// matching IOD, per §4.5.
func (s *Store) ApplyOrbitCorrection(orb ssrcorr.OrbitCorrection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	deque := s.deque[orb.Sat]
	for i := len(deque) - 1; i >= 0 && i >= len(deque)-2; i-- {
		if deque[i].Eph.IOD() == orb.IOD {
			orbCopy := orb
			deque[i].OrbCorr = &orbCopy
			return true
		}
	}
	return false
}

// ApplyClockCorrection attaches cwi to whichever of last/prev has a
// matching IOD.
func (s *Store) ApplyClockCorrection(cwi ssrcorr.ClockWithIOD) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	deque := s.deque[cwi.Clock.Sat]
	for i := len(deque) - 1; i >= 0 && i >= len(deque)-2; i-- {
		if deque[i].Eph.IOD() == cwi.IOD {
			clkCopy := cwi.Clock
			deque[i].ClkCorr = &clkCopy
			return true
		}
	}
	return false
}

// SatState computes (position, velocity, clock bias) for sat at t,
// using Last (falling back to Prev), applying SSR corrections when
// useCorrection is set and they are present and the ephemeris is
// healthy and within its validity window.
func (s *Store) SatState(sat int, t gtime.Gtime, useCorrection bool) (pos, vel [3]float64, clkBias float64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deque := s.deque[sat]
	var rec *Record
	for i := len(deque) - 1; i >= 0; i-- {
		if deque[i].State == Ok {
			rec = deque[i]
			break
		}
	}
	if rec == nil {
		return pos, vel, 0, ErrNoEphemeris
	}
	if !rec.Eph.Healthy() {
		return pos, vel, 0, ErrNoEphemeris
	}

	if d, derr := gtime.TimeDiff(t, rec.Eph.ToC()); derr == nil {
		if d < 0 {
			d = -d
		}
		if d > rec.Eph.ValidityWindow() {
			return pos, vel, 0, ErrOutdatedEphemeris
		}
	}

	pos, vel, clkBias = rec.Eph.Pos(t)

	if useCorrection {
		if rec.OrbCorr != nil {
			applyOrbitDelta(&pos, rec.OrbCorr, vel)
		}
		if rec.ClkCorr != nil {
			clkBias += rec.ClkCorr.C0 / gnssgo.CLIGHT
		}
	}
	return pos, vel, clkBias, nil
}

// applyOrbitDelta rotates the along/cross/radial SSR orbit delta into
// ECEF using the satellite's own position and velocity as the
// along-track/radial/cross-track basis, per the standard SSR
// application convention.
func applyOrbitDelta(pos *[3]float64, orb *ssrcorr.OrbitCorrection, vel [3]float64) {
	radial := normalize(*pos)
	cross := normalize(cross3(*pos, vel))
	along := cross3(cross, radial)

	for i := 0; i < 3; i++ {
		pos[i] -= orb.DRadial*radial[i] + orb.DAlongTrack*along[i] + orb.DCrossTrack*cross[i]
	}
}

func normalize(v [3]float64) [3]float64 {
	n := vecnorm(v)
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Snapshot returns a cloned, per-satellite view of the most recent Ok
// record for every satellite currently tracked — the form writers
// consume so they never hold the store mutex during I/O.
func (s *Store) Snapshot() map[int]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]Record, len(s.deque))
	for sat, deque := range s.deque {
		if len(deque) == 0 {
			continue
		}
		last := deque[len(deque)-1]
		out[sat] = *last
	}
	return out
}
