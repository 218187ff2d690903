// Package epoch implements the Epoch Assembler (§4.6): a per-station,
// time-keyed accumulator of per-satellite observations with a
// deferred-dump policy that flushes complete epochs once dumpWait
// seconds of real-time slack has elapsed.
package epoch

import (
	"sort"
	"sync"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/sirupsen/logrus"
)

// Obs is one satellite's observation within one station's epoch.
type Obs struct {
	Time    gtime.Gtime
	Station int
	Sat     int
	Code    []byte
	L       []float64
	P       []float64
	D       []float64
	SNR     []float64
	LLI     []byte
	Valid   []bool
}

// FlushFunc receives a completed epoch's flattened observation list,
// in emission order, for the RINEX-Obs writer.
type FlushFunc func(t gtime.Gtime, obs []Obs)

// SnapshotFunc receives the per-station snapshot handed to downstream
// (Signal Hub) subscribers at the same moment an epoch flushes.
type SnapshotFunc func(station int, obs []Obs)

type stationSat struct {
	station, sat int
}

// Assembler owns the mutable epoch/station accumulators described in
// §3's "Epoch assembler state". It is meant to be owned by a single
// goroutine per the concurrency model — Ingest is not safe to call
// concurrently from multiple goroutines feeding the same Assembler,
// though its internal mutex protects Snapshot-style external reads
// (e.g. for diagnostics) from racing a concurrent Ingest.
type Assembler struct {
	mu sync.Mutex

	perEpoch   map[int64][]Obs
	epochTimes map[int64]gtime.Gtime
	perStation map[int][]Obs

	lastDumpTime    gtime.Gtime
	haveLastDump    bool
	dumpWait        float64
	maxRealtimeSkew float64
	realtime        bool

	lastSeen map[stationSat]gtime.Gtime

	onFlush    FlushFunc
	onSnapshot SnapshotFunc
	log        *logrus.Entry
}

// New creates an Assembler with the given dump-wait window (seconds).
// onFlush and onSnapshot may be nil.
func New(dumpWait float64, realtime bool, onFlush FlushFunc, onSnapshot SnapshotFunc, log *logrus.Logger) *Assembler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if dumpWait <= 0 {
		dumpWait = 33
	}
	return &Assembler{
		perEpoch:        make(map[int64][]Obs),
		epochTimes:      make(map[int64]gtime.Gtime),
		perStation:      make(map[int][]Obs),
		dumpWait:        dumpWait,
		maxRealtimeSkew: 600,
		realtime:        realtime,
		lastSeen:        make(map[stationSat]gtime.Gtime),
		onFlush:         onFlush,
		onSnapshot:      onSnapshot,
		log:             log.WithField("component", "epoch"),
	}
}

// epochKey buckets a Gtime to millisecond resolution so it can serve
// as a map key without float-equality pitfalls.
func epochKey(t gtime.Gtime) int64 {
	return t.Time*1000 + int64(t.Sec*1000+0.5)
}

// Ingest records one station's decoded epoch (every satellite's Obs
// sharing the same time) per §4.6's ingest rule, then runs the
// deferred-dump check.
func (a *Assembler) Ingest(t gtime.Gtime, records []Obs) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.haveLastDump {
		if d, err := gtime.TimeDiff(t, a.lastDumpTime); err == nil && d <= 0 {
			a.log.WithField("time", gtime.TimeStr(t, 1)).Debug("dropping epoch at/before last_dump_time")
			return
		}
	}

	var accepted []Obs
	for _, rec := range records {
		key := stationSat{rec.Station, rec.Sat}
		if prev, ok := a.lastSeen[key]; ok {
			if d, err := gtime.TimeDiff(rec.Time, prev); err == nil && d <= 0 {
				continue // duplicate/out-of-order per station+sat
			}
		}
		if a.realtime {
			now := gtime.Now(rec.Time.Sys)
			if d, err := gtime.TimeDiff(now, rec.Time); err == nil {
				if d < 0 {
					d = -d
				}
				if d > a.maxRealtimeSkew {
					continue
				}
			}
		}
		a.lastSeen[key] = rec.Time
		accepted = append(accepted, rec)
	}
	if len(accepted) == 0 {
		return
	}

	key := epochKey(t)
	a.perEpoch[key] = append(a.perEpoch[key], accepted...)
	a.epochTimes[key] = t
	for _, rec := range accepted {
		a.perStation[rec.Station] = append(a.perStation[rec.Station], rec)
	}

	cut := gtime.TimeAdd(t, -a.dumpWait)
	if !a.haveLastDump {
		a.flushThrough(cut)
		return
	}
	if d, err := gtime.TimeDiff(cut, a.lastDumpTime); err == nil && d > 0 {
		a.flushThrough(cut)
	}
}

// flushThrough emits every accumulated epoch with time <= cut, in
// ascending time order, then advances last_dump_time to cut. Caller
// holds a.mu.
func (a *Assembler) flushThrough(cut gtime.Gtime) {
	type pending struct {
		key  int64
		time gtime.Gtime
	}
	var toFlush []pending
	for key, t := range a.epochTimes {
		if d, err := gtime.TimeDiff(t, cut); err == nil && d <= 0 {
			toFlush = append(toFlush, pending{key, t})
		}
	}
	sort.Slice(toFlush, func(i, j int) bool {
		d, _ := gtime.TimeDiff(toFlush[i].time, toFlush[j].time)
		return d < 0
	})

	for _, p := range toFlush {
		obs := a.perEpoch[p.key]
		delete(a.perEpoch, p.key)
		delete(a.epochTimes, p.key)
		if a.onFlush != nil {
			a.onFlush(p.time, obs)
		}
	}

	if len(toFlush) > 0 {
		if a.onSnapshot != nil {
			for station, obs := range a.perStation {
				snap := make([]Obs, len(obs))
				copy(snap, obs)
				a.onSnapshot(station, snap)
			}
		}
		a.perStation = make(map[int][]Obs)
	}

	a.lastDumpTime = cut
	a.haveLastDump = true
}

// LastDumpTime reports the assembler's current last_dump_time (for
// tests asserting the "never decreases" invariant).
func (a *Assembler) LastDumpTime() (gtime.Gtime, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastDumpTime, a.haveLastDump
}
