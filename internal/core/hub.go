// Package core implements the Signal Hub and the CoreContext that owns
// it (§4.8): the process-wide broker that routes decoded records from
// decoders to the ephemeris store, epoch assemblers, writers, and any
// downstream consumer (PPP) — held inside one explicit struct built
// once at startup. No package-level singleton exists anywhere in this
// tree, per the REDESIGN mandate this replaces.
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/gnss-corr/rtcmpipe/internal/config"
	"github.com/gnss-corr/rtcmpipe/internal/ephstore"
	"github.com/gnss-corr/rtcmpipe/internal/epoch"
	"github.com/gnss-corr/rtcmpipe/internal/ssrcorr"
	"github.com/gnss-corr/rtcmpipe/internal/writer"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/rtcm"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RecordKind tags which broadcast channel a decoded record fans out
// on, per §4.8's "keyed by record kind (Obs, Eph, SSROrbit, SSRClock)".
type RecordKind string

const (
	KindObs      RecordKind = "obs"
	KindEph      RecordKind = "eph"
	KindSSROrbit RecordKind = "ssrorbit"
	KindSSRClock RecordKind = "ssrclock"
)

const broadcastBuffer = 64

// broadcast is a bounded, drop-oldest fan-out point: Publish never
// blocks, evicting the oldest buffered item on a full subscriber
// channel rather than stalling the publisher for a slow consumer.
type broadcast struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan interface{}
}

func newBroadcast() *broadcast {
	return &broadcast{subs: make(map[uuid.UUID]chan interface{})}
}

func (b *broadcast) subscribe() (uuid.UUID, <-chan interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	ch := make(chan interface{}, broadcastBuffer)
	b.subs[id] = ch
	return id, ch
}

func (b *broadcast) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *broadcast) publish(v interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// CoreContext is constructed once at startup from Config and owns the
// Ephemeris Store, the SSR Correlator, one Epoch Assembler per
// configured mountpoint, the writer set, and the Signal Hub's
// broadcast channels. Every component that needs any of these takes a
// *CoreContext (or a narrower interface over it) as a constructor
// argument — there is no global to reach for instead.
type CoreContext struct {
	Config *config.Config

	Store *ephstore.Store
	Corr  *ssrcorr.Correlator

	assemblers map[int]*epoch.Assembler
	mountNames map[int]string

	navWriter  *writer.NavWriter
	obsWriters map[int]*writer.ObsWriter
	sp3Writer  *writer.SP3Writer

	hub map[RecordKind]*broadcast

	gpsWeek int

	log *logrus.Entry
}

// New builds a CoreContext from cfg: the ephemeris store, SSR
// correlator, one assembler and RINEX-Obs writer per mount, and the
// shared RINEX-Nav/SP3 writers.
func New(cfg *config.Config, log *logrus.Logger) (*CoreContext, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cc := &CoreContext{
		Config:     cfg,
		Store:      ephstore.New(cfg.MaxQueueSize, log),
		Corr:       ssrcorr.New(log),
		assemblers: make(map[int]*epoch.Assembler),
		mountNames: make(map[int]string),
		obsWriters: make(map[int]*writer.ObsWriter),
		hub: map[RecordKind]*broadcast{
			KindObs:      newBroadcast(),
			KindEph:      newBroadcast(),
			KindSSROrbit: newBroadcast(),
			KindSSRClock: newBroadcast(),
		},
		log: log.WithField("component", "core"),
	}

	cc.navWriter = writer.NewNavWriter(cfg.CorrPath, "ntripcorr", log)
	cc.sp3Writer = writer.NewSP3Writer(cfg.CorrPath, cfg.CorrMount, "ntripcorr", cfg.Sample, cfg.UseCorrection, cc.Store, log)

	for i, m := range cfg.Mounts {
		station := i + 1
		cc.mountNames[station] = m.Mountpoint
		ow := writer.NewObsWriter(cfg.CorrPath, m.Mountpoint, "ntripcorr", log)
		cc.obsWriters[station] = ow
		cc.assemblers[station] = epoch.New(cfg.DumpWait, true, ow.OnFlush, cc.snapshotObs(station), log)
	}

	var week int
	gtime.Time2GpsT(gtime.Now(gtime.GPS), &week)
	cc.gpsWeek = week

	return cc, nil
}

// snapshotObs returns an epoch.SnapshotFunc that publishes a flushed
// station's observations onto the Obs broadcast channel.
func (cc *CoreContext) snapshotObs(station int) epoch.SnapshotFunc {
	return func(_ int, obs []epoch.Obs) {
		cc.hub[KindObs].publish(obs)
	}
}

// Subscribe registers a new subscriber for kind, returning its ID (for
// Unsubscribe) and its receive-only channel.
func (cc *CoreContext) Subscribe(kind RecordKind) (uuid.UUID, <-chan interface{}) {
	return cc.hub[kind].subscribe()
}

// Unsubscribe removes and closes a subscriber's channel.
func (cc *CoreContext) Unsubscribe(kind RecordKind, id uuid.UUID) {
	cc.hub[kind].unsubscribe(id)
}

// HandleMessage decodes one framed RTCM message received on the given
// mount (1-based, per cfg.Mounts order) and dispatches it to the
// store, correlator, assembler, and hub per the data-flow diagram:
// bytes -> codec -> decoders -> (Obs -> assembler -> RINEX-Obs, hub);
// (Eph -> store -> RINEX-Nav); (SSR -> correlator -> store -> SP3, hub).
func (cc *CoreContext) HandleMessage(station int, msg *rtcm.RTCMMessage) error {
	decoded, err := rtcm.DecodeRTCMMessage(msg)
	if err != nil {
		return fmt.Errorf("core: decode mount %d: %w", station, err)
	}
	return cc.DispatchDecoded(station, decoded)
}

// DispatchDecoded routes an already-decoded record (typically produced
// by a rtcm.WorkerPool running as its own decode-stage goroutine) to
// its store/assembler/hub consumer. Splitting this out of HandleMessage
// lets the decode stage run concurrently with dispatch per §5's
// goroutine-per-decoder model, while HandleMessage stays available for
// callers that want decode-and-dispatch as one step.
func (cc *CoreContext) DispatchDecoded(station int, decoded interface{}) error {
	switch v := decoded.(type) {
	case *rtcm.GPSEphemeris:
		return cc.handleGPSEph(*v)
	case rtcm.GPSEphemeris:
		return cc.handleGPSEph(v)
	case *rtcm.GLONASSEphemeris:
		return cc.handleGLOEph(*v)
	case rtcm.GLONASSEphemeris:
		return cc.handleGLOEph(v)
	case *rtcm.ObservationData:
		cc.handleObs(station, *v)
	case rtcm.ObservationData:
		cc.handleObs(station, v)
	case *rtcm.SSROrbitClockCorrection:
		cc.handleSSR(*v)
	case rtcm.SSROrbitClockCorrection:
		cc.handleSSR(v)
	case *rtcm.SSRHighRateClockCorrection:
		cc.handleSSRHighRateClock(*v)
	case rtcm.SSRHighRateClockCorrection:
		cc.handleSSRHighRateClock(v)
	case *rtcm.SSRURACorrection:
		cc.log.WithField("station", station).WithField("gnssid", v.Header.GNSSID).Debug("SSR URA received")
	case rtcm.SSRURACorrection:
		cc.log.WithField("station", station).WithField("gnssid", v.Header.GNSSID).Debug("SSR URA received")
	case *rtcm.SSRVTEC:
		cc.log.WithField("station", station).Debug("SSR VTEC received")
	case rtcm.SSRVTEC:
		cc.log.WithField("station", station).Debug("SSR VTEC received")
	default:
		cc.log.WithField("station", station).Debug("decoded record has no wired consumer")
	}
	return nil
}

func (cc *CoreContext) handleGPSEph(raw rtcm.GPSEphemeris) error {
	sat := gnssgo.SatNo(gnssgo.SYS_GPS, int(raw.SatID))
	e := &ephstore.GPSEph{Raw: raw, SatIndex: sat, FullWeek: cc.resolveWeek(int(raw.Week))}
	rec, err := cc.Store.Insert(e, ephstore.Check)
	if err != nil {
		return err
	}
	if rec.State == ephstore.Ok {
		if err := cc.navWriter.WriteGPS(raw, e.ToC(), e.ToE()); err != nil {
			cc.log.WithError(err).Warn("RINEX-Nav write failed")
		}
		cc.hub[KindEph].publish(rec)
	}
	return nil
}

func (cc *CoreContext) handleGLOEph(raw rtcm.GLONASSEphemeris) error {
	sat := gnssgo.SatNo(gnssgo.SYS_GLO, int(raw.SatID))
	ref := gtime.TimeAdd(gtime.Now(gtime.GLONASST), 0)
	e := &ephstore.GLOEph{Raw: raw, SatIndex: sat, RefTime: ref}
	rec, err := cc.Store.Insert(e, ephstore.Check)
	if err != nil {
		return err
	}
	if rec.State == ephstore.Ok {
		cc.hub[KindEph].publish(rec)
	}
	return nil
}

// resolveWeek reconciles a 10-bit broadcast GPS week (mod 1024) with
// the current full week, rolling forward/back across the 1024-week
// ambiguity the wire format cannot express on its own.
func (cc *CoreContext) resolveWeek(broadcastWeek int) int {
	base := cc.gpsWeek - cc.gpsWeek%1024
	full := base + broadcastWeek
	if full > cc.gpsWeek+512 {
		full -= 1024
	} else if full < cc.gpsWeek-512 {
		full += 1024
	}
	return full
}

func (cc *CoreContext) handleObs(station int, data rtcm.ObservationData) {
	a, ok := cc.assemblers[station]
	if !ok {
		return
	}
	records := make([]epoch.Obs, 0, data.N)
	for i := 0; i < data.N && i < len(data.SatID); i++ {
		o := epoch.Obs{
			Time:    data.Time,
			Station: station,
			Sat:     data.SatID[i],
		}
		if i < len(data.Code) {
			o.Code = data.Code[i]
		}
		if i < len(data.L) {
			o.L = data.L[i]
		}
		if i < len(data.P) {
			o.P = data.P[i]
		}
		if i < len(data.D) {
			o.D = data.D[i]
		}
		if i < len(data.SNR) {
			o.SNR = data.SNR[i]
		}
		if i < len(data.LLI) {
			o.LLI = data.LLI[i]
		}
		if i < len(data.Valid) {
			o.Valid = data.Valid[i]
		}
		records = append(records, o)
	}
	a.Ingest(data.Time, records)
}

// ssrEpochTime reconstructs the full GPS-tagged instant a raw 20-bit
// SSR epoch field (seconds within the broadcast week) refers to,
// resolving the week number against the wall clock since the wire
// value alone cannot distinguish which week it falls in (§4.2). BeiDou
// carries its own epoch reference, shifted from GPS time by the
// configured leap-second offset before the week is resolved.
func (cc *CoreContext) ssrEpochTime(gnssid int, rawEpoch uint32) gtime.Gtime {
	sow := float64(rawEpoch)
	if gnssid == 4 { // BeiDou
		sow += float64(cc.Config.BDSTowOffsetSeconds)
	}

	t := gtime.GpsT2Time2(cc.gpsWeek, sow)
	now := gtime.Utc2GpsT(gtime.Now(gtime.UTC))
	if diff := gtime.MustTimeDiff(now, t); diff > gtime.SecondsInWeek/2 {
		t = gtime.TimeAdd(t, -gtime.SecondsInWeek)
	} else if diff < -gtime.SecondsInWeek/2 {
		t = gtime.TimeAdd(t, gtime.SecondsInWeek)
	}
	return t
}

func (cc *CoreContext) handleSSR(ssr rtcm.SSROrbitClockCorrection) {
	sys := ssrcorr.GNSSIDToSys(ssr.Header.GNSSID)
	epoch := cc.ssrEpochTime(ssr.Header.GNSSID, ssr.Header.Epoch)
	for _, oc := range ssr.OrbitCorrections {
		sat := gnssgo.SatNo(sys, int(oc.SatID))
		orb := ssrcorr.OrbitCorrection{
			Sat: sat, IOD: oc.IODE, Time: epoch, UpdateInterval: ssr.Header.UpdateInterval,
			DRadial: oc.DeltaRadial, DAlongTrack: oc.DeltaAlongTrack, DCrossTrack: oc.DeltaCrossTrack,
			DotRadial: oc.DotDeltaRadial, DotAlongTrack: oc.DotDeltaAlongTrack, DotCrossTrack: oc.DotDeltaCrossTrack,
			ProviderID: ssr.Header.SSRProviderID, SolutionID: ssr.Header.SolutionID,
		}
		applied, released := cc.Corr.ApplyOrbit(orb)
		cc.Store.ApplyOrbitCorrection(applied)
		cc.hub[KindSSROrbit].publish(applied)
		if released != nil {
			cc.Store.ApplyClockCorrection(*released)
			cc.hub[KindSSRClock].publish(*released)
		}
	}
	for _, clk := range ssr.ClockCorrections {
		sat := gnssgo.SatNo(sys, int(clk.SatID))
		c := ssrcorr.ClockCorrection{
			Sat: sat, Time: epoch, UpdateInterval: ssr.Header.UpdateInterval,
			C0: clk.DeltaClockC0, C1: clk.DeltaClockC1, C2: clk.DeltaClockC2,
		}
		if cwi := cc.Corr.ApplyClock(c); cwi != nil {
			cc.Store.ApplyClockCorrection(*cwi)
			cc.hub[KindSSRClock].publish(*cwi)
			if err := cc.sp3Writer.OnClockCorrection(cwi.Clock.Time); err != nil {
				cc.log.WithError(err).Warn("SP3 grid write failed")
			}
		}
	}
}

// handleSSRHighRateClock applies a high-rate clock increment message
// to the correlator's latest low-rate anchor per satellite, publishing
// the adjusted clock the same way a low-rate clock message would.
func (cc *CoreContext) handleSSRHighRateClock(hr rtcm.SSRHighRateClockCorrection) {
	sys := ssrcorr.GNSSIDToSys(hr.Header.GNSSID)
	epoch := cc.ssrEpochTime(hr.Header.GNSSID, hr.Header.Epoch)
	for _, c := range hr.Clocks {
		sat := gnssgo.SatNo(sys, int(c.SatID))
		hrc := ssrcorr.HighRateClockCorrection{Sat: sat, Time: epoch, HRClockCorr: c.HighRateClockCorr}
		if cwi := cc.Corr.ApplyHighRateClock(hrc); cwi != nil {
			cc.Store.ApplyClockCorrection(*cwi)
			cc.hub[KindSSRClock].publish(*cwi)
			if err := cc.sp3Writer.OnClockCorrection(cwi.Clock.Time); err != nil {
				cc.log.WithError(err).Warn("SP3 grid write failed")
			}
		}
	}
}

// RunPPPConsumer drains every broadcast channel until ctx is done. It
// is a stub per §5's "PPP math itself is out of scope" — real
// downstream consumers subscribe the same way.
func (cc *CoreContext) RunPPPConsumer(ctx context.Context) {
	kinds := []RecordKind{KindObs, KindEph, KindSSROrbit, KindSSRClock}
	ids := make([]uuid.UUID, len(kinds))
	chans := make([]<-chan interface{}, len(kinds))
	for i, k := range kinds {
		ids[i], chans[i] = cc.Subscribe(k)
	}
	defer func() {
		for i, k := range kinds {
			cc.Unsubscribe(k, ids[i])
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-chans[0]:
		case <-chans[1]:
		case <-chans[2]:
		case <-chans[3]:
		}
	}
}

// Close flushes and closes every writer CoreContext owns.
func (cc *CoreContext) Close() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	note(cc.navWriter.Close())
	note(cc.sp3Writer.Close())
	for _, ow := range cc.obsWriters {
		note(ow.Close())
	}
	return firstErr
}
