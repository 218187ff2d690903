// Package ssrcorr implements the SSR Correlator: it tracks the IOD of
// the most recently received orbit correction per satellite and tags
// clock corrections — which carry no IOD of their own on the wire —
// with that IOD so the ephemeris store can attach them to the correct
// broadcast ephemeris.
package ssrcorr

import (
	"sync"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/sirupsen/logrus"
)

// OrbitCorrection is the dense-satellite-keyed form of a decoded SSR
// orbit record, translated out of the RTCM-specific GNSSID+slot
// encoding used by rtcm.SSROrbitCorrection.
type OrbitCorrection struct {
	Sat            int
	IOD            uint8
	Time           gtime.Gtime
	UpdateInterval uint8
	DRadial        float64
	DAlongTrack    float64
	DCrossTrack    float64
	DotRadial      float64
	DotAlongTrack  float64
	DotCrossTrack  float64
	ProviderID     uint16
	SolutionID     uint8
}

// ClockCorrection is the dense-satellite-keyed form of a decoded SSR
// clock record, before IOD tagging.
type ClockCorrection struct {
	Sat            int
	Time           gtime.Gtime
	UpdateInterval uint8
	C0, C1, C2     float64
}

// HighRateClockCorrection is a high-rate clock increment (msg
// 1062-family); it adds to the latest low-rate C0 for the satellite.
type HighRateClockCorrection struct {
	Sat        int
	Time       gtime.Gtime
	HRClockCorr float64 // meters
}

// ClockWithIOD is a clock correction tagged with the IOD of the orbit
// correction it should be applied alongside.
type ClockWithIOD struct {
	Clock ClockCorrection
	IOD   uint8
}

// GNSSIDToSys maps an RTCM SSR header GNSSID (0:GPS,1:GLONASS,
// 2:Galileo,3:QZSS,4:BeiDou,5:SBAS) to the gnssgo system bitmask.
func GNSSIDToSys(id int) int {
	switch id {
	case 0:
		return gnssgo.SYS_GPS
	case 1:
		return gnssgo.SYS_GLO
	case 2:
		return gnssgo.SYS_GAL
	case 3:
		return gnssgo.SYS_QZS
	case 4:
		return gnssgo.SYS_CMP
	case 5:
		return gnssgo.SYS_SBS
	default:
		return gnssgo.SYS_NONE
	}
}

// Correlator holds the latest known orbit IOD per satellite and
// buffers clock corrections that arrive before any orbit has been
// seen for that satellite, per §4.4.
type Correlator struct {
	mu            sync.Mutex
	iod           map[int]uint8
	pendingClocks map[int]ClockCorrection
	lowRateC0     map[int]float64
	log           *logrus.Entry
}

// New creates an empty Correlator.
func New(log *logrus.Logger) *Correlator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Correlator{
		iod:           make(map[int]uint8),
		pendingClocks: make(map[int]ClockCorrection),
		lowRateC0:     make(map[int]float64),
		log:           log.WithField("component", "ssrcorr"),
	}
}

// ApplyOrbit records the satellite's latest orbit IOD and returns the
// orbit unchanged (it is always forwarded, per §4.4) plus, if a clock
// was buffered for this satellite awaiting an orbit, that clock now
// tagged with the new IOD.
func (c *Correlator) ApplyOrbit(orb OrbitCorrection) (OrbitCorrection, *ClockWithIOD) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.iod[orb.Sat] = orb.IOD

	if pending, ok := c.pendingClocks[orb.Sat]; ok {
		delete(c.pendingClocks, orb.Sat)
		c.log.WithFields(logrus.Fields{"sat": gnssgo.SatID(orb.Sat), "iod": orb.IOD}).
			Debug("releasing buffered clock correction now that an orbit IOD is known")
		return orb, &ClockWithIOD{Clock: pending, IOD: orb.IOD}
	}
	return orb, nil
}

// ApplyClock tags the clock correction with the satellite's latest
// known orbit IOD. If no orbit has ever been seen for this satellite,
// the clock is buffered (most recent one wins) and nil is returned.
func (c *Correlator) ApplyClock(clk ClockCorrection) *ClockWithIOD {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lowRateC0[clk.Sat] = clk.C0

	iod, ok := c.iod[clk.Sat]
	if !ok {
		c.pendingClocks[clk.Sat] = clk
		c.log.WithField("sat", gnssgo.SatID(clk.Sat)).
			Debug("buffering clock correction: no orbit IOD known yet")
		return nil
	}
	return &ClockWithIOD{Clock: clk, IOD: iod}
}

// ApplyHighRateClock increments the last known low-rate C0 for the
// satellite by hrclock/c (speed of light), per §4.4, and returns the
// adjusted clock retagged with the current IOD (nil if none known —
// high-rate clocks never arrive before a low-rate anchor in practice,
// but the buffering discipline is kept symmetric with ApplyClock).
func (c *Correlator) ApplyHighRateClock(hr HighRateClockCorrection) *ClockWithIOD {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.lowRateC0[hr.Sat]
	adjusted := ClockCorrection{
		Sat:  hr.Sat,
		Time: hr.Time,
		C0:   base + hr.HRClockCorr/gnssgo.CLIGHT,
	}
	c.lowRateC0[hr.Sat] = adjusted.C0

	iod, ok := c.iod[hr.Sat]
	if !ok {
		c.pendingClocks[hr.Sat] = adjusted
		return nil
	}
	return &ClockWithIOD{Clock: adjusted, IOD: iod}
}

// LatestIOD reports the most recently seen orbit IOD for sat.
func (c *Correlator) LatestIOD(sat int) (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	iod, ok := c.iod[sat]
	return iod, ok
}
