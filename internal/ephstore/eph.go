// Package ephstore implements the Ephemeris Store (§4.5): a
// per-satellite bounded deque of decoded broadcast ephemerides, with a
// freshness/sanity check policy, IOD-keyed correlation with SSR orbit
// and clock corrections, and satellite-state queries for the SP3
// writer.
package ephstore

import (
	"math"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/rtcm"
)

// Eph is the common interface every broadcast ephemeris kind
// (GPS/GLONASS/Galileo/BeiDou/QZSS) implements so the store can hold
// and query them uniformly, without a decoder-specific type switch at
// every call site — the "tagged sum + free functions" REDESIGN applied
// one level up, to the store itself.
type Eph interface {
	Sat() int
	ToC() gtime.Gtime
	ToE() gtime.Gtime
	IOD() uint8
	Healthy() bool
	// Pos computes (position ECEF meters, velocity ECEF m/s, clock
	// bias seconds) at instant t.
	Pos(t gtime.Gtime) (pos, vel [3]float64, clkBias float64)
	// ValidityWindow is the maximum |t-ToC| for which this ephemeris
	// is considered usable, per system (§4.5 "system_window").
	ValidityWindow() float64
}

// GPSEph adapts rtcm.GPSEphemeris (plus the full GPS week it was
// decoded against) to the Eph interface.
type GPSEph struct {
	Raw      rtcm.GPSEphemeris
	SatIndex int
	FullWeek int
}

func (e *GPSEph) Sat() int { return e.SatIndex }

func (e *GPSEph) ToC() gtime.Gtime {
	return gtime.GpsT2Time2(e.FullWeek, float64(e.Raw.Toc))
}

func (e *GPSEph) ToE() gtime.Gtime {
	return gtime.GpsT2Time2(e.FullWeek, float64(e.Raw.Toe))
}

func (e *GPSEph) IOD() uint8 { return e.Raw.IODE }

func (e *GPSEph) Healthy() bool { return e.Raw.SvHealth == 0 }

func (e *GPSEph) ValidityWindow() float64 { return 4 * 3600 }

// Pos computes GPS satellite position/velocity/clock bias at instant
// t from the broadcast Keplerian elements, following the standard
// ICD-GPS-200 algorithm (grounded in FengXuebin-gnssgo's eph2pos
// transliteration of RTKLIB, generalized to return velocity by finite
// differencing since this module's SP3 writer needs both).
func (e *GPSEph) Pos(t gtime.Gtime) (pos, vel [3]float64, clkBias float64) {
	tk := gtime.MustTimeDiff(gtime.Gtime{Time: t.Time, Sec: t.Sec, Sys: gtime.GPS}, e.ToE())

	a := e.Raw.SqrtA * e.Raw.SqrtA
	n0 := math.Sqrt(gnssgo.GME/(a*a*a)) + e.Raw.DeltaN
	mk := e.Raw.M0 + n0*tk

	ek := mk
	for i := 0; i < 30; i++ {
		ekOld := ek
		ek = mk + e.Raw.Eccentricity*math.Sin(ek)
		if math.Abs(ek-ekOld) < 1e-13 {
			break
		}
	}

	sinE, cosE := math.Sin(ek), math.Cos(ek)
	nuK := math.Atan2(math.Sqrt(1-e.Raw.Eccentricity*e.Raw.Eccentricity)*sinE, cosE-e.Raw.Eccentricity)
	phiK := nuK + e.Raw.Omega

	sin2p, cos2p := math.Sin(2*phiK), math.Cos(2*phiK)
	du := e.Raw.Cus*sin2p + e.Raw.Cuc*cos2p
	dr := e.Raw.Crs*sin2p + e.Raw.Crc*cos2p
	di := e.Raw.Cis*sin2p + e.Raw.Cic*cos2p

	uk := phiK + du
	rk := a*(1-e.Raw.Eccentricity*cosE) + dr
	ik := e.Raw.Inclination + di + e.Raw.IDOT*tk

	xk := rk * math.Cos(uk)
	yk := rk * math.Sin(uk)

	omegaK := e.Raw.Omega0 + (e.Raw.OmegaDot-gnssgo.OMGE)*tk - gnssgo.OMGE*float64(e.Raw.Toe)

	sinO, cosO := math.Sin(omegaK), math.Cos(omegaK)
	sinI, cosI := math.Sin(ik), math.Cos(ik)

	pos[0] = xk*cosO - yk*cosI*sinO
	pos[1] = xk*sinO + yk*cosI*cosO
	pos[2] = yk * sinI

	// Velocity via a small central-difference step; adequate for the
	// SP3 grid sampling this store serves (not a flight-dynamics
	// integrator).
	const dt = 1.0
	tPlus := gtime.TimeAdd(t, dt)
	tMinus := gtime.TimeAdd(t, -dt)
	posPlus, _, _ := e.posOnly(tPlus)
	posMinus, _, _ := e.posOnly(tMinus)
	for i := 0; i < 3; i++ {
		vel[i] = (posPlus[i] - posMinus[i]) / (2 * dt)
	}

	dtr := -2 * math.Sqrt(gnssgo.GME*a) * e.Raw.Eccentricity * sinE / (gnssgo.CLIGHT * gnssgo.CLIGHT)
	tc := gtime.MustTimeDiff(gtime.Gtime{Time: t.Time, Sec: t.Sec, Sys: gtime.GPS}, e.ToC())
	clkBias = e.Raw.Af0 + e.Raw.Af1*tc + e.Raw.Af2*tc*tc + dtr - e.Raw.TGD

	return pos, vel, clkBias
}

// posOnly recurses into Pos but only needs the position component; it
// exists so the velocity finite-difference above doesn't also redo
// the (cheap) clock computation or reenter the full Pos recursively —
// it evaluates the orbit terms directly.
func (e *GPSEph) posOnly(t gtime.Gtime) (pos, vel [3]float64, clkBias float64) {
	tk := gtime.MustTimeDiff(gtime.Gtime{Time: t.Time, Sec: t.Sec, Sys: gtime.GPS}, e.ToE())

	a := e.Raw.SqrtA * e.Raw.SqrtA
	n0 := math.Sqrt(gnssgo.GME/(a*a*a)) + e.Raw.DeltaN
	mk := e.Raw.M0 + n0*tk

	ek := mk
	for i := 0; i < 30; i++ {
		ekOld := ek
		ek = mk + e.Raw.Eccentricity*math.Sin(ek)
		if math.Abs(ek-ekOld) < 1e-13 {
			break
		}
	}

	sinE, cosE := math.Sin(ek), math.Cos(ek)
	nuK := math.Atan2(math.Sqrt(1-e.Raw.Eccentricity*e.Raw.Eccentricity)*sinE, cosE-e.Raw.Eccentricity)
	phiK := nuK + e.Raw.Omega

	sin2p, cos2p := math.Sin(2*phiK), math.Cos(2*phiK)
	du := e.Raw.Cus*sin2p + e.Raw.Cuc*cos2p
	dr := e.Raw.Crs*sin2p + e.Raw.Crc*cos2p
	di := e.Raw.Cis*sin2p + e.Raw.Cic*cos2p

	uk := phiK + du
	rk := a*(1-e.Raw.Eccentricity*cosE) + dr
	ik := e.Raw.Inclination + di + e.Raw.IDOT*tk

	xk := rk * math.Cos(uk)
	yk := rk * math.Sin(uk)

	omegaK := e.Raw.Omega0 + (e.Raw.OmegaDot-gnssgo.OMGE)*tk - gnssgo.OMGE*float64(e.Raw.Toe)

	sinO, cosO := math.Sin(omegaK), math.Cos(omegaK)
	sinI, cosI := math.Sin(ik), math.Cos(ik)

	pos[0] = xk*cosO - yk*cosI*sinO
	pos[1] = xk*sinO + yk*cosI*cosO
	pos[2] = yk * sinI
	return pos, vel, 0
}

// GLOEph adapts rtcm.GLONASSEphemeris, which already carries a
// directly broadcast PZ-90 position/velocity/acceleration state
// vector rather than Keplerian elements — propagated with simple
// Newtonian extrapolation since the validity window is short (15 min
// nominal, 1 h per this store's freshness policy).
type GLOEph struct {
	Raw      rtcm.GLONASSEphemeris
	SatIndex int
	RefTime  gtime.Gtime // Tb anchored to a civil day, UTC-tagged
}

func (e *GLOEph) Sat() int { return e.SatIndex }
func (e *GLOEph) ToC() gtime.Gtime { return e.RefTime }
func (e *GLOEph) ToE() gtime.Gtime { return e.RefTime }
func (e *GLOEph) IOD() uint8 { return uint8(e.Raw.NT & 0xFF) }
func (e *GLOEph) Healthy() bool { return !e.Raw.SvHealth }
func (e *GLOEph) ValidityWindow() float64 { return 3600 }

func (e *GLOEph) Pos(t gtime.Gtime) (pos, vel [3]float64, clkBias float64) {
	dt, err := gtime.TimeDiff(t, e.RefTime)
	if err != nil {
		dt = 0
	}
	pos = [3]float64{
		(e.Raw.X + e.Raw.VX*dt + 0.5*e.Raw.AX*dt*dt) * 1000,
		(e.Raw.Y + e.Raw.VY*dt + 0.5*e.Raw.AY*dt*dt) * 1000,
		(e.Raw.Z + e.Raw.VZ*dt + 0.5*e.Raw.AZ*dt*dt) * 1000,
	}
	vel = [3]float64{
		(e.Raw.VX + e.Raw.AX*dt) * 1000,
		(e.Raw.VY + e.Raw.AY*dt) * 1000,
		(e.Raw.VZ + e.Raw.AZ*dt) * 1000,
	}
	clkBias = -e.Raw.TauN + e.Raw.GammaN*dt
	return pos, vel, clkBias
}
