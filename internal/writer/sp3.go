package writer

import (
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gnss-corr/rtcmpipe/internal/ephstore"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/sirupsen/logrus"
)

// apcOffset is the nominal antenna-phase-center-to-center-of-mass
// offset (satellite body frame, meters) used when no ANTEX file is
// configured. Real APC offsets are block/satellite specific and
// reach a few meters along z; this single value is a coarse stand-in,
// not a substitute for a parsed ANTEX table.
var apcOffset = [3]float64{0, 0, 1.0}

// SP3Writer emits SP3-c precise-orbit grid files at a fixed sample
// interval, applying an APC->CoM correction derived from the
// satellite-to-sun geometry (§4.7's three-step policy: query store,
// correct to center of mass, emit grid record).
type SP3Writer struct {
	mu sync.Mutex

	root           string
	mount          string
	agency         string
	sampleInterval float64
	useCorrection  bool

	store *ephstore.Store

	file       *os.File
	filename   string
	headerDone bool
	ioErrors   int

	lastEpoch     gtime.Gtime
	haveLastEpoch bool

	log *logrus.Entry
}

// NewSP3Writer creates an SP3 writer sampling store at sampleInterval
// seconds.
func NewSP3Writer(dir, mount, agency string, sampleInterval float64, useCorrection bool, store *ephstore.Store, log *logrus.Logger) *SP3Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if sampleInterval <= 0 {
		sampleInterval = 300
	}
	return &SP3Writer{
		root:           dir,
		mount:          mount,
		agency:         agency,
		sampleInterval: sampleInterval,
		useCorrection:  useCorrection,
		store:          store,
		log:            log.WithFields(logrus.Fields{"component": "sp3", "mount": mount}),
	}
}

// OnClockCorrection drives the SP3 dump policy of §4.7: given a new
// SSR clock-correction time Tc greater than the writer's own
// last-written grid epoch, it steps the sample grid forward
// (lastEpoch+sample, lastEpoch+2*sample, ..., Tc) and emits one SP3
// epoch block per step, back-filling any epochs the caller did not
// visit individually rather than skipping them. The very first
// correction seen seeds lastEpoch at Tc without emitting a backfill,
// since there is no prior grid point to fill from.
func (w *SP3Writer) OnClockCorrection(tc gtime.Gtime) error {
	w.mu.Lock()
	if !w.haveLastEpoch {
		w.lastEpoch = tc
		w.haveLastEpoch = true
		w.mu.Unlock()
		return nil
	}
	last := w.lastEpoch
	w.mu.Unlock()

	if gtime.MustTimeDiff(tc, last) <= 0 {
		return nil
	}

	for t := gtime.TimeAdd(last, w.sampleInterval); gtime.MustTimeDiff(tc, t) >= 0; t = gtime.TimeAdd(t, w.sampleInterval) {
		if err := w.writeEpoch(t); err != nil {
			return err
		}
		w.mu.Lock()
		w.lastEpoch = t
		w.mu.Unlock()
	}
	return nil
}

// writeEpoch samples every satellite with a trusted ephemeris at
// instant t and appends one SP3 epoch block.
func (w *SP3Writer) writeEpoch(t gtime.Gtime) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := w.store.Snapshot()
	if len(snap) == 0 {
		return nil
	}

	if err := w.ensureOpen(t); err != nil {
		w.ioErrors++
		w.log.WithError(err).Warn("SP3 write failed, will reopen on next grid point")
		w.file = nil
		w.headerDone = false
		return err
	}

	sats := make([]int, 0, len(snap))
	for sat := range snap {
		sats = append(sats, sat)
	}
	sort.Ints(sats)

	ct := civilTime(t)
	epochLine := fmt.Sprintf("*  %04d %2d %2d %2d %2d %11.8f\n",
		ct.Year(), int(ct.Month()), ct.Day(), ct.Hour(), ct.Minute(),
		float64(ct.Second())+float64(ct.Nanosecond())/1e9)
	if _, err := w.file.WriteString(epochLine); err != nil {
		w.ioErrors++
		return err
	}

	sun := sunVectorECEF(t)
	for _, sat := range sats {
		pos, vel, clkBias, err := w.store.SatState(sat, t, w.useCorrection)
		if err != nil {
			continue
		}
		com := apcToCoM(pos, vel, sun)
		line := fmt.Sprintf("P%s%14.6f%14.6f%14.6f%14.6f\n",
			gnssgo.SatID(sat), com[0]/1000, com[1]/1000, com[2]/1000, clkBias*1e6)
		if _, err := w.file.WriteString(line); err != nil {
			w.ioErrors++
			return err
		}
	}
	return nil
}

// apcToCoM moves pos from the antenna phase center to the satellite
// center of mass using the yaw-steering-approximate body frame: z
// points from the satellite to Earth's center, y is normal to the
// sun-satellite-Earth plane, x completes the right-handed frame.
func apcToCoM(pos, vel, sun [3]float64) [3]float64 {
	z := scale(normalize(pos), -1)
	toSun := sub(sun, pos)
	y := normalize(cross3(z, normalize(toSun)))
	x := cross3(y, z)

	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = pos[i] - (apcOffset[0]*x[i] + apcOffset[1]*y[i] + apcOffset[2]*z[i])
	}
	return out
}

func scale(v [3]float64, s float64) [3]float64 {
	return [3]float64{v[0] * s, v[1] * s, v[2] * s}
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func normalize(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
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

// sunVectorECEF returns a low-precision (arcminute-level) unit vector
// from Earth's center to the sun in ECEF, per the Astronomical
// Almanac's low-precision solar coordinates formula. Adequate for the
// antenna yaw-frame approximation above; not an ephemeris-grade
// solar position.
func sunVectorECEF(t gtime.Gtime) [3]float64 {
	utc := t
	if t.Sys == gtime.GPS {
		utc = gtime.GpsT2Time(t)
	}
	ct := civilTime(utc)
	d := julianDay(ct) - 2451545.0

	g := math.Mod(357.529+0.98560028*d, 360) * math.Pi / 180
	q := math.Mod(280.459+0.98564736*d, 360)
	l := math.Mod(q+1.915*math.Sin(g)+0.020*math.Sin(2*g), 360) * math.Pi / 180
	eps := (23.439 - 0.00000036*d) * math.Pi / 180

	x := math.Cos(l)
	y := math.Cos(eps) * math.Sin(l)
	z := math.Sin(eps) * math.Sin(l)

	gmst := math.Mod(280.46061837+360.98564736629*d, 360) * math.Pi / 180
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)
	return [3]float64{
		x*cosG + y*sinG,
		-x*sinG + y*cosG,
		z,
	}
}

// julianDay computes the Julian Day Number (with fractional day) for a
// UTC civil time, via the standard Fliegel-Van Flandern algorithm.
func julianDay(ct time.Time) float64 {
	y, m, d := ct.Year(), int(ct.Month()), ct.Day()
	a := (14 - m) / 12
	y2 := y + 4800 - a
	m2 := m + 12*a - 3
	jdn := d + (153*m2+2)/5 + 365*y2 + y2/4 - y2/100 + y2/400 - 32045
	frac := (float64(ct.Hour()-12) + float64(ct.Minute())/60 + float64(ct.Second())/3600) / 24
	return float64(jdn) + frac
}

func (w *SP3Writer) ensureOpen(t gtime.Gtime) error {
	name := SP3Filename(w.mount, t)
	if w.file != nil && w.filename == name {
		return nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("sp3: mkdir %s: %w", w.root, err)
	}

	path := resolvePath(w.root, name)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sp3: open %s: %w", path, err)
	}
	w.file = f
	w.filename = name
	w.headerDone = exists

	if !w.headerDone {
		if err := w.writeHeader(t); err != nil {
			return err
		}
		w.headerDone = true
	}
	return nil
}

// writeHeader emits the SP3-c header block: the `#cP` civil-time/epoch
// line, the `##` GPS-week/SOW/sample/MJD line, a `+` satellite-ID
// block padded to 32 GPS slots, and the fixed `%c %f %i /*` filler
// lines every SP3-c reader expects even when the producer supplies no
// accuracy-code or bias data.
func (w *SP3Writer) writeHeader(t gtime.Gtime) error {
	ct := civilTime(t)

	var week int
	sow := gtime.Time2GpsT(t, &week)

	mjdFloat := julianDay(ct) - 2400000.5
	mjd := int(mjdFloat)
	dayFrac := mjdFloat - float64(mjd)

	var b []byte
	b = append(b, fmt.Sprintf("#cP%04d %2d %2d %2d %2d %11.8f %7d ORBIT IGS14 HLM  %s\n",
		ct.Year(), int(ct.Month()), ct.Day(), ct.Hour(), ct.Minute(),
		float64(ct.Second())+float64(ct.Nanosecond())/1e9, 0, w.agency)...)
	b = append(b, fmt.Sprintf("## %4d %15.8f %14.8f %5d %15.13f\n",
		week, sow, w.sampleInterval, mjd, dayFrac)...)

	const gpsSlots = 32
	for line := 0; line < 5; line++ {
		if line == 0 {
			b = append(b, fmt.Sprintf("+%4d   ", gpsSlots)...)
		} else {
			b = append(b, "+        "...)
		}
		for i := 0; i < 17; i++ {
			idx := line*17 + i
			if idx < gpsSlots {
				b = append(b, fmt.Sprintf("G%02d", idx+1)...)
			} else {
				b = append(b, "  0"...)
			}
		}
		b = append(b, '\n')
	}
	for line := 0; line < 5; line++ {
		b = append(b, "++         "...)
		for i := 0; i < 17; i++ {
			b = append(b, "  0"...)
		}
		b = append(b, '\n')
	}

	b = append(b, "%c G  cc GPS ccc cccc cccc cccc cccc ccccc ccccc ccccc ccccc\n"...)
	b = append(b, "%c cc cc ccc ccc cccc cccc cccc cccc ccccc ccccc ccccc ccccc\n"...)
	b = append(b, "%f  1.2500000  1.025000000  0.00000000000  0.000000000000000\n"...)
	b = append(b, "%f  0.0000000  0.000000000  0.00000000000  0.000000000000000\n"...)
	b = append(b, "%i    0    0    0    0      0      0      0      0         0\n"...)
	b = append(b, "%i    0    0    0    0      0      0      0      0         0\n"...)
	for i := 0; i < 4; i++ {
		b = append(b, "/*\n"...)
	}

	_, err := w.file.Write(b)
	return err
}

// Close writes the SP3 "EOF" terminator line and closes the current
// file handle, if any, per §6's "EOF terminator on close".
func (w *SP3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	_, werr := w.file.WriteString("EOF\n")
	err := w.file.Close()
	w.file = nil
	if werr != nil {
		return werr
	}
	return err
}
