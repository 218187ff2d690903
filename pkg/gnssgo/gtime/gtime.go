// Package gtime provides time-system-tagged instants for GNSS applications.
//
// Every Gtime carries an explicit TimeSystem. Arithmetic between two
// instants (TimeDiff, comparisons) requires identical tags; mismatches
// return ErrTimeSystemMismatch rather than silently producing a wrong
// answer, per this module's time-handling design.
package gtime

import (
	"fmt"
	"time"
)

// TimeSystem tags the reference system of an instant.
type TimeSystem int

const (
	GPS TimeSystem = iota
	UTC
	BDT
	GLONASST
	GALILEOT
)

func (s TimeSystem) String() string {
	switch s {
	case GPS:
		return "GPS"
	case UTC:
		return "UTC"
	case BDT:
		return "BDT"
	case GLONASST:
		return "GLONASST"
	case GALILEOT:
		return "GALILEOT"
	default:
		return "UNKNOWN"
	}
}

// ErrTimeSystemMismatch is returned whenever arithmetic is attempted
// between two instants tagged with different time systems.
type ErrTimeSystemMismatch struct {
	A, B TimeSystem
}

func (e *ErrTimeSystemMismatch) Error() string {
	return fmt.Sprintf("gtime: time system mismatch: %s vs %s", e.A, e.B)
}

// Gtime is a time instant expressed as integer seconds since the Unix
// epoch plus a sub-second fraction, tagged with its time system.
type Gtime struct {
	Time int64      // whole seconds (Unix-epoch based, system-relative)
	Sec  float64    // fractional second, 0 <= Sec < 1
	Sys  TimeSystem // declared time system
}

const (
	SecondsInWeek = 604800.0
	SecondsInDay  = 86400.0
	GPSEpoch      = 315964800 // GPS time reference epoch (1980/1/6 00:00:00 UTC), Unix seconds
	// BDSGPSOffsetSeconds is BeiDou Time's fixed offset from GPS Time at
	// the BDT epoch (2006/1/1 00:00:00 UTC); BDT trails GPS by this many
	// leap seconds accumulated since 1980. It is distinct from and
	// applied on top of the per-message bdsTowOffsetSeconds config knob,
	// which compensates for casters that emit a pre-adjusted TOW.
	BDSGPSOffsetSeconds = 14
)

// Now returns the current instant tagged with the given time system.
// For GPS/BDT the wall clock (which is UTC) is used as an approximation
// of "now" in that system — callers needing exact system time must
// apply the relevant leap-second offset explicitly.
func Now(sys TimeSystem) Gtime {
	t := time.Now().UTC()
	ep := [6]float64{
		float64(t.Year()), float64(t.Month()), float64(t.Day()),
		float64(t.Hour()), float64(t.Minute()), float64(t.Second()) + float64(t.Nanosecond())/1e9,
	}
	g := Epoch2Time(ep)
	g.Sys = sys
	return g
}

// Epoch2Time converts a civil-time 6-vector {year,month,day,h,m,s} (UTC)
// into a Gtime tagged UTC.
func Epoch2Time(ep [6]float64) Gtime {
	days := (int64(ep[0])-1970)*365 + (int64(ep[0])-1969)/4 + int64(ep[2]) - 1
	for i := 1; i < int(ep[1]); i++ {
		days += int64(DaysInMonth(int(ep[0]), i))
	}
	sec := float64(days)*SecondsInDay + ep[3]*3600.0 + ep[4]*60.0 + ep[5]

	var g Gtime
	g.Time = int64(sec)
	g.Sec = sec - float64(g.Time)
	g.Sys = UTC
	return g
}

// DaysInMonth returns the number of days in a given (year, month).
func DaysInMonth(year, month int) int {
	switch month {
	case 2:
		if (year%4 == 0 && year%100 != 0) || year%400 == 0 {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

// Utc2GpsT re-tags a UTC instant as GPS time, shifting by the fixed
// GPS-epoch offset. It does not apply leap seconds beyond the epoch
// offset already baked into GPSEpoch.
func Utc2GpsT(t Gtime) Gtime {
	return Gtime{Time: t.Time + GPSEpoch, Sec: t.Sec, Sys: GPS}
}

// GpsT2Time re-tags a GPS instant as UTC.
func GpsT2Time(t Gtime) Gtime {
	return Gtime{Time: t.Time - GPSEpoch, Sec: t.Sec, Sys: UTC}
}

// Time2GpsT decomposes a GPS-tagged instant into (week, sow).
func Time2GpsT(t Gtime, week *int) float64 {
	sec := float64(t.Time-GPSEpoch) + t.Sec
	w := int(sec / SecondsInWeek)
	sec -= float64(w) * SecondsInWeek
	if week != nil {
		*week = w
	}
	return sec
}

// GpsT2Time2 builds a GPS-tagged Gtime from a (week, sow) pair — the
// inverse of Time2GpsT.
func GpsT2Time2(week int, sow float64) Gtime {
	t := Gtime{Time: GPSEpoch, Sys: GPS}
	return TimeAdd(t, float64(week)*SecondsInWeek+sow)
}

// TimeStr renders a Gtime for logging; n selects precision per the
// original formatting table (0: full ns, 1: to seconds, 2: date only,
// 3/4: time only, 5: hh:mm).
func TimeStr(t Gtime, n int) string {
	if t.Time == 0 {
		return "0000/00/00 00:00:00.000000000"
	}
	tm := time.Unix(t.Time, int64(t.Sec*1e9)).UTC()
	switch n {
	case 0:
		return tm.Format("2006/01/02 15:04:05.000000000")
	case 1:
		return tm.Format("2006/01/02 15:04:05")
	case 2:
		return tm.Format("2006/01/02")
	case 3:
		return tm.Format("15:04:05.000000000")
	case 4:
		return tm.Format("15:04:05")
	case 5:
		return tm.Format("15:04")
	default:
		return tm.Format("2006/01/02 15:04:05.000000000")
	}
}

// Str2Time parses "YYYY/MM/DD hh:mm:ss[.fff]" as a UTC-tagged Gtime.
func Str2Time(str string) Gtime {
	var ep [6]float64
	var year, mon, day, hour, min int
	var sec float64
	fmt.Sscanf(str, "%d/%d/%d %d:%d:%f", &year, &mon, &day, &hour, &min, &sec)
	ep[0], ep[1], ep[2], ep[3], ep[4], ep[5] = float64(year), float64(mon), float64(day), float64(hour), float64(min), sec
	return Epoch2Time(ep)
}

// TimeDiff returns t1-t2 in seconds. Both instants must share the same
// TimeSystem tag; callers needing a cross-system diff must convert
// explicitly first (e.g. via Utc2GpsT/GpsT2Time).
func TimeDiff(t1, t2 Gtime) (float64, error) {
	if t1.Sys != t2.Sys {
		return 0, &ErrTimeSystemMismatch{A: t1.Sys, B: t2.Sys}
	}
	return float64(t1.Time-t2.Time) + (t1.Sec - t2.Sec), nil
}

// MustTimeDiff is TimeDiff without the error return, for call sites
// that have already established the tags match (e.g. inside a single
// decoder that only ever deals in one system). It panics on mismatch,
// since that indicates a programming error, not a data error.
func MustTimeDiff(t1, t2 Gtime) float64 {
	d, err := TimeDiff(t1, t2)
	if err != nil {
		panic(err)
	}
	return d
}

// TimeAdd returns t+sec, preserving t's TimeSystem tag.
func TimeAdd(t Gtime, sec float64) Gtime {
	tt := Gtime{Time: t.Time, Sec: t.Sec + sec, Sys: t.Sys}
	if tt.Sec >= 1.0 {
		whole := int64(tt.Sec)
		tt.Time += whole
		tt.Sec -= float64(whole)
	} else if tt.Sec < 0.0 {
		whole := int64(tt.Sec) - 1
		tt.Time += whole
		tt.Sec = 1.0 + tt.Sec - float64(whole)
	}
	return tt
}

// Before reports whether t1 < t2, requiring matching tags.
func Before(t1, t2 Gtime) (bool, error) {
	d, err := TimeDiff(t1, t2)
	if err != nil {
		return false, err
	}
	return d < 0, nil
}
