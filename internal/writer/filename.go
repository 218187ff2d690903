// Package writer implements the stateful file sinks described in
// §4.7: RINEX-Nav, RINEX-Obs, and SP3. Filenames are derived
// deterministically from the civil time of the first record written;
// each writer opens lazily, emits a format header once, and appends
// records afterward.
package writer

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
)

// hourLetter renders an hour-of-day as the RINEX hourly-file letter:
// '0'-'9' for hours 0-9, 'a'-'o' for hours 10-24, per §4.7.
func hourLetter(hour int) byte {
	if hour < 10 {
		return byte('0' + hour)
	}
	if hour > 24 {
		hour = 24
	}
	return byte('a' + (hour - 10))
}

func civilTime(t gtime.Gtime) time.Time {
	return time.Unix(t.Time, int64(t.Sec*1e9)).UTC()
}

// NavFilename returns the RINEX-Nav filename "brdcDDDH.YYn" for the
// civil time of the first navigation record written.
func NavFilename(t gtime.Gtime) string {
	ct := civilTime(t)
	return fmt.Sprintf("brdc%03d%c.%02dn", ct.YearDay(), hourLetter(ct.Hour()), ct.Year()%100)
}

// ObsFilename returns the RINEX-Obs filename "<mount>DDDH.YYo".
func ObsFilename(mount string, t gtime.Gtime) string {
	ct := civilTime(t)
	return fmt.Sprintf("%s%03d%c.%02do", mount, ct.YearDay(), hourLetter(ct.Hour()), ct.Year()%100)
}

// SP3Filename returns the SP3 filename "<mount><GPSweek><dow>.sp3".
func SP3Filename(mount string, t gtime.Gtime) string {
	gps := gtime.Utc2GpsT(gtime.Gtime{Time: t.Time, Sec: t.Sec, Sys: gtime.UTC})
	var week int
	sow := gtime.Time2GpsT(gps, &week)
	dow := int(sow / 86400)
	return fmt.Sprintf("%s%04d%d.sp3", mount, week, dow)
}

// resolvePath joins root and name, per §6 via path/filepath so the
// separator is abstracted across platforms.
func resolvePath(root, name string) string {
	return filepath.Join(root, name)
}
