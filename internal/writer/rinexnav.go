package writer

import (
	"fmt"
	"os"
	"sync"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/rtcm"
	"github.com/sirupsen/logrus"
)

// NavWriter emits RINEX-Nav v3.01 records, one file per civil
// day/hour bucket per §4.7. On first write it creates the target
// directory (mode 0755), opens (or appends to) the resolved filename,
// and writes the header exactly once.
type NavWriter struct {
	mu sync.Mutex

	root    string
	agency  string
	program string

	file       *os.File
	filename   string
	headerDone bool
	ioErrors   int

	log *logrus.Entry
}

// NewNavWriter creates a RINEX-Nav writer rooted at dir.
func NewNavWriter(dir, agency string, log *logrus.Logger) *NavWriter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NavWriter{
		root:    dir,
		agency:  agency,
		program: "ntripcorr",
		log:     log.WithField("component", "rinexnav"),
	}
}

// WriteGPS appends one GPS broadcast ephemeris record, opening/
// creating the file for toc's civil day/hour if necessary.
func (w *NavWriter) WriteGPS(eph rtcm.GPSEphemeris, toc, toe gtime.Gtime) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(toc); err != nil {
		w.ioErrors++
		w.log.WithError(err).Warn("RINEX-Nav write failed, will reopen on next record")
		w.file = nil
		w.headerDone = false
		return err
	}

	ct := civilTime(toc)
	line := fmt.Sprintf("%s%3d %04d %02d %02d %02d %02d %02.0f%19.12E%19.12E%19.12E\n",
		gnssgo.SatID(gnssgo.SatNo(gnssgo.SYS_GPS, int(eph.SatID))), 0,
		ct.Year(), int(ct.Month()), ct.Day(), ct.Hour(), ct.Minute(), float64(ct.Second()),
		eph.Af0, eph.Af1, eph.Af2)
	if _, err := w.file.WriteString(line); err != nil {
		w.ioErrors++
		return err
	}

	broadcastLine := fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n",
		float64(eph.IODE), eph.Crs, eph.DeltaN, eph.M0)
	orbitLine1 := fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n",
		eph.Cuc, eph.Eccentricity, eph.Cus, eph.SqrtA)
	orbitLine2 := fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n",
		float64(eph.Toe), eph.Cic, eph.Omega0, eph.Cis)
	orbitLine3 := fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n",
		eph.Inclination, eph.Crc, eph.Omega, eph.OmegaDot)
	orbitLine4 := fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n",
		eph.IDOT, 0.0, float64(eph.Week), 0.0)
	orbitLine5 := fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n",
		float64(eph.SvAccuracy), float64(eph.SvHealth), eph.TGD, float64(eph.IODC))

	for _, l := range []string{broadcastLine, orbitLine1, orbitLine2, orbitLine3, orbitLine4, orbitLine5} {
		if _, err := w.file.WriteString(l); err != nil {
			w.ioErrors++
			return err
		}
	}
	return nil
}

func (w *NavWriter) ensureOpen(t gtime.Gtime) error {
	name := NavFilename(t)
	if w.file != nil && w.filename == name {
		return nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("rinexnav: mkdir %s: %w", w.root, err)
	}

	path := resolvePath(w.root, name)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rinexnav: open %s: %w", path, err)
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

func (w *NavWriter) writeHeader(t gtime.Gtime) error {
	ct := civilTime(t)
	header := fmt.Sprintf(
		"%9.2f%11s%-20s%-20s%-20s\n"+
			"%-60s%-20s\n"+
			"%-60s%-20s\n",
		3.01, "", "N: GNSS NAV DATA", "GPS", "RINEX VERSION / TYPE",
		w.program+"           "+w.agency+"           "+ct.Format("20060102 150405 UTC"), "PGM / RUN BY / DATE",
		"", "END OF HEADER",
	)
	_, err := w.file.WriteString(header)
	return err
}

// Close flushes and closes the current file handle, if any.
func (w *NavWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
