package writer

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gnss-corr/rtcmpipe/internal/epoch"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/sirupsen/logrus"
)

// ObsWriter emits RINEX-Obs v3.01 records for one mountpoint/station,
// driven by epoch.FlushFunc: each flushed epoch becomes one epoch
// header line plus one record line per satellite.
type ObsWriter struct {
	mu sync.Mutex

	root   string
	mount  string
	agency string

	file       *os.File
	filename   string
	headerDone bool
	ioErrors   int

	log *logrus.Entry
}

// NewObsWriter creates a RINEX-Obs writer for the given mountpoint,
// rooted at dir.
func NewObsWriter(dir, mount, agency string, log *logrus.Logger) *ObsWriter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ObsWriter{
		root:   dir,
		mount:  mount,
		agency: agency,
		log:    log.WithFields(logrus.Fields{"component": "rinexobs", "mount": mount}),
	}
}

// OnFlush adapts ObsWriter to epoch.FlushFunc so it can be registered
// directly with an epoch.Assembler.
func (w *ObsWriter) OnFlush(t gtime.Gtime, obs []epoch.Obs) {
	if err := w.Write(t, obs); err != nil {
		w.log.WithError(err).Warn("RINEX-Obs write failed")
	}
}

// Write appends one epoch's worth of per-satellite records.
func (w *ObsWriter) Write(t gtime.Gtime, obs []epoch.Obs) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(obs) == 0 {
		return nil
	}
	if err := w.ensureOpen(t); err != nil {
		w.ioErrors++
		w.log.WithError(err).Warn("RINEX-Obs write failed, will reopen on next epoch")
		w.file = nil
		w.headerDone = false
		return err
	}

	sorted := make([]epoch.Obs, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sat < sorted[j].Sat })

	ct := civilTime(t)
	header := fmt.Sprintf("> %04d %02d %02d %02d %02d%11.7f  0%3d\n",
		ct.Year(), int(ct.Month()), ct.Day(), ct.Hour(), ct.Minute(),
		float64(ct.Second())+float64(ct.Nanosecond())/1e9, len(sorted))
	if _, err := w.file.WriteString(header); err != nil {
		w.ioErrors++
		return err
	}

	for _, o := range sorted {
		line := gnssgo.SatID(o.Sat)
		for i := range o.P {
			line += formatObsField(o.P[i], lliAt(o.LLI, i))
		}
		for i := range o.L {
			line += formatObsField(o.L[i], lliAt(o.LLI, i))
		}
		for i := range o.D {
			line += formatObsField(o.D[i], 0)
		}
		for i := range o.SNR {
			line += formatObsField(o.SNR[i], 0)
		}
		if _, err := w.file.WriteString(line + "\n"); err != nil {
			w.ioErrors++
			return err
		}
	}
	return nil
}

func lliAt(lli []byte, i int) byte {
	if i < len(lli) {
		return lli[i]
	}
	return 0
}

func formatObsField(v float64, lli byte) string {
	if v == 0 {
		return fmt.Sprintf("%16s%1s%1s", "", "", "")
	}
	return fmt.Sprintf("%14.3f%1d%1s", v, lli, "")
}

func (w *ObsWriter) ensureOpen(t gtime.Gtime) error {
	name := ObsFilename(w.mount, t)
	if w.file != nil && w.filename == name {
		return nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("rinexobs: mkdir %s: %w", w.root, err)
	}

	path := resolvePath(w.root, name)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rinexobs: open %s: %w", path, err)
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

func (w *ObsWriter) writeHeader(t gtime.Gtime) error {
	ct := civilTime(t)
	header := fmt.Sprintf(
		"%9.2f%11s%-20s%-20s%-20s\n"+
			"ntripcorr           %-20s%-20s%-20s\n"+
			"%-60s%-20s\n",
		3.01, "", "OBSERVATION DATA", "M: MIXED", "RINEX VERSION / TYPE",
		w.agency, ct.Format("20060102 150405 UTC"), "PGM / RUN BY / DATE",
		"", "END OF HEADER",
	)
	_, err := w.file.WriteString(header)
	return err
}

// Close flushes and closes the current file handle, if any.
func (w *ObsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
