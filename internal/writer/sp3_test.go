package writer_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gnss-corr/rtcmpipe/internal/ephstore"
	"github.com/gnss-corr/rtcmpipe/internal/writer"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/stretchr/testify/require"
)

// fakeEph is a minimal ephstore.Eph test double with a fixed,
// in-validity-window position so the store's freshness sanity pass
// accepts it as Ok without needing real Keplerian propagation, mirroring
// ephstore_test's own fakeEph.
type fakeEph struct {
	sat int
	toc gtime.Gtime
}

func (e *fakeEph) Sat() int                 { return e.sat }
func (e *fakeEph) ToC() gtime.Gtime         { return e.toc }
func (e *fakeEph) ToE() gtime.Gtime         { return e.toc }
func (e *fakeEph) IOD() uint8               { return 1 }
func (e *fakeEph) Healthy() bool            { return true }
func (e *fakeEph) ValidityWindow() float64  { return 4 * 3600 }
func (e *fakeEph) Pos(t gtime.Gtime) (pos, vel [3]float64, clkBias float64) {
	return [3]float64{2.6e7, 0, 0}, [3]float64{}, 0
}

// TestSP3WriterBackfillsGridBetweenClockCorrections reproduces §8
// scenario 5: sample=30, a clock correction at t0, then the next 120s
// later, must emit exactly the 4 grid-aligned epochs
// t0+30/+60/+90/+120 — not one epoch per wall-clock tick.
func TestSP3WriterBackfillsGridBetweenClockCorrections(t *testing.T) {
	store := ephstore.New(5, nil)
	sat := gnssgo.SatNo(gnssgo.SYS_GPS, 5)
	_, err := store.Insert(&fakeEph{sat: sat, toc: gtime.Now(gtime.GPS)}, ephstore.Check)
	require.NoError(t, err)

	dir := t.TempDir()
	w := writer.NewSP3Writer(dir, "RTCM", "ntripcorr", 30, false, store, nil)

	t0 := gtime.Now(gtime.GPS)
	require.NoError(t, w.OnClockCorrection(t0))
	require.NoError(t, w.OnClockCorrection(gtime.TimeAdd(t0, 120)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, writer.SP3Filename("RTCM", t0)))
	require.NoError(t, err)
	content := string(data)

	require.Equal(t, 4, strings.Count(content, "*  "), "expected exactly 4 grid epochs, got body:\n%s", content)
	require.Equal(t, 4, strings.Count(content, "PG05"), "expected one G05 row per epoch")
	require.True(t, strings.HasSuffix(content, "EOF\n"), "expected EOF terminator on close")
}

// TestSP3WriterFirstCorrectionSeedsWithoutBackfill checks that the
// very first clock correction seen only seeds last_epoch_written and
// emits nothing, since there is no prior grid point to fill from.
func TestSP3WriterFirstCorrectionSeedsWithoutBackfill(t *testing.T) {
	store := ephstore.New(5, nil)
	sat := gnssgo.SatNo(gnssgo.SYS_GPS, 5)
	_, err := store.Insert(&fakeEph{sat: sat, toc: gtime.Now(gtime.GPS)}, ephstore.Check)
	require.NoError(t, err)

	dir := t.TempDir()
	w := writer.NewSP3Writer(dir, "RTCM", "ntripcorr", 30, false, store, nil)

	require.NoError(t, w.OnClockCorrection(gtime.Now(gtime.GPS)))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "first correction must not open a file before any grid point is due")
}

// TestSP3WriterSkipsEarlierOrEqualCorrection checks that a correction
// at or before last_epoch_written is a no-op rather than rewinding the
// grid.
func TestSP3WriterSkipsEarlierOrEqualCorrection(t *testing.T) {
	store := ephstore.New(5, nil)
	sat := gnssgo.SatNo(gnssgo.SYS_GPS, 5)
	_, err := store.Insert(&fakeEph{sat: sat, toc: gtime.Now(gtime.GPS)}, ephstore.Check)
	require.NoError(t, err)

	dir := t.TempDir()
	w := writer.NewSP3Writer(dir, "RTCM", "ntripcorr", 30, false, store, nil)
	defer w.Close()

	t0 := gtime.Now(gtime.GPS)
	require.NoError(t, w.OnClockCorrection(t0))
	require.NoError(t, w.OnClockCorrection(gtime.TimeAdd(t0, 60)))

	data, err := os.ReadFile(filepath.Join(dir, writer.SP3Filename("RTCM", t0)))
	require.NoError(t, err)
	before := strings.Count(string(data), "*  ")

	require.NoError(t, w.OnClockCorrection(t0)) // at last_epoch_written before the 60s advance's own last
	data, err = os.ReadFile(filepath.Join(dir, writer.SP3Filename("RTCM", t0)))
	require.NoError(t, err)
	require.Equal(t, before, strings.Count(string(data), "*  "), "a non-advancing correction must not emit or rewind epochs")
}
