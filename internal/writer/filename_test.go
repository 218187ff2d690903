package writer_test

import (
	"testing"

	"github.com/gnss-corr/rtcmpipe/internal/writer"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
	"github.com/stretchr/testify/assert"
)

// TestNavFilename checks the "brdcDDDH.YYn" convention from §4.7: day
// of year, hour letter, 2-digit year.
func TestNavFilename(t *testing.T) {
	// 2024-02-01 03:00:00 UTC is day-of-year 32, hour 3.
	tm := gtime.Str2Time("2024/02/01 03:00:00")
	assert.Equal(t, "brdc0323.24n", writer.NavFilename(tm))
}

// TestNavFilenameHourLetters checks the '0'-'9','a'-'o' hour-letter
// mapping at its boundaries (hour 9 and hour 10).
func TestNavFilenameHourLetters(t *testing.T) {
	nine := gtime.Str2Time("2024/01/01 09:00:00")
	ten := gtime.Str2Time("2024/01/01 10:00:00")
	assert.Equal(t, "brdc0019.24n", writer.NavFilename(nine))
	assert.Equal(t, "brdc001a.24n", writer.NavFilename(ten))
}

func TestObsFilename(t *testing.T) {
	tm := gtime.Str2Time("2024/02/01 03:00:00")
	assert.Equal(t, "STAT0323.24o", writer.ObsFilename("STAT", tm))
}

// TestSP3Filename checks "<mount><GPSweek><dow>.sp3".
func TestSP3Filename(t *testing.T) {
	tm := gtime.Str2Time("2024/02/01 03:00:00")
	name := writer.SP3Filename("RTCM", tm)
	assert.Regexp(t, `^RTCM\d{4}\d\.sp3$`, name)
}
