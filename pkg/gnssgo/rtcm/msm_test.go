package rtcm

import (
	"testing"
	"time"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBitU writes an unsigned n-bit (n<=32) field at bit offset pos,
// big-endian MSB-first, the inverse of gnssgo.GetBitU. The gnssgo
// package only exports bit readers; this package's tests need a
// writer to build synthetic MSM payloads.
func setBitU(buff []byte, pos, n int, value uint32) {
	for i := 0; i < n; i++ {
		bit := (value >> uint(n-1-i)) & 1
		idx := pos + i
		mask := byte(1) << uint(7-idx%8)
		if bit != 0 {
			buff[idx/8] |= mask
		} else {
			buff[idx/8] &^= mask
		}
	}
}

func TestDecodeMSMHeaderGPS(t *testing.T) {
	msg := &RTCMMessage{
		Type:      MSM_GPS_RANGE_START + MSM7 - 1,
		Length:    100,
		Data:      make([]byte, 100),
		Timestamp: time.Now(),
		StationID: 1234,
	}

	bitIndex := 36
	setBitU(msg.Data, bitIndex, 30, 500000)
	bitIndex += 30
	setBitU(msg.Data, bitIndex, 1, 0)
	bitIndex++
	setBitU(msg.Data, bitIndex, 3, 5)
	bitIndex += 3
	setBitU(msg.Data, bitIndex, 2, 2)
	bitIndex += 2
	setBitU(msg.Data, bitIndex, 2, 1)
	bitIndex += 2
	setBitU(msg.Data, bitIndex, 1, 1)
	bitIndex++
	setBitU(msg.Data, bitIndex, 3, 3)
	bitIndex += 3

	// Satellite mask: PRN 1, 5, 10.
	setBitU(msg.Data, bitIndex, 32, 0x00000421)
	bitIndex += 32
	setBitU(msg.Data, bitIndex, 32, 0)
	bitIndex += 32

	// Signal mask: bits 0, 2, 9.
	setBitU(msg.Data, bitIndex, 32, 0x00000205)
	bitIndex += 32

	// Cell mask: 3 satellites * 3 signals, all but the last cell set.
	setBitU(msg.Data, bitIndex, 9, 0x1FD)
	bitIndex += 9

	header, newBitIndex, err := decodeMSMHeader(msg, gnssgo.SYS_GPS)
	require.NoError(t, err)

	assert.Equal(t, uint16(1234), header.StationID)
	assert.Equal(t, 0, header.GNSSID)
	assert.Equal(t, uint32(500000), header.Epoch)
	assert.False(t, header.MultipleMessage)
	assert.Equal(t, uint8(5), header.IssueOfDataStation)
	assert.Equal(t, uint8(2), header.ClockSteeringIndicator)
	assert.Equal(t, uint8(1), header.ExternalClockIndicator)
	assert.True(t, header.SmoothingIndicator)
	assert.Equal(t, uint8(3), header.SmoothingInterval)
	assert.Equal(t, 3, header.NumSatellites)
	assert.Equal(t, 3, header.NumSignals)
	assert.Equal(t, 8, header.NumCells)
	assert.Equal(t, bitIndex, newBitIndex)
}

// buildMSM4Message packs a synthetic GPS MSM4 message with two
// satellites, each observed on two signals, covering every field
// decodeMSMSignals fills in.
func buildMSM4Message() *RTCMMessage {
	msg := &RTCMMessage{
		Type:      MSM_GPS_RANGE_START + MSM4 - 1,
		Length:    160,
		Data:      make([]byte, 160),
		Timestamp: time.Now(),
		StationID: 1234,
	}

	bitIndex := 36
	setBitU(msg.Data, bitIndex, 30, 500000)
	bitIndex += 30
	setBitU(msg.Data, bitIndex, 1, 0)
	bitIndex++
	setBitU(msg.Data, bitIndex, 3, 0)
	bitIndex += 3
	setBitU(msg.Data, bitIndex, 2, 0)
	bitIndex += 2
	setBitU(msg.Data, bitIndex, 2, 0)
	bitIndex += 2
	setBitU(msg.Data, bitIndex, 1, 0)
	bitIndex++
	setBitU(msg.Data, bitIndex, 3, 0)
	bitIndex += 3

	// Satellite mask: PRN 1 and PRN 6.
	setBitU(msg.Data, bitIndex, 32, 0x00000021)
	bitIndex += 32
	setBitU(msg.Data, bitIndex, 32, 0)
	bitIndex += 32

	// Signal mask: bits 1 and 2, mapping to codes "1C" and "1P".
	setBitU(msg.Data, bitIndex, 32, 0x00000006)
	bitIndex += 32

	// Cell mask: 2 satellites * 2 signals, all set.
	setBitU(msg.Data, bitIndex, 4, 0xF)
	bitIndex += 4

	setBitU(msg.Data, bitIndex, 8, 100)
	bitIndex += 8
	setBitU(msg.Data, bitIndex, 8, 150)
	bitIndex += 8

	setBitU(msg.Data, bitIndex, 15, 1000)
	bitIndex += 15
	setBitU(msg.Data, bitIndex, 15, 2000)
	bitIndex += 15

	for _, pr := range []uint32{5000, 5100, 5200, 5300} {
		setBitU(msg.Data, bitIndex, 20, pr)
		bitIndex += 20
	}
	for _, pp := range []uint32{6000, 6100, 6200, 6300} {
		setBitU(msg.Data, bitIndex, 24, pp)
		bitIndex += 24
	}
	for _, lock := range []uint32{5, 6, 7, 8} {
		setBitU(msg.Data, bitIndex, 4, lock)
		bitIndex += 4
	}
	for _, half := range []uint32{0, 1, 0, 1} {
		setBitU(msg.Data, bitIndex, 1, half)
		bitIndex++
	}
	for _, cnr := range []uint32{40, 42, 44, 46} {
		setBitU(msg.Data, bitIndex, 6, cnr)
		bitIndex += 6
	}

	return msg
}

func TestDecodeMSMMessageGPS(t *testing.T) {
	msg := buildMSM4Message()

	msm, err := decodeMSMMessage(msg, gnssgo.SYS_GPS)
	require.NoError(t, err)

	assert.Equal(t, 2, msm.Header.NumSatellites)
	assert.Equal(t, 2, msm.Header.NumSignals)
	assert.Equal(t, 4, msm.Header.NumCells)

	require.Len(t, msm.Satellites, 2)
	assert.Equal(t, 1, msm.Satellites[0].ID)
	assert.Equal(t, 6, msm.Satellites[1].ID)
	assert.Equal(t, uint8(100), msm.Satellites[0].RangeInteger)
	assert.Equal(t, uint8(150), msm.Satellites[1].RangeInteger)

	require.Len(t, msm.Signals, 4)
	for _, sig := range msm.Signals {
		assert.NotZero(t, sig.Pseudorange)
		assert.NotZero(t, sig.CNR)
	}
	assert.False(t, msm.Signals[0].HalfCycleAmbiguity)
	assert.True(t, msm.Signals[1].HalfCycleAmbiguity)
	assert.Equal(t, "1C", msm.Signals[0].Code)
	assert.Equal(t, "1P", msm.Signals[1].Code)
}

func TestMSMDataToObservationData(t *testing.T) {
	msg := buildMSM4Message()
	msm, err := decodeMSMMessage(msg, gnssgo.SYS_GPS)
	require.NoError(t, err)

	obs := msm.ToObservationData()
	assert.Equal(t, 2, obs.N)
	require.Len(t, obs.SatID, 2)
	assert.Equal(t, gnssgo.SatNo(gnssgo.SYS_GPS, 1), obs.SatID[0])
	require.Len(t, obs.P[0], 2)
	assert.NotZero(t, obs.P[0][0])
}

func TestSignalCodeAndWavelength(t *testing.T) {
	assert.Equal(t, "1C", signalCode(0, 1))
	assert.Equal(t, "", signalCode(0, 0))
	assert.Greater(t, signalWavelength(0, "1C"), 0.0)
	assert.Equal(t, 0.0, signalWavelength(0, ""))
}
