package rtcm

import (
	"fmt"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
)

// MSM message types (RTCM 3.3 §3.5.10). MSM1/2 carry compact ranges
// only; MSM4/5/6/7 add CNR and, for 5/7, phase-range rates.
const (
	MSM1 = 1
	MSM2 = 2
	MSM3 = 3
	MSM4 = 4
	MSM5 = 5
	MSM6 = 6
	MSM7 = 7
)

// MSMHeader is the satellite/signal mask and epoch shared by every MSM
// variant of one constellation.
type MSMHeader struct {
	MessageType            int
	StationID               uint16
	GNSSID                  int // 0:GPS 1:GLONASS 2:Galileo 3:SBAS 4:QZSS 5:BeiDou 6:IRNSS
	Epoch                   uint32
	MultipleMessage         bool
	IssueOfDataStation      uint8
	ClockSteeringIndicator  uint8
	ExternalClockIndicator  uint8
	SmoothingIndicator      bool
	SmoothingInterval       uint8
	SatelliteMask           uint64
	SignalMask              uint32
	CellMask                []uint8
	NumSatellites           int
	NumSignals              int
	NumCells                int
}

// MSMSatellite carries the per-satellite range scale shared by every
// signal observed on that satellite (DF397-DF399 family).
type MSMSatellite struct {
	ID             int
	RangeInteger   uint8
	ExtendedInfo   uint8
	RangeModulo    float64 // ms, fractional part of the satellite range
	PhaseRangeRate float64 // m/s, coarse satellite-level rate (MSM5/7)
}

// MSMSignal is one satellite-signal cell: a pseudorange, phase range
// and/or CNR measurement on a single RINEX-style signal code.
type MSMSignal struct {
	SatIndex           int     // index into MSMData.Satellites
	Code               string  // RINEX-style band+attribute, e.g. "1C", "2W"
	Pseudorange        float64 // m
	PhaseRange         float64 // cycles
	PhaseRangeValid    bool
	LockTime           uint16 // raw lock-time indicator, DF402/DF403
	HalfCycleAmbiguity bool
	CNR                float64 // dB-Hz
	PhaseRangeRate     float64 // m/s, fine signal-level rate (MSM5/7)
}

// MSMData is one decoded MSM message: a header, the per-satellite
// range scales, and the per-cell signal measurements.
type MSMData struct {
	Header     MSMHeader
	Satellites []MSMSatellite
	Signals    []MSMSignal
}

// decodeMSMMessage decodes any MSM1-7 message for the given
// constellation into a flat MSMData, the way decodeLegacyRTCMMessage
// decodes the older 1001-1012 family.
func decodeMSMMessage(msg *RTCMMessage, sys int) (*MSMData, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	msmType, err := msmVariant(msg.Type)
	if err != nil {
		return nil, err
	}

	header, bitIndex, err := decodeMSMHeader(msg, sys)
	if err != nil {
		return nil, err
	}

	data := &MSMData{
		Header:     *header,
		Satellites: make([]MSMSatellite, header.NumSatellites),
		Signals:    make([]MSMSignal, header.NumCells),
	}

	bitIndex, err = decodeMSMSatellites(msg, data, bitIndex, msmType)
	if err != nil {
		return nil, err
	}
	if _, err := decodeMSMSignals(msg, data, bitIndex, msmType); err != nil {
		return nil, err
	}

	return data, nil
}

// msmVariant maps an absolute RTCM message type to its MSM1-7 variant
// within whichever constellation range it falls in.
func msmVariant(msgType int) (int, error) {
	switch {
	case msgType >= MSM_GPS_RANGE_START && msgType <= MSM_GPS_RANGE_END:
		return msgType - MSM_GPS_RANGE_START + 1, nil
	case msgType >= MSM_GLONASS_RANGE_START && msgType <= MSM_GLONASS_RANGE_END:
		return msgType - MSM_GLONASS_RANGE_START + 1, nil
	case msgType >= MSM_GALILEO_RANGE_START && msgType <= MSM_GALILEO_RANGE_END:
		return msgType - MSM_GALILEO_RANGE_START + 1, nil
	case msgType >= MSM_SBAS_RANGE_START && msgType <= MSM_SBAS_RANGE_END:
		return msgType - MSM_SBAS_RANGE_START + 1, nil
	case msgType >= MSM_QZSS_RANGE_START && msgType <= MSM_QZSS_RANGE_END:
		return msgType - MSM_QZSS_RANGE_START + 1, nil
	case msgType >= MSM_BEIDOU_RANGE_START && msgType <= MSM_BEIDOU_RANGE_END:
		return msgType - MSM_BEIDOU_RANGE_START + 1, nil
	case msgType >= MSM_IRNSS_RANGE_START && msgType <= MSM_IRNSS_RANGE_END:
		return msgType - MSM_IRNSS_RANGE_START + 1, nil
	default:
		return 0, fmt.Errorf("not an MSM message: type %d", msgType)
	}
}

// decodeMSMHeader decodes the satellite/signal/cell mask shared by
// every MSM variant, returning the bit offset the satellite data
// section starts at.
func decodeMSMHeader(msg *RTCMMessage, sys int) (*MSMHeader, int, error) {
	if msg == nil || len(msg.Data) < 10 {
		return nil, 0, fmt.Errorf("message too short for MSM header")
	}

	header := &MSMHeader{
		MessageType: msg.Type,
		StationID:   msg.StationID,
		GNSSID:      getGNSSIDFromSystem(sys),
	}

	bitIndex := 36 // preamble+length(24) + type+station(12) already skipped upstream

	if sys == gnssgo.SYS_GLO {
		header.Epoch = uint32(gnssgo.GetBitU(msg.Data, bitIndex, 27))
		bitIndex += 27
	} else {
		header.Epoch = uint32(gnssgo.GetBitU(msg.Data, bitIndex, 30))
		bitIndex += 30
	}

	header.MultipleMessage = gnssgo.GetBitU(msg.Data, bitIndex, 1) != 0
	bitIndex++
	header.IssueOfDataStation = uint8(gnssgo.GetBitU(msg.Data, bitIndex, 3))
	bitIndex += 3
	header.ClockSteeringIndicator = uint8(gnssgo.GetBitU(msg.Data, bitIndex, 2))
	bitIndex += 2
	header.ExternalClockIndicator = uint8(gnssgo.GetBitU(msg.Data, bitIndex, 2))
	bitIndex += 2
	header.SmoothingIndicator = gnssgo.GetBitU(msg.Data, bitIndex, 1) != 0
	bitIndex++
	header.SmoothingInterval = uint8(gnssgo.GetBitU(msg.Data, bitIndex, 3))
	bitIndex += 3

	header.SatelliteMask = gnssgo.GetBitU64(msg.Data, bitIndex, 64)
	bitIndex += 64
	header.NumSatellites = countBits(header.SatelliteMask)

	header.SignalMask = uint32(gnssgo.GetBitU(msg.Data, bitIndex, 32))
	bitIndex += 32
	header.NumSignals = countBits32(header.SignalMask)

	cellMaskSize := header.NumSatellites * header.NumSignals
	header.CellMask = make([]uint8, (cellMaskSize+7)/8)
	for i := 0; i < cellMaskSize; i++ {
		if gnssgo.GetBitU(msg.Data, bitIndex, 1) != 0 {
			header.CellMask[i/8] |= 1 << (i % 8)
			header.NumCells++
		}
		bitIndex++
	}

	return header, bitIndex, nil
}

// decodeMSMSatellites decodes the satellite range section: the coarse
// integer-millisecond range, then the fractional range (and, for
// MSM5/7, the coarse phase-range rate) — DF397-DF399/DF404-DF405.
func decodeMSMSatellites(msg *RTCMMessage, data *MSMData, bitIndex int, msmType int) (int, error) {
	header := &data.Header

	satIndex := 0
	for i := 0; i < 64; i++ {
		if header.SatelliteMask&(1<<uint(i)) == 0 {
			continue
		}
		sat := &data.Satellites[satIndex]
		sat.ID = i + 1

		if msmType >= MSM4 {
			sat.RangeInteger = uint8(gnssgo.GetBitU(msg.Data, bitIndex, 8))
			bitIndex += 8
			if msmType == MSM5 || msmType == MSM7 {
				sat.ExtendedInfo = uint8(gnssgo.GetBitU(msg.Data, bitIndex, 4))
				bitIndex += 4
			}
		}
		satIndex++
	}

	satIndex = 0
	for i := 0; i < 64; i++ {
		if header.SatelliteMask&(1<<uint(i)) == 0 {
			continue
		}
		sat := &data.Satellites[satIndex]

		switch msmType {
		case MSM1, MSM2, MSM3:
			sat.RangeModulo = float64(gnssgo.GetBitU(msg.Data, bitIndex, 10)) * rangeModuloScale10
			bitIndex += 10
		case MSM4, MSM5:
			sat.RangeModulo = float64(gnssgo.GetBitU(msg.Data, bitIndex, 15)) * rangeModuloScale15
			bitIndex += 15
		case MSM6, MSM7:
			sat.RangeModulo = float64(gnssgo.GetBitU(msg.Data, bitIndex, 20)) * rangeModuloScale20
			bitIndex += 20
		}

		if msmType == MSM5 || msmType == MSM7 {
			const width = 14
			rate := GetBitsU(msg.Data, bitIndex, width)
			if rate != -8192 {
				sat.PhaseRangeRate = float64(rate) * phaseRangeRateCoarseScale
			}
			bitIndex += width
		}

		satIndex++
	}

	return bitIndex, nil
}

// decodeMSMSignals decodes the per-cell signal fields. The cell order
// is satellite-major, signal-minor, matching the mask layout in
// decodeMSMHeader; satIndexForCell recovers which MSMSatellite a cell
// belongs to without re-walking the mask for every field.
func decodeMSMSignals(msg *RTCMMessage, data *MSMData, bitIndex int, msmType int) (int, error) {
	header := &data.Header
	cellSatIndex := buildCellSatIndex(header)

	cellIndex := 0
	for i := 0; i < 64; i++ {
		if header.SatelliteMask&(1<<uint(i)) == 0 {
			continue
		}
		for j := 0; j < 32; j++ {
			if header.SignalMask&(1<<uint(j)) == 0 {
				continue
			}
			cellBit := cellIndex
			if cellIndex >= header.NumCells {
				break
			}
			if header.CellMask[cellBit/8]&(1<<uint(cellBit%8)) == 0 {
				cellIndex++
				continue
			}
			signal := &data.Signals[cellIndex]
			signal.SatIndex = cellSatIndex[cellIndex]
			signal.Code = signalCode(header.GNSSID, j)
			cellIndex++
		}
	}

	hasPseudorange := msmType != MSM2
	hasPhaseRange := msmType != MSM1
	hasCNR := msmType >= MSM4
	hasRate := msmType == MSM5 || msmType == MSM7

	if hasPseudorange {
		for i := 0; i < header.NumCells; i++ {
			sat := satFor(data, data.Signals[i].SatIndex)
			signal := &data.Signals[i]
			switch msmType {
			case MSM1, MSM3:
				pr := GetBitsU(msg.Data, bitIndex, 15)
				if pr != -16384 && sat != nil {
					signal.Pseudorange = rangeMeters(sat.RangeInteger, sat.RangeModulo, float64(pr)*0.02)
				}
				bitIndex += 15
			case MSM4, MSM5:
				pr := GetBitsU(msg.Data, bitIndex, 20)
				if pr != -524288 && sat != nil {
					signal.Pseudorange = rangeMeters(sat.RangeInteger, sat.RangeModulo, float64(pr)*0.0005)
				}
				bitIndex += 20
			case MSM6, MSM7:
				pr := GetBitsU(msg.Data, bitIndex, 24)
				if pr != -8388608 && sat != nil {
					signal.Pseudorange = rangeMeters(sat.RangeInteger, sat.RangeModulo, float64(pr)*0.00003125)
				}
				bitIndex += 24
			}
		}
	}

	if hasPhaseRange {
		for i := 0; i < header.NumCells; i++ {
			sat := satFor(data, data.Signals[i].SatIndex)
			signal := &data.Signals[i]
			const width = 24 // DF400 fine phase range, all of MSM2-7
			pp := GetBitsU(msg.Data, bitIndex, width)
			const invalid = -(1 << (width - 1))
			if pp != invalid && sat != nil {
				rangeM := rangeMeters(sat.RangeInteger, sat.RangeModulo, float64(pp)*0.0005)
				if lambda := signalWavelength(header.GNSSID, signal.Code); lambda > 0 {
					signal.PhaseRange = rangeM / lambda
					signal.PhaseRangeValid = true
				}
			}
			bitIndex += width
		}
	}

	if hasPhaseRange {
		for i := 0; i < header.NumCells; i++ {
			width := 4
			if msmType == MSM5 || msmType == MSM6 || msmType == MSM7 {
				width = 10
			}
			data.Signals[i].LockTime = uint16(gnssgo.GetBitU(msg.Data, bitIndex, width))
			bitIndex += width
		}
		for i := 0; i < header.NumCells; i++ {
			data.Signals[i].HalfCycleAmbiguity = gnssgo.GetBitU(msg.Data, bitIndex, 1) != 0
			bitIndex++
		}
	}

	if hasCNR {
		for i := 0; i < header.NumCells; i++ {
			width := 6
			scale := 1.0
			if msmType == MSM6 || msmType == MSM7 {
				width = 10
				scale = 1.0 / 16.0
			}
			data.Signals[i].CNR = float64(gnssgo.GetBitU(msg.Data, bitIndex, width)) * scale
			bitIndex += width
		}
	}

	if hasRate {
		for i := 0; i < header.NumCells; i++ {
			rate := GetBitsU(msg.Data, bitIndex, 15)
			if rate != -16384 {
				data.Signals[i].PhaseRangeRate = float64(rate) * phaseRangeRateFineScale
			}
			bitIndex += 15
		}
	}

	return bitIndex, nil
}

const (
	rangeModuloScale10 = 1.0
	rangeModuloScale15 = 1.0 / 1024.0
	rangeModuloScale20 = 1.0 / 16384.0

	phaseRangeRateCoarseScale = 1.0
	phaseRangeRateFineScale   = 0.0001
)

// rangeMeters combines a satellite's integer-millisecond range with
// its fractional range and a signal's fine offset, all expressed in
// milliseconds, into a one-way range in meters.
func rangeMeters(rangeInt uint8, rangeModuloMs, fineMs float64) float64 {
	return (float64(rangeInt) + rangeModuloMs + fineMs) * 1e-3 * gnssgo.CLIGHT
}

// buildCellSatIndex returns, for each set cell bit in mask order, the
// MSMSatellite index it belongs to.
func buildCellSatIndex(header *MSMHeader) []int {
	out := make([]int, 0, header.NumCells)
	satIndex := 0
	cellBit := 0
	for i := 0; i < 64; i++ {
		if header.SatelliteMask&(1<<uint(i)) == 0 {
			continue
		}
		for j := 0; j < 32; j++ {
			if header.SignalMask&(1<<uint(j)) == 0 {
				continue
			}
			if header.CellMask[cellBit/8]&(1<<uint(cellBit%8)) != 0 {
				out = append(out, satIndex)
			}
			cellBit++
		}
		satIndex++
	}
	return out
}

func satFor(data *MSMData, satIndex int) *MSMSatellite {
	if satIndex < 0 || satIndex >= len(data.Satellites) {
		return nil
	}
	return &data.Satellites[satIndex]
}

// countBits counts the number of bits set in a 64-bit value.
func countBits(value uint64) int {
	count := 0
	for i := 0; i < 64; i++ {
		if value&(1<<uint(i)) != 0 {
			count++
		}
	}
	return count
}

// countBits32 counts the number of bits set in a 32-bit value.
func countBits32(value uint32) int {
	count := 0
	for i := 0; i < 32; i++ {
		if value&(1<<uint(i)) != 0 {
			count++
		}
	}
	return count
}

// getGNSSIDFromSystem converts a gnssgo system constant to the MSM
// GNSSID space used in MSMHeader/signalCode.
func getGNSSIDFromSystem(sys int) int {
	switch sys {
	case gnssgo.SYS_GPS:
		return 0
	case gnssgo.SYS_GLO:
		return 1
	case gnssgo.SYS_GAL:
		return 2
	case gnssgo.SYS_SBS:
		return 3
	case gnssgo.SYS_QZS:
		return 4
	case gnssgo.SYS_CMP:
		return 5
	case gnssgo.SYS_IRN:
		return 6
	default:
		return 0
	}
}

// signalCode maps an MSM signal-mask bit (0-31) to its RINEX 3 band+
// attribute code, per RTCM 3.3's per-constellation signal tables.
// Entries left blank are reserved/unassigned in the signal mask.
func signalCode(gnssID, bit int) string {
	if bit < 0 || bit >= 32 {
		return ""
	}
	var table [32]string
	switch gnssID {
	case 0: // GPS
		table = [32]string{
			"", "1C", "1P", "1W", "1Y", "1M", "", "2C",
			"2P", "2W", "2Y", "2M", "", "", "2S", "2L",
			"2X", "", "", "", "5I", "5Q", "5X", "",
			"", "", "", "", "1S", "1L", "1X", "",
		}
	case 1: // GLONASS
		table = [32]string{
			"", "1C", "1P", "", "", "", "", "2C",
			"2P", "", "", "", "", "", "", "",
			"", "", "", "", "", "", "", "",
			"", "", "", "", "", "", "", "",
		}
	case 2: // Galileo
		table = [32]string{
			"", "1C", "1A", "1B", "1X", "1Z", "", "6C",
			"6A", "6B", "6X", "6Z", "", "7I", "7Q", "7X",
			"", "8I", "8Q", "8X", "", "5I", "5Q", "5X",
			"", "", "", "", "", "", "", "",
		}
	case 4: // QZSS
		table = [32]string{
			"", "1C", "", "", "", "1Z", "", "",
			"", "", "", "", "", "", "2S", "2L",
			"2X", "", "", "", "5I", "5Q", "5X", "",
			"", "", "", "", "1S", "1L", "1X", "",
		}
	case 5: // BeiDou
		table = [32]string{
			"", "2I", "2Q", "2X", "", "", "", "6I",
			"6Q", "6X", "", "", "", "7I", "7Q", "7X",
			"", "", "", "", "", "", "", "",
			"", "", "", "", "", "", "", "",
		}
	default:
		return ""
	}
	return table[bit]
}

// signalWavelength returns the carrier wavelength (m) for a
// constellation/signal-code pair, or 0 if the band is not recognized
// (in which case the caller leaves the phase range undecoded rather
// than guess).
func signalWavelength(gnssID int, code string) float64 {
	if code == "" {
		return 0
	}
	band := code[0]
	var freq float64
	switch gnssID {
	case 1: // GLONASS: base frequencies only, channel offset not carried by MSMSignal
		switch band {
		case '1':
			freq = gnssgo.FREQ1_GLO
		case '2':
			freq = gnssgo.FREQ2_GLO
		}
	case 2: // Galileo
		switch band {
		case '1':
			freq = gnssgo.FREQ1
		case '5':
			freq = gnssgo.FREQ5
		case '7':
			freq = gnssgo.FREQ7
		case '8':
			freq = gnssgo.FREQ8
		case '6':
			freq = gnssgo.FREQ6
		}
	case 5: // BeiDou
		switch band {
		case '2':
			freq = gnssgo.FREQ7
		case '6':
			freq = gnssgo.FREQ6
		case '7':
			freq = gnssgo.FREQ7
		}
	default: // GPS, QZSS
		switch band {
		case '1':
			freq = gnssgo.FREQ1
		case '2':
			freq = gnssgo.FREQ2
		case '5':
			freq = gnssgo.FREQ5
		}
	}
	if freq == 0 {
		return 0
	}
	return gnssgo.CLIGHT / freq
}

// msmSystemOf maps an MSMHeader's GNSSID back to a gnssgo.SYS_* for
// time-tagging; ToObservationData uses it to pick the right epoch
// anchor (GPS-week TOW vs GLONASS day+time-of-day).
func msmSystemOf(gnssID int) int {
	switch gnssID {
	case 1:
		return gnssgo.SYS_GLO
	case 2:
		return gnssgo.SYS_GAL
	case 4:
		return gnssgo.SYS_QZS
	case 5:
		return gnssgo.SYS_CMP
	default:
		return gnssgo.SYS_GPS
	}
}

// ToObservationData flattens an MSM message into the same
// ObservationData shape the legacy 1001-1012 decoders produce, so
// core.CoreContext.DispatchDecoded can hand both families to the same
// assembler/writer path. Unlike the legacy family's fixed two-slot
// L1/L2 layout, a satellite's per-frequency slices here hold exactly
// as many signals as the message carries.
func (d *MSMData) ToObservationData() *ObservationData {
	obs := &ObservationData{
		StationID: int(d.Header.StationID),
		Sync:      d.Header.MultipleMessage,
	}

	if msmSystemOf(d.Header.GNSSID) == gnssgo.SYS_GLO {
		obs.Time = gloTimeFromTOD(float64(d.Header.Epoch))
	} else {
		obs.Time = gpsTimeFromTOW(float64(d.Header.Epoch) * 0.001)
	}

	satSignals := make(map[int][]MSMSignal, len(d.Satellites))
	for _, sig := range d.Signals {
		satSignals[sig.SatIndex] = append(satSignals[sig.SatIndex], sig)
	}

	sysID := msmSystemOf(d.Header.GNSSID)
	for satIdx, sat := range d.Satellites {
		sigs := satSignals[satIdx]
		if len(sigs) == 0 {
			continue
		}
		n := len(sigs)
		codeArr := make([]byte, n)
		lArr := make([]float64, n)
		pArr := make([]float64, n)
		dArr := make([]float64, n)
		snrArr := make([]float64, n)
		lliArr := make([]byte, n)
		validArr := make([]bool, n)

		for k, sig := range sigs {
			if len(sig.Code) > 0 {
				codeArr[k] = sig.Code[0]
			}
			pArr[k] = sig.Pseudorange
			validArr[k] = sig.Pseudorange != 0
			if sig.PhaseRangeValid {
				lArr[k] = sig.PhaseRange
			}
			dArr[k] = sig.PhaseRangeRate
			snrArr[k] = sig.CNR
			if sig.LockTime > 0 {
				lliArr[k] = 0
			} else {
				lliArr[k] = 1
			}
			if sig.HalfCycleAmbiguity {
				lliArr[k] |= 2
			}
		}

		obs.SatID = append(obs.SatID, gnssgo.SatNo(sysID, sat.ID))
		obs.Code = append(obs.Code, codeArr)
		obs.L = append(obs.L, lArr)
		obs.P = append(obs.P, pArr)
		obs.D = append(obs.D, dArr)
		obs.SNR = append(obs.SNR, snrArr)
		obs.LLI = append(obs.LLI, lliArr)
		obs.Valid = append(obs.Valid, validArr)
	}
	obs.N = len(obs.SatID)
	return obs
}
