package rtcm

import (
	"fmt"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/gtime"
)

// ObservationData represents one epoch of per-satellite GNSS
// observations decoded from a legacy RTCM 1001-1012 message.
type ObservationData struct {
	Time      gtime.Gtime // Observation epoch (GPS- or GLONASS-tagged)
	StationID int         // Reference station ID
	N         int         // Number of satellites
	SatID     []int       // Dense satellite indices (gnssgo.SatNo space)
	Code      [][]byte    // Signal code types, per frequency slot
	L         [][]float64 // Carrier phase measurements (cycles)
	P         [][]float64 // Pseudorange measurements (meters)
	D         [][]float64 // Doppler measurements (Hz) — not carried by 1001-1012
	SNR       [][]float64 // Signal-to-noise ratio (dB-Hz)
	LLI       [][]byte    // Loss-of-lock indicator, per frequency slot
	Valid     [][]bool    // Per-field validity, parallel to P/L
	Sync      bool        // Synchronous-GNSS flag from the header
}

// Legacy RTCM message types (1001-1004, 1009-1012).
const (
	RTCM_MSG_1001 = 1001
	RTCM_MSG_1002 = 1002
	RTCM_MSG_1003 = 1003
	RTCM_MSG_1004 = 1004

	RTCM_MSG_1009 = 1009
	RTCM_MSG_1010 = 1010
	RTCM_MSG_1011 = 1011
	RTCM_MSG_1012 = 1012
)

// RTCM observation codes.
const (
	CODE_L1C = 1
	CODE_L1P = 2
	CODE_L2C = 3
	CODE_L2P = 4
	CODE_L2W = 5
	CODE_L2X = 6
	CODE_L2D = 7
	CODE_L5I = 8
	CODE_L5Q = 9
	CODE_L5X = 10
)

var l2Codes = [4]byte{CODE_L2X, CODE_L2P, CODE_L2D, CODE_L2W}

// GetCurrentGPSWeek returns the current GPS week number against the
// wall clock, used to anchor a bare TOW field to a full epoch.
func GetCurrentGPSWeek() int {
	now := gtime.Now(gtime.UTC)
	gps := gtime.Utc2GpsT(now)
	var week int
	gtime.Time2GpsT(gps, &week)
	return week
}

// GetBitsU reads a signed n-bit field and returns it as a plain int,
// matching the teacher's narrower-than-gnssgo.GetBits convenience
// wrapper used throughout the legacy decoders.
func GetBitsU(buff []byte, pos, length int) int {
	return int(gnssgo.GetBits(buff, pos, length))
}

// decodeLegacyRTCMMessage dispatches the eight legacy observation
// message variants to their field-layout decoder.
func decodeLegacyRTCMMessage(msg *RTCMMessage) (interface{}, error) {
	switch msg.Type {
	case RTCM_MSG_1001:
		return decodeGPSObs(msg, false, false)
	case RTCM_MSG_1002:
		return decodeGPSObs(msg, false, true)
	case RTCM_MSG_1003:
		return decodeGPSObs(msg, true, false)
	case RTCM_MSG_1004:
		return decodeGPSObs(msg, true, true)
	case RTCM_MSG_1009:
		return decodeGLOObs(msg, false, false)
	case RTCM_MSG_1010:
		return decodeGLOObs(msg, false, true)
	case RTCM_MSG_1011:
		return decodeGLOObs(msg, true, false)
	case RTCM_MSG_1012:
		return decodeGLOObs(msg, true, true)
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnsupportedMessage, msg.Type)
	}
}

// decodeGPSObs decodes RTCM 1001/1002/1003/1004. l1l2 selects whether
// the L2 fields are present (1003/1004); extended selects whether
// ambiguity+CNR are present (1002/1004). The L2 fields of 1003/1004
// live at a fixed 38-bit offset regardless of the extended flag.
func decodeGPSObs(msg *RTCMMessage, l1l2, extended bool) (*ObservationData, error) {
	stationID, tow, sync, nsat, err := decodeGPSHeader(msg)
	if err != nil {
		return nil, err
	}

	obs := &ObservationData{
		Time:      gpsTimeFromTOW(tow),
		StationID: stationID,
		Sync:      sync != 0,
	}

	// Header occupies type(12)+station(12)+TOW(30)+sync(1)+nsat(5)+smooth(4) = 64 bits,
	// starting after the 24-bit preamble+length prefix.
	bitIndex := 24 + 64

	for i := 0; i < nsat; i++ {
		satSlot := int(gnssgo.GetBitU(msg.Data, bitIndex, 6))
		bitIndex += 6
		sat := gnssgo.SatNo(gnssgo.SYS_GPS, satSlot)

		code1 := gnssgo.GetBitU(msg.Data, bitIndex, 1)
		bitIndex += 1
		pr1raw := gnssgo.GetBitU(msg.Data, bitIndex, 24)
		bitIndex += 24
		ppr1 := GetBitsU(msg.Data, bitIndex, 20)
		bitIndex += 20
		lock1 := gnssgo.GetBitU(msg.Data, bitIndex, 7)
		bitIndex += 7

		var amb uint32
		var cnr1 uint32
		if extended {
			amb = gnssgo.GetBitU(msg.Data, bitIndex, 8)
			bitIndex += 8
			cnr1 = gnssgo.GetBitU(msg.Data, bitIndex, 8)
			bitIndex += 8
		}

		codeArr := make([]byte, 2)
		lArr := make([]float64, 2)
		pArr := make([]float64, 2)
		dArr := make([]float64, 2)
		snrArr := make([]float64, 2)
		lliArr := make([]byte, 2)
		validArr := make([]bool, 2)

		codeArr[0] = CODE_L1C
		if code1 == 1 {
			codeArr[0] = CODE_L1P
		}

		pr1 := float64(pr1raw)*0.02 + float64(amb)*gnssgo.PRUnitGPS
		pArr[0] = pr1
		validArr[0] = true
		if ppr1 != -524288 {
			lambda1 := gnssgo.CLIGHT / gnssgo.FREQ1
			lArr[0] = pr1/lambda1 + float64(ppr1)*0.0005/lambda1
		}
		if lock1 > 0 {
			lliArr[0] = 0
		} else {
			lliArr[0] = 1
		}

		if l1l2 {
			code2 := gnssgo.GetBitU(msg.Data, bitIndex, 2)
			bitIndex += 2
			pr21 := GetBitsU(msg.Data, bitIndex, 14)
			bitIndex += 14
			ppr2 := GetBitsU(msg.Data, bitIndex, 20)
			bitIndex += 20
			lock2 := gnssgo.GetBitU(msg.Data, bitIndex, 7)
			bitIndex += 7
			var cnr2 uint32
			if extended {
				cnr2 = gnssgo.GetBitU(msg.Data, bitIndex, 8)
				bitIndex += 8
			}

			if code2 <= 3 {
				codeArr[1] = l2Codes[code2]
			} else {
				codeArr[1] = CODE_L2X
			}
			if pr21 != -8192 && pr1 != 0 {
				pArr[1] = pr1 + float64(pr21)*0.02
				validArr[1] = true
			}
			lambda2 := gnssgo.CLIGHT / gnssgo.FREQ2
			if ppr2 != -524288 && pArr[1] != 0 {
				lArr[1] = pArr[1]/lambda2 + float64(ppr2)*0.0005/lambda2
			}
			if extended && cnr2 != 0 {
				snrArr[1] = float64(cnr2) * 0.25
			}
			if lock2 > 0 {
				lliArr[1] = 0
			} else {
				lliArr[1] = 1
			}
		}

		if extended && cnr1 != 0 {
			snrArr[0] = float64(cnr1) * 0.25
		}

		if sat == 0 {
			continue
		}
		obs.SatID = append(obs.SatID, sat)
		obs.Code = append(obs.Code, codeArr)
		obs.L = append(obs.L, lArr)
		obs.P = append(obs.P, pArr)
		obs.D = append(obs.D, dArr)
		obs.SNR = append(obs.SNR, snrArr)
		obs.LLI = append(obs.LLI, lliArr)
		obs.Valid = append(obs.Valid, validArr)
	}

	obs.N = len(obs.SatID)
	return obs, nil
}

// decodeGLOObs decodes RTCM 1009/1010/1011/1012, the GLONASS
// counterparts of decodeGPSObs: the frequency-channel field replaces
// the second RNX-code slot used by GPS, and the epoch is a
// day+time-of-day pair rather than a GPS TOW.
func decodeGLOObs(msg *RTCMMessage, l1l2, extended bool) (*ObservationData, error) {
	stationID, tod, sync, nsat, err := decodeGLONASSHeader(msg)
	if err != nil {
		return nil, err
	}

	obs := &ObservationData{
		Time:      gloTimeFromTOD(tod),
		StationID: stationID,
		Sync:      sync != 0,
	}

	bitIndex := 24 + 61 // type(12)+station(12)+TOD(27)+sync(1)+nsat(5)+smooth(4) = 61

	for i := 0; i < nsat; i++ {
		satSlot := int(gnssgo.GetBitU(msg.Data, bitIndex, 6))
		bitIndex += 6
		dfrq := int(gnssgo.GetBitU(msg.Data, bitIndex, 5)) - 7
		bitIndex += 5
		sat := gnssgo.SatNo(gnssgo.SYS_GLO, satSlot)

		code1 := gnssgo.GetBitU(msg.Data, bitIndex, 1)
		bitIndex += 1
		pr1raw := gnssgo.GetBitU(msg.Data, bitIndex, 25)
		bitIndex += 25
		ppr1 := GetBitsU(msg.Data, bitIndex, 20)
		bitIndex += 20
		lock1 := gnssgo.GetBitU(msg.Data, bitIndex, 7)
		bitIndex += 7

		var amb uint32
		var cnr1 uint32
		if extended {
			amb = gnssgo.GetBitU(msg.Data, bitIndex, 7)
			bitIndex += 7
			cnr1 = gnssgo.GetBitU(msg.Data, bitIndex, 8)
			bitIndex += 8
		}

		codeArr := make([]byte, 2)
		lArr := make([]float64, 2)
		pArr := make([]float64, 2)
		dArr := make([]float64, 2)
		snrArr := make([]float64, 2)
		lliArr := make([]byte, 2)
		validArr := make([]bool, 2)

		codeArr[0] = CODE_L1C
		if code1 == 1 {
			codeArr[0] = CODE_L1P
		}

		freq1 := gnssgo.FREQ1_GLO + float64(dfrq)*gnssgo.DFRQ1_GLO
		var pr1 float64
		if pr1raw != 0 {
			pr1 = float64(pr1raw)*0.02 + float64(amb)*gnssgo.PRUnitGLO
			pArr[0] = pr1
			validArr[0] = true
		}
		lambda1 := gnssgo.CLIGHT / freq1
		if ppr1 != -524288 && pr1 != 0 {
			lArr[0] = pr1/lambda1 + float64(ppr1)*0.0005/lambda1
		}
		if lock1 > 0 {
			lliArr[0] = 0
		} else {
			lliArr[0] = 1
		}
		if extended && cnr1 != 0 {
			snrArr[0] = float64(cnr1) * 0.25
		}

		if l1l2 {
			code2 := gnssgo.GetBitU(msg.Data, bitIndex, 2)
			bitIndex += 2
			pr21 := GetBitsU(msg.Data, bitIndex, 14)
			bitIndex += 14
			ppr2 := GetBitsU(msg.Data, bitIndex, 20)
			bitIndex += 20
			lock2 := gnssgo.GetBitU(msg.Data, bitIndex, 7)
			bitIndex += 7
			var cnr2 uint32
			if extended {
				cnr2 = gnssgo.GetBitU(msg.Data, bitIndex, 8)
				bitIndex += 8
			}

			if code2 <= 3 {
				codeArr[1] = l2Codes[code2]
			} else {
				codeArr[1] = CODE_L2X
			}
			freq2 := gnssgo.FREQ2_GLO + float64(dfrq)*gnssgo.DFRQ2_GLO
			lambda2 := gnssgo.CLIGHT / freq2
			if pr21 != -8192 && pr1 != 0 {
				pArr[1] = pr1 + float64(pr21)*0.02
				validArr[1] = true
			}
			if ppr2 != -524288 && pArr[1] != 0 {
				lArr[1] = pArr[1]/lambda2 + float64(ppr2)*0.0005/lambda2
			}
			if extended && cnr2 != 0 {
				snrArr[1] = float64(cnr2) * 0.25
			}
			if lock2 > 0 {
				lliArr[1] = 0
			} else {
				lliArr[1] = 1
			}
		}

		if sat == 0 {
			continue
		}
		obs.SatID = append(obs.SatID, sat)
		obs.Code = append(obs.Code, codeArr)
		obs.L = append(obs.L, lArr)
		obs.P = append(obs.P, pArr)
		obs.D = append(obs.D, dArr)
		obs.SNR = append(obs.SNR, snrArr)
		obs.LLI = append(obs.LLI, lliArr)
		obs.Valid = append(obs.Valid, validArr)
	}

	obs.N = len(obs.SatID)
	return obs, nil
}

// gpsTimeFromTOW anchors a bare 30-bit GPS TOW field (ms) to the
// current GPS week, yielding a GPS-tagged instant.
func gpsTimeFromTOW(towMillis float64) gtime.Gtime {
	return gtime.GpsT2Time2(GetCurrentGPSWeek(), towMillis)
}

// gloTimeFromTOD anchors a GLONASS day+time-of-day field (ms) against
// the current UTC day, tagged GLONASST. GLONASS time is UTC+3h; the
// correlator/store only use these instants for ordering and dump-wait
// comparisons within a single mountpoint, so an exact leap-second
// model is not required here.
func gloTimeFromTOD(todMillis float64) gtime.Gtime {
	now := gtime.Now(gtime.UTC)
	dayStart := now.Time - now.Time%86400
	t := gtime.Gtime{Time: dayStart, Sec: todMillis / 1000.0, Sys: gtime.GLONASST}
	return gtime.TimeAdd(t, 0)
}

// decodeGPSHeader decodes the shared {station,TOW,sync,nsat} header of
// GPS observation messages (1001-1004).
func decodeGPSHeader(msg *RTCMMessage) (stationID int, tow float64, sync int, nsat int, err error) {
	if len(msg.Data) < 9 {
		return 0, 0, 0, 0, fmt.Errorf("%w: GPS obs header", ErrMessageTooShort)
	}
	bitIndex := 24 + 12 // skip preamble+length, and message type
	stationID = int(gnssgo.GetBitU(msg.Data, bitIndex, 12))
	bitIndex += 12
	tow = float64(gnssgo.GetBitU(msg.Data, bitIndex, 30)) * 0.001
	bitIndex += 30
	sync = int(gnssgo.GetBitU(msg.Data, bitIndex, 1))
	bitIndex += 1
	nsat = int(gnssgo.GetBitU(msg.Data, bitIndex, 5))
	return stationID, tow, sync, nsat, nil
}

// decodeGLONASSHeader decodes the shared {station,TOD,sync,nsat}
// header of GLONASS observation messages (1009-1012).
func decodeGLONASSHeader(msg *RTCMMessage) (stationID int, tod float64, sync int, nsat int, err error) {
	if len(msg.Data) < 9 {
		return 0, 0, 0, 0, fmt.Errorf("%w: GLONASS obs header", ErrMessageTooShort)
	}
	bitIndex := 24 + 12
	stationID = int(gnssgo.GetBitU(msg.Data, bitIndex, 12))
	bitIndex += 12
	tod = float64(gnssgo.GetBitU(msg.Data, bitIndex, 27)) * 0.001
	bitIndex += 27
	sync = int(gnssgo.GetBitU(msg.Data, bitIndex, 1))
	bitIndex += 1
	nsat = int(gnssgo.GetBitU(msg.Data, bitIndex, 5))
	return stationID, tod, sync, nsat, nil
}
