package rtcm

import (
	"fmt"
	"math"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo"
)

// ssrFamily describes one constellation's contiguous 6-message SSR
// block: base+0 orbit, +1 clock, +2 code bias, +3 combined orbit and
// clock, +4 URA, +5 high-rate clock, per RTCM 10403.3's message
// numbering. VTEC (1264) and phase bias (1265-1270) sit outside this
// per-constellation block and are handled separately.
type ssrFamily struct {
	gnssid int
	base   int
}

var ssrFamilies = []ssrFamily{
	{0, 1057}, // GPS:     1057-1062
	{1, 1063}, // GLONASS: 1063-1068
	{2, 1240}, // Galileo: 1240-1245
	{3, 1246}, // QZSS:    1246-1251
	{5, 1252}, // SBAS:    1252-1257
	{4, 1258}, // BeiDou:  1258-1263
}

// ssrFamilyOffset returns the constellation and the 0-5 offset within
// its block for msgType, or ok=false if msgType falls outside every
// known per-constellation orbit/clock/bias/combined/URA/high-rate
// block (e.g. VTEC or a phase-bias message, handled elsewhere).
func ssrFamilyOffset(msgType int) (gnssid, offset int, ok bool) {
	for _, f := range ssrFamilies {
		if msgType >= f.base && msgType < f.base+6 {
			return f.gnssid, msgType - f.base, true
		}
	}
	return 0, 0, false
}

// SSRHeader represents the common header for SSR messages
type SSRHeader struct {
	MessageType             int    // Message type
	GNSSID                  int    // GNSS ID (0:GPS, 1:GLONASS, 2:Galileo, 3:QZSS, 4:BeiDou, 5:SBAS, 6:IRNSS)
	Epoch                   uint32 // GNSS epoch time
	UpdateInterval          uint8  // SSR update interval
	MultipleMessage         bool   // Multiple message flag
	SatelliteReferenceDatum bool   // Satellite reference datum flag
	IODSSRIndicator         uint8  // IOD SSR indicator
	SSRProviderID           uint16 // SSR provider ID
	SolutionID              uint8  // SSR solution ID
	NumSatellites           int    // Number of satellites
	SatelliteMask           uint64 // Satellite mask
}

// SSROrbitCorrection represents orbit correction data for a satellite
type SSROrbitCorrection struct {
	SatID              uint8   // Satellite ID
	IODE               uint8   // Issue of data, ephemeris
	DeltaRadial        float64 // Radial orbit correction (m)
	DeltaAlongTrack    float64 // Along-track orbit correction (m)
	DeltaCrossTrack    float64 // Cross-track orbit correction (m)
	DotDeltaRadial     float64 // Rate of radial orbit correction (m/s)
	DotDeltaAlongTrack float64 // Rate of along-track orbit correction (m/s)
	DotDeltaCrossTrack float64 // Rate of cross-track orbit correction (m/s)
}

// SSRClockCorrection represents clock correction data for a satellite
type SSRClockCorrection struct {
	SatID        uint8   // Satellite ID
	DeltaClockC0 float64 // Clock offset (m)
	DeltaClockC1 float64 // Clock drift (m/s)
	DeltaClockC2 float64 // Clock drift rate (m/s²)
}

// SSROrbitClockCorrection represents combined orbit and clock correction data
type SSROrbitClockCorrection struct {
	Header           SSRHeader            // SSR header
	OrbitCorrections []SSROrbitCorrection // Orbit corrections
	ClockCorrections []SSRClockCorrection // Clock corrections
}

// SSRCodeBias represents code bias data for a satellite
type SSRCodeBias struct {
	SatID      uint8     // Satellite ID
	NumBiases  int       // Number of biases
	SignalIDs  []uint8   // Signal IDs
	CodeBiases []float64 // Code biases (m)
}

// SSRCodeBiasCorrection represents code bias correction data
type SSRCodeBiasCorrection struct {
	Header     SSRHeader     // SSR header
	CodeBiases []SSRCodeBias // Code biases
}

// SSRPhaseBias represents phase bias data for a satellite
type SSRPhaseBias struct {
	SatID                     uint8     // Satellite ID
	NumBiases                 int       // Number of biases
	YawAngle                  float64   // Yaw angle (rad)
	YawRate                   float64   // Yaw rate (rad/s)
	SignalIDs                 []uint8   // Signal IDs
	IntegerIndicators         []bool    // Integer indicators
	WideLaneIntegerIndicators []bool    // Wide-lane integer indicators
	DiscontinuityCounters     []uint8   // Discontinuity counters
	PhaseBiases               []float64 // Phase biases (m)
}

// SSRPhaseBiasCorrection represents phase bias correction data
type SSRPhaseBiasCorrection struct {
	Header      SSRHeader      // SSR header
	PhaseBiases []SSRPhaseBias // Phase biases
}

// decodeSSRHeader decodes the common header for SSR messages
func decodeSSRHeader(msg *RTCMMessage) (*SSRHeader, int, error) {
	if msg == nil {
		return nil, 0, fmt.Errorf("nil message")
	}

	// Start position after message type and station ID (24 + 12 = 36 bits)
	pos := 36

	// Create SSR header
	header := &SSRHeader{
		MessageType: msg.Type,
	}

	// Determine GNSS ID from message type.
	switch {
	case msg.Type == 1264: // SSR VTEC ionosphere correction: no single owning constellation
		header.GNSSID = -1

	// Phase bias messages (1265-1270), one per constellation.
	case msg.Type >= 1265 && msg.Type <= 1270:
		switch msg.Type {
		case 1265:
			header.GNSSID = 0 // GPS
		case 1266:
			header.GNSSID = 1 // GLONASS
		case 1267:
			header.GNSSID = 2 // Galileo
		case 1268:
			header.GNSSID = 3 // QZSS
		case 1269:
			header.GNSSID = 4 // BeiDou
		case 1270:
			header.GNSSID = 5 // SBAS
		}

	default:
		gnssid, _, ok := ssrFamilyOffset(msg.Type)
		if !ok {
			return nil, 0, fmt.Errorf("unknown SSR message type: %d", msg.Type)
		}
		header.GNSSID = gnssid
	}

	// Decode epoch time
	header.Epoch = uint32(gnssgo.GetBitU(msg.Data, pos, 20))
	pos += 20

	// Decode update interval
	header.UpdateInterval = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
	pos += 4

	// Decode multiple message flag
	header.MultipleMessage = gnssgo.GetBitU(msg.Data, pos, 1) != 0
	pos += 1

	// Decode satellite reference datum flag
	header.SatelliteReferenceDatum = gnssgo.GetBitU(msg.Data, pos, 1) != 0
	pos += 1

	// Decode IOD SSR indicator
	header.IODSSRIndicator = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
	pos += 4

	// Decode SSR provider ID
	header.SSRProviderID = uint16(gnssgo.GetBitU(msg.Data, pos, 16))
	pos += 16

	// Decode SSR solution ID
	header.SolutionID = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
	pos += 4

	// Decode number of satellites
	numSats := int(gnssgo.GetBitU(msg.Data, pos, 6))
	header.NumSatellites = numSats
	pos += 6

	// Decode satellite mask
	header.SatelliteMask = 0
	for i := 0; i < numSats; i++ {
		satID := int(gnssgo.GetBitU(msg.Data, pos, 6))
		pos += 6
		header.SatelliteMask |= 1 << (satID - 1)
	}

	return header, pos, nil
}

// decodeSSROrbitCorrection decodes orbit correction data for a satellite
func decodeSSROrbitCorrection(msg *RTCMMessage, pos int) (*SSROrbitCorrection, int, error) {
	if msg == nil {
		return nil, 0, fmt.Errorf("nil message")
	}

	// Create orbit correction
	orb := &SSROrbitCorrection{}

	// Decode satellite ID
	orb.SatID = uint8(gnssgo.GetBitU(msg.Data, pos, 6))
	pos += 6

	// Decode IODE
	orb.IODE = uint8(gnssgo.GetBitU(msg.Data, pos, 8))
	pos += 8

	// Decode delta radial
	orb.DeltaRadial = float64(gnssgo.GetBits(msg.Data, pos, 22)) * 0.1 * 0.001 // 0.1 mm
	pos += 22

	// Decode delta along-track
	orb.DeltaAlongTrack = float64(gnssgo.GetBits(msg.Data, pos, 20)) * 0.4 * 0.001 // 0.4 mm
	pos += 20

	// Decode delta cross-track
	orb.DeltaCrossTrack = float64(gnssgo.GetBits(msg.Data, pos, 20)) * 0.4 * 0.001 // 0.4 mm
	pos += 20

	// Decode dot delta radial
	orb.DotDeltaRadial = float64(gnssgo.GetBits(msg.Data, pos, 21)) * 0.001 * 0.001 // 0.001 mm/s
	pos += 21

	// Decode dot delta along-track
	orb.DotDeltaAlongTrack = float64(gnssgo.GetBits(msg.Data, pos, 19)) * 0.004 * 0.001 // 0.004 mm/s
	pos += 19

	// Decode dot delta cross-track
	orb.DotDeltaCrossTrack = float64(gnssgo.GetBits(msg.Data, pos, 19)) * 0.004 * 0.001 // 0.004 mm/s
	pos += 19

	return orb, pos, nil
}

// decodeSSRClockCorrection decodes clock correction data for a satellite
func decodeSSRClockCorrection(msg *RTCMMessage, pos int) (*SSRClockCorrection, int, error) {
	if msg == nil {
		return nil, 0, fmt.Errorf("nil message")
	}

	// Create clock correction
	clk := &SSRClockCorrection{}

	// Decode satellite ID
	clk.SatID = uint8(gnssgo.GetBitU(msg.Data, pos, 6))
	pos += 6

	// Decode delta clock C0
	clk.DeltaClockC0 = float64(gnssgo.GetBits(msg.Data, pos, 22)) * 0.1 * 0.001 // 0.1 mm
	pos += 22

	// Decode delta clock C1
	clk.DeltaClockC1 = float64(gnssgo.GetBits(msg.Data, pos, 21)) * 0.001 * 0.001 // 0.001 mm/s
	pos += 21

	// Decode delta clock C2
	clk.DeltaClockC2 = float64(gnssgo.GetBits(msg.Data, pos, 27)) * 0.00002 * 0.001 // 0.00002 mm/s²
	pos += 27

	return clk, pos, nil
}

// decodeSSROrbitClockCorrection decodes combined orbit and clock correction data
func decodeSSROrbitClockCorrection(msg *RTCMMessage) (*SSROrbitClockCorrection, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	// Validate message type and determine offset within its
	// constellation's 6-message SSR block: 0 orbit, 1 clock, 3 combined.
	_, offset, ok := ssrFamilyOffset(msg.Type)
	if !ok || (offset != 0 && offset != 1 && offset != 3) {
		return nil, fmt.Errorf("invalid SSR orbit/clock message type: %d", msg.Type)
	}

	// Decode SSR header
	header, pos, err := decodeSSRHeader(msg)
	if err != nil {
		return nil, err
	}

	// Create orbit and clock correction
	correction := &SSROrbitClockCorrection{
		Header:           *header,
		OrbitCorrections: make([]SSROrbitCorrection, header.NumSatellites),
		ClockCorrections: make([]SSRClockCorrection, header.NumSatellites),
	}

	isOrbitMsg := offset == 0 || offset == 3
	isClockMsg := offset == 1 || offset == 3

	// Decode orbit corrections if this is an orbit message
	if isOrbitMsg {
		for i := 0; i < header.NumSatellites; i++ {
			orb, newPos, err := decodeSSROrbitCorrection(msg, pos)
			if err != nil {
				return nil, fmt.Errorf("failed to decode orbit correction for satellite %d: %w", i+1, err)
			}
			correction.OrbitCorrections[i] = *orb
			pos = newPos
		}
	}

	// Decode clock corrections if this is a clock message
	if isClockMsg {
		for i := 0; i < header.NumSatellites; i++ {
			clk, newPos, err := decodeSSRClockCorrection(msg, pos)
			if err != nil {
				return nil, fmt.Errorf("failed to decode clock correction for satellite %d: %w", i+1, err)
			}
			correction.ClockCorrections[i] = *clk
			pos = newPos
		}
	}

	// Validate that we've read all the data
	if pos != msg.Length*8 {
		// This is just a warning, not an error, as there might be padding bits
		// or reserved fields at the end of the message
		// fmt.Printf("Warning: Not all data read from SSR message type %d. Read %d bits, message length %d bits\n",
		//           msg.Type, pos, msg.Length*8)
	}

	return correction, nil
}

// decodeSSRCodeBias decodes code bias data for a satellite
func decodeSSRCodeBias(msg *RTCMMessage) (*SSRCodeBiasCorrection, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	// Validate message type
	if _, offset, ok := ssrFamilyOffset(msg.Type); !ok || offset != 2 {
		return nil, fmt.Errorf("invalid SSR code bias message type: %d", msg.Type)
	}

	// Decode SSR header
	header, pos, err := decodeSSRHeader(msg)
	if err != nil {
		return nil, err
	}

	// Create code bias correction
	correction := &SSRCodeBiasCorrection{
		Header:     *header,
		CodeBiases: make([]SSRCodeBias, header.NumSatellites),
	}

	// Decode code biases for each satellite
	for i := 0; i < header.NumSatellites; i++ {
		// Decode satellite ID
		satID := uint8(gnssgo.GetBitU(msg.Data, pos, 6))
		pos += 6

		// Validate satellite ID
		if satID == 0 || satID > 64 {
			return nil, fmt.Errorf("invalid satellite ID: %d", satID)
		}

		// Decode number of biases
		numBiases := int(gnssgo.GetBitU(msg.Data, pos, 5))
		pos += 5

		// Validate number of biases
		if numBiases <= 0 {
			return nil, fmt.Errorf("invalid number of biases: %d", numBiases)
		}

		// Create code bias
		bias := &SSRCodeBias{
			SatID:      satID,
			NumBiases:  numBiases,
			SignalIDs:  make([]uint8, numBiases),
			CodeBiases: make([]float64, numBiases),
		}

		// Decode biases
		for j := 0; j < numBiases; j++ {
			// Decode signal ID
			bias.SignalIDs[j] = uint8(gnssgo.GetBitU(msg.Data, pos, 5))
			pos += 5

			// Decode code bias
			bias.CodeBiases[j] = float64(gnssgo.GetBits(msg.Data, pos, 14)) * 0.01 // 0.01 m
			pos += 14
		}

		correction.CodeBiases[i] = *bias
	}

	// Validate that we've read all the data
	if pos != msg.Length*8 {
		// This is just a warning, not an error, as there might be padding bits
		// or reserved fields at the end of the message
		// fmt.Printf("Warning: Not all data read from SSR message type %d. Read %d bits, message length %d bits\n",
		//           msg.Type, pos, msg.Length*8)
	}

	return correction, nil
}

// decodeSSRPhaseBias decodes phase bias data for a satellite
func decodeSSRPhaseBias(msg *RTCMMessage) (*SSRPhaseBiasCorrection, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	// Validate message type
	if !(msg.Type >= SSR_PHASE_BIAS_START && msg.Type <= SSR_PHASE_BIAS_END) {
		return nil, fmt.Errorf("invalid SSR phase bias message type: %d", msg.Type)
	}

	// Decode SSR header
	header, pos, err := decodeSSRHeader(msg)
	if err != nil {
		return nil, err
	}

	// Create phase bias correction
	correction := &SSRPhaseBiasCorrection{
		Header:      *header,
		PhaseBiases: make([]SSRPhaseBias, header.NumSatellites),
	}

	// Decode phase biases for each satellite
	for i := 0; i < header.NumSatellites; i++ {
		// Decode satellite ID
		satID := uint8(gnssgo.GetBitU(msg.Data, pos, 6))
		pos += 6

		// Validate satellite ID
		if satID == 0 || satID > 64 {
			return nil, fmt.Errorf("invalid satellite ID: %d", satID)
		}

		// Decode number of biases
		numBiases := int(gnssgo.GetBitU(msg.Data, pos, 5))
		pos += 5

		// Validate number of biases
		if numBiases <= 0 {
			return nil, fmt.Errorf("invalid number of biases: %d", numBiases)
		}

		// Decode yaw angle
		yawAngle := float64(gnssgo.GetBitU(msg.Data, pos, 9)) * 1.0 * math.Pi / 180.0 // 1 degree to rad
		pos += 9

		// Decode yaw rate
		yawRate := float64(gnssgo.GetBits(msg.Data, pos, 8)) * 0.1 * math.Pi / 180.0 // 0.1 degree/s to rad/s
		pos += 8

		// Create phase bias
		bias := &SSRPhaseBias{
			SatID:                     satID,
			NumBiases:                 numBiases,
			YawAngle:                  yawAngle,
			YawRate:                   yawRate,
			SignalIDs:                 make([]uint8, numBiases),
			IntegerIndicators:         make([]bool, numBiases),
			WideLaneIntegerIndicators: make([]bool, numBiases),
			DiscontinuityCounters:     make([]uint8, numBiases),
			PhaseBiases:               make([]float64, numBiases),
		}

		// Decode biases
		for j := 0; j < numBiases; j++ {
			// Decode signal ID
			bias.SignalIDs[j] = uint8(gnssgo.GetBitU(msg.Data, pos, 5))
			pos += 5

			// Decode integer indicator
			bias.IntegerIndicators[j] = gnssgo.GetBitU(msg.Data, pos, 1) != 0
			pos += 1

			// Decode wide-lane integer indicator
			wlIntInd := gnssgo.GetBitU(msg.Data, pos, 2)
			bias.WideLaneIntegerIndicators[j] = wlIntInd != 0
			pos += 2

			// Decode discontinuity counter
			bias.DiscontinuityCounters[j] = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
			pos += 4

			// Decode phase bias
			bias.PhaseBiases[j] = float64(gnssgo.GetBits(msg.Data, pos, 20)) * 0.0001 // 0.0001 m
			pos += 20
		}

		correction.PhaseBiases[i] = *bias
	}

	// Validate that we've read all the data
	if pos != msg.Length*8 {
		// This is just a warning, not an error, as there might be padding bits
		// or reserved fields at the end of the message
		// fmt.Printf("Warning: Not all data read from SSR message type %d. Read %d bits, message length %d bits\n",
		//           msg.Type, pos, msg.Length*8)
	}

	return correction, nil
}

// SSRURA represents a per-satellite User Range Accuracy class/value
// pair (offset 4 within a constellation's SSR block).
type SSRURA struct {
	SatID    uint8
	URAClass uint8 // 3-bit class
	URAValue uint8 // 3-bit value within class
}

// SSRURACorrection represents a decoded SSR URA message.
type SSRURACorrection struct {
	Header SSRHeader
	URAs   []SSRURA
}

// decodeSSRURA decodes a constellation's SSR URA message (offset 4 in
// its 6-message block, e.g. 1061 GPS, 1067 GLONASS).
func decodeSSRURA(msg *RTCMMessage) (*SSRURACorrection, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	if _, offset, ok := ssrFamilyOffset(msg.Type); !ok || offset != 4 {
		return nil, fmt.Errorf("invalid SSR URA message type: %d", msg.Type)
	}

	header, pos, err := decodeSSRHeader(msg)
	if err != nil {
		return nil, err
	}

	correction := &SSRURACorrection{Header: *header, URAs: make([]SSRURA, header.NumSatellites)}
	for i := 0; i < header.NumSatellites; i++ {
		var u SSRURA
		u.SatID = uint8(gnssgo.GetBitU(msg.Data, pos, 6))
		pos += 6
		ura := gnssgo.GetBitU(msg.Data, pos, 6)
		pos += 6
		u.URAClass = uint8(ura >> 3)
		u.URAValue = uint8(ura & 0x7)
		correction.URAs[i] = u
	}
	return correction, nil
}

// SSRHighRateClock is a per-satellite high-rate clock correction
// increment (offset 5 within a constellation's SSR block), added on
// top of the satellite's latest low-rate clock correction per §4.4.
type SSRHighRateClock struct {
	SatID             uint8
	HighRateClockCorr float64 // meters
}

// SSRHighRateClockCorrection represents a decoded SSR high-rate clock
// message (1062 GPS, 1068 GLONASS, 1245 Galileo, 1251 QZSS, 1257 SBAS,
// 1263 BeiDou).
type SSRHighRateClockCorrection struct {
	Header SSRHeader
	Clocks []SSRHighRateClock
}

// decodeSSRHighRateClock decodes a constellation's SSR high-rate clock
// message.
func decodeSSRHighRateClock(msg *RTCMMessage) (*SSRHighRateClockCorrection, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	if _, offset, ok := ssrFamilyOffset(msg.Type); !ok || offset != 5 {
		return nil, fmt.Errorf("invalid SSR high-rate clock message type: %d", msg.Type)
	}

	header, pos, err := decodeSSRHeader(msg)
	if err != nil {
		return nil, err
	}

	correction := &SSRHighRateClockCorrection{Header: *header, Clocks: make([]SSRHighRateClock, header.NumSatellites)}
	for i := 0; i < header.NumSatellites; i++ {
		var c SSRHighRateClock
		c.SatID = uint8(gnssgo.GetBitU(msg.Data, pos, 6))
		pos += 6
		c.HighRateClockCorr = float64(gnssgo.GetBits(msg.Data, pos, 22)) * 0.1 * 0.001 // 0.1 mm
		pos += 22
		correction.Clocks[i] = c
	}
	return correction, nil
}

// SSRVTECLayer is one spherical-harmonic degree/order layer of an SSR
// VTEC (vertical TEC) ionosphere correction.
type SSRVTECLayer struct {
	Height float64 // m
	Degree uint8
	Order  uint8
	Cosine []float64 // TECU
	Sine   []float64 // TECU
}

// SSRVTEC represents a decoded SSR VTEC message (1264): a set of
// spherical-harmonic ionosphere layers, not tied to any one
// constellation (its header's GNSSID is meaningless and left at -1 by
// decodeSSRHeader).
type SSRVTEC struct {
	Header       SSRHeader
	QualityIndic uint8
	Layers       []SSRVTECLayer
}

// decodeSSRVTEC decodes RTCM message 1264 (SSR VTEC Spherical
// Harmonics). Its header shape is not the per-satellite-mask SSR
// header the orbit/clock/bias families share (no provider/solution ID
// or satellite mask — VTEC isn't per-satellite), so it is parsed
// directly rather than through decodeSSRHeader.
func decodeSSRVTEC(msg *RTCMMessage) (*SSRVTEC, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	if msg.Type != 1264 {
		return nil, fmt.Errorf("invalid SSR VTEC message type: %d", msg.Type)
	}

	pos := 36
	header := SSRHeader{MessageType: msg.Type, GNSSID: -1}
	header.IODSSRIndicator = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
	pos += 4
	header.Epoch = uint32(gnssgo.GetBitU(msg.Data, pos, 20))
	pos += 20
	header.UpdateInterval = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
	pos += 4
	header.MultipleMessage = gnssgo.GetBitU(msg.Data, pos, 1) != 0
	pos += 1

	vtec := &SSRVTEC{Header: header}
	vtec.QualityIndic = uint8(gnssgo.GetBitU(msg.Data, pos, 9))
	pos += 9
	numLayers := int(gnssgo.GetBitU(msg.Data, pos, 2)) + 1
	pos += 2

	vtec.Layers = make([]SSRVTECLayer, numLayers)
	for l := 0; l < numLayers; l++ {
		var layer SSRVTECLayer
		layer.Height = float64(gnssgo.GetBitU(msg.Data, pos, 8)) * 10000.0 // 10 km
		pos += 8
		layer.Degree = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
		pos += 4
		layer.Order = uint8(gnssgo.GetBitU(msg.Data, pos, 4))
		pos += 4

		nCos := int(layer.Degree+1) * int(layer.Order+1)
		layer.Cosine = make([]float64, nCos)
		for i := range layer.Cosine {
			layer.Cosine[i] = float64(gnssgo.GetBits(msg.Data, pos, 16)) * 0.005 // 0.005 TECU
			pos += 16
		}
		layer.Sine = make([]float64, nCos)
		for i := range layer.Sine {
			layer.Sine[i] = float64(gnssgo.GetBits(msg.Data, pos, 16)) * 0.005 // 0.005 TECU
			pos += 16
		}
		vtec.Layers[l] = layer
	}
	return vtec, nil
}
