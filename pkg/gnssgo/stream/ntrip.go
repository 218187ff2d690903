// Package stream implements the NTRIP-1.0 client used to pull an
// RTCM-v3 byte stream from a caster mountpoint over a raw TCP socket.
// A caster's status line ("ICY 200 OK") is not valid HTTP, so this is
// hand-rolled over net.Conn rather than net/http.Client.
package stream

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the connection state of an EnhancedNTrip client, per the
// state machine {Idle -> Connecting -> Authenticating -> Streaming -> Error}.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Caster-side failure classes, surfaced through the Error state.
var (
	ErrMountPointNotFound = errors.New("ntrip: mountpoint not found")
	ErrAuthFailure        = errors.New("ntrip: authentication failed")
	ErrCasterUnreachable  = errors.New("ntrip: caster unreachable")
	ErrNotConnected       = errors.New("ntrip: not connected")
	ErrAlreadyConnected   = errors.New("ntrip: already connected")
)

const (
	ntripAgent      = "rtcmpipe NTRIP Client/1.0"
	ntripCliPort    = 2101
	ntripSvrPort    = 80
	connectDeadline = 10 * time.Second
)

// RTCMMessageStats tracks per-message-type traffic seen on a client,
// used for the Debug/diagnostics surface.
type RTCMMessageStats struct {
	MessageType  int
	Count        int
	LastReceived time.Time
	TotalBytes   int
}

// circularBuffer is a fixed-size ring of recently read chunks, used to
// retain the last few raw reads for diagnostics (GetLastMessages).
type circularBuffer struct {
	mu       sync.Mutex
	messages [][]byte
	cap      int
}

func newCircularBuffer(capacity int) *circularBuffer {
	return &circularBuffer{cap: capacity}
}

func (c *circularBuffer) add(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.messages = append(c.messages, cp)
	if len(c.messages) > c.cap {
		c.messages = c.messages[len(c.messages)-c.cap:]
	}
}

func (c *circularBuffer) all() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.messages))
	copy(out, c.messages)
	return out
}

// NTripConfig holds the parameters of one mountpoint connection.
type NTripConfig struct {
	Server       string
	Port         int
	Mountpoint   string
	Username     string
	Password     string
	UserAgent    string
	ConnTimeout  time.Duration
	RetryTimeout time.Duration
	MaxRetries   int
	Debug        bool
}

// DefaultNTripConfig returns an NTripConfig with the client defaults
// used when a mount's YAML entry leaves a field at its zero value.
func DefaultNTripConfig() NTripConfig {
	return NTripConfig{
		Port:         ntripCliPort,
		UserAgent:    ntripAgent,
		ConnTimeout:  30 * time.Second,
		RetryTimeout: 5 * time.Second,
		MaxRetries:   5,
		Debug:        false,
	}
}

// EnhancedNTrip is a single-mountpoint NTRIP-1.0 client. ctype
// distinguishes client (1) from server (0) mode; only client mode is
// implemented, matching the pipeline's correction-consuming role.
type EnhancedNTrip struct {
	mu    sync.Mutex
	state State
	ctype int

	config NTripConfig
	conn   net.Conn
	reader *bufio.Reader

	lastError  error
	retryCount int

	messageStats  map[int]*RTCMMessageStats
	messageBuffer *circularBuffer
	dataRate      float64
	lastDataTime  time.Time
	totalBytes    int

	log *logrus.Entry
}

// NewEnhancedNTrip builds an idle client for the given mountpoint
// configuration; call Connect to open the socket.
func NewEnhancedNTrip(config NTripConfig, ctype int) *EnhancedNTrip {
	if config.Port == 0 {
		if ctype == 0 {
			config.Port = ntripSvrPort
		} else {
			config.Port = ntripCliPort
		}
	}
	if config.UserAgent == "" {
		config.UserAgent = ntripAgent
	}
	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"component":  "ntrip",
		"mountpoint": config.Mountpoint,
	})
	return &EnhancedNTrip{
		state:         StateIdle,
		ctype:         ctype,
		config:        config,
		messageStats:  make(map[int]*RTCMMessageStats),
		messageBuffer: newCircularBuffer(16),
		log:           log,
	}
}

// Connect dials the caster, sends the NTRIP-1.0 request, and parses
// the status line. On success the client transitions to Streaming and
// Connect returns nil; the caller then drives reads via ReadNtrip.
func (ntrip *EnhancedNTrip) Connect() error {
	ntrip.mu.Lock()
	if ntrip.state == StateStreaming {
		ntrip.mu.Unlock()
		return ErrAlreadyConnected
	}
	ntrip.state = StateConnecting
	ntrip.mu.Unlock()

	addr := net.JoinHostPort(ntrip.config.Server, strconv.Itoa(ntrip.config.Port))
	conn, err := net.DialTimeout("tcp", addr, connectDeadline)
	if err != nil {
		return ntrip.fail(fmt.Errorf("%w: %v", ErrCasterUnreachable, err))
	}

	ntrip.mu.Lock()
	ntrip.state = StateAuthenticating
	ntrip.mu.Unlock()

	if err := conn.SetDeadline(time.Now().Add(connectDeadline)); err != nil {
		conn.Close()
		return ntrip.fail(err)
	}
	if _, err := conn.Write([]byte(ntrip.buildRequest())); err != nil {
		conn.Close()
		return ntrip.fail(fmt.Errorf("%w: %v", ErrCasterUnreachable, err))
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return ntrip.fail(fmt.Errorf("%w: %v", ErrCasterUnreachable, err))
	}
	if err := ntrip.classifyStatusLine(status); err != nil {
		conn.Close()
		return ntrip.fail(err)
	}
	if err := ntrip.skipHeaders(reader); err != nil {
		conn.Close()
		return ntrip.fail(err)
	}

	// Streaming from here on: the idle timeout applied in the read
	// loop, not the handshake deadline, governs the connection.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return ntrip.fail(err)
	}

	ntrip.mu.Lock()
	ntrip.conn = conn
	ntrip.reader = reader
	ntrip.state = StateStreaming
	ntrip.retryCount = 0
	ntrip.lastError = nil
	ntrip.lastDataTime = time.Now()
	ntrip.mu.Unlock()

	ntrip.log.Info("NTRIP connected")
	return nil
}

// buildRequest renders the literal NTRIP-1.0 GET request: method line,
// User-Agent, and (if credentials are set) HTTP Basic auth.
func (ntrip *EnhancedNTrip) buildRequest() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET /%s HTTP/1.0\r\n", ntrip.config.Mountpoint)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", ntrip.config.UserAgent)
	if ntrip.config.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(ntrip.config.Username + ":" + ntrip.config.Password))
		fmt.Fprintf(&b, "Authorization: Basic %s\r\n", cred)
	}
	b.WriteString("\r\n")
	return b.String()
}

// classifyStatusLine maps the caster's first response line onto the
// spec's error classes. "ICY 200 OK" and "HTTP/1.x 200 OK" both
// transition to Streaming; a source-table listing means the
// mountpoint does not exist; anything else is an auth/caster failure.
func (ntrip *EnhancedNTrip) classifyStatusLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "ICY 200 OK":
		return nil
	case strings.HasPrefix(line, "HTTP/") && strings.Contains(line, "200"):
		return nil
	case strings.HasPrefix(line, "SOURCETABLE"):
		return ErrMountPointNotFound
	case strings.Contains(line, "401"):
		return ErrAuthFailure
	case strings.HasPrefix(line, "HTTP/"):
		return fmt.Errorf("%w: %s", ErrCasterUnreachable, line)
	default:
		return fmt.Errorf("%w: unexpected status %q", ErrCasterUnreachable, line)
	}
}

// skipHeaders consumes any remaining header lines up to the blank line
// that ends the response preamble; the RTCM byte stream follows.
func (ntrip *EnhancedNTrip) skipHeaders(reader *bufio.Reader) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCasterUnreachable, err)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
	}
}

func (ntrip *EnhancedNTrip) fail(err error) error {
	ntrip.mu.Lock()
	ntrip.state = StateError
	ntrip.lastError = err
	ntrip.retryCount++
	ntrip.mu.Unlock()
	ntrip.log.WithError(err).Warn("NTRIP connect failed")
	return err
}

// ReadNtrip performs one nonblocking read of up to n bytes of the raw
// RTCM stream into buff, returning the number of bytes read, 0 if
// nothing was available within the poll window, or a negative value on
// a fatal connection error (after which the caller should reconnect).
// It also updates the per-type traffic statistics by scanning buff for
// 0xD3-prefixed frames, best-effort — a frame split across two reads
// is simply missed by the stats, not by the decoder downstream.
func (ntrip *EnhancedNTrip) ReadNtrip(buff []byte, n int, msg *string) int {
	ntrip.mu.Lock()
	conn := ntrip.conn
	reader := ntrip.reader
	streaming := ntrip.state == StateStreaming
	ntrip.mu.Unlock()

	if !streaming || conn == nil {
		if msg != nil {
			*msg = ErrNotConnected.Error()
		}
		return -1
	}

	if n > len(buff) {
		n = len(buff)
	}
	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		return ntrip.readFailed(err, msg)
	}

	read, err := reader.Read(buff[:n])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0
		}
		return ntrip.readFailed(err, msg)
	}
	if read == 0 {
		return 0
	}

	ntrip.recordTraffic(buff[:read])
	return read
}

func (ntrip *EnhancedNTrip) readFailed(err error, msg *string) int {
	ntrip.mu.Lock()
	ntrip.state = StateError
	ntrip.lastError = err
	ntrip.mu.Unlock()
	if msg != nil {
		*msg = err.Error()
	}
	ntrip.log.WithError(err).Warn("NTRIP read failed")
	return -1
}

// recordTraffic updates the data-rate estimate, the message-type
// counters, and the recent-chunk ring buffer from a read chunk.
func (ntrip *EnhancedNTrip) recordTraffic(data []byte) {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()

	now := time.Now()
	if !ntrip.lastDataTime.IsZero() {
		if dt := now.Sub(ntrip.lastDataTime).Seconds(); dt > 0 {
			ntrip.dataRate = float64(len(data)) / dt
		}
	}
	ntrip.lastDataTime = now
	ntrip.totalBytes += len(data)

	for _, msgType := range scanFrameTypes(data) {
		stat, ok := ntrip.messageStats[msgType]
		if !ok {
			stat = &RTCMMessageStats{MessageType: msgType}
			ntrip.messageStats[msgType] = stat
		}
		stat.Count++
		stat.TotalBytes += len(data)
		stat.LastReceived = now
	}
	ntrip.messageBuffer.add(data)
}

// scanFrameTypes extracts the 12-bit message type of every
// 0xD3-prefixed RTCM frame header found in data, for stats purposes
// only; the frame codec in pkg/gnssgo/rtcm owns CRC validation and
// reassembly across read boundaries.
func scanFrameTypes(data []byte) []int {
	var types []int
	for i := 0; i+5 <= len(data); i++ {
		if data[i] != 0xD3 {
			continue
		}
		length := (int(data[i+1]&0x3) << 8) | int(data[i+2])
		if i+3+length > len(data) {
			continue
		}
		msgType := (int(data[i+3]) << 4) | (int(data[i+4]) >> 4)
		types = append(types, msgType)
		i += 2 + length
	}
	return types
}

// WriteNtrip sends n bytes of buff on the connection (used for GGA
// resend on mountpoints requiring it). Returns the byte count written,
// or a negative value on error.
func (ntrip *EnhancedNTrip) WriteNtrip(buff []byte, n int, msg *string) int {
	ntrip.mu.Lock()
	conn := ntrip.conn
	streaming := ntrip.state == StateStreaming
	ntrip.mu.Unlock()

	if !streaming || conn == nil {
		if msg != nil {
			*msg = ErrNotConnected.Error()
		}
		return -1
	}
	if n > len(buff) {
		n = len(buff)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		if msg != nil {
			*msg = err.Error()
		}
		return -1
	}
	written, err := conn.Write(buff[:n])
	if err != nil {
		if msg != nil {
			*msg = err.Error()
		}
		ntrip.log.WithError(err).Debug("NTRIP write failed")
		return -1
	}
	return written
}

// Close releases the socket, if any, and returns the client to Idle.
func (ntrip *EnhancedNTrip) Close() {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()
	if ntrip.conn != nil {
		ntrip.conn.Close()
		ntrip.conn = nil
		ntrip.reader = nil
	}
	ntrip.state = StateIdle
}

// GetState reports the client's numeric state; see the State
// constants. Prefer IsStreaming for read-loop guards.
func (ntrip *EnhancedNTrip) GetState() int {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()
	return int(ntrip.state)
}

// IsStreaming reports whether the client currently has an open,
// authenticated connection with the stream in progress.
func (ntrip *EnhancedNTrip) IsStreaming() bool {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()
	return ntrip.state == StateStreaming
}

// GetLastError returns the error that most recently drove the client
// into the Error state, if any.
func (ntrip *EnhancedNTrip) GetLastError() error {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()
	return ntrip.lastError
}

// GetMessageStats returns a snapshot of the per-message-type traffic
// counters accumulated since Connect.
func (ntrip *EnhancedNTrip) GetMessageStats() map[int]*RTCMMessageStats {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()
	out := make(map[int]*RTCMMessageStats, len(ntrip.messageStats))
	for k, v := range ntrip.messageStats {
		cp := *v
		out[k] = &cp
	}
	return out
}

// GetDataRate returns the most recently estimated inbound byte rate.
func (ntrip *EnhancedNTrip) GetDataRate() float64 {
	ntrip.mu.Lock()
	defer ntrip.mu.Unlock()
	return ntrip.dataRate
}

// GetLastMessages returns the raw bytes of the most recent read chunks
// retained for diagnostics.
func (ntrip *EnhancedNTrip) GetLastMessages() [][]byte {
	return ntrip.messageBuffer.all()
}

// SetDebug toggles verbose per-chunk logging.
func (ntrip *EnhancedNTrip) SetDebug(debug bool) {
	ntrip.mu.Lock()
	ntrip.config.Debug = debug
	ntrip.mu.Unlock()
}
