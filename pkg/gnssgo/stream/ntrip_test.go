package stream

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaster is a minimal NTRIP-1.0 caster: it accepts one connection,
// reads the request line and headers, then writes a canned status line
// followed by the given body bytes.
type fakeCaster struct {
	t        *testing.T
	listener net.Listener
}

func newFakeCaster(t *testing.T) *fakeCaster {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeCaster{t: t, listener: l}
}

func (f *fakeCaster) addr() (string, int) {
	tcpAddr := f.listener.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

// serveOnce accepts a single connection, hands its request line to
// onRequest, then writes status+body and keeps the connection open
// until the test closes the client.
func (f *fakeCaster) serveOnce(status string, body []byte, onRequest func(requestLine string)) {
	go func() {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		requestLine, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if onRequest != nil {
			onRequest(strings.TrimRight(requestLine, "\r\n"))
		}
		// Drain headers.
		for {
			line, err := reader.ReadString('\n')
			if err != nil || strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}

		conn.Write([]byte(status))
		conn.Write([]byte("\r\n"))
		if body != nil {
			conn.Write(body)
			time.Sleep(50 * time.Millisecond)
		}
	}()
}

func (f *fakeCaster) Close() { f.listener.Close() }

func TestEnhancedNTripConnectICY(t *testing.T) {
	caster := newFakeCaster(t)
	defer caster.Close()
	host, port := caster.addr()

	var gotRequest string
	caster.serveOnce("ICY 200 OK", []byte{0xD3, 0x00, 0x00, 0x3E, 0xD0, 0x00}, func(line string) {
		gotRequest = line
	})

	cfg := DefaultNTripConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.Mountpoint = "TEST"
	cfg.Username = "user"
	cfg.Password = "pass"

	client := NewEnhancedNTrip(cfg, 1)
	require.NoError(t, client.Connect())
	defer client.Close()

	assert.True(t, client.IsStreaming())
	assert.Equal(t, "GET /TEST HTTP/1.0", gotRequest)
}

func TestEnhancedNTripConnectHTTP(t *testing.T) {
	caster := newFakeCaster(t)
	defer caster.Close()
	host, port := caster.addr()

	caster.serveOnce("HTTP/1.1 200 OK", nil, nil)

	cfg := DefaultNTripConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.Mountpoint = "TEST"

	client := NewEnhancedNTrip(cfg, 1)
	require.NoError(t, client.Connect())
	defer client.Close()
	assert.True(t, client.IsStreaming())
}

func TestEnhancedNTripConnectMountpointNotFound(t *testing.T) {
	caster := newFakeCaster(t)
	defer caster.Close()
	host, port := caster.addr()

	caster.serveOnce("SOURCETABLE 200 OK", nil, nil)

	cfg := DefaultNTripConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.Mountpoint = "MISSING"

	client := NewEnhancedNTrip(cfg, 1)
	err := client.Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMountPointNotFound)
	assert.False(t, client.IsStreaming())
}

func TestEnhancedNTripConnectAuthFailure(t *testing.T) {
	caster := newFakeCaster(t)
	defer caster.Close()
	host, port := caster.addr()

	caster.serveOnce("HTTP/1.0 401 Unauthorized", nil, nil)

	cfg := DefaultNTripConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.Mountpoint = "TEST"

	client := NewEnhancedNTrip(cfg, 1)
	err := client.Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestEnhancedNTripConnectCasterUnreachable(t *testing.T) {
	cfg := DefaultNTripConfig()
	cfg.Server = "127.0.0.1"
	cfg.Port = 1 // nothing listens on a privileged port in the test sandbox
	cfg.Mountpoint = "TEST"
	cfg.ConnTimeout = time.Second

	client := NewEnhancedNTrip(cfg, 1)
	err := client.Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCasterUnreachable)
}

func TestReadNtripAndMessageStats(t *testing.T) {
	caster := newFakeCaster(t)
	defer caster.Close()
	host, port := caster.addr()

	// One RTCM frame: preamble 0xD3, length 0x0002, type (1005 << 4) in
	// the first 12 bits of the payload, two bytes of filler, CRC filler.
	frame := []byte{0xD3, 0x00, 0x02, 0x3E, 0xD0, 0x00, 0x00, 0x00}
	caster.serveOnce("ICY 200 OK", frame, nil)

	cfg := DefaultNTripConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.Mountpoint = "TEST"

	client := NewEnhancedNTrip(cfg, 1)
	require.NoError(t, client.Connect())
	defer client.Close()

	buf := make([]byte, 4096)
	var msg string
	var total int
	deadline := time.Now().Add(2 * time.Second)
	for total < len(frame) && time.Now().Before(deadline) {
		n := client.ReadNtrip(buf, len(buf), &msg)
		if n > 0 {
			total += n
		}
	}
	assert.Equal(t, len(frame), total)

	stats := client.GetMessageStats()
	assert.Contains(t, stats, 1005)
	assert.NotEmpty(t, client.GetLastMessages())
}

func TestReadNtripNotConnected(t *testing.T) {
	cfg := DefaultNTripConfig()
	client := NewEnhancedNTrip(cfg, 1)
	buf := make([]byte, 16)
	var msg string
	n := client.ReadNtrip(buf, len(buf), &msg)
	assert.Equal(t, -1, n)
	assert.Equal(t, ErrNotConnected.Error(), msg)
}

func TestWriteNtrip(t *testing.T) {
	caster := newFakeCaster(t)
	defer caster.Close()
	host, port := caster.addr()

	caster.serveOnce("ICY 200 OK", nil, nil)

	cfg := DefaultNTripConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.Mountpoint = "TEST"

	client := NewEnhancedNTrip(cfg, 1)
	require.NoError(t, client.Connect())
	defer client.Close()

	line := "$GPGGA,000000,,,,,,,,,,,,,*00\r\n"
	var msg string
	n := client.WriteNtrip([]byte(line), len(line), &msg)
	assert.Equal(t, len(line), n)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "error", StateError.String())
}

func TestGetStateMatchesStreamingConvention(t *testing.T) {
	cfg := DefaultNTripConfig()
	client := NewEnhancedNTrip(cfg, 1)
	assert.Equal(t, int(StateIdle), client.GetState())
	assert.False(t, client.IsStreaming())
}
