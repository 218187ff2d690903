// Package ingest implements the local-serial GGA ingest path: an
// optional, carried-not-core source of periodic position fixes for
// NTRIP mountpoints configured with requiresGGA (§6), grounded in the
// teacher's go.bug.st/serial-backed stream.OpenSerial and its
// pkg/gnssgo/nmea sentence parser.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/nmea"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// GGASource exposes the most recently received GGA sentence for an
// NTRIP client's periodic resend.
type GGASource struct {
	mu      sync.RWMutex
	latest  string
	haveFix bool
	log     *logrus.Entry
}

// NewGGASource creates an empty source; call Run to start reading.
func NewGGASource(log *logrus.Logger) *GGASource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GGASource{log: log.WithField("component", "ingest")}
}

// Latest returns the most recently parsed GGA sentence, if any.
func (g *GGASource) Latest() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.latest, g.haveFix
}

func (g *GGASource) set(sentence string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest = sentence
	g.haveFix = true
}

// Run opens portName at baud and reads NMEA sentences line by line
// until ctx is done, recording every GGA sentence it successfully
// parses. Non-GGA and malformed sentences are logged and skipped —
// a malformed fix is not fatal to the reader.
func (g *GGASource) Run(ctx context.Context, portName string, baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", portName, err)
	}
	defer port.Close()

	port.SetReadTimeout(time.Second)

	scanner := bufio.NewScanner(port)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		port.Close()
		close(done)
	}()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.Contains(line, "GGA") {
			continue
		}
		if _, err := nmea.ParseGGA(line); err != nil {
			g.log.WithError(err).WithField("sentence", line).Debug("skipping unparseable GGA sentence")
			continue
		}
		g.set(line)
	}
	<-done
	return scanner.Err()
}
