// Command ntripcorr streams RTCM-v3 corrections from one or more
// NTRIP-1.0 mountpoints, decodes and correlates them, and writes
// RINEX-Nav, RINEX-Obs, and SP3 output per the configured correction
// mountpoint and sample rate.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gnss-corr/rtcmpipe/internal/config"
	"github.com/gnss-corr/rtcmpipe/internal/core"
	"github.com/gnss-corr/rtcmpipe/internal/ingest"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/rtcm"
	"github.com/gnss-corr/rtcmpipe/pkg/gnssgo/stream"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "ntripcorr.yaml", "path to the YAML configuration file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	cc, err := core.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build core context")
	}
	defer cc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ggaSource *ingest.GGASource
	if cfg.GGASerialPort != "" {
		ggaSource = ingest.NewGGASource(log)
		go func() {
			if err := ggaSource.Run(ctx, cfg.GGASerialPort, cfg.GGABaudRate); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("GGA serial ingest stopped")
			}
		}()
	}

	for i, mount := range cfg.Mounts {
		station := i + 1
		go runMount(ctx, station, mount, cc, ggaSource, log)
	}

	go cc.RunPPPConsumer(ctx)

	<-ctx.Done()
	log.Info("shutting down")
}

// runMount owns one mountpoint's reader goroutine: it connects the
// NTRIP client, feeds the frame codec, and hands complete frames to a
// decode worker pool whose results are dispatched into the CoreContext.
func runMount(ctx context.Context, station int, mount config.MountConfig, cc *core.CoreContext, gga *ingest.GGASource, log *logrus.Logger) {
	entry := log.WithField("mount", mount.Mountpoint)

	ntripCfg := stream.DefaultNTripConfig()
	ntripCfg.Server = mount.Host
	ntripCfg.Port = mount.Port
	ntripCfg.Mountpoint = mount.Mountpoint
	ntripCfg.Username = mount.User
	ntripCfg.Password = mount.Password

	client := stream.NewEnhancedNTrip(ntripCfg, 1)
	defer client.Close()

	codec := rtcm.NewFrameCodec()
	pool := rtcm.NewWorkerPool(2, 64)
	defer pool.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case result, ok := <-pool.Results():
				if !ok {
					return
				}
				if err := cc.DispatchDecoded(station, result); err != nil {
					entry.WithError(err).Debug("dispatch failed")
				}
			}
		}
	}()

	if mount.RequiresGGA && gga != nil {
		go sendPeriodicGGA(ctx, client, gga, entry)
	}

	backoff := 2 * time.Second
	const maxBackoff = 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := client.Connect(); err != nil {
			entry.WithError(err).WithField("retryIn", backoff).Warn("NTRIP connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 2 * time.Second

		buf := make([]byte, 4096)
		idleSince := time.Now()
		for client.IsStreaming() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var msg string
			n := client.ReadNtrip(buf, len(buf), &msg)
			if n <= 0 {
				if time.Since(idleSince) > 30*time.Second {
					entry.Warn("NTRIP idle timeout, reconnecting")
					break
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}
			idleSince = time.Now()
			codec.Feed(buf[:n])
			drainFrames(codec, pool, entry)
		}
	}
}

func drainFrames(codec *rtcm.FrameCodec, pool *rtcm.WorkerPool, log *logrus.Entry) {
	for {
		res := codec.NextFrame()
		switch res.Kind {
		case rtcm.FrameOK:
			frame := res.Frame
			pool.Submit(&frame)
		case rtcm.FrameSkip:
			log.WithField("bytes", res.N).Debug("skipped non-frame bytes")
		case rtcm.FrameError:
			log.WithError(res.Err).Warn("frame decode error")
		case rtcm.NeedBytes:
			return
		}
	}
}

func sendPeriodicGGA(ctx context.Context, client *stream.EnhancedNTrip, gga *ingest.GGASource, log *logrus.Entry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sentence, ok := gga.Latest()
			if !ok {
				continue
			}
			line := sentence + "\r\n"
			var msg string
			if n := client.WriteNtrip([]byte(line), len(line), &msg); n <= 0 {
				log.WithField("error", msg).Debug("GGA resend failed")
			}
		}
	}
}
