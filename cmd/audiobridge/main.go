package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpbx/audiobridge/internal/audio"
	"github.com/flowpbx/audiobridge/internal/audio/malgosound"
	"github.com/flowpbx/audiobridge/internal/audio/simulated"
	"github.com/flowpbx/audiobridge/internal/config"
	"github.com/flowpbx/audiobridge/internal/engine"
	"github.com/flowpbx/audiobridge/internal/metrics"
)

// Exit codes per spec.md section 6.
const (
	exitArgOrBackendUnavailable = 1
	exitRuntimeInit             = 2
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitArgOrBackendUnavailable)
	}

	// Configure structured logging (text or json format, configurable level).
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting audiobridge",
		"backend", cfg.Backend,
		"listen_port", cfg.ListenPort,
		"peer", fmt.Sprintf("%s:%d", cfg.PeerIP, cfg.PeerPort),
		"sample_rate", cfg.SampleRate,
		"device_buffer", cfg.DeviceBufferFrames,
		"packet_buffer", cfg.PacketBufferFrames,
		"passthrough", cfg.Passthrough,
	)

	factories := map[audio.Kind]audio.Factory{
		audio.HardwareA: malgosound.NewHardwareA(logger),
		audio.HardwareB: malgosound.NewHardwareB(10.0, logger),
		audio.Simulated: simulated.New(logger),
	}

	eng := engine.New(factories, logger)

	engCfg := engine.Config{
		BackendKind:        cfg.AudioKind(),
		PeerIP:             cfg.PeerIP,
		PeerPort:           cfg.PeerPort,
		ListenPort:         cfg.ListenPort,
		SampleRate:         uint32(cfg.SampleRate),
		DeviceBufferFrames: uint32(cfg.DeviceBufferFrames),
		PacketBufferFrames: uint32(cfg.PacketBufferFrames),
		RingDepth:          cfg.RingDepth,
		Passthrough:        cfg.Passthrough,
		CaptureDevice:      cfg.CaptureDevice,
		PlaybackDevice:     cfg.PlaybackDevice,
	}

	if err := eng.Init(engCfg); err != nil {
		slog.Error("failed to initialise engine", "error", err)
		if errors.Is(err, engine.ErrBackendUnavailable) || errors.Is(err, engine.ErrConfigInvalid) {
			os.Exit(exitArgOrBackendUnavailable)
		}
		os.Exit(exitRuntimeInit)
	}
	if err := eng.Start(); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(exitRuntimeInit)
	}

	// Optional Prometheus metrics endpoint.
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(eng, time.Now()))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		metricsSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
		go func() {
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// Wait for interrupt.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received shutdown signal", "signal", sig.String())

	if metricsSrv != nil {
		if err := metricsSrv.Close(); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := eng.Stop(); err != nil {
		slog.Error("engine stop error", "error", err)
	}
	if err := eng.Cleanup(); err != nil {
		slog.Error("engine cleanup error", "error", err)
		os.Exit(1)
	}

	slog.Info("audiobridge stopped")
}
