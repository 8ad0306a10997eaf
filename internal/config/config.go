// Package config parses the audiobridge command-line surface (spec.md
// section 6): CLI flags override environment variables, which override
// built-in defaults. Grounded on flowpbx-flowpbx's internal/config, which
// uses the same flag.NewFlagSet + fs.Visit + env-override precedence
// pattern, generalized here from the PBX's HTTP/SIP/RTP flags to the
// transport engine's backend/peer/buffering flags.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/flowpbx/audiobridge/internal/audio"
)

// Config holds all runtime configuration for the audiobridge CLI.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	Backend string // "hw-a", "hw-b", or "sim"

	PeerIP     string
	PeerPort   int
	ListenPort int

	SampleRate         int
	DeviceBufferFrames int
	PacketBufferFrames int
	RingDepth          int

	Passthrough bool

	CaptureDevice  string
	PlaybackDevice string

	LogLevel  string
	LogFormat string

	MetricsAddr string // empty disables the /metrics HTTP endpoint

	// StateFile is an optional key=value file; today the only recognised
	// key is udp_send_ip, which overrides PeerIP when set and PeerIP was
	// not given explicitly on the command line or via environment.
	StateFile string

	peerIPSetExplicitly bool
}

// defaults, per spec.md section 6's CLI table.
const (
	defaultBackend            = "hw-b"
	defaultPeerPort           = 8321
	defaultListenPort         = 8322
	defaultSampleRate         = 48000
	defaultDeviceBufferFrames = 32
	defaultRingDepth          = 2048
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"
)

// envPrefix is the prefix for all audiobridge environment variables.
const envPrefix = "AUDIOBRIDGE_"

// Load parses configuration from CLI flags (typically os.Args[1:]) and
// environment variables. Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("audiobridge", flag.ContinueOnError)

	fs.StringVar(&cfg.Backend, "backend", defaultBackend, "audio backend: hw-a, hw-b, or sim")
	fs.StringVar(&cfg.PeerIP, "ip", "", "peer endpoint IP address")
	fs.IntVar(&cfg.PeerPort, "port", defaultPeerPort, "peer endpoint UDP port")
	fs.IntVar(&cfg.ListenPort, "listen-port", defaultListenPort, "local UDP port to receive on")
	fs.IntVar(&cfg.SampleRate, "rate", defaultSampleRate, "sample rate in Hz")
	fs.IntVar(&cfg.DeviceBufferFrames, "device-buffer", defaultDeviceBufferFrames, "period size in frames")
	fs.IntVar(&cfg.PacketBufferFrames, "packet-buffer", defaultDeviceBufferFrames, "frames grouped per outbound packet; must be a positive multiple of device-buffer")
	fs.IntVar(&cfg.RingDepth, "ring-depth", defaultRingDepth, "play-out ring buffer depth in samples")
	fs.BoolVar(&cfg.Passthrough, "passthrough", false, "bypass the network: copy input to output locally")
	fs.StringVar(&cfg.CaptureDevice, "capture-device", "", "backend-A capture device identifier")
	fs.StringVar(&cfg.PlaybackDevice, "playback-device", "", "backend-A playback device identifier")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	fs.StringVar(&cfg.StateFile, "state-file", "", "optional key=value file; recognises udp_send_ip")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)
	cfg.peerIPSetExplicitly = cfg.PeerIP != ""

	if cfg.StateFile != "" && !cfg.peerIPSetExplicitly {
		ip, err := readUDPSendIP(cfg.StateFile)
		if err != nil {
			return nil, fmt.Errorf("reading state file: %w", err)
		}
		if ip != "" {
			cfg.PeerIP = ip
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"backend":         envPrefix + "BACKEND",
		"ip":              envPrefix + "IP",
		"port":            envPrefix + "PORT",
		"listen-port":     envPrefix + "LISTEN_PORT",
		"rate":            envPrefix + "RATE",
		"device-buffer":   envPrefix + "DEVICE_BUFFER",
		"packet-buffer":   envPrefix + "PACKET_BUFFER",
		"ring-depth":      envPrefix + "RING_DEPTH",
		"passthrough":     envPrefix + "PASSTHROUGH",
		"capture-device":  envPrefix + "CAPTURE_DEVICE",
		"playback-device": envPrefix + "PLAYBACK_DEVICE",
		"log-level":       envPrefix + "LOG_LEVEL",
		"log-format":      envPrefix + "LOG_FORMAT",
		"metrics-addr":    envPrefix + "METRICS_ADDR",
		"state-file":      envPrefix + "STATE_FILE",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "backend":
			cfg.Backend = val
		case "ip":
			cfg.PeerIP = val
		case "port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PeerPort = v
			}
		case "listen-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ListenPort = v
			}
		case "rate":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SampleRate = v
			}
		case "device-buffer":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DeviceBufferFrames = v
			}
		case "packet-buffer":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PacketBufferFrames = v
			}
		case "ring-depth":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RingDepth = v
			}
		case "passthrough":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.Passthrough = v
			}
		case "capture-device":
			cfg.CaptureDevice = val
		case "playback-device":
			cfg.PlaybackDevice = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "metrics-addr":
			cfg.MetricsAddr = val
		case "state-file":
			cfg.StateFile = val
		}
	}
}

// readUDPSendIP reads the single recognised key from the optional state
// file, per spec.md section 6's "Persisted state" note. A missing file is
// not an error — the state file is optional.
func readUDPSendIP(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "udp_send_ip" {
			return strings.TrimSpace(val), nil
		}
	}
	return "", scanner.Err()
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	switch c.Backend {
	case string(audio.HardwareA), string(audio.HardwareB), string(audio.Simulated):
	default:
		return fmt.Errorf("backend must be one of hw-a, hw-b, sim, got %q", c.Backend)
	}
	if c.PeerPort < 1 || c.PeerPort > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.PeerPort)
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen-port must be between 1 and 65535, got %d", c.ListenPort)
	}
	if c.SampleRate < 1 {
		return fmt.Errorf("rate must be positive, got %d", c.SampleRate)
	}
	if c.DeviceBufferFrames < 1 {
		return fmt.Errorf("device-buffer must be positive, got %d", c.DeviceBufferFrames)
	}
	if c.PacketBufferFrames < 1 || c.PacketBufferFrames%c.DeviceBufferFrames != 0 {
		return fmt.Errorf("packet-buffer must be a positive multiple of device-buffer, got %d (device-buffer %d)", c.PacketBufferFrames, c.DeviceBufferFrames)
	}
	if c.RingDepth < 1 {
		return fmt.Errorf("ring-depth must be positive, got %d", c.RingDepth)
	}
	if !c.Passthrough && c.PeerIP == "" {
		return fmt.Errorf("ip is required unless passthrough is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// AudioKind returns the parsed backend flag as an audio.Kind.
func (c *Config) AudioKind() audio.Kind {
	return audio.Kind(c.Backend)
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
