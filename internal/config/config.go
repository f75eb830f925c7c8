package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "SIGNAL_RELAY_LISTEN_ADDR"
	envVarMode            = "SIGNAL_RELAY_MODE"
	envVarLogFormat       = "SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SIGNAL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "SIGNAL_RELAY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Registry quota knobs. A value <= 0 means "unlimited".
	envVarMaxClients        = "MAX_CLIENTS"
	envVarMaxViewersPerRoom = "MAX_VIEWERS_PER_ROOM"

	// WebSocket transport hardening.
	envVarClientSendQueueSize        = "CLIENT_SEND_QUEUE_SIZE"
	envVarMaxSignalMessageBytes      = "MAX_SIGNAL_MESSAGE_BYTES"
	envVarMaxSignalMessagesPerSecond = "MAX_SIGNAL_MESSAGES_PER_SECOND"
	envVarWSIdleTimeout              = "SIGNAL_WS_IDLE_TIMEOUT"
	envVarWSPingInterval             = "SIGNAL_WS_PING_INTERVAL"
	envVarWSWriteTimeout             = "SIGNAL_WS_WRITE_TIMEOUT"
)

const (
	DefaultListenAddr      = ":8080"
	DefaultMode            = ModeDev
	DefaultShutdownTimeout = 10 * time.Second

	DefaultClientSendQueueSize = 64
	// Large enough for any realistic SDP; small enough to bound per-message
	// allocation from a hostile peer.
	DefaultMaxSignalMessageBytes      = 64 * 1024
	DefaultMaxSignalMessagesPerSecond = 50

	DefaultWSIdleTimeout  = 60 * time.Second
	DefaultWSPingInterval = 20 * time.Second
	DefaultWSWriteTimeout = 10 * time.Second
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins restricts WebSocket upgrades by Origin header. Empty means
	// "allow all" (browser clients served from anywhere); "*" is an explicit
	// wildcard that triggers a startup warning.
	AllowedOrigins []string

	MaxClients        int
	MaxViewersPerRoom int

	ClientSendQueueSize        int
	MaxSignalMessageBytes      int64
	MaxSignalMessagesPerSecond int

	WSIdleTimeout  time.Duration
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode := envOrDefault(lookup, envVarMode, string(DefaultMode))
	envLogFormat := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(envMode))
	envLogLevel := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(envMode))

	fs := flag.NewFlagSet("mirrorcast-signal-relay", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "TCP listen address")
	modeFlag := fs.String("mode", envMode, "deployment mode: dev or prod")
	logFormatFlag := fs.String("log-format", envLogFormat, "log format: text or json")
	logLevelFlag := fs.String("log-level", envLogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(*logFormatFlag)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(*logLevelFlag)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	maxClients, err := envIntOrDefault(lookup, envVarMaxClients, 0)
	if err != nil {
		return Config{}, err
	}
	maxViewers, err := envIntOrDefault(lookup, envVarMaxViewersPerRoom, 0)
	if err != nil {
		return Config{}, err
	}

	sendQueue, err := envIntOrDefault(lookup, envVarClientSendQueueSize, DefaultClientSendQueueSize)
	if err != nil {
		return Config{}, err
	}
	if sendQueue <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", envVarClientSendQueueSize, sendQueue)
	}
	maxMsgBytes, err := envIntOrDefault(lookup, envVarMaxSignalMessageBytes, DefaultMaxSignalMessageBytes)
	if err != nil {
		return Config{}, err
	}
	if maxMsgBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", envVarMaxSignalMessageBytes, maxMsgBytes)
	}
	maxMsgRate, err := envIntOrDefault(lookup, envVarMaxSignalMessagesPerSecond, DefaultMaxSignalMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	idleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	writeTimeout, err := envDurationOrDefault(lookup, envVarWSWriteTimeout, DefaultWSWriteTimeout)
	if err != nil {
		return Config{}, err
	}
	for _, knob := range []struct {
		key string
		val time.Duration
	}{
		{envVarWSIdleTimeout, idleTimeout},
		{envVarWSPingInterval, pingInterval},
		{envVarWSWriteTimeout, writeTimeout},
	} {
		// Zero here is never "disabled": a zero ping interval would panic the
		// writer's ticker and a zero idle timeout expires every read at once.
		if knob.val <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %s", knob.key, knob.val)
		}
	}
	if pingInterval >= idleTimeout {
		return Config{}, fmt.Errorf("%s (%s) must be shorter than %s (%s)",
			envVarWSPingInterval, pingInterval, envVarWSIdleTimeout, idleTimeout)
	}

	return Config{
		ListenAddr:      *listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  splitCommaList(envOrDefault(lookup, envVarAllowedOrigins, "")),

		MaxClients:        maxClients,
		MaxViewersPerRoom: maxViewers,

		ClientSendQueueSize:        sendQueue,
		MaxSignalMessageBytes:      int64(maxMsgBytes),
		MaxSignalMessagesPerSecond: maxMsgRate,

		WSIdleTimeout:  idleTimeout,
		WSPingInterval: pingInterval,
		WSWriteTimeout: writeTimeout,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitCommaList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
