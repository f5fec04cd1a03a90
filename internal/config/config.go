package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/meetmesh/relay/internal/origin"
)

const (
	envVarListenAddr      = "MEETMESH_RELAY_LISTEN_ADDR"
	envVarMode            = "MEETMESH_RELAY_MODE"
	envVarLogFormat       = "MEETMESH_RELAY_LOG_FORMAT"
	envVarLogLevel        = "MEETMESH_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "MEETMESH_RELAY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// WebSocket signaling hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSendQueueMessages             = "SEND_QUEUE_MESSAGES"

	// Outbound meeting-invitation mail. Mail is disabled when the host is
	// unset; POST /send-email then answers 503.
	envVarSMTPHost     = "SMTP_HOST"
	envVarSMTPPort     = "SMTP_PORT"
	envVarSMTPUsername = "SMTP_USERNAME"
	envVarSMTPPassword = "SMTP_PASSWORD"
	envVarSMTPFrom     = "SMTP_FROM"
)

const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSendQueueMessages             = 64

	DefaultSMTPPort = 587
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

// SMTPConfig carries credentials for the invitation mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins holds normalized origins (or "*"). Empty means same-host
	// only, which is what a production deployment behind one domain wants;
	// dev mode defaults to "*" when the env var is unset.
	AllowedOrigins []string

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// SendQueueMessages bounds the per-connection outbound queue. A full queue
	// drops the message rather than blocking the router.
	SendQueueMessages int

	SMTP SMTPConfig

	// ICEServers is the STUN/TURN list served to browsers at GET /webrtc/ice.
	ICEServers []webrtc.ICEServer
}

func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	modeStr := envOrDefault(lookup, envVarMode, string(DefaultMode))
	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", envVarMode, err)
	}

	logFormatStr := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode))
	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", envVarLogFormat, err)
	}

	logLevelStr := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(mode))
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", envVarLogLevel, err)
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(envOrDefault(lookup, envVarAllowedOrigins, ""))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", envVarAllowedOrigins, err)
	}
	if len(allowedOrigins) == 0 && mode == ModeDev {
		// Dev frontends run on a separate origin (vite, ngrok); mirror that by
		// defaulting open. Production keeps the same-host-only default.
		allowedOrigins = []string{"*"}
	}

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueMessages, err := envIntOrDefault(lookup, envVarSendQueueMessages, DefaultSendQueueMessages)
	if err != nil {
		return Config{}, err
	}

	smtpPort, err := envIntOrDefault(lookup, envVarSMTPPort, DefaultSMTPPort)
	if err != nil {
		return Config{}, err
	}
	smtp := SMTPConfig{
		Host:     strings.TrimSpace(envOrDefault(lookup, envVarSMTPHost, "")),
		Port:     smtpPort,
		Username: envOrDefault(lookup, envVarSMTPUsername, ""),
		Password: envOrDefault(lookup, envVarSMTPPassword, ""),
		From:     strings.TrimSpace(envOrDefault(lookup, envVarSMTPFrom, "")),
	}
	if smtp.From == "" {
		smtp.From = smtp.Username
	}

	iceServers, err := parseICEServersFromValues(
		envOrDefault(lookup, envICEServersJSON, ""),
		envOrDefault(lookup, envStunURLs, ""),
		envOrDefault(lookup, envTurnURLs, ""),
		envOrDefault(lookup, envTurnUsername, ""),
		envOrDefault(lookup, envTurnCredential, ""),
	)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      envOrDefault(lookup, envVarListenAddr, DefaultListenAddr),
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  allowedOrigins,

		SignalingWSIdleTimeout:  wsIdleTimeout,
		SignalingWSPingInterval: wsPingInterval,

		MaxSignalingMessageBytes:      int64(maxMessageBytes),
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
		SendQueueMessages:             sendQueueMessages,

		SMTP:       smtp,
		ICEServers: iceServers,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%s must not be empty", envVarListenAddr)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", envVarShutdownTimeout)
	}
	if c.SignalingWSIdleTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", envVarSignalingWSIdleTimeout)
	}
	if c.SignalingWSPingInterval <= 0 {
		return fmt.Errorf("%s must be > 0", envVarSignalingWSPingInterval)
	}
	if c.SignalingWSPingInterval >= c.SignalingWSIdleTimeout {
		return fmt.Errorf("%s must be < %s", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be > 0", envVarMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be > 0", envVarMaxSignalingMessagesPerSecond)
	}
	if c.SendQueueMessages <= 0 {
		return fmt.Errorf("%s must be > 0", envVarSendQueueMessages)
	}
	if c.SMTP.Enabled() {
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("%s must be a valid port", envVarSMTPPort)
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("%s or %s must be set when %s is set", envVarSMTPFrom, envVarSMTPUsername, envVarSMTPHost)
		}
	}
	return nil
}

func parseAllowedOrigins(raw string) ([]string, error) {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		normalized, _, ok := origin.Normalize(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q", entry)
		}
		out = append(out, normalized)
	}
	return out, nil
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
	if v, ok := lookup(key); ok && v != "" {
		return v
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

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
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
