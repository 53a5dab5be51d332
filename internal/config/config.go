package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	flag "github.com/spf13/pflag"

	"github.com/phonecam/phonecam-signal/internal/origin"
)

const (
	envVarListenAddr      = "PHONECAM_SIGNAL_LISTEN_ADDR"
	envVarPort            = "PORT"
	envVarPublicBaseURL   = "PHONECAM_SIGNAL_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "PHONECAM_SIGNAL_LOG_FORMAT"
	envVarLogLevel        = "PHONECAM_SIGNAL_LOG_LEVEL"
	envVarShutdownTimeout = "PHONECAM_SIGNAL_SHUTDOWN_TIMEOUT"
	envVarMode            = "PHONECAM_SIGNAL_MODE"
	envVarIndexFile       = "PHONECAM_SIGNAL_INDEX_FILE"

	// Session broker.
	envVarSessionGracePeriod = "SESSION_GRACE_PERIOD"

	// Signaling WebSocket hardening.
	envVarSignalingWSIdleTimeout   = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval  = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarSignalingSendQueue       = "SIGNALING_SEND_QUEUE"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"
	envVarTURNRESTRealm          = "TURN_REST_REALM"

	DefaultListenAddr             = ":3000"
	DefaultShutdown               = 15 * time.Second
	DefaultMode              Mode = ModeDev
	DefaultIndexFile              = "index.html"
	DefaultSessionGracePeriod     = 5 * time.Second

	DefaultSignalingWSIdleTimeout   = 60 * time.Second
	DefaultSignalingWSPingInterval  = 20 * time.Second
	DefaultMaxSignalingMessageBytes = int64(64 * 1024)
	DefaultSignalingSendQueue       = 64

	DefaultTURNRESTTTLSeconds     int64  = 3600
	DefaultTURNRESTUsernamePrefix string = "phonecam"
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

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Realm          string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// IndexFile is the HTML page served at / and /index.html.
	IndexFile string

	// SessionGracePeriod is how long an empty session keeps its code before
	// it is reclaimed.
	SessionGracePeriod time.Duration

	SignalingWSIdleTimeout   time.Duration
	SignalingWSPingInterval  time.Duration
	MaxSignalingMessageBytes int64
	// SignalingSendQueue is the per-connection outbound frame queue. A peer
	// that falls this far behind is disconnected.
	SignalingSendQueue int

	// ICEServers is handed to browsers via GET /webrtc/ice. The broker never
	// builds PeerConnections itself.
	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig
}

// OriginPolicy builds the origin allowlist from AllowedOrigins.
func (c Config) OriginPolicy() (*origin.Policy, error) {
	return origin.NewPolicy(c.AllowedOrigins)
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := DefaultListenAddr
	if port, ok := lookup(envVarPort); ok && strings.TrimSpace(port) != "" {
		listenAddr = ":" + strings.TrimSpace(port)
	}
	listenAddr = envOrDefault(lookup, envVarListenAddr, listenAddr)

	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	indexFile := envOrDefault(lookup, envVarIndexFile, DefaultIndexFile)
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	sessionGracePeriod, err := envDurationOrDefault(lookup, envVarSessionGracePeriod, DefaultSessionGracePeriod)
	if err != nil {
		return Config{}, err
	}
	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	signalingSendQueue, err := envIntOrDefault(lookup, envVarSignalingSendQueue, DefaultSignalingSendQueue)
	if err != nil {
		return Config{}, err
	}

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTTTLSeconds := DefaultTURNRESTTTLSeconds
	if raw, ok := lookup(envVarTURNRESTTTLSeconds); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarTURNRESTTTLSeconds, raw, err)
		}
		turnRESTTTLSeconds = n
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)
	turnRESTRealm := envOrDefault(lookup, envVarTURNRESTRealm, "")

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs := flag.NewFlagSet("phonecam-signal", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+" or "+envVarPort+")")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL (optional; used for logging)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.StringVar(&indexFile, "index-file", indexFile, "HTML page served at / (env "+envVarIndexFile+")")
	fs.DurationVar(&sessionGracePeriod, "session-grace-period", sessionGracePeriod, "Keep an empty session's code reserved for this long (env "+envVarSessionGracePeriod+")")
	fs.DurationVar(&signalingWSIdleTimeout, "signaling-ws-idle-timeout", signalingWSIdleTimeout, "Close idle signaling WebSocket connections after this duration (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&signalingWSPingInterval, "signaling-ws-ping-interval", signalingWSPingInterval, "Send ping frames on signaling WebSocket connections at this interval (must be < --signaling-ws-idle-timeout; env "+envVarSignalingWSPingInterval+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling frame size (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&signalingSendQueue, "signaling-send-queue", signalingSendQueue, "Per-connection outbound frame queue length (env "+envVarSignalingSendQueue+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "TURN REST shared secret ("+envVarTURNRESTSharedSecret+")")
	fs.Int64Var(&turnRESTTTLSeconds, "turn-rest-ttl-seconds", turnRESTTTLSeconds, "TURN REST credential lifetime in seconds ("+envVarTURNRESTTTLSeconds+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix ("+envVarTURNRESTUsernamePrefix+")")
	fs.StringVar(&turnRESTRealm, "turn-rest-realm", turnRESTRealm, "TURN realm (coturn config; "+envVarTURNRESTRealm+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if err := validateListenAddr(listenAddr); err != nil {
		return Config{}, err
	}
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("invalid public base URL %q (expected http(s)://host[:port])", publicBaseURL)
		}
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(indexFile) == "" {
		return Config{}, errors.New("index file must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0 (got %s)", shutdownTimeout)
	}
	if sessionGracePeriod <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0 (got %s)", envVarSessionGracePeriod, sessionGracePeriod)
	}
	if signalingWSIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0 (got %s)", envVarSignalingWSIdleTimeout, signalingWSIdleTimeout)
	}
	if signalingWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0 (got %s)", envVarSignalingWSPingInterval, signalingWSPingInterval)
	}
	if signalingWSPingInterval >= signalingWSIdleTimeout {
		return Config{}, fmt.Errorf("%s (%s) must be < %s (%s)", envVarSignalingWSPingInterval, signalingWSPingInterval, envVarSignalingWSIdleTimeout, signalingWSIdleTimeout)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0 (got %d)", envVarMaxSignalingMessageBytes, maxSignalingMessageBytes)
	}
	if signalingSendQueue <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0 (got %d)", envVarSignalingSendQueue, signalingSendQueue)
	}

	turnREST := TurnRESTConfig{
		SharedSecret:   strings.TrimSpace(turnRESTSharedSecret),
		TTLSeconds:     turnRESTTTLSeconds,
		UsernamePrefix: strings.TrimSpace(turnRESTUsernamePrefix),
		Realm:          strings.TrimSpace(turnRESTRealm),
	}
	if turnREST.Enabled() {
		if turnREST.TTLSeconds <= 0 {
			return Config{}, fmt.Errorf("%s must be > 0 (got %d)", envVarTURNRESTTTLSeconds, turnREST.TTLSeconds)
		}
		if turnREST.UsernamePrefix == "" {
			return Config{}, fmt.Errorf("%s must not be empty when %s is set", envVarTURNRESTUsernamePrefix, envVarTURNRESTSharedSecret)
		}
		if strings.Contains(turnREST.UsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s must not contain ':' (got %q)", envVarTURNRESTUsernamePrefix, turnREST.UsernamePrefix)
		}
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential, turnREST.Enabled())
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr:               listenAddr,
		PublicBaseURL:            publicBaseURL,
		AllowedOrigins:           allowedOrigins,
		LogFormat:                logFormat,
		LogLevel:                 level,
		ShutdownTimeout:          shutdownTimeout,
		Mode:                     mode,
		IndexFile:                indexFile,
		SessionGracePeriod:       sessionGracePeriod,
		SignalingWSIdleTimeout:   signalingWSIdleTimeout,
		SignalingWSPingInterval:  signalingWSPingInterval,
		MaxSignalingMessageBytes: maxSignalingMessageBytes,
		SignalingSendQueue:       signalingSendQueue,
		ICEServers:               iceServers,
		TURNREST:                 turnREST,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
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

func validateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid listen address %q: port %q", addr, port)
	}
	return nil
}

// parseAllowedOrigins normalizes a comma-separated origin list. "*" and
// "null" are kept as-is.
func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

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

		o, err := origin.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com): %w", entry, err)
		}
		out = append(out, o.String())
	}
	return out, nil
}
