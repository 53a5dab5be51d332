package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/phonecam/phonecam-signal/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (any web page can open a signaling socket)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	// Static TURN credentials are handed to every browser that asks.
	if config.HasTURNServer(cfg.ICEServers) && !cfg.TURNREST.Enabled() {
		logger.Warn("startup security warning: static TURN credentials are served to every client; prefer TURN_REST_SHARED_SECRET",
			"warning_code", "static_turn_credentials",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && len(cfg.ICEServers) == 0 {
		logger.Warn("startup warning: no ICE servers configured; peers behind NAT may fail to connect",
			"warning_code", "no_ice_servers",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-frame allocation risk)",
			"warning_code", "max_signaling_message_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.SessionGracePeriod > time.Minute {
		logger.Warn("startup security warning: SESSION_GRACE_PERIOD is very large (abandoned codes stay joinable longer)",
			"warning_code", "session_grace_period_large",
			"session_grace_period", cfg.SessionGracePeriod,
			"mode", cfg.Mode,
		)
	}

	if cfg.TURNREST.Enabled() && cfg.TURNREST.TTLSeconds > int64((24*time.Hour)/time.Second) {
		logger.Warn("startup security warning: TURN_REST_TTL_SECONDS exceeds one day (leaked credentials stay valid longer)",
			"warning_code", "turn_rest_ttl_large",
			"turn_rest_ttl_seconds", cfg.TURNREST.TTLSeconds,
			"mode", cfg.Mode,
		)
	}
}
