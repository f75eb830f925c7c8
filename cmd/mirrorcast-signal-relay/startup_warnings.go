package main

import (
	"log/slog"

	"github.com/mirrorcast/signal-relay/internal/config"
)

// logStartupWarnings flags configurations that are fine in development but
// questionable on a public deployment. None of them are fatal.
func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			logger.Warn("ALLOWED_ORIGINS contains a wildcard; any website may open signaling sessions")
			break
		}
	}

	if cfg.Mode == config.ModeProd {
		if cfg.MaxClients <= 0 {
			logger.Warn("MAX_CLIENTS is unlimited in prod mode; a single tenant can exhaust the relay")
		}
		if len(cfg.AllowedOrigins) == 0 {
			logger.Warn("ALLOWED_ORIGINS is empty in prod mode; all origins are admitted")
		}
	}

	if cfg.MaxSignalMessageBytes > 1<<20 {
		logger.Warn("MAX_SIGNAL_MESSAGE_BYTES is unusually large for signaling traffic",
			"bytes", cfg.MaxSignalMessageBytes)
	}
}
