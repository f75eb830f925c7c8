package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/mirrorcast/signal-relay/internal/config"
)

func captureWarnings(cfg config.Config) string {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logStartupWarnings(logger, cfg)
	return buf.String()
}

func TestStartupWarnings(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "wildcard origin",
			cfg:  config.Config{Mode: config.ModeDev, AllowedOrigins: []string{"*"}, MaxClients: 10},
			want: "wildcard",
		},
		{
			name: "unlimited clients in prod",
			cfg:  config.Config{Mode: config.ModeProd, AllowedOrigins: []string{"https://a.example"}},
			want: "MAX_CLIENTS",
		},
		{
			name: "no origin allowlist in prod",
			cfg:  config.Config{Mode: config.ModeProd, MaxClients: 10},
			want: "all origins",
		},
		{
			name: "oversized message cap",
			cfg:  config.Config{Mode: config.ModeDev, MaxClients: 10, MaxSignalMessageBytes: 8 << 20},
			want: "MAX_SIGNAL_MESSAGE_BYTES",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := captureWarnings(tc.cfg)
			if !strings.Contains(out, tc.want) {
				t.Fatalf("warnings=%q, want mention of %q", out, tc.want)
			}
		})
	}
}

func TestStartupWarningsQuietWhenHardened(t *testing.T) {
	out := captureWarnings(config.Config{
		Mode:                  config.ModeProd,
		AllowedOrigins:        []string{"https://app.example.com"},
		MaxClients:            500,
		MaxSignalMessageBytes: config.DefaultMaxSignalMessageBytes,
	})
	if strings.Contains(out, "WARN") {
		t.Fatalf("unexpected warnings: %q", out)
	}
}
