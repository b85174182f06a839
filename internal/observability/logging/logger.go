// Package logging builds the process-wide structured logger shared by
// the api and worker binaries.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

const attrMask = "****"

// secretAttrKeys lists attribute names whose values must never reach a
// log sink, whatever the call site passed.
var secretAttrKeys = map[string]struct{}{
	"api_key":       {},
	"credential":    {},
	"master_key":    {},
	"authorization": {},
}

// NewJSONLogger returns a JSON logger tagged with the service name.
// Credential-bearing attributes are masked at the handler so a stray
// debug line cannot leak a vault secret.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: maskSecretAttrs,
	})
	return slog.New(handler).With("service", service)
}

func maskSecretAttrs(_ []string, a slog.Attr) slog.Attr {
	if _, secret := secretAttrKeys[strings.ToLower(a.Key)]; secret {
		a.Value = slog.StringValue(attrMask)
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
