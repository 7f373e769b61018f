// Package logger builds the zap logger shared by the binaries.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a JSON production logger for "production"/"prod" and a console
// development logger otherwise.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

// Redact renders a secret as presence only.
func Redact(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "<set>"
}
