// Package telemetry wires up the zap logger used to trace pipeline
// stage transitions and compile/execution faults in debug mode.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared logger. In debug mode it logs at debug level
// with development-friendly formatting (stack traces on warn+);
// otherwise it only surfaces warnings and above, matching the CLI's
// release-mode "ignore best-effort faults, log real ones" posture.
func New(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		// zap's own config builder failing means stderr itself is
		// unusable; fall back to a no-op logger rather than crash the
		// interpreter over a logging backend.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
