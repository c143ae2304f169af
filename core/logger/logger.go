// Package logger defines the logging interface used across the engine.
// Implementations live under infra/logger.
package logger

// Logger is a minimal leveled logging interface.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
