package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRateLimit logs a rate limit back-off for a platform resource
func LogRateLimit(l Logger, resource, api string, wait time.Duration) {
	l.WithFields(map[string]interface{}{
		"resource": resource,
		"api":      api,
		"wait":     wait,
		"action":   "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, fields map[string]interface{}) {
	l = l.WithField("component", component)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(string)                                   {}
func (n *nopLogger) Info(string)                                    {}
func (n *nopLogger) Warn(string)                                    {}
func (n *nopLogger) Error(string)                                   {}
func (n *nopLogger) Fatal(string)                                   {}
func (n *nopLogger) WithField(string, interface{}) Logger           { return n }
func (n *nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n *nopLogger) WithError(error) Logger                         { return n }
func (n *nopLogger) WithContext(context.Context) Logger             { return n }
func (n *nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(string, map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(string, map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(string, map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(string, map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
