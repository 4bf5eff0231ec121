package types

import (
	plog "github.com/prometheus/common/log"
)

// Logger is satisfied by every actor's logging dependency. Every
// component (Robot, Gateway, Screen) logs through this interface
// instead of calling fmt/log directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// defaultLogger wraps the prometheus/common/log facade, the same
// logging dependency the underlying transport layer this codebase is
// descended from already imports.
type defaultLogger struct {
	plog.Logger
}

// NewDefaultLogger returns the Logger used when the caller does not
// supply its own, tagged with a component name for multiplexed robot
// logs.
func NewDefaultLogger(component string) Logger {
	return &defaultLogger{Logger: plog.With("component", component)}
}
