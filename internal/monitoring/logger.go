// Package monitoring holds the process-wide diagnostic logger used by the
// statistics engine, the archive and the HTTP layer.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem through Logf with a "warning:" prefix.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}

// Logger tags every line with a bracketed component name. It resolves Logf
// on each call, so SetLogger applies to loggers created earlier.
type Logger string

// Component returns the Logger for the named subsystem, e.g. "stats" or "migrate".
func Component(name string) Logger {
	return Logger(name)
}

// Logf logs through the package Logf with the component prefix.
func (l Logger) Logf(format string, v ...interface{}) {
	Logf(l.prefix()+format, v...)
}

// Warnf logs a recoverable problem with the component prefix.
func (l Logger) Warnf(format string, v ...interface{}) {
	Warnf(l.prefix()+format, v...)
}

func (l Logger) prefix() string {
	if l == "" {
		return ""
	}
	return "[" + string(l) + "] "
}
