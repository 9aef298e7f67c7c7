// Package monitoring holds the process-wide diagnostic logger.
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

// WithPrefix returns a logger that prepends prefix to every line and forwards
// to whatever Logf is at call time, so a later SetLogger still applies.
func WithPrefix(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		args := make([]interface{}, 0, len(v)+1)
		args = append(args, prefix)
		args = append(args, v...)
		Logf("%s"+format, args...)
	}
}
