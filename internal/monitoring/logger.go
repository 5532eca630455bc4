package monitoring

import (
	"fmt"
	"log"
)

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

// Scoped returns a logger that prefixes every line with the given scope,
// e.g. a vehicle rego or a task name. It routes through the current value
// of Logf at call time, so SetLogger keeps working after a scoped logger
// has been handed out.
func Scoped(scope string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("[%s] %s", scope, fmt.Sprintf(format, v...))
	}
}
