// Package logging gives every Tenant and Timeline a logger that
// prefixes each line with that object's request-scoped tags (tenant
// id, timeline id): print the operationally significant thing, not
// everything, with structured tags bolted on via
// github.com/cockroachdb/logtags.
package logging

import (
	"log"
	"os"

	"github.com/cockroachdb/logtags"
)

// Logger writes tag-prefixed lines to the standard logger.
type Logger struct {
	tags *logtags.Buffer
	std  *log.Logger
}

// New builds a Logger carrying no tags. Use With to attach tenant_id /
// timeline_id once at construction of the owning Tenant or Timeline.
func New() *Logger {
	return &Logger{std: log.New(os.Stderr, "", log.LstdFlags)}
}

// With returns a derived Logger with an additional key/value tag,
// leaving the receiver unmodified.
func (l *Logger) With(key string, value interface{}) *Logger {
	buf := l.tags
	if buf == nil {
		buf = &logtags.Buffer{}
	}
	return &Logger{tags: buf.Add(key, value), std: l.std}
}

// Infof logs an operationally significant line at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.std.Printf(l.prefix()+format, args...)
}

// Errorf logs a failure. Fatal-path callers additionally report to
// sentry; this only ever writes the log line.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.std.Printf(l.prefix()+"ERROR: "+format, args...)
}

func (l *Logger) prefix() string {
	if l.tags == nil {
		return ""
	}
	s := l.tags.String()
	if s == "" {
		return ""
	}
	return s + " "
}
