// Package runlog writes the run-level audit trail: an append-only text file
// with one timestamped line per status event. It is the only persisted log
// and doubles as the status channel a host UI consumes.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log is an append-only, human-readable run log.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
	echo func(string)
}

// New creates the run log file log_<query>_<timestamp>.txt under dir.
func New(dir, query string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("log_%s_%s.txt", sanitizeQuery(query), time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &Log{f: f, path: path}, nil
}

// SetEcho registers a callback that receives every logged line. Used by the
// CLI to mirror the audit trail to the terminal.
func (l *Log) SetEcho(fn func(string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.echo = fn
}

// Printf appends one formatted line with a timestamp prefix.
func (l *Log) Printf(format string, args ...any) {
	l.Line(fmt.Sprintf(format, args...))
}

// Line appends one line with a timestamp prefix.
func (l *Log) Line(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := time.Now().Format("2006-01-02 15:04:05") + " " + s
	if l.f != nil {
		fmt.Fprintln(l.f, line)
	}
	if l.echo != nil {
		l.echo(line)
	}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Close flushes and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// sanitizeQuery keeps the query recognizable in a filename.
func sanitizeQuery(q string) string {
	var b strings.Builder
	for _, c := range q {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "query"
	}
	return b.String()
}
