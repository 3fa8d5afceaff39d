// This file is part of btags.
//
// btags is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// btags is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with btags.  If not, see <https://www.gnu.org/licenses/>.

// Package logger is a capacity-bounded central logger, adapted from
// the teacher's own logger package. Entries are tagged short strings;
// a Permission value gates whether a given call is actually recorded,
// letting callers (e.g. a verbose flag) decide at the call site
// whether a log line matters without branching at every call.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Permission gates whether a Log/Logf call is recorded.
type Permission interface {
	AllowLogging() bool
}

// Allow is a Permission that always allows logging.
var Allow = allowAlways{}

type allowAlways struct{}

func (allowAlways) AllowLogging() bool { return true }

type entry struct {
	tag    string
	detail string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s", e.tag, e.detail)
}

// Logger is a ring buffer of log entries with a fixed capacity.
type Logger struct {
	mu       sync.Mutex
	capacity int
	entries  []entry
}

// NewLogger creates a Logger that retains at most capacity entries,
// discarding the oldest when full.
func NewLogger(capacity int) *Logger {
	if capacity < 1 {
		capacity = 1
	}
	return &Logger{capacity: capacity}
}

// Log records tag/detail if permission allows it. detail is rendered
// specially for errors and fmt.Stringer values, and with %v otherwise.
func (l *Logger) Log(permission Permission, tag string, detail interface{}) {
	if permission == nil || !permission.AllowLogging() {
		return
	}
	l.append(tag, renderDetail(detail))
}

// Logf is like Log but formats detail with a pattern and arguments.
func (l *Logger) Logf(permission Permission, tag string, pattern string, args ...interface{}) {
	if permission == nil || !permission.AllowLogging() {
		return
	}
	l.append(tag, fmt.Sprintf(pattern, args...))
}

func renderDetail(detail interface{}) string {
	switch v := detail.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (l *Logger) append(tag, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry{tag: tag, detail: detail})
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// Write writes every retained entry, one per line, to w.
func (l *Logger) Write(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}

// Tail writes the last n entries (or fewer, if there aren't n yet) to w.
func (l *Logger) Tail(w io.Writer, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	start := len(l.entries) - n

	var b strings.Builder
	for _, e := range l.entries[start:] {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}

// Clear discards all retained entries.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// default is the package-level logger used by schedule and tagextract
// when no explicit *Logger is supplied, mirroring the teacher's
// package-level logger.Log/logger.Write convenience functions.
var def = NewLogger(500)

// Default returns the package-level default Logger.
func Default() *Logger { return def }

func Log(tag string, detail interface{})                          { def.Log(Allow, tag, detail) }
func Logf(tag string, pattern string, args ...interface{})         { def.Logf(Allow, tag, pattern, args...) }
func Write(w io.Writer)                                            { def.Write(w) }
func Tail(w io.Writer, n int)                                       { def.Tail(w, n) }
func Clear()                                                        { def.Clear() }
