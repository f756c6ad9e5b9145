// Package testutil provides shared test doubles for use across package tests.
package testutil

import (
	"strings"
	"sync"
	"time"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/rules"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording. Children
// created with With share the parent's records.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func NewDummyLogger() *DummyLogger { return &DummyLogger{} }

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// HasInfo reports whether an info message containing substr was logged.
func (l *DummyLogger) HasInfo(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Infos {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// ─── Clock ─────────────────────────────────────────────────────────────

// Clock is a settable time source for TTL tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ─── Rules ─────────────────────────────────────────────────────────────

// StaticRule returns a rule that always yields status with message.
func StaticRule(id, category string, weight int, status rules.Status, message string) rules.Rule {
	return rules.Rule{
		ID:       id,
		Category: category,
		Weight:   weight,
		Run: func(*rules.PageContext) rules.Outcome {
			return rules.Outcome{Status: status, Message: message}
		},
	}
}

// PathRule returns a rule that fails on pages whose URL contains needle and
// passes elsewhere.
func PathRule(id, category string, weight int, needle, message string) rules.Rule {
	return rules.Rule{
		ID:       id,
		Category: category,
		Weight:   weight,
		Run: func(pc *rules.PageContext) rules.Outcome {
			if strings.Contains(pc.URL, needle) {
				return rules.Fail(message, nil)
			}
			return rules.Pass("ok")
		},
	}
}
