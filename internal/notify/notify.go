// Package notify is the transient user-facing message channel (the console's
// toasts). Every failure in the sync layer ends up here exactly once.
package notify

import (
	"sync"

	"web-app-firewall-console/internal/logger"
)

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Log writes notifications through the application logger.
type Log struct {
	Logger logger.Logger
}

func (n Log) Success(msg string) { n.Logger.Info(msg, logger.String("kind", "notification")) }
func (n Log) Error(msg string)   { n.Logger.Warn(msg, logger.String("kind", "notification")) }

// Nop drops everything.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Error(string)   {}

// Recorder keeps every message in order. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (r *Recorder) Success(msg string) {
	r.mu.Lock()
	r.successes = append(r.successes, msg)
	r.mu.Unlock()
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	r.errors = append(r.errors, msg)
	r.mu.Unlock()
}

func (r *Recorder) Successes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...)
}

func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// Drain returns and clears both lists.
func (r *Recorder) Drain() (successes, errors []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	successes, errors = r.successes, r.errors
	r.successes, r.errors = nil, nil
	return successes, errors
}
