// Package services implements the data-model layer: profile and action
// services enforcing the store invariants, with coalesced persistence.
package services

import (
	"sync"
	"time"
)

// Saver collapses bursts of mutations into one delayed flush. Every
// Schedule cancels and replaces the pending timer, so the flush runs once
// the mutations go quiet. Flush may also be forced directly by callers
// before the process is suspended.
type Saver struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	flush func()
}

// NewSaver returns a Saver invoking flush after delay of inactivity.
func NewSaver(delay time.Duration, flush func()) *Saver {
	return &Saver{delay: delay, flush: flush}
}

// Schedule arms (or re-arms) the delayed flush.
func (s *Saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.flush)
}

// Stop cancels any pending flush without running it.
func (s *Saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
