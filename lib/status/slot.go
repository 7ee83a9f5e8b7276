// Package status provides the last-error slot for the netext host boundary.
// The boundary's failure signal is a bare status code, so the slot is the only
// diagnostic channel: every fallible boundary operation records a human-readable
// message here before returning its failure.
package status

import (
	"fmt"
	"sync"
)

// Slot holds the most recent failure message. It is safe for concurrent use.
//
// Semantics are persist-until-overwritten: reading the slot never clears it,
// and the message is only replaced when a new failure is recorded. This
// tolerates hosts that poll opportunistically and may read an error long
// after a later operation succeeded.
//
// A Slot is an ordinary injectable value rather than process-global state, so
// multiple engines (for example, in tests) do not interfere with each other.
type Slot struct {
	mu   sync.RWMutex
	last string
}

// NewSlot creates an empty error slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Record stores the error's message as the latest failure.
// A nil error is ignored.
func (s *Slot) Record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.last = err.Error()
	s.mu.Unlock()
}

// Recordf stores a formatted message as the latest failure.
func (s *Slot) Recordf(format string, args ...any) {
	s.mu.Lock()
	s.last = fmt.Sprintf(format, args...)
	s.mu.Unlock()
}

// Last returns the most recently recorded failure message, or the empty
// string if no failure has been recorded. Reading does not clear the slot.
func (s *Slot) Last() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Clear empties the slot. Intended for hosts that want read-and-reset
// semantics on top of the default persist-until-overwritten behavior.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.last = ""
	s.mu.Unlock()
}
