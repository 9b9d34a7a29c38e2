package hintstore

import "time"

// SetClock points the store at a test time source and returns a restore
// function.
func (s *Store) SetClock(fn func() time.Time) func() {
	prev := s.now
	s.now = fn
	return func() { s.now = prev }
}
