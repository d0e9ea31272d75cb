package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gremd/internal/logger"
)

// State of a session. Killed is terminal.
const (
	StateActive int32 = iota
	StateKilled
)

// ErrKilled is returned when an evaluation reaches a session that was torn
// down while the request was waiting its turn.
var ErrKilled = errors.New("session has been closed")

// Transactional is implemented by binding values that hold an open
// transactional resource. Killing a session rolls each distinct one back.
type Transactional interface {
	Rollback() error
}

// Session owns one isolated bindings map and serializes every evaluation that
// runs against it. The bindings map is only ever touched while holding the
// session's execution lock.
type Session struct {
	ID string

	mu           sync.Mutex
	bindings     map[string]interface{}
	timeout      time.Duration
	lastActivity atomic.Int64
	state        atomic.Int32
}

func newSession(id string, timeout time.Duration) *Session {
	s := &Session{
		ID:       id,
		bindings: make(map[string]interface{}),
		timeout:  timeout,
	}
	s.lastActivity.Store(time.Now().UnixNano())
	return s
}

// Touch records request activity. Called once per accepted request, before
// the request does any work.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the most recent touch time.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Expired reports whether the session has sat untouched past its timeout as
// of now. A session exactly at the boundary is kept.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastActivity()) > s.timeout
}

// Killed reports whether the session has been torn down.
func (s *Session) Killed() bool {
	return s.state.Load() == StateKilled
}

// RunExclusive runs fn with exclusive access to the session's bindings.
// Concurrent callers queue; each sees the bindings state the previous one
// left behind. The underlying script engine and transaction machinery are not
// reentrant, so this lock is what makes one session behave like a
// single-threaded actor no matter how requests arrive off the wire.
func (s *Session) RunExclusive(fn func(bindings map[string]interface{}) (interface{}, error)) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Killed() {
		return nil, ErrKilled
	}
	return fn(s.bindings)
}

// Kill tears the session down: waits out any in-flight evaluation, rolls back
// every distinct transactional resource reachable through the bindings, and
// drops the bindings. Killing an already-killed session is a no-op, since
// timeout eviction and an explicit close may race.
func (s *Session) Kill() {
	if !s.state.CompareAndSwap(StateActive, StateKilled) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[Transactional]struct{})
	for name, v := range s.bindings {
		tx, ok := v.(Transactional)
		if !ok {
			continue
		}
		if _, done := seen[tx]; done {
			continue
		}
		seen[tx] = struct{}{}
		if err := tx.Rollback(); err != nil {
			logger.Logger.Warn().
				Str("session", s.ID).
				Str("binding", name).
				Err(err).
				Msg("rollback failed during session kill")
		}
	}

	s.bindings = make(map[string]interface{})
}
