package session

import (
	"errors"
	"sync"
	"time"

	"gremd/internal/logger"
)

// ErrNoSuchSession is reported when a close names an id the registry does not
// hold. The dispatcher turns it into a request error, never a fatal one.
var ErrNoSuchSession = errors.New("no such session")

// Registry is the server-lifetime table of live sessions. Lookups, inserts
// and removals are all guarded by one mutex; get-or-create is atomic, so two
// concurrent first requests for an unseen id always land on the same Session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	timeout       time.Duration
	sweepInterval time.Duration
	onEvict       func(id string)

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry builds a registry and starts its sweep loop.
func NewRegistry(timeout, sweepInterval time.Duration) *Registry {
	r := &Registry{
		sessions:      make(map[string]*Session),
		timeout:       timeout,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}
	r.wg.Add(1)
	go r.sweepLoop()
	return r
}

// OnEvict registers a callback invoked after a session is removed by the
// idle-timeout sweep. Not invoked for explicit closes.
func (r *Registry) OnEvict(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = fn
}

// GetOrCreate finds the session for id or atomically creates it. New sessions
// start active with empty bindings and a fresh idle clock.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id, r.timeout)
	r.sessions[id] = s
	logger.Logger.Debug().Str("session", id).Msg("session created")
	return s
}

// Get looks up a session without creating one.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close removes the session for id and kills it, waiting for any in-flight
// evaluation to finish before the rollback proceeds. Returns ErrNoSuchSession
// if the id is unknown.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		return ErrNoSuchSession
	}

	// Kill first so the wait for an in-flight evaluation happens while the
	// session is still registered; a concurrent eval for the same id finds
	// the killed session instead of minting a second one mid-teardown.
	s.Kill()

	r.mu.Lock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	logger.Logger.Info().Str("session", id).Msg("session closed")
	return nil
}

// Sweep evicts every session idle past its timeout as of now and returns the
// number evicted. A touch that lands after the eligibility decision saves the
// session: eviction only proceeds if the timestamp the decision was based on
// is still the newest one.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.Unlock()

	evicted := 0
	for _, s := range candidates {
		observed := s.LastActivity()
		if now.Sub(observed) <= r.timeout {
			continue
		}

		r.mu.Lock()
		cur, ok := r.sessions[s.ID]
		if ok && cur == s && !s.LastActivity().After(observed) {
			delete(r.sessions, s.ID)
		} else {
			ok = false
		}
		onEvict := r.onEvict
		r.mu.Unlock()

		if !ok {
			continue
		}
		s.Kill()
		evicted++
		logger.Logger.Info().
			Str("session", s.ID).
			Time("lastActivity", observed).
			Msg("idle session evicted")
		if onEvict != nil {
			onEvict(s.ID)
		}
	}
	return evicted
}

// Shutdown stops the sweep loop and kills every live session, guaranteeing no
// transaction is left open when the server process stops.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()

	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		remaining = append(remaining, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range remaining {
		s.Kill()
	}
	if len(remaining) > 0 {
		logger.Logger.Info().Int("count", len(remaining)).Msg("killed live sessions on shutdown")
	}
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if n := r.Sweep(time.Now()); n > 0 {
				logger.Logger.Debug().Int("evicted", n).Int("live", r.Len()).Msg("sweep finished")
			}
		}
	}
}
