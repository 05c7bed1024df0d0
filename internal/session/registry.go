// Package session tracks counterparty sessions and routes execution reports
// back to the session that placed each order.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jag2430/fix-executor/internal/types"
)

// ClientSink delivers reports to one connected counterparty.
type ClientSink interface {
	OnReport(report types.ExecutionReport) error
	OnCancelReject(reject types.CancelReject) error
}

// Info describes a counterparty session.
type Info struct {
	Key          string    `json:"session_key"`
	SenderCompID string    `json:"sender_comp_id"`
	TargetCompID string    `json:"target_comp_id"`
	LoggedOn     bool      `json:"logged_on"`
	ConnectedAt  time.Time `json:"connected_at"`
}

type entry struct {
	info Info
	sink ClientSink
}

// Registry is the set of live sessions. It implements the engine's report
// sink: reports are routed by session key, falling back to any logged-on
// session when the original one is gone.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	log      zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// Register adds a session, assigning a key when none is given, and marks it
// logged on.
func (r *Registry) Register(info Info, sink ClientSink) string {
	if info.Key == "" {
		info.Key = uuid.New().String()
	}
	info.LoggedOn = true
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}

	r.mu.Lock()
	r.sessions[info.Key] = &entry{info: info, sink: sink}
	r.mu.Unlock()

	r.log.Info().Str("session_key", info.Key).Str("sender_comp_id", info.SenderCompID).Msg("session registered")
	return info.Key
}

// Unregister removes a session.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
	r.log.Info().Str("session_key", key).Msg("session unregistered")
}

// SetLoggedOn flips a session's logon state without dropping it.
func (r *Registry) SetLoggedOn(key string, on bool) {
	r.mu.Lock()
	if s, ok := r.sessions[key]; ok {
		s.info.LoggedOn = on
	}
	r.mu.Unlock()
}

// List returns all known sessions.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		res = append(res, s.info)
	}
	return res
}

// ActiveCount returns the number of logged-on sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.info.LoggedOn {
			n++
		}
	}
	return n
}

// SendReport routes an execution report to its session.
func (r *Registry) SendReport(sessionKey string, report types.ExecutionReport) error {
	sink, err := r.resolve(sessionKey)
	if err != nil {
		return err
	}
	return sink.OnReport(report)
}

// SendCancelReject routes a cancel reject to its session.
func (r *Registry) SendCancelReject(sessionKey string, reject types.CancelReject) error {
	sink, err := r.resolve(sessionKey)
	if err != nil {
		return err
	}
	return sink.OnCancelReject(reject)
}

func (r *Registry) resolve(sessionKey string) (ClientSink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[sessionKey]; ok && s.info.LoggedOn {
		return s.sink, nil
	}
	// The originating session is gone; deliver to any logged-on session so
	// the report is not lost.
	for _, s := range r.sessions {
		if s.info.LoggedOn {
			return s.sink, nil
		}
	}
	return nil, types.ErrNoSession
}
