package csrf

import (
	"container/list"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
)

const (
	sessionIDBytes = 24
	tokenBytes     = 32

	// DefaultMaxSessions bounds the registry when no limit is configured.
	DefaultMaxSessions = 5000
)

// Session pairs a cookie session id with its anti-forgery token.
type Session struct {
	SessionID string
	CSRFToken string
}

type entry struct {
	sessionID string
	token     string
}

// Registry maps session ids to CSRF tokens in memory. Capacity is bounded and
// the oldest inserted session is evicted first; reads do not refresh position.
// State does not survive a restart.
type Registry struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
	random  func([]byte) (int, error)
}

// NewRegistry creates a registry holding at most maxSessions sessions.
func NewRegistry(maxSessions int) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Registry{
		max:     maxSessions,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		random:  rand.Read,
	}
}

// IsValidSessionID reports whether id has the shape of a minted session id.
func IsValidSessionID(id string) bool {
	if len(id) != sessionIDBytes*2 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func (r *Registry) randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := r.random(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GetOrCreate returns the token for cookieSessionID, creating it on first
// access. When the cookie value is absent or malformed a new session id is
// minted and created is true; the caller must then set the cookie.
func (r *Registry) GetOrCreate(cookieSessionID string) (sess Session, created bool, err error) {
	sessionID := cookieSessionID
	if !IsValidSessionID(sessionID) {
		sessionID, err = r.randomHex(sessionIDBytes)
		if err != nil {
			return Session{}, false, err
		}
		created = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[sessionID]; ok {
		return Session{SessionID: sessionID, CSRFToken: el.Value.(*entry).token}, created, nil
	}

	token, err := r.randomHex(tokenBytes)
	if err != nil {
		return Session{}, false, err
	}

	for r.order.Len() >= r.max {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.entries, oldest.Value.(*entry).sessionID)
	}
	r.entries[sessionID] = r.order.PushBack(&entry{sessionID: sessionID, token: token})

	return Session{SessionID: sessionID, CSRFToken: token}, created, nil
}

// Validate reports whether token is the one on file for sessionID. Missing
// values and unknown sessions are rejections.
func (r *Registry) Validate(sessionID, token string) bool {
	if sessionID == "" || token == "" {
		return false
	}

	r.mu.Lock()
	el, ok := r.entries[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	expected := el.Value.(*entry).token
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
