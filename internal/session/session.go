package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultProfile is the profile used when none is configured
const DefaultProfile = "default"

// ErrStoreClosed is returned by a store after Close
var ErrStoreClosed = errors.New("session store closed")

// Cookie is a browser cookie in backend neutral form
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"` // zero for session cookies
	HTTPOnly bool      `json:"httpOnly"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"sameSite,omitempty"`
}

// Expired reports whether the cookie has a past expiry
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

type cookieKey struct {
	name, domain, path string
}

func (c Cookie) key() cookieKey {
	return cookieKey{c.Name, c.Domain, c.Path}
}

// Store persists cookies across runs, keyed by profile
type Store interface {
	// Load returns the unexpired cookies of profile
	Load(ctx context.Context, profile string) ([]Cookie, error)
	// Save upserts cookies into profile
	Save(ctx context.Context, profile string, cookies []Cookie) error
	Close() error
}

// MemoryStore keeps cookies for the life of the process
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]map[cookieKey]Cookie
	closed   bool
	now      func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]map[cookieKey]Cookie),
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, profile string) ([]Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	now := s.now()
	var out []Cookie
	for k, c := range s.profiles[profile] {
		if c.Expired(now) {
			delete(s.profiles[profile], k)
			continue
		}
		out = append(out, c)
	}
	sortCookies(out)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, profile string, cookies []Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	jar := s.profiles[profile]
	if jar == nil {
		jar = make(map[cookieKey]Cookie)
		s.profiles[profile] = jar
	}
	for _, c := range cookies {
		jar[c.key()] = c
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortCookies(cookies []Cookie) {
	sort.Slice(cookies, func(i, j int) bool {
		a, b := cookies[i], cookies[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})
}
