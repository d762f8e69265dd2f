package authclient

import "sync"

// MemoryTokenStore keeps the credential pair in process memory. Tokens do
// not survive a restart; deployments with platform storage supply their own
// TokenStore.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// AccessToken returns the access token, if any.
func (s *MemoryTokenStore) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.access != ""
}

// RefreshToken returns the refresh token, if any.
func (s *MemoryTokenStore) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh, s.refresh != ""
}

// SetTokens replaces the credential pair.
func (s *MemoryTokenStore) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	return nil
}

// Clear drops both tokens.
func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}

// MemorySessionStore is the default SessionStore. A fresh instance models a
// fresh page/session scope, which is exactly what the one-try refresh guard
// keys off.
type MemorySessionStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore returns an empty session-scoped store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: map[string]string{}}
}

// Get returns the stored value for key.
func (s *MemorySessionStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *MemorySessionStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes key.
func (s *MemorySessionStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
