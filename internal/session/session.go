// Package session keeps the pending extraction of each chat user until they choose what to
// generate from it.
package session

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/IamSmokeY/SnapBooks/internal/document"
)

// DefaultTTL is how long a pending extraction is kept
const DefaultTTL = time.Hour

// Photo is an uploaded bill that was extracted but not yet turned into a document
type Photo struct {
	Image       []byte
	ContentType string
	Extraction  *document.Extraction
	CreatedAt   time.Time
}

// Store is a keyed store with per-entry expiry
type Store struct {
	items *cache.Cache
	ttl   time.Duration
}

// NewStore creates a store whose entries expire after ttl
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{items: cache.New(ttl, ttl/2), ttl: ttl}
}

// Put replaces the pending entry for key
func (s *Store) Put(key string, p *Photo) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.items.Set(key, p, cache.DefaultExpiration)
}

// Get returns the live entry for key
func (s *Store) Get(key string) (*Photo, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Photo)
	return p, ok
}

// Take returns and removes the entry for key
func (s *Store) Take(key string) (*Photo, bool) {
	p, ok := s.Get(key)
	if ok {
		s.items.Delete(key)
	}
	return p, ok
}

// Delete removes the entry for key
func (s *Store) Delete(key string) {
	s.items.Delete(key)
}

// Len counts entries, including expired ones not yet evicted
func (s *Store) Len() int {
	return s.items.ItemCount()
}
