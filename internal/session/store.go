// Package session keeps analysed forms between MCP calls.
//
// A session holds everything needed to fill a form again without repeating
// orientation, detection and labeling: the corrected page, its canonical
// fields, the reading direction and the values entered so far. Sessions
// expire after a period without access; expired entries are dropped on
// access and by SweepExpired.
package session

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
	"github.com/ironsheep/form-annotator-mcp/internal/render"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = time.Hour

// ErrNotFound is returned for unknown and expired sessions.
var ErrNotFound = errors.New("session not found")

// Document is the state of one form-filling session.
type Document struct {
	SourcePath  string
	Image       image.Image // upright, resized page
	Angle       int
	Direction   layout.Direction
	Ordered     []layout.OrderedField // every detected field, numbered as on Overlay
	Overlay     []byte
	Fields      []fusion.Field
	Explanation string
	Values      render.Values
	Signature   *render.Signature
}

// Field returns the field with the given box id.
func (d *Document) Field(boxID string) (fusion.Field, bool) {
	for _, f := range d.Fields {
		if f.BoxID == boxID {
			return f, true
		}
	}
	return fusion.Field{}, false
}

type entry struct {
	doc        *Document
	lastAccess time.Time
}

// Store is a TTL-bounded, goroutine-safe session registry.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry

	now func() time.Time
}

// NewStore returns an empty store. A non-positive ttl selects DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// New stores doc under a fresh random id and returns the id.
func (s *Store) New(doc *Document) string {
	id := uuid.NewString()
	s.Put(id, doc)
	return id
}

// Put stores doc under id, replacing any existing session.
func (s *Store) Put(id string, doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry{doc: doc, lastAccess: s.now()}
}

// Get returns the session and refreshes its expiry.
func (s *Store) Get(id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return e.doc, nil
}

// Update runs fn on the session while holding the store lock, so concurrent
// updates to one session are serialised. fn's error is returned unchanged.
func (s *Store) Update(id string, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id)
	if err != nil {
		return err
	}
	return fn(e.doc)
}

// Delete removes a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// SweepExpired drops every expired session and returns how many it dropped.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if now.Sub(e.lastAccess) > s.ttl {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len reports the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// live returns the entry for id, expiring it if stale. Callers hold s.mu.
func (s *Store) live(id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if now.Sub(e.lastAccess) > s.ttl {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	e.lastAccess = now
	return e, nil
}
