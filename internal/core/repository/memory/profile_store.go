// Package memory provides an in-process document store used when no database
// is configured and in tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/duynhne/campus-portal/internal/core/domain"
)

// ProfileStore keeps profile documents in a map. Writes merge top-level keys.
type ProfileStore struct {
	mu   sync.RWMutex
	docs map[string]document
	now  func() time.Time
}

type document struct {
	data      map[string]any
	updatedAt time.Time
}

// NewProfileStore creates an empty store. A nil clock defaults to time.Now.
func NewProfileStore(now func() time.Time) *ProfileStore {
	if now == nil {
		now = time.Now
	}
	return &ProfileStore{docs: make(map[string]document), now: now}
}

// Get returns a copy of the record for uid, or nil when absent.
func (s *ProfileStore) Get(_ context.Context, uid string) (*domain.Profile, error) {
	s.mu.RLock()
	doc, ok := s.docs[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	raw, err := json.Marshal(doc.data)
	if err != nil {
		return nil, fmt.Errorf("encode profile %q: %w", uid, err)
	}
	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %q: %w", uid, err)
	}
	profile.UID = uid
	profile.UpdatedAt = doc.updatedAt
	return &profile, nil
}

// Merge writes fields into the record for uid, keeping keys it does not mention.
func (s *ProfileStore) Merge(_ context.Context, uid string, fields domain.ProfileFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uid]
	if !ok {
		doc = document{data: make(map[string]any, len(fields))}
	}
	maps.Copy(doc.data, fields)
	doc.updatedAt = s.now()
	s.docs[uid] = doc
	return nil
}

// Raw returns a copy of the stored document, including keys unknown to domain.Profile.
func (s *ProfileStore) Raw(uid string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uid]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc.data), true
}
