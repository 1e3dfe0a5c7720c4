package journal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentirlabs/sentir/internal/symptoms"
)

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// MemStore is the default in-memory Store. State lives for the lifetime of
// the process.
type MemStore struct {
	mu       sync.RWMutex
	entries  []Entry
	settings *Settings
}

// NewMemStore creates an empty in-memory journal.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Append implements Store.
func (s *MemStore) Append(_ context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return e, nil
}

// Recent implements Store.
func (s *MemStore) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.entries) > n {
		start = len(s.entries) - n
	}
	return append([]Entry(nil), s.entries[start:]...), nil
}

// Related implements Store with word-overlap scoring on accent-folded text.
// The PostgreSQL store replaces this with embedding search; here the naive
// version keeps the endpoint usable without a database.
func (s *MemStore) Related(_ context.Context, query string, limit int) ([]Entry, error) {
	words := strings.Fields(symptoms.Fold(query))
	if len(words) == 0 || limit <= 0 {
		return nil, nil
	}
	want := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) >= 4 {
			want[w] = struct{}{}
		}
	}

	type scored struct {
		entry Entry
		score int
	}
	var hits []scored

	s.mu.RLock()
	for _, e := range s.entries {
		score := 0
		for _, w := range strings.Fields(symptoms.Fold(e.Text + " " + strings.Join(e.Symptoms, " "))) {
			if _, ok := want[w]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{entry: e, score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out, nil
}

// Clear implements Store.
func (s *MemStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return nil
}

// LoadSettings implements Store.
func (s *MemStore) LoadSettings(_ context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return DefaultSettings(), nil
	}
	return *s.settings, nil
}

// SaveSettings implements Store.
func (s *MemStore) SaveSettings(_ context.Context, set Settings) error {
	s.mu.Lock()
	s.settings = &set
	s.mu.Unlock()
	return nil
}
