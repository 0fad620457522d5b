package population

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. A single writer lock serializes
// membership changes with distribution recomputation; reads take the lock
// shared so they never observe a half-updated distribution.
type MemoryStore struct {
	mu           sync.RWMutex
	records      map[string]*UserRecord
	index        *SimilarityIndex
	idByUser     map[string]int64
	nextID       int64
	distribution ScoreDistribution
	centroid     []float32
	now          func() time.Time
}

// NewMemoryStore creates an empty in-memory population store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*UserRecord),
		index:    NewSimilarityIndex(),
		idByUser: make(map[string]int64),
		now:      time.Now,
	}
}

// SetClock overrides the store's notion of time. Used by tests to age records.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Add inserts or replaces the user's record and recomputes the distribution.
// The returned record reflects the post-mutation distribution. The mutation
// runs to completion once started; ctx is not consulted inside the critical
// section.
func (s *MemoryStore) Add(ctx context.Context, userID string, embedding []float32, metrics QualityMetrics, vibeTags []string) (*UserRecord, error) {
	if len(embedding) != EmbeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), EmbeddingDim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	emb := make([]float32, len(embedding))
	copy(emb, embedding)

	tags := make([]string, len(vibeTags))
	copy(tags, vibeTags)

	rec := &UserRecord{
		UserID:      userID,
		Embedding:   emb,
		Metrics:     metrics,
		VibeTags:    tags,
		SubmittedAt: s.now(),
	}

	// A replacement invalidates the user's previous index node.
	if oldID, ok := s.idByUser[userID]; ok {
		s.index.Forget(oldID)
	}
	s.records[userID] = rec

	s.nextID++
	s.idByUser[userID] = s.nextID
	s.index.Add(s.nextID, userID, emb)

	s.recompute()

	out := copyRecord(rec)
	return &out, nil
}

// recompute refreshes centroid, every member's score and the cached
// distribution. Caller must hold the write lock.
func (s *MemoryStore) recompute() {
	all := make([]*UserRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	s.centroid, s.distribution = Rescore(all)
}

// Get returns a copy of the user's record, or nil if absent.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	out := copyRecord(rec)
	return &out, nil
}

// GetStanding returns the record with its leaderboard rank.
func (s *MemoryStore) GetStanding(ctx context.Context, userID string) (*Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}

	rank := 1
	for _, other := range s.records {
		if other.UserID == userID {
			continue
		}
		if leaderboardLess(other, rec) {
			rank++
		}
	}

	return &Standing{
		Record:     copyRecord(rec),
		Rank:       rank,
		Population: len(s.records),
	}, nil
}

// Distribution returns the cached derived statistics.
func (s *MemoryStore) Distribution(ctx context.Context) (ScoreDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distribution, nil
}

// leaderboardLess reports whether a sorts before b: score descending, then
// earliest submission, then user ID for a fully deterministic order.
func leaderboardLess(a, b *UserRecord) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.UserID < b.UserID
}

// Leaderboard returns up to limit records in leaderboard order.
func (s *MemoryStore) Leaderboard(ctx context.Context, limit int) ([]UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*UserRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		return leaderboardLess(all[i], all[j])
	})

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	out := make([]UserRecord, limit)
	for i := range limit {
		out[i] = copyRecord(all[i])
	}
	return out, nil
}

// Similar returns the nearest stored users by cosine similarity.
func (s *MemoryStore) Similar(ctx context.Context, vector []float32, limit int, excludeUserID string) ([]SimilarMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 || limit <= 0 {
		return nil, nil
	}

	matches, err := s.index.Search(vector, limit, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return matches, nil
}

// Count returns the population size.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func copyRecord(rec *UserRecord) UserRecord {
	out := *rec
	out.Embedding = make([]float32, len(rec.Embedding))
	copy(out.Embedding, rec.Embedding)
	out.VibeTags = make([]string, len(rec.VibeTags))
	copy(out.VibeTags, rec.VibeTags)
	return out
}
