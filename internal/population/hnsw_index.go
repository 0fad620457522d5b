package population

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswRebuildMinStale is the stale-node count below which the graph is
	// never rebuilt, so small populations don't churn.
	hnswRebuildMinStale = 64
)

// SimilarityIndex wraps an HNSW graph over user embeddings. Nodes are keyed
// by an internal int64 ID because the graph does not support true deletion:
// a replaced embedding gets a fresh ID and the stale node is filtered out at
// query time by the ID-to-user mapping. Once stale nodes outnumber live
// entries the graph is rebuilt from the live set, so repeated resubmissions
// cannot crowd live neighbors out of search results.
type SimilarityIndex struct {
	graph      *hnsw.Graph[int64]
	graphNodes int
	userByID   map[int64]string
	vectors    map[int64][]float32
	mu         sync.RWMutex
}

// NewSimilarityIndex creates a new empty index.
func NewSimilarityIndex() *SimilarityIndex {
	return &SimilarityIndex{
		userByID: make(map[int64]string),
		vectors:  make(map[int64][]float32),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Add inserts an embedding under a fresh internal ID.
func (s *SimilarityIndex) Add(id int64, userID string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(embedding) == 0 {
		return
	}

	if s.graph == nil {
		s.graph = newGraph()
	}

	s.graph.Add(hnsw.MakeNode(id, embedding))
	s.graphNodes++
	s.userByID[id] = userID
	s.vectors[id] = embedding
}

// Forget drops the ID-to-user mapping for a stale node. The node stays in
// the graph but no longer appears in search results; an accumulation of
// stale nodes eventually triggers a rebuild.
func (s *SimilarityIndex) Forget(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userByID, id)
	delete(s.vectors, id)
	s.maybeRebuild()
}

// maybeRebuild reconstructs the graph from the live set once stale nodes
// outnumber live ones. Caller must hold the write lock.
func (s *SimilarityIndex) maybeRebuild() {
	stale := s.graphNodes - len(s.userByID)
	if stale < hnswRebuildMinStale || stale < len(s.userByID) {
		return
	}

	g := newGraph()
	for id, vec := range s.vectors {
		g.Add(hnsw.MakeNode(id, vec))
	}
	s.graph = g
	s.graphNodes = len(s.vectors)
}

// Search returns up to limit live neighbors of the query vector, excluding
// excludeUserID, ordered by similarity descending.
func (s *SimilarityIndex) Search(query []float32, limit int, excludeUserID string) ([]SimilarMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil {
		return nil, errors.New("index not initialized")
	}

	// Over-fetch to compensate for stale nodes and the excluded user.
	k := limit*2 + 8

	neighbors := s.graph.Search(query, k)

	matches := make([]SimilarMatch, 0, limit)
	for _, n := range neighbors {
		userID, ok := s.userByID[n.Key]
		if !ok || userID == excludeUserID {
			continue
		}
		matches = append(matches, SimilarMatch{
			UserID:     userID,
			Similarity: CosineSimilarity(query, n.Value),
		})
		if len(matches) == limit {
			break
		}
	}

	return matches, nil
}

// Count returns the number of live entries.
func (s *SimilarityIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.userByID)
}
