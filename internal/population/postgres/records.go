package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/aurum-app/facerank/internal/population"
)

// addLockKey is the advisory lock serializing "mutate membership, recompute
// distribution" across all writers, including other processes.
const addLockKey = int64(0x6661636572616e6b) // "facerank"

// Repository is the PostgreSQL-backed population store. Similarity queries
// go through an optional in-memory HNSW index; without it they fall back to
// pgvector's cosine distance operator.
type Repository struct {
	pool *Pool
	now  func() time.Time

	hnswMu      sync.RWMutex
	hnswEnabled bool
	index       *population.SimilarityIndex
	idByUser    map[string]int64
	nextID      int64
}

var _ population.Store = (*Repository)(nil)

// NewRepository creates a repository on top of an initialized pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{
		pool:     pool,
		now:      time.Now,
		idByUser: make(map[string]int64),
	}
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.pool.Close()
}

// SetClock overrides the repository's notion of time. Used by tests.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// EnableHNSW builds the in-memory similarity index from the stored records.
// Without it, Similar falls back to pgvector queries.
func (r *Repository) EnableHNSW(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, "SELECT user_id, embedding FROM user_records")
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	index := population.NewSimilarityIndex()
	idByUser := make(map[string]int64)
	var nextID int64

	for rows.Next() {
		var userID string
		var vec pgvector.Vector
		if err := rows.Scan(&userID, &vec); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		nextID++
		index.Add(nextID, userID, vec.Slice())
		idByUser[userID] = nextID
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate embeddings: %w", err)
	}

	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.index = index
	r.idByUser = idByUser
	r.nextID = nextID
	r.hnswEnabled = true
	return nil
}

// Add upserts the user's record and recomputes every member's score and the
// cached distribution inside one transaction, serialized by an advisory
// lock. The context is consulted before the transaction starts, not once
// the mutation is underway.
func (r *Repository) Add(ctx context.Context, userID string, embedding []float32, metrics population.QualityMetrics, vibeTags []string) (*population.UserRecord, error) {
	if len(embedding) != population.EmbeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", population.ErrDimensionMismatch, len(embedding), population.EmbeddingDim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	submittedAt := r.now().UTC()
	if vibeTags == nil {
		vibeTags = []string{}
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", addLockKey); err != nil {
		return nil, fmt.Errorf("acquire population lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_records
			(user_id, embedding, quality, frontality, symmetry, resolution, confidence, vibe_tags, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			embedding    = EXCLUDED.embedding,
			quality      = EXCLUDED.quality,
			frontality   = EXCLUDED.frontality,
			symmetry     = EXCLUDED.symmetry,
			resolution   = EXCLUDED.resolution,
			confidence   = EXCLUDED.confidence,
			vibe_tags    = EXCLUDED.vibe_tags,
			submitted_at = EXCLUDED.submitted_at
	`, userID, pgvector.NewVector(embedding),
		metrics.Quality, metrics.Frontality, metrics.Symmetry, metrics.Resolution, metrics.Confidence,
		pq.Array(vibeTags), submittedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user record: %w", err)
	}

	// Full O(n) rescore of the population in Go, then one batched update.
	all, err := loadAllForRescore(ctx, tx)
	if err != nil {
		return nil, err
	}
	_, dist := population.Rescore(all)

	userIDs := make([]string, len(all))
	scores := make([]float64, len(all))
	percentiles := make([]float64, len(all))
	for i, rec := range all {
		userIDs[i] = rec.UserID
		scores[i] = rec.Score
		percentiles[i] = rec.Percentile
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE user_records AS u SET
			score      = v.score,
			percentile = v.percentile
		FROM (
			SELECT unnest($1::text[]) AS user_id,
			       unnest($2::float8[]) AS score,
			       unnest($3::float8[]) AS percentile
		) AS v
		WHERE u.user_id = v.user_id
	`, pq.Array(userIDs), pq.Array(scores), pq.Array(percentiles))
	if err != nil {
		return nil, fmt.Errorf("update scores: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO score_distribution
			(id, mean, std_dev, p10, p25, p50, p75, p90, p95, p99, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			mean = EXCLUDED.mean, std_dev = EXCLUDED.std_dev,
			p10 = EXCLUDED.p10, p25 = EXCLUDED.p25, p50 = EXCLUDED.p50,
			p75 = EXCLUDED.p75, p90 = EXCLUDED.p90, p95 = EXCLUDED.p95,
			p99 = EXCLUDED.p99, updated_at = NOW()
	`, dist.Mean, dist.StdDev, dist.P10, dist.P25, dist.P50, dist.P75, dist.P90, dist.P95, dist.P99)
	if err != nil {
		return nil, fmt.Errorf("update distribution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit population update: %w", err)
	}

	r.indexAdd(userID, embedding)

	for _, rec := range all {
		if rec.UserID == userID {
			rec.Metrics = metrics
			rec.VibeTags = vibeTags
			rec.SubmittedAt = submittedAt
			return rec, nil
		}
	}
	return nil, errors.New("record missing after upsert")
}

// loadAllForRescore reads every record's identity and embedding inside the
// write transaction.
func loadAllForRescore(ctx context.Context, tx *sql.Tx) ([]*population.UserRecord, error) {
	rows, err := tx.QueryContext(ctx, "SELECT user_id, embedding, submitted_at FROM user_records")
	if err != nil {
		return nil, fmt.Errorf("load population: %w", err)
	}
	defer rows.Close()

	var all []*population.UserRecord
	for rows.Next() {
		var rec population.UserRecord
		var vec pgvector.Vector
		if err := rows.Scan(&rec.UserID, &vec, &rec.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Embedding = vec.Slice()
		all = append(all, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate population: %w", err)
	}
	return all, nil
}

func (r *Repository) indexAdd(userID string, embedding []float32) {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	if !r.hnswEnabled {
		return
	}
	if oldID, ok := r.idByUser[userID]; ok {
		r.index.Forget(oldID)
	}
	r.nextID++
	r.idByUser[userID] = r.nextID
	r.index.Add(r.nextID, userID, embedding)
}

const recordColumns = `
	user_id, embedding, quality, frontality, symmetry, resolution, confidence,
	score, percentile, vibe_tags, submitted_at
`

func scanRecord(row interface{ Scan(...any) error }) (*population.UserRecord, error) {
	var rec population.UserRecord
	var vec pgvector.Vector
	err := row.Scan(
		&rec.UserID, &vec,
		&rec.Metrics.Quality, &rec.Metrics.Frontality, &rec.Metrics.Symmetry,
		&rec.Metrics.Resolution, &rec.Metrics.Confidence,
		&rec.Score, &rec.Percentile,
		pq.Array(&rec.VibeTags), &rec.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Embedding = vec.Slice()
	return &rec, nil
}

// Get returns the user's record, or nil if absent.
func (r *Repository) Get(ctx context.Context, userID string) (*population.UserRecord, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+recordColumns+" FROM user_records WHERE user_id = $1", userID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user record: %w", err)
	}
	return rec, nil
}

// GetStanding returns the record with its leaderboard rank.
func (r *Repository) GetStanding(ctx context.Context, userID string) (*population.Standing, error) {
	rec, err := r.Get(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}

	var rank, count int
	err = r.pool.QueryRow(ctx, `
		SELECT
			1 + COUNT(*) FILTER (WHERE
				o.score > $2
				OR (o.score = $2 AND o.submitted_at < $3)
				OR (o.score = $2 AND o.submitted_at = $3 AND o.user_id < $1)),
			COUNT(*) + 1
		FROM user_records o
		WHERE o.user_id <> $1
	`, userID, rec.Score, rec.SubmittedAt).Scan(&rank, &count)
	if err != nil {
		return nil, fmt.Errorf("query rank: %w", err)
	}

	return &population.Standing{
		Record:     *rec,
		Rank:       rank,
		Population: count,
	}, nil
}

// Distribution returns the persisted derived statistics.
func (r *Repository) Distribution(ctx context.Context) (population.ScoreDistribution, error) {
	var d population.ScoreDistribution
	err := r.pool.QueryRow(ctx, `
		SELECT mean, std_dev, p10, p25, p50, p75, p90, p95, p99
		FROM score_distribution WHERE id = TRUE
	`).Scan(&d.Mean, &d.StdDev, &d.P10, &d.P25, &d.P50, &d.P75, &d.P90, &d.P95, &d.P99)
	if errors.Is(err, sql.ErrNoRows) {
		return population.ScoreDistribution{}, nil
	}
	if err != nil {
		return population.ScoreDistribution{}, fmt.Errorf("query distribution: %w", err)
	}
	return d, nil
}

// Leaderboard returns up to limit records in leaderboard order.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]population.UserRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM user_records
		ORDER BY score DESC, submitted_at ASC, user_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []population.UserRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return out, nil
}

// Similar returns the nearest stored users by cosine similarity.
func (r *Repository) Similar(ctx context.Context, vector []float32, limit int, excludeUserID string) ([]population.SimilarMatch, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.hnswMu.RLock()
	useIndex := r.hnswEnabled
	index := r.index
	r.hnswMu.RUnlock()

	if useIndex {
		matches, err := index.Search(vector, limit, excludeUserID)
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
		return matches, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, 1 - (embedding <=> $1) AS similarity
		FROM user_records
		WHERE user_id <> $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vector), excludeUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	defer rows.Close()

	var matches []population.SimilarMatch
	for rows.Next() {
		var m population.SimilarMatch
		if err := rows.Scan(&m.UserID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar rows: %w", err)
	}
	return matches, nil
}

// Count returns the population size.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count user records: %w", err)
	}
	return count, nil
}
