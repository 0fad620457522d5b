package scoring

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/extraction"
	"github.com/aurum-app/facerank/internal/population"
	"github.com/aurum-app/facerank/internal/vibes"
)

type stubExtractor struct {
	result *extraction.Result
	err    error
	health extraction.HealthState
}

func (s *stubExtractor) Extract(context.Context, string, []byte) (*extraction.Result, error) {
	return s.result, s.err
}

func (s *stubExtractor) Health() extraction.HealthState {
	return s.health
}

func testEmbedding(seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	v := make([]float32, population.EmbeddingDim)
	var sum float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func goodResult(seed int64) *extraction.Result {
	return &extraction.Result{
		Embedding: testEmbedding(seed),
		Metrics:   goodMetrics(),
	}
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := range 32 {
		for y := range 32 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func testConfig() *config.Config {
	return &config.Config{
		Scoring: config.ScoringConfig{
			WindowDays:    30,
			MaxImageBytes: 2 * 1024 * 1024,
		},
		Thresholds: testThresholds,
	}
}

func newTestService(extractor Extractor) (*Service, *population.MemoryStore) {
	store := population.NewMemoryStore()
	svc := NewService(store, extractor, vibes.NewStaticTagger(), testConfig())
	return svc, store
}

func scoringCode(t *testing.T, err error) string {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *scoring.Error, got %v", err)
	}
	return se.Code
}

func TestScore_FirstTimeUser(t *testing.T) {
	svc, store := newTestService(&stubExtractor{result: goodResult(1)})

	res, err := svc.Score(context.Background(), ScoreRequest{UserID: "user-1", Image: testImage(t)})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if res.Score < 0 || res.Score > 100 {
		t.Errorf("score %f out of range", res.Score)
	}
	if res.Percentile <= 0 || res.Percentile > 1 {
		t.Errorf("percentile %f out of (0,1]", res.Percentile)
	}
	if res.SubmissionID == "" {
		t.Error("missing submission ID")
	}
	if res.Rank != 1 || res.TotalPopulation != 1 {
		t.Errorf("expected rank 1 of 1, got %d of %d", res.Rank, res.TotalPopulation)
	}
	if len(res.VibeTags) != vibes.TagCount {
		t.Errorf("expected %d vibe tags, got %d", vibes.TagCount, len(res.VibeTags))
	}
	if res.Degraded {
		t.Error("result must not be degraded")
	}
	if res.Confidence != goodMetrics().Confidence {
		t.Errorf("confidence %f does not match metrics", res.Confidence)
	}
	if res.ProcessingTimeMS < 0 {
		t.Errorf("negative processing time %d", res.ProcessingTimeMS)
	}

	count, _ := store.Count(context.Background())
	if count != 1 {
		t.Errorf("expected population 1, got %d", count)
	}
}

func TestScore_QualityFloorRejection(t *testing.T) {
	result := goodResult(1)
	result.Metrics.Frontality = 0.05
	svc, store := newTestService(&stubExtractor{result: result})

	_, err := svc.Score(context.Background(), ScoreRequest{UserID: "user-1", Image: testImage(t)})
	if code := scoringCode(t, err); code != CodeQualityTooLow {
		t.Fatalf("expected %s, got %s", CodeQualityTooLow, code)
	}
	if !strings.Contains(err.Error(), "frontal") {
		t.Errorf("rejection must mention frontality, got %q", err.Error())
	}

	// Rejections leave no trace in the population.
	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("expected empty population after rejection, got %d", count)
	}
}

func TestScore_InputValidation(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{result: goodResult(1)})

	tests := []struct {
		name string
		req  ScoreRequest
	}{
		{"missing user id", ScoreRequest{UserID: "  ", Image: testImage(t)}},
		{"empty image", ScoreRequest{UserID: "user-1"}},
		{"undecodable image", ScoreRequest{UserID: "user-1", Image: []byte("not an image")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Score(context.Background(), tc.req)
			if code := scoringCode(t, err); code != CodeValidationError {
				t.Errorf("expected %s, got %s", CodeValidationError, code)
			}
		})
	}
}

func TestScore_DuplicateWithinWindow(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{result: goodResult(1)})
	req := ScoreRequest{UserID: "user-1", Image: testImage(t)}

	if _, err := svc.Score(context.Background(), req); err != nil {
		t.Fatalf("first Score failed: %v", err)
	}

	_, err := svc.Score(context.Background(), req)
	if code := scoringCode(t, err); code != CodeDuplicateScore {
		t.Fatalf("expected %s, got %s", CodeDuplicateScore, code)
	}
	if !strings.Contains(err.Error(), "existing valid score") {
		t.Errorf("expected reason mentioning existing valid score, got %q", err.Error())
	}
}

func TestScore_ResubmissionAfterWindowReplaces(t *testing.T) {
	extractor := &stubExtractor{result: goodResult(1)}
	store := population.NewMemoryStore()
	svc := NewService(store, extractor, vibes.NewStaticTagger(), testConfig())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.now = func() time.Time { return now }
	store.SetClock(func() time.Time { return now })

	req := ScoreRequest{UserID: "user-1", Image: testImage(t)}
	if _, err := svc.Score(context.Background(), req); err != nil {
		t.Fatalf("first Score failed: %v", err)
	}

	// Day 29: still inside the window.
	now = base.Add(29 * 24 * time.Hour)
	if _, err := svc.Score(context.Background(), req); scoringCode(t, err) != CodeDuplicateScore {
		t.Fatal("expected duplicate rejection at day 29")
	}

	// Day 31: accepted, record replaced, not duplicated.
	now = base.Add(31 * 24 * time.Hour)
	extractor.result = goodResult(2)
	res, err := svc.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("resubmission at day 31 failed: %v", err)
	}
	if res.TotalPopulation != 1 {
		t.Errorf("expected population 1 after replacement, got %d", res.TotalPopulation)
	}

	record, _ := store.Get(context.Background(), "user-1")
	if !record.SubmittedAt.Equal(now) {
		t.Errorf("expected submission time updated to %v, got %v", now, record.SubmittedAt)
	}
}

func TestScore_NoFaceDetected(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{err: extraction.ErrNoFaceDetected})

	_, err := svc.Score(context.Background(), ScoreRequest{UserID: "user-1", Image: testImage(t)})
	if code := scoringCode(t, err); code != CodeNoFaceDetected {
		t.Errorf("expected %s, got %s", CodeNoFaceDetected, code)
	}
}

func TestScore_ExtractionHardFailure(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{err: errors.New("backend exploded")})

	_, err := svc.Score(context.Background(), ScoreRequest{UserID: "user-1", Image: testImage(t)})
	if code := scoringCode(t, err); code != CodeProcessingError {
		t.Errorf("expected %s, got %s", CodeProcessingError, code)
	}
	// Internal detail must not leak through the boundary.
	if strings.Contains(err.Error(), "exploded") {
		t.Errorf("internal error detail leaked: %q", err.Error())
	}
}

func TestScore_DegradedResultPassesThrough(t *testing.T) {
	result := goodResult(1)
	result.Degraded = true
	svc, _ := newTestService(&stubExtractor{result: result})

	res, err := svc.Score(context.Background(), ScoreRequest{UserID: "user-1", Image: testImage(t)})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if !res.Degraded {
		t.Error("degraded flag must survive to the result")
	}
}

func TestScore_VerificationPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.RequireVerification = true
	store := population.NewMemoryStore()
	svc := NewService(store, &stubExtractor{result: goodResult(1)}, vibes.NewStaticTagger(), cfg)

	req := ScoreRequest{UserID: "user-1", Image: testImage(t)}
	_, err := svc.Score(context.Background(), req)
	if code := scoringCode(t, err); code != CodeValidationError {
		t.Fatalf("expected %s for unverified user, got %s", CodeValidationError, code)
	}

	req.NFTVerified = true
	req.IdentityVerified = true
	if _, err := svc.Score(context.Background(), req); err != nil {
		t.Fatalf("verified submission failed: %v", err)
	}
}

func TestStanding(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{result: goodResult(1)})

	standing, err := svc.Standing(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Standing failed: %v", err)
	}
	if standing != nil {
		t.Fatal("expected nil standing for unknown user")
	}

	res, err := svc.Score(context.Background(), ScoreRequest{UserID: "user-1", Image: testImage(t)})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	standing, err = svc.Standing(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Standing failed: %v", err)
	}
	if standing == nil {
		t.Fatal("expected standing for scored user")
	}
	if standing.Score != res.Score || standing.Rank != res.Rank {
		t.Errorf("standing (score %f, rank %d) does not match score result (score %f, rank %d)",
			standing.Score, standing.Rank, res.Score, res.Rank)
	}
}

func TestLeaderboardAndSimilar(t *testing.T) {
	extractor := &stubExtractor{}
	svc, _ := newTestService(extractor)

	for i, userID := range []string{"user-1", "user-2", "user-3"} {
		extractor.result = goodResult(int64(i + 1))
		if _, err := svc.Score(context.Background(), ScoreRequest{UserID: userID, Image: testImage(t)}); err != nil {
			t.Fatalf("Score for %s failed: %v", userID, err)
		}
	}

	entries, err := svc.Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && entries[i-1].Score < e.Score {
			t.Error("leaderboard not ordered by score descending")
		}
	}

	matches, err := svc.Similar(context.Background(), "user-1", 5)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one similar user")
	}
	for _, m := range matches {
		if m.UserID == "user-1" {
			t.Error("similarity results must exclude the user themselves")
		}
	}

	matches, err = svc.Similar(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Similar for unknown user failed: %v", err)
	}
	if matches != nil {
		t.Error("expected nil matches for unknown user")
	}
}

func TestHealth(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{result: goodResult(1), health: extraction.Degraded})

	status := svc.Health(context.Background())
	if status.Status != "ok" {
		t.Errorf("expected ok status, got %q", status.Status)
	}
	if status.BackendHealth != "degraded" {
		t.Errorf("expected degraded backend health, got %q", status.BackendHealth)
	}
	if status.PopulationSize != 0 {
		t.Errorf("expected empty population, got %d", status.PopulationSize)
	}
}

func TestUserLocksReclaimed(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{result: goodResult(1)})
	img := testImage(t)

	for _, userID := range []string{"alice", "bob", "carol"} {
		if _, err := svc.Score(context.Background(), ScoreRequest{UserID: userID, Image: img}); err != nil {
			t.Fatalf("Score failed for %s: %v", userID, err)
		}
	}

	// A burst of concurrent submissions for one user: the extras are
	// rejected as duplicates, but every holder must release its lock entry.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Score(context.Background(), ScoreRequest{UserID: "dave", Image: img})
		}()
	}
	wg.Wait()

	svc.mu.Lock()
	remaining := len(svc.userLocks)
	svc.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected all per-user locks reclaimed, %d remain", remaining)
	}
}
