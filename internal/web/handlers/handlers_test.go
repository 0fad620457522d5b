package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/extraction"
	"github.com/aurum-app/facerank/internal/population"
	"github.com/aurum-app/facerank/internal/scoring"
	"github.com/aurum-app/facerank/internal/vibes"
)

type stubExtractor struct {
	result *extraction.Result
	err    error
}

func (s *stubExtractor) Extract(context.Context, string, []byte) (*extraction.Result, error) {
	return s.result, s.err
}

func (s *stubExtractor) Health() extraction.HealthState {
	return extraction.Healthy
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
		Metrics: population.QualityMetrics{
			Quality:    0.9,
			Frontality: 0.8,
			Symmetry:   0.7,
			Resolution: 0.9,
			Confidence: 0.95,
		},
	}
}

func testRouter(extractor scoring.Extractor) *chi.Mux {
	cfg := &config.Config{
		Scoring: config.ScoringConfig{WindowDays: 30, MaxImageBytes: 2 * 1024 * 1024},
		Thresholds: config.ThresholdsConfig{
			Quality: 0.6, Frontality: 0.5, Symmetry: 0.4, Resolution: 0.4, Confidence: 0.7,
		},
	}
	svc := scoring.NewService(population.NewMemoryStore(), extractor, vibes.NewStaticTagger(), cfg)
	h := NewScoringHandler(svc)

	r := chi.NewRouter()
	r.Post("/api/v1/score", h.Score)
	r.Get("/api/v1/score/{userId}", h.Standing)
	r.Get("/api/v1/leaderboard", h.Leaderboard)
	r.Get("/api/v1/similar/{userId}", h.Similar)
	r.Get("/api/v1/distribution", h.Distribution)
	r.Get("/api/v1/health", h.Health)
	return r
}

func testImageBase64(t *testing.T) string {
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
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postScore(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestScoreEndpoint_Success(t *testing.T) {
	router := testRouter(&stubExtractor{result: goodResult(1)})

	rec := postScore(t, router, map[string]any{
		"userId":      "user-1",
		"imageBase64": testImageBase64(t),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result scoring.ScoreResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.UserID != "user-1" {
		t.Errorf("unexpected userId %q", result.UserID)
	}
	if result.SubmissionID == "" {
		t.Error("missing submissionId")
	}
	if result.Percentile <= 0 || result.Percentile > 1 {
		t.Errorf("percentile %f out of (0,1]", result.Percentile)
	}
	if result.TotalPopulation != 1 {
		t.Errorf("expected population 1, got %d", result.TotalPopulation)
	}
}

func TestScoreEndpoint_DataURLAccepted(t *testing.T) {
	router := testRouter(&stubExtractor{result: goodResult(1)})

	rec := postScore(t, router, map[string]any{
		"userId":      "user-1",
		"imageBase64": "data:image/jpeg;base64," + testImageBase64(t),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScoreEndpoint_Failures(t *testing.T) {
	lowQuality := goodResult(1)
	lowQuality.Metrics.Frontality = 0.05

	tests := []struct {
		name       string
		extractor  scoring.Extractor
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid json",
			extractor:  &stubExtractor{result: goodResult(1)},
			body:       "not json at all",
			wantStatus: http.StatusBadRequest,
			wantCode:   scoring.CodeValidationError,
		},
		{
			name:       "invalid base64",
			extractor:  &stubExtractor{result: goodResult(1)},
			body:       map[string]any{"userId": "u", "imageBase64": "!!!not-base64!!!"},
			wantStatus: http.StatusBadRequest,
			wantCode:   scoring.CodeValidationError,
		},
		{
			name:       "no face",
			extractor:  &stubExtractor{err: extraction.ErrNoFaceDetected},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   scoring.CodeNoFaceDetected,
		},
		{
			name:       "quality too low",
			extractor:  &stubExtractor{result: lowQuality},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   scoring.CodeQualityTooLow,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := testRouter(tc.extractor)
			body := tc.body
			if body == nil {
				body = map[string]any{"userId": "user-1", "imageBase64": testImageBase64(t)}
			}

			var rec *httptest.ResponseRecorder
			if s, ok := body.(string); ok {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(s))
				rec = httptest.NewRecorder()
				router.ServeHTTP(rec, req)
			} else {
				rec = postScore(t, router, body)
			}

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tc.wantCode {
				t.Errorf("expected code %s, got %s", tc.wantCode, code)
			}
		})
	}
}

func TestScoreEndpoint_DuplicateConflict(t *testing.T) {
	router := testRouter(&stubExtractor{result: goodResult(1)})
	body := map[string]any{"userId": "user-1", "imageBase64": testImageBase64(t)}

	if rec := postScore(t, router, body); rec.Code != http.StatusOK {
		t.Fatalf("first submission failed: %d", rec.Code)
	}

	rec := postScore(t, router, body)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != scoring.CodeDuplicateScore {
		t.Errorf("expected %s, got %s", scoring.CodeDuplicateScore, code)
	}
}

func TestStandingEndpoint(t *testing.T) {
	router := testRouter(&stubExtractor{result: goodResult(1)})

	rec := get(router, "/api/v1/score/nobody")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown user, got %d", rec.Code)
	}
	var missing struct {
		Found bool `json:"found"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &missing); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if missing.Found {
		t.Error("expected found=false for unknown user")
	}

	postScore(t, router, map[string]any{"userId": "user-1", "imageBase64": testImageBase64(t)})

	rec = get(router, "/api/v1/score/user-1")
	var found struct {
		Found    bool                    `json:"found"`
		Standing *scoring.StandingResult `json:"standing"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if !found.Found || found.Standing == nil {
		t.Fatalf("expected standing for scored user, got %s", rec.Body.String())
	}
	if found.Standing.Rank != 1 {
		t.Errorf("expected rank 1, got %d", found.Standing.Rank)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	extractor := &stubExtractor{}
	router := testRouter(extractor)

	for i, userID := range []string{"user-1", "user-2", "user-3"} {
		extractor.result = goodResult(int64(i + 1))
		postScore(t, router, map[string]any{"userId": userID, "imageBase64": testImageBase64(t)})
	}

	rec := get(router, "/api/v1/leaderboard?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Entries []scoring.LeaderboardEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(body.Entries))
	}
	if body.Entries[0].Rank != 1 || body.Entries[1].Rank != 2 {
		t.Error("entries not ranked sequentially")
	}
}

func TestSimilarEndpoint(t *testing.T) {
	extractor := &stubExtractor{}
	router := testRouter(extractor)

	for i, userID := range []string{"user-1", "user-2"} {
		extractor.result = goodResult(int64(i + 1))
		postScore(t, router, map[string]any{"userId": userID, "imageBase64": testImageBase64(t)})
	}

	rec := get(router, "/api/v1/similar/user-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Found   bool                      `json:"found"`
		Matches []population.SimilarMatch `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if !body.Found {
		t.Fatal("expected found=true")
	}
	for _, m := range body.Matches {
		if m.UserID == "user-1" {
			t.Error("matches must not contain the user themselves")
		}
	}

	rec = get(router, "/api/v1/similar/nobody")
	var missing struct {
		Found bool `json:"found"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &missing); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if missing.Found {
		t.Error("expected found=false for unknown user")
	}
}

func TestDistributionEndpoint(t *testing.T) {
	router := testRouter(&stubExtractor{result: goodResult(1)})
	postScore(t, router, map[string]any{"userId": "user-1", "imageBase64": testImageBase64(t)})

	rec := get(router, "/api/v1/distribution")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var dist population.ScoreDistribution
	if err := json.Unmarshal(rec.Body.Bytes(), &dist); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if dist.Mean <= 0 {
		t.Errorf("expected positive mean for one-user population, got %f", dist.Mean)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(&stubExtractor{result: goodResult(1)})

	rec := get(router, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status scoring.HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("expected ok, got %q", status.Status)
	}
	if status.BackendHealth != "healthy" {
		t.Errorf("expected healthy backend, got %q", status.BackendHealth)
	}
}
