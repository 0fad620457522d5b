// Package extraction calls the face detection and embedding services and
// owns their resilience story: per-attempt timeouts, retries with backoff,
// health-state hysteresis, and the deterministic simulated fallback used
// while the backend is unreachable.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/metrics"
	"github.com/aurum-app/facerank/internal/population"
)

const (
	defaultDetectURL = "http://localhost:3001"
	defaultEmbedURL  = "http://localhost:3002"

	// referenceFaceSide is the face bounding-box short side (pixels) that
	// maps to a resolution metric of 1.0.
	referenceFaceSide = 224.0
)

// Result is a uniform extraction outcome: structurally identical whether the
// real backend or the simulated fallback produced it. Degraded is the only
// distinguishing mark and exists for telemetry, not for callers to branch
// scoring semantics on.
type Result struct {
	Embedding []float32
	Metrics   population.QualityMetrics
	Degraded  bool
}

// Client talks to the extraction backend and degrades to the simulated
// fallback when it is unavailable. Safe for concurrent use.
type Client struct {
	detectURL   string
	embedURL    string
	client      *http.Client
	timeout     time.Duration
	backoffBase time.Duration
	maxAttempts int
	health      *healthTracker
}

// NewClient creates an extraction client from configuration.
func NewClient(cfg config.ExtractionConfig) *Client {
	detectURL := cfg.DetectURL
	if detectURL == "" {
		detectURL = defaultDetectURL
	}
	embedURL := cfg.EmbedURL
	if embedURL == "" {
		embedURL = defaultEmbedURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Client{
		detectURL:   strings.TrimSuffix(detectURL, "/"),
		embedURL:    strings.TrimSuffix(embedURL, "/"),
		client:      &http.Client{},
		timeout:     timeout,
		backoffBase: backoff,
		maxAttempts: maxAttempts,
		health:      newHealthTracker(cfg.UnhealthyThreshold),
	}
}

// Health returns the client's current view of the backend.
func (c *Client) Health() HealthState {
	return c.health.State()
}

// extractionRequest is the shared request body of both backend services.
type extractionRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type analysisScores struct {
	Score         float64 `json:"score"`
	SymmetryScore float64 `json:"symmetry_score"`
}

type detectedFace struct {
	BoundingBox []float64      `json:"bounding_box"`
	Score       float64        `json:"score"`
	Landmarks   [][]float64    `json:"landmarks"`
	GoldenRatio analysisScores `json:"golden_ratio_analysis"`
	Geometric   analysisScores `json:"geometric_analysis"`
}

type detectResponse struct {
	Faces            []detectedFace `json:"faces"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
}

type embedResponse struct {
	Embedding        []float32 `json:"embedding"`
	Quality          float64   `json:"quality"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
}

// Extract converts an image into an embedding with quality metrics. The real
// backend is attempted (with retries) unless the client already considers it
// unhealthy; retryable failures then degrade to the deterministic fallback.
// A no-face answer and client-side request errors are terminal and are never
// papered over by the fallback.
func (c *Client) Extract(ctx context.Context, userID string, imageData []byte) (*Result, error) {
	imageHash := HashImage(imageData)

	// Oversized images are downscaled before they cross the wire. The
	// fallback seed stays tied to the original payload.
	prepared, err := PrepareImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	if c.health.State() != Unhealthy {
		res, err := c.extractWithRetry(ctx, prepared)
		if err == nil {
			return res, nil
		}
		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().
			Str("userId", userID).
			Err(err).
			Msg("extraction backend unavailable, using simulated fallback")
	}

	metrics.ExtractionFallbacks.Inc()
	return Simulate(userID, imageHash), nil
}

func (c *Client) extractWithRetry(ctx context.Context, imageData []byte) (*Result, error) {
	var lastErr error

	for attempt := range c.maxAttempts {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		res, err := c.extractOnce(ctx, imageData)
		if err == nil {
			c.health.RecordSuccess()
			c.publishHealth()
			metrics.ExtractionAttempts.WithLabelValues("success").Inc()
			return res, nil
		}
		lastErr = err
		metrics.ExtractionAttempts.WithLabelValues("failure").Inc()

		// The backend answered; the image just has no face. Not a health event.
		if errors.Is(err, ErrNoFaceDetected) {
			c.health.RecordSuccess()
			c.publishHealth()
			return nil, err
		}

		// 4xx means our request was bad, not that the backend is down.
		var be *BackendError
		if errors.As(err, &be) && be.StatusCode < 500 {
			return nil, err
		}

		c.health.RecordFailure()
		c.publishHealth()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// extractOnce runs one detect + embed round trip under the per-attempt timeout.
func (c *Client) extractOnce(ctx context.Context, imageData []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := extractionRequest{ImageBase64: base64.StdEncoding.EncodeToString(imageData)}

	body, err := c.postJSON(ctx, c.detectURL+"/detect", payload)
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}

	var detect detectResponse
	if err := json.Unmarshal(body, &detect); err != nil {
		return nil, fmt.Errorf("failed to parse detection response: %w", err)
	}

	face, ok := largestFace(detect.Faces)
	if !ok {
		return nil, ErrNoFaceDetected
	}

	body, err = c.postJSON(ctx, c.embedURL+"/extract", payload)
	if err != nil {
		return nil, fmt.Errorf("embedding extraction: %w", err)
	}

	var embed embedResponse
	if err := json.Unmarshal(body, &embed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embed.Embedding) != population.EmbeddingDim {
		return nil, fmt.Errorf("unexpected embedding dimension: got %d, want %d",
			len(embed.Embedding), population.EmbeddingDim)
	}

	return &Result{
		Embedding: embed.Embedding,
		Metrics: population.QualityMetrics{
			Quality:    clamp01(embed.Quality),
			Frontality: clamp01(face.Geometric.Score),
			Symmetry:   clamp01(face.GoldenRatio.SymmetryScore),
			Resolution: faceResolution(face.BoundingBox),
			Confidence: clamp01(min(face.Score, embed.Confidence)),
		},
	}, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	return body, nil
}

// Probe checks both backend services' health endpoints and updates the
// health state accordingly.
func (c *Client) Probe(ctx context.Context) HealthState {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.probeOne(ctx, c.detectURL+"/health") && c.probeOne(ctx, c.embedURL+"/health") {
		c.health.RecordSuccess()
	} else {
		c.health.RecordFailure()
	}
	c.publishHealth()
	return c.health.State()
}

func (c *Client) probeOne(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// StartProber probes the backend on the given interval until ctx is done.
// A successful probe restores an unhealthy backend to healthy.
func (c *Client) StartProber(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := c.Probe(ctx)
				log.Debug().Str("state", state.String()).Msg("extraction backend probe")
			}
		}
	}()
}

func (c *Client) publishHealth() {
	metrics.BackendHealthState.Set(float64(c.health.State()))
}

// largestFace picks the face with the biggest bounding box area.
func largestFace(faces []detectedFace) (detectedFace, bool) {
	var best detectedFace
	bestArea := -1.0
	for _, f := range faces {
		if len(f.BoundingBox) != 4 {
			continue
		}
		area := (f.BoundingBox[2] - f.BoundingBox[0]) * (f.BoundingBox[3] - f.BoundingBox[1])
		if area > bestArea {
			best = f
			bestArea = area
		}
	}
	return best, bestArea >= 0
}

// faceResolution maps the face bounding-box short side onto [0,1] against
// the reference side.
func faceResolution(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	short := min(w, h)
	if short <= 0 {
		return 0
	}
	return clamp01(short / referenceFaceSide)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
