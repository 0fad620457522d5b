// Package scoring composes the extraction client, feature validator,
// eligibility gate and population store into the public scoring operations.
package scoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/extraction"
	"github.com/aurum-app/facerank/internal/metrics"
	"github.com/aurum-app/facerank/internal/population"
	"github.com/aurum-app/facerank/internal/vibes"
)

// state labels the scoring pipeline's progression for logging.
type state string

const (
	stateReceived       state = "received"
	stateValidated      state = "validated"
	stateExtracted      state = "extracted"
	stateQualityChecked state = "quality_checked"
	stateStored         state = "stored"
	stateCompleted      state = "completed"
	stateRejected       state = "rejected"
)

// Extractor is the part of the extraction client the orchestrator needs.
type Extractor interface {
	Extract(ctx context.Context, userID string, imageData []byte) (*extraction.Result, error)
	Health() extraction.HealthState
}

// ScoreRequest is one scoring submission.
type ScoreRequest struct {
	UserID           string
	Image            []byte
	NFTVerified      bool
	IdentityVerified bool
}

// ScoreResult is the composite outcome of a completed scoring request.
type ScoreResult struct {
	UserID           string                       `json:"userId"`
	SubmissionID     string                       `json:"submissionId"`
	Score            float64                      `json:"score"`
	Percentile       float64                      `json:"percentile"`
	Rank             int                          `json:"rank"`
	TotalPopulation  int                          `json:"totalPopulation"`
	Confidence       float64                      `json:"confidence"`
	Degraded         bool                         `json:"degraded"`
	VibeTags         []string                     `json:"vibeTags"`
	QualityMetrics   population.QualityMetrics    `json:"qualityMetrics"`
	Distribution     population.ScoreDistribution `json:"distribution"`
	ProcessingTimeMS int64                        `json:"processingTimeMs"`
}

// StandingResult is a user's current standing, the read-only counterpart of
// ScoreResult.
type StandingResult struct {
	UserID          string                    `json:"userId"`
	Score           float64                   `json:"score"`
	Percentile      float64                   `json:"percentile"`
	Rank            int                       `json:"rank"`
	TotalPopulation int                       `json:"totalPopulation"`
	VibeTags        []string                  `json:"vibeTags"`
	QualityMetrics  population.QualityMetrics `json:"qualityMetrics"`
	SubmittedAt     time.Time                 `json:"submittedAt"`
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Rank       int      `json:"rank"`
	UserID     string   `json:"userId"`
	Score      float64  `json:"score"`
	Percentile float64  `json:"percentile"`
	VibeTags   []string `json:"vibeTags"`
}

// HealthStatus is the service view reported by the health endpoint.
type HealthStatus struct {
	Status         string `json:"status"`
	BackendHealth  string `json:"backendHealth"`
	PopulationSize int    `json:"populationSize"`
}

// Service is the scoring orchestrator. All dependencies are injected;
// there is no ambient global state.
type Service struct {
	store     population.Store
	extractor Extractor
	tagger    vibes.Tagger
	validator *Validator
	gate      *Gate

	maxImageBytes int
	now           func() time.Time

	// Per-user locks serialize concurrent submissions for the same user so
	// two racing requests can never both pass the eligibility check.
	// Entries are reference-counted and reclaimed once the last holder
	// releases, keeping the map bounded by in-flight requests.
	mu        sync.Mutex
	userLocks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func NewService(store population.Store, extractor Extractor, tagger vibes.Tagger, cfg *config.Config) *Service {
	return &Service{
		store:         store,
		extractor:     extractor,
		tagger:        tagger,
		validator:     NewValidator(cfg.Thresholds),
		gate:          NewGate(cfg.Scoring.Window(), cfg.Scoring.RequireVerification),
		maxImageBytes: cfg.Scoring.MaxImageBytes,
		now:           time.Now,
		userLocks:     make(map[string]*userLock),
	}
}

func (s *Service) lockUser(userID string) *userLock {
	s.mu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &userLock{}
		s.userLocks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *Service) unlockUser(userID string, l *userLock) {
	l.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.userLocks, userID)
	}
	s.mu.Unlock()
}

// Score runs one submission through the full pipeline. Rejections are
// returned as *Error with a stable reason code; any other error shape is a
// bug.
func (s *Service) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	start := s.now()

	res, err := s.score(ctx, req)

	metrics.ScoringDuration.Observe(s.now().Sub(start).Seconds())
	outcome := string(stateCompleted)
	var scoringErr *Error
	if errors.As(err, &scoringErr) {
		outcome = scoringErr.Code
	} else if err != nil {
		outcome = CodeProcessingError
	}
	metrics.ScoringOutcomes.WithLabelValues(outcome).Inc()

	if res != nil {
		res.ProcessingTimeMS = s.now().Sub(start).Milliseconds()
	}
	return res, err
}

func (s *Service) score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	logger := log.With().Str("userId", req.UserID).Logger()
	logger.Debug().Str("state", string(stateReceived)).Msg("scoring submission")

	// Input validation has no side effects and needs no lock.
	if strings.TrimSpace(req.UserID) == "" {
		return nil, newError(CodeValidationError, "userId is required")
	}
	if err := extraction.ValidatePayload(req.Image, s.maxImageBytes); err != nil {
		return nil, newError(CodeValidationError, "invalid image payload: %v", errMessage(err))
	}
	logger.Debug().Str("state", string(stateValidated)).Msg("input accepted")

	// Everything from the eligibility read to the store write runs under the
	// per-user lock so a second concurrent submission queues behind the
	// first instead of double-inserting.
	lock := s.lockUser(req.UserID)
	defer s.unlockUser(req.UserID, lock)

	record, err := s.store.Get(ctx, req.UserID)
	if err != nil {
		return nil, newError(CodeProcessingError, "population store unavailable")
	}
	flags := VerificationFlags{NFTVerified: req.NFTVerified, IdentityVerified: req.IdentityVerified}
	if verdict := s.gate.Check(record, flags, s.now()); !verdict.Eligible {
		logger.Debug().Str("state", string(stateRejected)).Str("reason", verdict.Reason).Msg("submission rejected")
		if strings.Contains(verdict.Reason, "verification") {
			return nil, newError(CodeValidationError, "%s", verdict.Reason)
		}
		return nil, newError(CodeDuplicateScore, "%s", verdict.Reason)
	}

	extracted, err := s.extractor.Extract(ctx, req.UserID, req.Image)
	if err != nil {
		if errors.Is(err, extraction.ErrNoFaceDetected) {
			return nil, newError(CodeNoFaceDetected, "no face detected in the submitted image")
		}
		logger.Warn().Err(err).Msg("extraction failed")
		return nil, newError(CodeProcessingError, "feature extraction failed")
	}
	logger.Debug().Str("state", string(stateExtracted)).Bool("degraded", extracted.Degraded).Msg("features extracted")

	if verdict := s.validator.Validate(extracted.Metrics); !verdict.Accepted {
		logger.Debug().Str("state", string(stateRejected)).Strs("reasons", verdict.Reasons).Msg("quality floors failed")
		return nil, newError(CodeQualityTooLow, "%s", strings.Join(verdict.Reasons, "; "))
	}
	logger.Debug().Str("state", string(stateQualityChecked)).Msg("quality floors passed")

	tags, err := s.tagger.Tags(ctx, vibes.TagInput{
		UserID:    req.UserID,
		Embedding: extracted.Embedding,
		Metrics:   extracted.Metrics,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("vibe tagging failed, continuing without tags")
		tags = nil
	}

	stored, err := s.store.Add(ctx, req.UserID, extracted.Embedding, extracted.Metrics, tags)
	if err != nil {
		logger.Error().Err(err).Msg("population store write failed")
		return nil, newError(CodeProcessingError, "failed to store scoring result")
	}
	logger.Debug().Str("state", string(stateStored)).Msg("record stored")

	standing, err := s.store.GetStanding(ctx, req.UserID)
	if err != nil || standing == nil {
		return nil, newError(CodeProcessingError, "failed to read back standing")
	}
	dist, err := s.store.Distribution(ctx)
	if err != nil {
		return nil, newError(CodeProcessingError, "failed to read distribution")
	}
	metrics.PopulationSize.Set(float64(standing.Population))

	logger.Info().
		Str("state", string(stateCompleted)).
		Float64("score", stored.Score).
		Int("rank", standing.Rank).
		Int("population", standing.Population).
		Bool("degraded", extracted.Degraded).
		Msg("scoring completed")

	return &ScoreResult{
		UserID:          stored.UserID,
		SubmissionID:    uuid.NewString(),
		Score:           stored.Score,
		Percentile:      stored.Percentile,
		Rank:            standing.Rank,
		TotalPopulation: standing.Population,
		Confidence:      stored.Metrics.Confidence,
		Degraded:        extracted.Degraded,
		VibeTags:        stored.VibeTags,
		QualityMetrics:  stored.Metrics,
		Distribution:    dist,
	}, nil
}

// Standing returns the user's current standing, or (nil, nil) when the user
// has no record.
func (s *Service) Standing(ctx context.Context, userID string) (*StandingResult, error) {
	standing, err := s.store.GetStanding(ctx, userID)
	if err != nil {
		return nil, newError(CodeProcessingError, "population store unavailable")
	}
	if standing == nil {
		return nil, nil
	}
	return &StandingResult{
		UserID:          standing.Record.UserID,
		Score:           standing.Record.Score,
		Percentile:      standing.Record.Percentile,
		Rank:            standing.Rank,
		TotalPopulation: standing.Population,
		VibeTags:        standing.Record.VibeTags,
		QualityMetrics:  standing.Record.Metrics,
		SubmittedAt:     standing.Record.SubmittedAt,
	}, nil
}

// Leaderboard returns the top limit users ordered by score.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	records, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, newError(CodeProcessingError, "population store unavailable")
	}
	entries := make([]LeaderboardEntry, 0, len(records))
	for i, r := range records {
		entries = append(entries, LeaderboardEntry{
			Rank:       i + 1,
			UserID:     r.UserID,
			Score:      r.Score,
			Percentile: r.Percentile,
			VibeTags:   r.VibeTags,
		})
	}
	return entries, nil
}

// Similar returns the users most similar to the given user's stored
// embedding, excluding the user themselves. Returns (nil, nil) when the
// user has no record.
func (s *Service) Similar(ctx context.Context, userID string, limit int) ([]population.SimilarMatch, error) {
	record, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, newError(CodeProcessingError, "population store unavailable")
	}
	if record == nil {
		return nil, nil
	}
	matches, err := s.store.Similar(ctx, record.Embedding, limit, userID)
	if err != nil {
		return nil, newError(CodeProcessingError, "similarity search failed")
	}
	if matches == nil {
		// A known user with no neighbors still gets an answer, not "no record".
		matches = []population.SimilarMatch{}
	}
	return matches, nil
}

// Distribution returns the current population score distribution.
func (s *Service) Distribution(ctx context.Context) (population.ScoreDistribution, error) {
	dist, err := s.store.Distribution(ctx)
	if err != nil {
		return population.ScoreDistribution{}, newError(CodeProcessingError, "population store unavailable")
	}
	return dist, nil
}

// Health reports the service status for the health endpoint.
func (s *Service) Health(ctx context.Context) HealthStatus {
	count, err := s.store.Count(ctx)
	status := "ok"
	if err != nil {
		status = "degraded"
	}
	return HealthStatus{
		Status:         status,
		BackendHealth:  s.extractor.Health().String(),
		PopulationSize: count,
	}
}

// errMessage strips wrapped detail down to the sentinel's message so no
// internal error text leaks to callers.
func errMessage(err error) string {
	switch {
	case errors.Is(err, extraction.ErrEmptyImage):
		return extraction.ErrEmptyImage.Error()
	case errors.Is(err, extraction.ErrImageTooLarge):
		return extraction.ErrImageTooLarge.Error()
	case errors.Is(err, extraction.ErrUndecodableImage):
		return extraction.ErrUndecodableImage.Error()
	default:
		return "invalid image"
	}
}
