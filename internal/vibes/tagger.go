// Package vibes generates the short personality tags attached to a scored
// profile. The deterministic tagger is always available; the OpenAI and
// Gemini taggers are optional and fall back to the deterministic one on any
// provider error. Taggers never see image bytes, only quality metrics.
package vibes

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/population"
)

// TagCount is the number of vibe tags attached to every profile.
const TagCount = 3

// TagInput carries everything a tagger may look at. Image data is
// deliberately absent.
type TagInput struct {
	UserID    string
	Embedding []float32
	Metrics   population.QualityMetrics
}

// Tagger produces vibe tags for a scored profile.
type Tagger interface {
	Name() string
	Tags(ctx context.Context, input TagInput) ([]string, error)
}

// NewTagger builds the tagger selected by configuration. Unknown or empty
// providers get the deterministic static tagger; LLM-backed providers are
// wrapped so any failure degrades to the static tagger instead of failing
// the scoring request.
func NewTagger(ctx context.Context, cfg config.VibesConfig) Tagger {
	static := NewStaticTagger()

	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIToken == "" {
			log.Warn().Msg("VIBE_PROVIDER=openai but OPENAI_TOKEN is empty, using static tagger")
			return static
		}
		return withFallback(NewOpenAITagger(cfg.OpenAIToken), static)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Warn().Msg("VIBE_PROVIDER=gemini but GEMINI_API_KEY is empty, using static tagger")
			return static
		}
		gemini, err := NewGeminiTagger(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create Gemini tagger, using static tagger")
			return static
		}
		return withFallback(gemini, static)
	default:
		return static
	}
}

// fallbackTagger delegates to the primary tagger and silently degrades to
// the static one when the primary fails or returns too few tags.
type fallbackTagger struct {
	primary Tagger
	static  Tagger
}

func withFallback(primary, static Tagger) Tagger {
	return &fallbackTagger{primary: primary, static: static}
}

func (f *fallbackTagger) Name() string {
	return f.primary.Name()
}

func (f *fallbackTagger) Tags(ctx context.Context, input TagInput) ([]string, error) {
	tags, err := f.primary.Tags(ctx, input)
	if err == nil && len(tags) >= TagCount {
		return tags[:TagCount], nil
	}
	if err != nil {
		log.Warn().
			Str("provider", f.primary.Name()).
			Err(err).
			Msg("vibe tagger failed, falling back to static tags")
	}
	return f.static.Tags(ctx, input)
}

var diacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeTag lowercases a tag, strips diacritics and keeps only letters
// so provider output lines up with the static vocabulary's shape.
func normalizeTag(tag string) string {
	stripped, _, err := transform.String(diacritics, tag)
	if err != nil {
		stripped = tag
	}
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(stripped)) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeTags normalizes and deduplicates provider output, dropping
// anything that normalizes to the empty string.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := normalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
