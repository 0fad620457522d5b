package vibes

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// vocabulary is the closed set of tags the deterministic tagger draws from.
var vocabulary = []string{
	"wicked",
	"royal",
	"mystic",
	"radiant",
	"golden",
	"fierce",
	"serene",
	"bold",
	"luminous",
	"velvet",
	"electric",
	"cosmic",
	"ethereal",
	"magnetic",
	"stellar",
	"enigmatic",
}

// StaticTagger derives tags from the embedding alone, so the same face
// always gets the same vibe regardless of the rest of the population.
type StaticTagger struct{}

func NewStaticTagger() *StaticTagger {
	return &StaticTagger{}
}

func (t *StaticTagger) Name() string {
	return "static"
}

// Tags picks TagCount distinct vocabulary entries seeded from the embedding.
func (t *StaticTagger) Tags(_ context.Context, input TagInput) ([]string, error) {
	h := fnv.New64a()
	for _, v := range input.Embedding {
		bits := math.Float32bits(v)
		h.Write([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
	}

	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	picks := rng.Perm(len(vocabulary))[:TagCount]

	tags := make([]string, 0, TagCount)
	for _, i := range picks {
		tags = append(tags, vocabulary[i])
	}
	return tags, nil
}
