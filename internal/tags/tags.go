// Package tags holds the fixed tag vocabulary assigned to new posts and the
// helpers used to match tags against the posts table.
package tags

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Vocabulary is the predefined set of tags new posts draw from.
var Vocabulary = []string{
	"Diversity & Inclusion",
	"Tech Companies",
	"Crypto",
	"Security",
	"Global",
	"Leaks",
}

// Picker selects random tag subsets. It is safe for concurrent use.
type Picker struct {
	mu    sync.Mutex
	rng   *rand.Rand
	vocab []string
}

// NewPicker returns a Picker drawing from Vocabulary with the given source.
// A nil rng falls back to a time-seeded generator.
func NewPicker(rng *rand.Rand) *Picker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	vocab := make([]string, len(Vocabulary))
	copy(vocab, Vocabulary)
	return &Picker{rng: rng, vocab: vocab}
}

// NewSeededPicker returns a Picker whose choices are reproducible for seed.
func NewSeededPicker(seed int64) *Picker {
	return NewPicker(rand.New(rand.NewSource(seed)))
}

// Pick shuffles the vocabulary and returns its first n entries, with n drawn
// uniformly from [1, len(vocabulary)-1].
func (p *Picker) Pick() []string {
	shuffled := make([]string, len(p.vocab))
	copy(shuffled, p.vocab)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if len(shuffled) < 2 {
		return shuffled
	}
	n := p.rng.Intn(len(shuffled)-1) + 1
	return shuffled[:n]
}

// Normalize trims each tag and drops the ones left empty.
func Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Split parses a comma-separated tag list.
func Split(csv string) []string {
	return Normalize(strings.Split(csv, ","))
}

// Literal renders tag as a single-element Postgres array literal, e.g. {"Crypto"}.
func Literal(tag string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(strings.TrimSpace(tag))
	return `{"` + escaped + `"}`
}
