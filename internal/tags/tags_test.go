package tags

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPicker_PickIsNonEmptyProperSubset(t *testing.T) {
	p := NewSeededPicker(42)
	sizes := map[int]bool{}

	for i := 0; i < 500; i++ {
		got := p.Pick()
		require.GreaterOrEqual(t, len(got), 1)
		require.LessOrEqual(t, len(got), len(Vocabulary)-1)
		require.Subset(t, Vocabulary, got)

		seen := map[string]bool{}
		for _, tag := range got {
			require.False(t, seen[tag], "duplicate tag %q in %v", tag, got)
			seen[tag] = true
		}
		sizes[len(got)] = true
	}

	for n := 1; n <= len(Vocabulary)-1; n++ {
		assert.True(t, sizes[n], "subset size %d never drawn", n)
	}
}

func TestPicker_SameSeedSameSequence(t *testing.T) {
	a := NewSeededPicker(7)
	b := NewSeededPicker(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Pick(), b.Pick())
	}
}

func TestPicker_DoesNotMutateVocabulary(t *testing.T) {
	before := append([]string(nil), Vocabulary...)
	p := NewPicker(rand.New(rand.NewSource(1)))
	for i := 0; i < 10; i++ {
		p.Pick()
	}
	assert.Equal(t, before, Vocabulary)
}

func TestPicker_ConcurrentUse(t *testing.T) {
	p := NewPicker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NotEmpty(t, p.Pick())
			}
		}()
	}
	wg.Wait()
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Split(" a , b "))
	assert.Equal(t, []string{"Tech Companies"}, Split("Tech Companies,,  "))
	assert.Empty(t, Split(" , "))
}

func TestLiteral(t *testing.T) {
	tests := map[string]string{
		"Crypto":                `{"Crypto"}`,
		"  Global ":             `{"Global"}`,
		"Diversity & Inclusion": `{"Diversity & Inclusion"}`,
		`say "hi"`:              `{"say \"hi\""}`,
		`back\slash`:            `{"back\\slash"}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, Literal(in), in)
	}
}
