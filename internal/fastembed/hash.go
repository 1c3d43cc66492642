package fastembed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEngine is an offline engine that embeds text by feature hashing word
// and character trigram tokens into the model's dimension. It needs no
// artifacts and is deterministic, which makes it suitable for development
// and tests; it is not a substitute for a trained model.
type HashEngine struct{}

func (HashEngine) Name() string { return "hash" }

func (HashEngine) NeedsArtifacts() bool { return false }

func (HashEngine) Load(_ context.Context, d ModelDescriptor, _ string) (Model, error) {
	return &hashModel{dim: d.Dim, normalize: d.Normalize}, nil
}

type hashModel struct {
	dim       int
	normalize bool
}

func (m *hashModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.embedOne(text)
	}
	return out, nil
}

func (m *hashModel) embedOne(text string) []float32 {
	vec := make([]float32, m.dim)
	var n int
	for _, word := range tokenize(text) {
		m.add(vec, "w:"+word, 1)
		n++
		padded := "^" + word + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			m.add(vec, "c:"+string(runes[i:i+3]), 0.5)
			n++
		}
	}
	// Mean pooling over token features.
	if n > 0 {
		for i := range vec {
			vec[i] /= float32(n)
		}
	}
	if m.normalize {
		normalize(vec)
	}
	return vec
}

func (m *hashModel) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(m.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
