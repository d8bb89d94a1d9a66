// Package embedding provides embedding generation for memory retrieval. The
// default HashEmbedder is a deterministic feature-hashing embedder that needs
// no external model, which keeps similarity retrieval reproducible in tests
// and usable offline. Production deployments can substitute any
// core.Embedder (an ONNX runtime, a remote embedding API) without touching
// the memory store.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/hiveline/hive/core"
)

// HashEmbedder maps text to a fixed-dimension vector by hashing word unigrams
// and bigrams into buckets and L2-normalizing the result. Identical input
// always yields an identical vector.
type HashEmbedder struct {
	dim int
}

var _ core.Embedder = (*HashEmbedder)(nil)

// Options configures the HashEmbedder.
type Options struct {
	// Dimension is the vector size. Defaults to 128.
	Dimension int
}

// NewHashEmbedder creates a HashEmbedder with optional overrides.
func NewHashEmbedder(optFns ...func(o *Options)) *HashEmbedder {
	opts := Options{Dimension: 128}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimension <= 0 {
		opts.Dimension = 128
	}
	return &HashEmbedder{dim: opts.Dimension}
}

// Dimension returns the embedding vector size.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed implements core.Embedder. It never fails; the error return exists to
// satisfy the contract shared with remote embedding providers.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.bump(vec, tok)
		if i+1 < len(tokens) {
			h.bump(vec, tok+" "+tokens[i+1])
		}
	}
	normalize(vec)
	return vec, nil
}

// bump hashes a token into a bucket with a sign bit so collisions cancel
// rather than pile up.
func (h *HashEmbedder) bump(vec []float32, token string) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(token))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		vec[idx] -= 1
	} else {
		vec[idx] += 1
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is a
// zero vector or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
