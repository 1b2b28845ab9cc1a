package vector

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// DefaultDimensions is the vector size of HashEmbedder when unset.
const DefaultDimensions = 256

// HashEmbedder is a local embedder using the hashing trick: each lower-cased
// word is hashed with BLAKE3 into a signed bucket, and the bucket counts are
// L2-normalized. Texts sharing words get similar vectors.
type HashEmbedder struct {
	Dim int
}

var _ Embedder = HashEmbedder{}

// Model implements Embedder.
func (e HashEmbedder) Model() string {
	return "blake3-hash"
}

// Dimensions implements Embedder.
func (e HashEmbedder) Dimensions() int {
	if e.Dim <= 0 {
		return DefaultDimensions
	}
	return e.Dim
}

// Embed implements Embedder.
func (e HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e HashEmbedder) embed(text string) []float32 {
	dim := e.Dimensions()
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		sum := blake3.Sum256([]byte(w))
		h := binary.LittleEndian.Uint64(sum[:8])
		bucket := int(h % uint64(dim))
		if sum[8]&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
