package semantic

import (
	"context"
	"hash/fnv"
	"strings"
)

// KeywordEmbedder is a hashing bag-of-words "embedding" used when
// KAIT_EMBEDDINGS=0 disables the Ollama backend. It is deliberately
// coarse: a deterministic token-presence vector, not a learned
// representation, so semantic retrieval degrades to near-keyword-overlap
// rather than going dark entirely. Grounded on the teacher's NullEmbedder
// fallback slot, but produces an actual similarity signal instead of a
// zero vector.
type KeywordEmbedder struct {
	dim int
}

// NewKeywordEmbedder constructs a KeywordEmbedder with the given
// dimension (bucket count for the hashed bag-of-words vector). Dim
// defaults to 512 buckets when zero or negative.
func NewKeywordEmbedder(dim int) *KeywordEmbedder {
	if dim <= 0 {
		dim = 512
	}
	return &KeywordEmbedder{dim: dim}
}

// Embed hashes each token in text into a bucket and accumulates counts,
// producing a sparse-in-spirit but fixed-width vector comparable by
// cosine similarity to any other KeywordEmbedder output.
func (k *KeywordEmbedder) Embed(_ context.Context, text string) (Embedding, error) {
	out := make(Embedding, k.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		if tok == "" {
			continue
		}
		out[fnv1aBucket(tok, k.dim)]++
	}
	return out, nil
}

// Dimension returns the configured bucket count.
func (k *KeywordEmbedder) Dimension() int { return k.dim }

// ModelName identifies this as the non-learned fallback so advisory
// decision-ledger entries can record which retrieval quality was used.
func (k *KeywordEmbedder) ModelName() string { return "keyword-fallback" }

// Available is always true: the keyword embedder has no external
// dependency to fail.
func (k *KeywordEmbedder) Available() bool { return true }

// fnv1aBucket hashes s into [0, buckets).
func fnv1aBucket(s string, buckets int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(buckets))
}
