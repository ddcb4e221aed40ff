// Package index implements the in-memory embedding index over the curated
// question/answer corpus. An Index is immutable once built; rebuilds
// produce a fresh Index that the owner swaps in atomically, so concurrent
// readers never observe partial state.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/port"
)

// embedBatchSize bounds one embedding call so build progress stays visible
// on large corpora.
const embedBatchSize = 32

// Index holds the normalized question embeddings for the full corpus and
// answers nearest-neighbor queries by cosine similarity.
type Index struct {
	embedder port.Embedder
	entries  []domain.KnowledgeEntry
	dim      int
}

// Build embeds every corpus question and returns a ready Index.
func Build(ctx context.Context, embedder port.Embedder, corpus []domain.QAPair) (*Index, error) {
	return BuildWithProgress(ctx, embedder, corpus, nil)
}

// BuildWithProgress is Build with an optional callback invoked as
// (embedded, total) after each embedding batch.
func BuildWithProgress(ctx context.Context, embedder port.Embedder, corpus []domain.QAPair, progress func(done, total int)) (*Index, error) {
	if len(corpus) == 0 {
		return nil, port.ErrCorpusEmpty
	}

	entries := make([]domain.KnowledgeEntry, 0, len(corpus))
	dim := 0

	for start := 0; start < len(corpus); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(corpus) {
			end = len(corpus)
		}

		questions := make([]string, 0, end-start)
		for _, pair := range corpus[start:end] {
			questions = append(questions, pair.Question)
		}

		vectors, err := embedder.EmbedBatch(ctx, questions)
		if err != nil {
			return nil, fmt.Errorf("embed corpus batch [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed corpus batch [%d:%d]: got %d vectors", start, end, len(vectors))
		}

		for i, vec := range vectors {
			if dim == 0 {
				dim = len(vec)
			}
			if len(vec) != dim {
				return nil, fmt.Errorf("corpus entry %d: dimension %d, index dimension %d", start+i, len(vec), dim)
			}
			l2Normalize(vec)
			entries = append(entries, domain.KnowledgeEntry{
				QAPair:    corpus[start+i],
				Embedding: vec,
			})
		}

		if progress != nil {
			progress(len(entries), len(corpus))
		}
	}

	return &Index{embedder: embedder, entries: entries, dim: dim}, nil
}

// Size returns the number of indexed corpus entries.
func (ix *Index) Size() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Query embeds text with the build-time embedder and returns the top-k
// entries by cosine similarity, descending, ties kept in corpus order.
// Scores are raw cosine values in [-1, 1]; clamping is the scorer's job.
func (ix *Index) Query(ctx context.Context, text string, k int) (domain.RetrievalResult, error) {
	if ix == nil || len(ix.entries) == 0 {
		return domain.RetrievalResult{}, port.ErrIndexNotReady
	}
	if strings.TrimSpace(text) == "" {
		return domain.RetrievalResult{}, port.ErrEmptyQuery
	}
	if k <= 0 {
		k = 1
	}

	queryVec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVec) != ix.dim {
		return domain.RetrievalResult{}, fmt.Errorf("query dimension %d, index dimension %d", len(queryVec), ix.dim)
	}
	l2Normalize(queryVec)

	matches := make([]domain.Match, len(ix.entries))
	for i, entry := range ix.entries {
		matches[i] = domain.Match{
			Entry: entry,
			// Both sides are unit vectors, so the dot product is the
			// cosine similarity.
			Score: dot(queryVec, entry.Embedding),
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if k < len(matches) {
		matches = matches[:k]
	}

	return domain.RetrievalResult{
		Matches:  matches,
		TopScore: matches[0].Score,
	}, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// l2Normalize scales v to unit length in place. Zero vectors are left
// untouched so they score zero against everything.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
