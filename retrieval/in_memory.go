package retrieval

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/hupe1980/convomesh/core"
)

// Document is one entry of the in-memory knowledge index.
type Document struct {
	ID       string
	Content  string
	Category string
	Vector   []float64
	Metadata map[string]string
}

// Embedder turns a query string into a vector comparable with document
// vectors. Implementations typically call an embedding model; tests supply a
// deterministic function.
type Embedder func(ctx context.Context, text string) ([]float64, error)

// InMemoryIndex is a process-local RetrievalService backed by cosine
// similarity over stored document vectors. When no Embedder is configured it
// falls back to token-overlap scoring so the index stays usable in tests and
// examples without an embedding model.
//
// Concurrency: protected by RWMutex.
type InMemoryIndex struct {
	mu       sync.RWMutex
	docs     []Document
	embedder Embedder
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex(optFns ...func(*InMemoryIndex)) *InMemoryIndex {
	idx := &InMemoryIndex{}
	for _, fn := range optFns {
		fn(idx)
	}
	return idx
}

// WithEmbedder configures vector-based scoring.
func WithEmbedder(e Embedder) func(*InMemoryIndex) {
	return func(idx *InMemoryIndex) { idx.embedder = e }
}

// Add stores documents in the index.
func (idx *InMemoryIndex) Add(docs ...Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = append(idx.docs, docs...)
}

// Search implements core.RetrievalService.
func (idx *InMemoryIndex) Search(ctx context.Context, q core.RetrievalQuery) ([]core.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var queryVec []float64
	if idx.embedder != nil {
		var err error
		queryVec, err = idx.embedder(ctx, q.Query)
		if err != nil {
			return nil, err
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	results := make([]core.RetrievalResult, 0, len(idx.docs))
	for _, doc := range idx.docs {
		if q.CategoryFilter != "" && doc.Category != q.CategoryFilter {
			continue
		}
		var score float64
		if queryVec != nil && doc.Vector != nil {
			score = cosineSimilarity(queryVec, doc.Vector)
		} else {
			score = tokenOverlap(q.Query, doc.Content)
		}
		if score < q.SimilarityThreshold {
			continue
		}
		results = append(results, core.RetrievalResult{
			DocID:      doc.ID,
			Content:    doc.Content,
			Similarity: score,
			Metadata:   doc.Metadata,
		})
	}

	Rank(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenOverlap scores the fraction of query tokens present in the document.
func tokenOverlap(query, content string) float64 {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return 0
	}
	haystack := strings.ToLower(content)
	matched := 0
	for _, tok := range queryTokens {
		if strings.Contains(haystack, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

var _ core.RetrievalService = (*InMemoryIndex)(nil)
