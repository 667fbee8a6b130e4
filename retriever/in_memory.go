package retriever

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/hupe1980/chainkit/core"
)

type entry struct {
	doc    core.Document
	vector []float64
}

// InMemoryVectorStore is a naive process-local VectorStore. Searches are a
// linear scan using cosine similarity.
//
// Concurrency: protected by RWMutex.
type InMemoryVectorStore struct {
	embedder Embedder

	mu      sync.RWMutex
	entries []entry
}

var _ VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates an empty store embedding added documents
// with embedder.
func NewInMemoryVectorStore(embedder Embedder) *InMemoryVectorStore {
	return &InMemoryVectorStore{embedder: embedder}
}

// AddTexts wraps texts into documents and adds them. metadatas may be nil or
// must have the same length as texts.
func (s *InMemoryVectorStore) AddTexts(ctx context.Context, texts []string, metadatas []map[string]any) ([]string, error) {
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, fmt.Errorf("retriever: got %d metadatas for %d texts", len(metadatas), len(texts))
	}

	docs := make([]core.Document, len(texts))
	for i, t := range texts {
		var md map[string]any
		if metadatas != nil {
			md = metadatas[i]
		}
		docs[i] = core.NewDocument(t, md)
	}

	return s.AddDocuments(ctx, docs)
}

// AddDocuments embeds and stores docs, assigning ids to documents without
// one. It returns the ids in input order.
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []core.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if s.embedder == nil {
		return nil, errors.New("retriever: store has no embedder")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("retriever: got %d embeddings for %d documents", len(vectors), len(docs))
	}

	ids := make([]string, len(docs))

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range docs {
		if d.ID == "" {
			d.ID = core.NewID()
		}
		d.Metadata = maps.Clone(d.Metadata)
		d.Score = 0
		s.entries = append(s.entries, entry{doc: d, vector: vectors[i]})
		ids[i] = d.ID
	}

	return ids, nil
}

// Len returns the number of stored documents.
func (s *InMemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SimilaritySearchByVector returns the k documents most similar to vector,
// best first, with Score set to the cosine similarity.
func (s *InMemoryVectorStore) SimilaritySearchByVector(_ context.Context, vector []float64, k int) ([]core.Document, error) {
	if k <= 0 {
		k = DefaultMMROptions.K
	}

	ranked := s.rank(vector, k)

	docs := make([]core.Document, len(ranked))
	for i, r := range ranked {
		docs[i] = r.document()
	}

	return docs, nil
}

// MaxMarginalRelevanceSearchByVector selects opts.K documents out of the
// opts.FetchK nearest ones, each step picking the candidate maximising
// LambdaMult*sim(query, doc) - (1-LambdaMult)*max sim(doc, selected).
func (s *InMemoryVectorStore) MaxMarginalRelevanceSearchByVector(_ context.Context, vector []float64, opts MMROptions) ([]core.Document, error) {
	opts = opts.withDefaults()

	candidates := s.rank(vector, opts.FetchK)
	picked := maximalMarginalRelevance(candidates, opts.K, opts.LambdaMult)

	docs := make([]core.Document, len(picked))
	for i, r := range picked {
		docs[i] = r.document()
	}

	return docs, nil
}

type scored struct {
	entry
	score float64
}

func (s scored) document() core.Document {
	d := s.doc
	d.Metadata = maps.Clone(d.Metadata)
	d.Score = s.score
	return d
}

// rank returns up to n entries ordered by descending similarity to vector.
func (s *InMemoryVectorStore) rank(vector []float64, n int) []scored {
	s.mu.RLock()
	all := make([]scored, len(s.entries))
	for i, e := range s.entries {
		all[i] = scored{entry: e, score: cosineSimilarity(vector, e.vector)}
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	if len(all) > n {
		all = all[:n]
	}

	return all
}
