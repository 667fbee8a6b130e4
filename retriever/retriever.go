package retriever

import (
	"context"

	"github.com/hupe1980/chainkit/core"
)

// Embedder turns text into embedding vectors. model/openai.Embedder
// implements it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
}

// MMROptions tunes a maximal marginal relevance search.
type MMROptions struct {
	// K is the number of documents to return.
	K int

	// FetchK is the number of nearest candidates MMR selects from.
	FetchK int

	// LambdaMult weighs relevance (1) against diversity (0). Values outside
	// [0, 1] fall back to DefaultMMROptions.LambdaMult.
	LambdaMult float64
}

// DefaultMMROptions holds the defaults used when an option is left zero.
var DefaultMMROptions = MMROptions{
	K:          4,
	FetchK:     20,
	LambdaMult: 0.5,
}

// VectorStore stores documents together with their embeddings.
type VectorStore interface {
	AddDocuments(ctx context.Context, docs []core.Document) ([]string, error)
	SimilaritySearchByVector(ctx context.Context, vector []float64, k int) ([]core.Document, error)
	MaxMarginalRelevanceSearchByVector(ctx context.Context, vector []float64, opts MMROptions) ([]core.Document, error)
}

// Retriever returns the documents relevant to a query.
type Retriever interface {
	GetRelevantDocuments(ctx context.Context, query string) ([]core.Document, error)
}

func (o MMROptions) withDefaults() MMROptions {
	if o.K <= 0 {
		o.K = DefaultMMROptions.K
	}
	if o.FetchK <= 0 {
		o.FetchK = DefaultMMROptions.FetchK
	}
	if o.FetchK < o.K {
		o.FetchK = o.K
	}
	if o.LambdaMult < 0 || o.LambdaMult > 1 {
		o.LambdaMult = DefaultMMROptions.LambdaMult
	}
	return o
}
