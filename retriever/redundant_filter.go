package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/chainkit/core"
	"github.com/hupe1980/chainkit/logging"
)

// DefaultLambdaMult favours relevance while still dropping near duplicates.
const DefaultLambdaMult = 0.8

// RedundantFilterOptions configures a RedundantFilterRetriever.
type RedundantFilterOptions struct {
	// K is the number of documents returned. Defaults to DefaultMMROptions.K.
	K int

	// FetchK is the candidate pool size. Defaults to DefaultMMROptions.FetchK.
	FetchK int

	// LambdaMult defaults to DefaultLambdaMult.
	LambdaMult float64

	Logger logging.Logger
}

// RedundantFilterRetriever embeds the query and runs an MMR search so that
// redundant documents are filtered from the result.
type RedundantFilterRetriever struct {
	embedder Embedder
	store    VectorStore
	opts     RedundantFilterOptions
}

var _ Retriever = (*RedundantFilterRetriever)(nil)

// NewRedundantFilterRetriever creates a retriever over store using embedder
// for queries.
func NewRedundantFilterRetriever(embedder Embedder, store VectorStore, optFns ...func(o *RedundantFilterOptions)) *RedundantFilterRetriever {
	opts := RedundantFilterOptions{
		K:          DefaultMMROptions.K,
		FetchK:     DefaultMMROptions.FetchK,
		LambdaMult: DefaultLambdaMult,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &RedundantFilterRetriever{embedder: embedder, store: store, opts: opts}
}

// GetRelevantDocuments implements Retriever.
func (r *RedundantFilterRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]core.Document, error) {
	if r.embedder == nil || r.store == nil {
		return nil, errors.New("retriever: embedder and store are required")
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	docs, err := r.store.MaxMarginalRelevanceSearchByVector(ctx, vec, MMROptions{
		K:          r.opts.K,
		FetchK:     r.opts.FetchK,
		LambdaMult: r.opts.LambdaMult,
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: mmr search: %w", err)
	}

	r.opts.Logger.Debug("retriever.search", "query_len", len(query), "results", len(docs), "lambda_mult", r.opts.LambdaMult)

	return docs, nil
}
