// Package retriever provides document retrieval over a vector store.
//
// RedundantFilterRetriever embeds a query and asks the store for a maximal
// marginal relevance (MMR) selection, which trades relevance against
// diversity and so filters near-duplicate documents out of the result.
// InMemoryVectorStore is a process-local store suitable for tests, demos and
// small corpora; any VectorStore implementation can be plugged in.
package retriever
