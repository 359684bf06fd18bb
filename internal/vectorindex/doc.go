// Package vectorindex searches and maintains embedded records in a store.
//
// An Index combines an embeddings.Model, an indexconfig.Config and a pool
// of store connections. Searches embed the query text, run a similarity
// query with the pre-filter evaluated by the store, apply the post-filter
// to the ranked hits and decode each payload:
//
//	ix, err := vectorindex.New(model, cfg, connPool)
//	results, err := vectorindex.TopN[Article](ctx, ix, "solar power", 10, "articles",
//	    vectorindex.SearchParams{PreFilter: expr})
//
// Results are ordered by score descending, ties broken by id ascending.
// A failed call returns no partial results.
//
// Store and embedding failures that vecerr.Retryable accepts are retried
// up to Config.MaxRetries times with exponential backoff starting at
// Config.RetryDelay. Batch mutations run in one store transaction: any
// missing id rolls back the whole batch.
package vectorindex
