package search

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/stream"
)

// Query is one message to search. Each query owns its stream for the
// duration of the batch.
type Query struct {
	Key            string
	KeyCharset     string
	Message        stream.Stream
	Tree           *message.Part
	IncludeHeaders bool
}

// Result is the outcome of one query. A broken message is reported
// here rather than failing the batch; search is a best-effort,
// user-visible operation.
type Result struct {
	Found bool
	Err   error
}

// Batch runs independent searches concurrently, one goroutine per query
// up to GOMAXPROCS. There is no shared state between searches, so the
// only cross-query failure mode is context cancellation.
func Batch(ctx context.Context, queries []Query, opts ...Option) ([]Result, error) {
	results := make([]Result, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range queries {
		i, q := i, queries[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := Search(q.Key, q.KeyCharset, q.Message, q.Tree, q.IncludeHeaders, opts...)
			results[i] = Result{Found: found, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
