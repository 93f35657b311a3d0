package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/search"
	"github.com/zostay/go-mailpart/stream"
)

func TestBatch(t *testing.T) {
	t.Parallel()

	msgs := []string{
		"Subject: a\n\nthe quick brown fox\n",
		"Subject: b\n\nnothing to see\n",
		"Subject: c\n\nFOX again\n",
	}

	queries := make([]search.Query, len(msgs))
	for i, raw := range msgs {
		s := stream.NewBuffer([]byte(raw))
		tree, err := message.Parse(s)
		require.NoError(t, err)
		require.NoError(t, s.Seek(0))
		queries[i] = search.Query{
			Key:     "fox",
			Message: s,
			Tree:    tree,
		}
	}

	results, err := search.Batch(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Found)
	assert.False(t, results[1].Found)
	assert.True(t, results[2].Found)
}

func TestBatchBrokenMessageDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	good := stream.NewBuffer([]byte("Subject: a\n\nneedle\n"))
	goodTree, err := message.Parse(good)
	require.NoError(t, err)
	require.NoError(t, good.Seek(0))

	staleTree, err := message.Parse(stream.NewBuffer([]byte("Subject: something-long\n\nx\n")))
	require.NoError(t, err)
	bad := stream.NewBuffer([]byte("S: x\n\nneedle\n"))

	results, err := search.Batch(context.Background(), []search.Query{
		{Key: "needle", Message: good, Tree: goodTree},
		{Key: "needle", Message: bad, Tree: staleTree},
	})
	require.NoError(t, err)

	assert.True(t, results[0].Found)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, search.ErrPartBroken)
}
