package counter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/internal/pkg/testutil"
)

func TestOutcomes(t *testing.T) {
	ctx := context.Background()
	client, _ := testutil.NewRedis(t)
	o := New(client)

	totals, err := o.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, totals)

	require.NoError(t, o.Add(ctx, map[string]int{"accepted": 2, "duplicates": 0}))
	require.NoError(t, o.Add(ctx, map[string]int{"accepted": 1, "rejected": 3}))
	require.NoError(t, o.Add(ctx, map[string]int{"skipped": 0}))

	totals, err = o.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"accepted": 3, "rejected": 3}, totals)
}

func TestOutcomes_BadValue(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.NewRedis(t)
	mr.HSet(outcomesKey, "accepted", "many")

	_, err := New(client).Snapshot(ctx)
	assert.Error(t, err)
}
