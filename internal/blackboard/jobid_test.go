package blackboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobID_DistinctAndPrefixed(t *testing.T) {
	store := newTestStore(t)
	bb := New(store, nil, nil)
	ctx := context.Background()

	first, err := bb.NewJobID(ctx, "analysis")
	require.NoError(t, err)
	second, err := bb.NewJobID(ctx, "analysis")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "Analysis00000001", first)
	assert.Equal(t, "Analysis00000002", second)
}

func TestNewJobID_UnknownKind(t *testing.T) {
	store := newTestStore(t)
	bb := New(store, nil, nil)

	_, err := bb.NewJobID(context.Background(), "bogus")
	assert.Error(t, err)
}
