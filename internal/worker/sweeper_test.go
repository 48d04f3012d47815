package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/domain"
)

func newSweeperTestBlackboard(t *testing.T) *blackboard.Blackboard {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := blackboard.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return blackboard.New(store, nil, nil)
}

func TestSweeper_FailsStalledAnalysisJob(t *testing.T) {
	bb := newSweeperTestBlackboard(t)
	ctx := context.Background()

	job := domain.Job{JobID: "Analysis00000001", Kind: domain.JobKindAnalysis, State: domain.JobStateRunning, UpdatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, bb.Put(ctx, blackboard.StatusKey(job.JobID), job, time.Hour))
	require.NoError(t, bb.TrackRunning(ctx, "analysis", job.JobID))

	s := NewSweeper(bb, nil, "", time.Hour, time.Minute, time.Minute, time.Hour)
	s.sweepOnce(ctx)

	var got domain.Job
	require.NoError(t, bb.GetJSON(ctx, blackboard.StatusKey(job.JobID), &got))
	assert.Equal(t, domain.JobStateFailed, got.State)
	assert.Contains(t, got.Description, "timeout")

	ids, err := bb.RunningIDs(ctx, "analysis")
	require.NoError(t, err)
	assert.NotContains(t, ids, job.JobID)
}

func TestSweeper_LeavesFreshAnalysisJobAlone(t *testing.T) {
	bb := newSweeperTestBlackboard(t)
	ctx := context.Background()

	job := domain.Job{JobID: "Analysis00000002", Kind: domain.JobKindAnalysis, State: domain.JobStateRunning, UpdatedAt: time.Now()}
	require.NoError(t, bb.Put(ctx, blackboard.StatusKey(job.JobID), job, time.Hour))
	require.NoError(t, bb.TrackRunning(ctx, "analysis", job.JobID))

	s := NewSweeper(bb, nil, "", time.Hour, time.Minute, time.Minute, time.Hour)
	s.sweepOnce(ctx)

	var got domain.Job
	require.NoError(t, bb.GetJSON(ctx, blackboard.StatusKey(job.JobID), &got))
	assert.Equal(t, domain.JobStateRunning, got.State)
}

func TestSweeper_FailsStalledDatasetLoad(t *testing.T) {
	bb := newSweeperTestBlackboard(t)
	ctx := context.Background()

	status := domain.DatasetLoadingStatus{LoadID: "Load00000001", State: domain.JobStateRunning, UpdatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, bb.Put(ctx, blackboard.StatusKey(status.LoadID), status, time.Hour))
	require.NoError(t, bb.TrackRunning(ctx, "dataset", status.LoadID))

	s := NewSweeper(bb, nil, "", time.Hour, time.Minute, time.Minute, time.Hour)
	s.sweepOnce(ctx)

	var got domain.DatasetLoadingStatus
	require.NoError(t, bb.GetJSON(ctx, blackboard.StatusKey(status.LoadID), &got))
	assert.Equal(t, domain.JobStateFailed, got.State)
	assert.Contains(t, got.Description, "timeout")
}

func TestSweeper_SkipsAlreadyTerminalJob(t *testing.T) {
	bb := newSweeperTestBlackboard(t)
	ctx := context.Background()

	job := domain.Job{JobID: "Analysis00000003", Kind: domain.JobKindAnalysis, State: domain.JobStateComplete, UpdatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, bb.Put(ctx, blackboard.StatusKey(job.JobID), job, time.Hour))
	require.NoError(t, bb.TrackRunning(ctx, "analysis", job.JobID))

	s := NewSweeper(bb, nil, "", time.Hour, time.Minute, time.Minute, time.Hour)
	s.sweepOnce(ctx)

	ids, err := bb.RunningIDs(ctx, "analysis")
	require.NoError(t, err)
	assert.NotContains(t, ids, job.JobID, "a terminal job should be untracked even if it was never explicitly removed")
}
