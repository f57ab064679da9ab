package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rparedes/taskgraph/internal/model"
)

func TestSaveAndGetJobResult_RoundTrips(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	result := model.JobResult{
		ID:          "job-1",
		Name:        "demo",
		Status:      model.JobSucceeded,
		StartedAt:   time.Now().Add(-time.Minute),
		CompletedAt: time.Now(),
		Tasks: []model.TaskSnapshot{
			{ID: "a", Service: "docs", Command: "write", Status: model.StatusSucceeded},
		},
	}

	require.NoError(t, s.SaveJobResult(context.Background(), result))

	got, err := s.GetJobResult(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, result.Name, got.Name)
	assert.Equal(t, result.Status, got.Status)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "a", got.Tasks[0].ID)
}

func TestSaveJobResult_OverwritesOnConflict(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	base := model.JobResult{ID: "job-1", Name: "first", Status: model.JobSucceeded, StartedAt: time.Now(), CompletedAt: time.Now()}
	require.NoError(t, s.SaveJobResult(context.Background(), base))

	base.Name = "second"
	base.Status = model.JobFailed
	require.NoError(t, s.SaveJobResult(context.Background(), base))

	got, err := s.GetJobResult(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, model.JobFailed, got.Status)
}

func TestSaveJobResult_RequiresID(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	err = s.SaveJobResult(context.Background(), model.JobResult{Name: "no-id"})
	require.Error(t, err)
}

func TestListJobResults_OrderedNewestFirstAndLimited(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		result := model.JobResult{
			ID:          id,
			Name:        id,
			Status:      model.JobSucceeded,
			StartedAt:   base,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveJobResult(context.Background(), result))
	}

	results, err := s.ListJobResults(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}
