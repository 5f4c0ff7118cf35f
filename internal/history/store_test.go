package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/workflow"
)

func sampleRecord(id string, started time.Time) *Record {
	return &Record{
		RunID:  id,
		Flow:   "report_flow",
		Status: "succeeded",
		Steps: []StepRecord{
			{Step: "news_crew_kickoff", Status: "succeeded", Attempts: 1},
			{Step: "visualizer_crew_kickoff", Status: "absorbed", Attempts: 3, Error: "quota exceeded"},
		},
		FinalReport: "report.md",
		StartedAt:   started,
		EndedAt:     started.Add(90 * time.Second),
		Duration:    90 * time.Second,
	}
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := OpenDatabase("sqlite", config.DatabaseConfig{Name: ":memory:", MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	store, err := NewGormStore(db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:history:")
	t.Cleanup(func() { store.Close() })
	return store
}

// storeContract runs the same expectations against every implementation.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, sampleRecord(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "report_flow", got.Flow)
	assert.Equal(t, "report.md", got.FinalReport)
	assert.Equal(t, 90*time.Second, got.Duration)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "absorbed", got.Steps[1].Status)
	assert.Equal(t, 3, got.Steps[1].Attempts)
	assert.True(t, got.StartedAt.Equal(base.Add(time.Hour)))

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].RunID)
	assert.Equal(t, "run-1", list[1].RunID)

	// saving the same run again replaces it
	updated := sampleRecord("run-0", base)
	updated.Status = "failed"
	require.NoError(t, store.Save(ctx, updated))
	got, err = store.Get(ctx, "run-0")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	list, err = store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Save(ctx, &Record{Flow: "report_flow"}), ErrInvalidInput)
}

func TestGormStore(t *testing.T) {
	storeContract(t, newSQLiteStore(t))
}

func TestRedisStore(t *testing.T) {
	storeContract(t, newRedisStore(t))
}

func TestRedisStore_ListEmpty(t *testing.T) {
	list, err := newRedisStore(t).List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.HistoryConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, store.Save(ctx, sampleRecord("x", time.Now())))
	_, err = store.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	mr := miniredis.RunT(t)
	store, err = Open(ctx, config.HistoryConfig{Driver: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open(ctx, config.HistoryConfig{Driver: "sqlite", Database: config.DatabaseConfig{Name: ":memory:", MaxOpenConns: 1}}, nil)
	require.NoError(t, err)
	require.IsType(t, &GormStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, config.HistoryConfig{Driver: "mongodb"}, nil)
	assert.Error(t, err)
}

func TestFromFlowResult(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	res := &workflow.FlowResult{
		RunID:  "run-42",
		Flow:   "report_flow",
		Status: workflow.FlowFailed,
		Steps: map[string]*workflow.StepOutcome{
			"news_crew_kickoff":       {Step: "news_crew_kickoff", Status: workflow.StepFailed, Attempts: 3, Error: "exhausted"},
			"visualizer_crew_kickoff": {Step: "visualizer_crew_kickoff", Status: workflow.StepSucceeded, Attempts: 1},
			"report_crew_kickoff":     {Step: "report_crew_kickoff", Status: workflow.StepSkipped},
		},
		Order:     []string{"visualizer_crew_kickoff", "news_crew_kickoff"},
		StartedAt: start,
		EndedAt:   start.Add(time.Minute),
	}

	rec := FromFlowResult(res, []string{"visualizer_crew_kickoff", "news_crew_kickoff", "report_crew_kickoff"}, "")
	assert.Equal(t, "failed", rec.Status)
	assert.Equal(t, time.Minute, rec.Duration)
	require.Len(t, rec.Steps, 3)
	assert.Equal(t, []string{"visualizer_crew_kickoff", "news_crew_kickoff", "report_crew_kickoff"},
		[]string{rec.Steps[0].Step, rec.Steps[1].Step, rec.Steps[2].Step})
	assert.Equal(t, "skipped", rec.Steps[2].Status)
	assert.Equal(t, "exhausted", rec.Steps[1].Error)
}
