package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/store"
)

// mockStore implements store.Store over a fixed run list.
type mockStore struct {
	runs    []model.Run
	listErr error
	filters []store.RunFilter
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockStore) CreateRun(context.Context, string) (*model.Run, error)        { return nil, nil }
func (m *mockStore) CompleteRun(context.Context, string, *model.RunSummary) error { return nil }
func (m *mockStore) FailRun(context.Context, string, error) error                 { return nil }
func (m *mockStore) GetRun(context.Context, string) (*model.Run, error)           { return nil, nil }
func (m *mockStore) Migrate(context.Context) error                                { return nil }
func (m *mockStore) Close() error                                                 { return nil }

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.RunsFailed)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusComplete, StartedAt: now.Add(-1 * time.Hour),
				Summary: &model.RunSummary{Events: 10, Warnings: []string{"postgres: connection refused"}}},
			{ID: "2", Status: model.RunStatusComplete, StartedAt: now.Add(-2 * time.Hour),
				Summary: &model.RunSummary{Events: 4}},
			{ID: "3", Status: model.RunStatusFailed, StartedAt: now.Add(-3 * time.Hour), Error: "filter wildfire_events: boom"},
			{ID: "4", Status: model.RunStatusRunning, StartedAt: now.Add(-30 * time.Minute)},
			// Outside the lookback window.
			{ID: "5", Status: model.RunStatusFailed, StartedAt: now.Add(-48 * time.Hour)},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.Equal(t, 1, snap.Warnings)
	assert.InDelta(t, 7.0, snap.AvgEvents, 0.001)

	require.Len(t, st.filters, 1)
	assert.Equal(t, snapshotLimit, st.filters[0].Limit)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{runs: []model.Run{
		{ID: "1", Status: model.RunStatusRunning, StartedAt: now},
	}}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
}

func TestCollector_ListError(t *testing.T) {
	st := &mockStore{listErr: errors.New("db down")}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestCollector_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	ok, err := st.CreateRun(ctx, `{"predicate":"NAME = 'A'"}`)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, ok.ID, &model.RunSummary{RunID: ok.ID, Events: 3}))

	bad, err := st.CreateRun(ctx, `{}`)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, bad.ID, errors.New("join wildfire_with_padus: boom")))

	snap, err := NewCollector(st).Collect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.InDelta(t, 0.5, snap.FailRate, 0.001)
}
