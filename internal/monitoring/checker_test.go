package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-cli/internal/config"
	"github.com/sells-group/wildfire-cli/internal/model"
)

func failingRuns(n int) []model.Run {
	now := time.Now().UTC()
	runs := make([]model.Run, 0, n)
	for i := range n {
		runs = append(runs, model.Run{
			ID:        string(rune('a' + i)),
			Status:    model.RunStatusFailed,
			StartedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	return runs
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{CheckIntervalSecs: 0})
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check_SendsFailureRateAlert(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.2,
		LookbackWindowHours:  24,
	}
	checker := NewChecker(NewCollector(&mockStore{runs: failingRuns(6)}), NewAlerter(cfg), cfg)

	alerts, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_Check_Healthy(t *testing.T) {
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.2, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	alerts, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestChecker_Check_CollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{listErr: errors.New("db down")}), NewAlerter(cfg), cfg)

	_, err := checker.Check(context.Background())
	require.Error(t, err)
}
