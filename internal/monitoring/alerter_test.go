package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-cli/internal/config"
	"github.com/sells-group/wildfire-cli/internal/enrich"
	"github.com/sells-group/wildfire-cli/internal/model"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		RunsTotal:     100,
		RunsComplete:  95,
		RunsFailed:    5,
		FailRate:      0.05,
		LookbackHours: 24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		RunsTotal:     20,
		RunsComplete:  12,
		RunsFailed:    8,
		FailRate:      0.4,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 20, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	// Only 3 finished runs, below the 5-run minimum.
	snap := &MetricsSnapshot{
		RunsTotal:     3,
		RunsComplete:  1,
		RunsFailed:    2,
		FailRate:      0.666,
		LookbackHours: 24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_EvaluateRun_Success(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Empty(t, a.EvaluateRun(&model.RunSummary{RunID: "r1", Events: 3}, nil))
}

func TestAlerter_EvaluateRun_StageError(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	runErr := &enrich.StageError{
		Stage:   enrich.StageExport,
		Dataset: "wildfire_with_padus",
		Err:     errors.New("disk full"),
	}

	alerts := a.EvaluateRun(&model.RunSummary{RunID: "r1"}, runErr)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailed, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Equal(t, "r1", alerts[0].Details["run_id"])
	assert.Equal(t, string(enrich.StageExport), alerts[0].Details["stage"])
	assert.Equal(t, "wildfire_with_padus", alerts[0].Details["dataset"])
	assert.Contains(t, alerts[0].Message, "disk full")
}

func TestAlerter_EvaluateRun_PlainError(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.EvaluateRun(nil, errors.New("boom"))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailed, alerts[0].Type)
	assert.NotContains(t, alerts[0].Details, "stage")
}

func TestAlerter_EvaluateRun_Warnings(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	summary := &model.RunSummary{
		RunID:    "r2",
		Warnings: []string{"register wildfire_with_padus: connection refused"},
	}

	alerts := a.EvaluateRun(summary, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRegistrationWarnings, alerts[0].Type)
	assert.Equal(t, "low", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "1 layer registration warning")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertRunFailed, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailed, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailed, Message: "test"}})
	assert.Equal(t, 0, sent)
}
