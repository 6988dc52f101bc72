package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/config"
	"github.com/sells-group/wildfire-cli/internal/enrich"
	"github.com/sells-group/wildfire-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed            AlertType = "run_failed"
	AlertRunFailureRate       AlertType = "run_failure_rate"
	AlertRegistrationWarnings AlertType = "registration_warnings"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns run outcomes and history snapshots into alerts and sends
// them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// EvaluateRun returns the alerts for one finished run: a failure, or
// registrations that failed after a successful export.
func (a *Alerter) EvaluateRun(summary *model.RunSummary, runErr error) []Alert {
	now := time.Now().UTC()
	runID := ""
	if summary != nil {
		runID = summary.RunID
	}

	if runErr != nil {
		details := map[string]any{"run_id": runID, "error": runErr.Error()}
		var se *enrich.StageError
		if errors.As(runErr, &se) {
			details["stage"] = string(se.Stage)
			details["dataset"] = se.Dataset
		}
		return []Alert{{
			Type:      AlertRunFailed,
			Severity:  "high",
			Message:   fmt.Sprintf("Enrichment run %s failed: %v", runID, runErr),
			Details:   details,
			Timestamp: now,
		}}
	}

	if summary != nil && len(summary.Warnings) > 0 {
		return []Alert{{
			Type:     AlertRegistrationWarnings,
			Severity: "low",
			Message: fmt.Sprintf("Enrichment run %s completed with %d layer registration warning(s)",
				runID, len(summary.Warnings)),
			Details: map[string]any{
				"run_id":   runID,
				"warnings": summary.Warnings,
			},
			Timestamp: now,
		}}
	}
	return nil
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check run failure rate.
	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= 5 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
