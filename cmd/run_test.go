package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-cli/internal/config"
	"github.com/sells-group/wildfire-cli/internal/model"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	err := printSummary(&buf, &model.RunSummary{
		RunID:  "r1",
		ROI:    "selected_ecoregions_layer",
		Events: 2,
		Layers: []string{"selected_ecoregions_layer", "wildfire_with_padus"},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"run_id": "r1"`)
	assert.Contains(t, buf.String(), `"events": 2`)
}

func TestSendRunAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg = &config.Config{Monitor: config.MonitoringConfig{WebhookURL: ts.URL}}
	sendRunAlerts(context.Background(), &model.RunSummary{RunID: "r1"}, errors.New("boom"))
	assert.Equal(t, int32(1), received.Load())

	// A clean run sends nothing.
	sendRunAlerts(context.Background(), &model.RunSummary{RunID: "r2"}, nil)
	assert.Equal(t, int32(1), received.Load())
}

func TestSendRunAlerts_NoWebhook(t *testing.T) {
	cfg = &config.Config{}
	assert.NotPanics(t, func() {
		sendRunAlerts(context.Background(), nil, errors.New("boom"))
	})
}

func TestApplyRunFlags_Workspace(t *testing.T) {
	cfg = &config.Config{Export: config.ExportConfig{Dir: "out"}}
	assert.Equal(t, "out", cfg.WorkspaceDir())

	f := runCmd.Flags()
	require.NoError(t, f.Set("workspace", "/data/ws"))
	defer func() {
		_ = f.Set("workspace", "")
		f.Lookup("workspace").Changed = false
	}()

	applyRunFlags(runCmd)
	assert.Equal(t, "/data/ws", cfg.Workspace.Dir)
	assert.Equal(t, "/data/ws", cfg.WorkspaceDir())
	assert.Equal(t, "out", cfg.Export.Dir)
}
