package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	finished := now.Add(2 * time.Minute)
	runs := []model.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Status:     model.RunStatusComplete,
			Summary:    &model.RunSummary{Events: 4, Exports: []string{"a.csv", "b.csv"}, Warnings: []string{"w"}},
			StartedAt:  now,
			FinishedAt: &finished,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusFailed,
			Error:     "region selected_ecoregions_layer: invalid predicate \"NAME = \": syntax error near end of input",
			StartedAt: now,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "region selected_ecoregions_layer")
	assert.Contains(t, output, "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatDatasets(t *testing.T) {
	var buf bytes.Buffer
	formatDatasets(&buf, []workspace.DatasetInfo{
		{Name: "wildfire_with_padus", Kind: model.KindEnriched, GeometryType: "Point", Rows: 4,
			Fields: []model.Field{{Name: "Category", Type: model.FieldText}}},
	})
	output := buf.String()
	assert.Contains(t, output, "wildfire_with_padus")
	assert.Contains(t, output, "enriched")
	assert.Contains(t, output, "Point")
}
