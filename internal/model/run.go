package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// LayerKind identifies what a registered map layer shows.
type LayerKind string

const (
	LayerROI    LayerKind = "roi"
	LayerEvents LayerKind = "events"
	LayerBuffer LayerKind = "buffer"
)

// Layer is a reference from a workspace dataset into a presentation context.
// Registering a layer never mutates the dataset it points at.
type Layer struct {
	Name      string    `json:"name" yaml:"name"`
	Kind      LayerKind `json:"kind" yaml:"kind"`
	Dataset   string    `json:"dataset" yaml:"dataset"`
	Workspace string    `json:"workspace" yaml:"workspace"`
	Path      string    `json:"path,omitempty" yaml:"path,omitempty"`
	Query     string    `json:"query,omitempty" yaml:"query,omitempty"`
}

// Run is one recorded invocation of the enrichment pipeline.
type Run struct {
	ID         string      `json:"id"`
	Status     RunStatus   `json:"status"`
	Params     string      `json:"params,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// TierSummary reports the outcome of one buffer distance tier.
type TierSummary struct {
	DistanceKM float64 `json:"distance_km"`
	Buffer     string  `json:"buffer"`
	Rows       int     `json:"rows"`
}

// EnrichedSummary reports the outcome of one spatial join.
type EnrichedSummary struct {
	Source    string `json:"source"`
	Dataset   string `json:"dataset"`
	Rows      int    `json:"rows"`
	Matched   int    `json:"matched"`
	Unmatched int    `json:"unmatched"`
}

// RunSummary describes everything a successful run produced.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	ROI       string            `json:"roi"`
	Regions   int               `json:"regions"`
	Filtered  string            `json:"filtered"`
	Events    int               `json:"events"`
	Tiers     []TierSummary     `json:"tiers"`
	Enriched  []EnrichedSummary `json:"enriched"`
	Exports   []string          `json:"exports"`
	LayerFile string            `json:"layer_file,omitempty"`
	Layers    []string          `json:"layers"`
	Warnings  []string          `json:"warnings,omitempty"`
}
