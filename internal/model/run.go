package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStats counts records through each pipeline stage.
type RunStats struct {
	Sources    int     `json:"sources"`
	Queries    int     `json:"queries"`
	Hits       int     `json:"hits"`
	Normalized int     `json:"normalized"`
	Deduped    int     `json:"deduped"`
	Enriched   int     `json:"enriched"`
	Geocoded   int     `json:"geocoded"`
	Scored     int     `json:"scored"`
	TopScore   float64 `json:"top_score"`
}

// Run records one execution of the sourcing pipeline. ConfigHash ties the
// run to the exact scoring configuration it used, so two runs' scores are
// only comparable when their hashes match.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Stats      RunStats   `json:"stats"`
	ConfigHash string     `json:"config_hash,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
