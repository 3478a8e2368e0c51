package model

import "time"

// ImportJob asks an import worker to run a workbook that was uploaded to
// object storage.
type ImportJob struct {
	ID         string    `json:"id"`
	ObjectKey  string    `json:"object_key"`
	Source     string    `json:"source"`
	Sandbox    bool      `json:"sandbox"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
