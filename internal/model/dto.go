package model

import "time"

// SessionSummary is the history row shown to operators.
type SessionSummary struct {
	ID       string        `json:"id"`
	RunAt    time.Time     `json:"run_at"`
	Sandbox  bool          `json:"sandbox"`
	Source   string        `json:"source,omitempty"`
	Counts   SessionCounts `json:"counts"`
	ClosedAt *time.Time    `json:"closed_at,omitempty"`
}

func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:       s.ID,
		RunAt:    s.RunAt,
		Sandbox:  s.Sandbox,
		Source:   s.Source,
		Counts:   s.Counts(),
		ClosedAt: s.ClosedAt,
	}
}

type SessionResponse struct {
	Counts  SessionCounts `json:"counts"`
	Session *Session      `json:"session"`
}

type ForceApplyResponse struct {
	// Outcome is null when the row had nothing left to change.
	Outcome *Outcome        `json:"outcome"`
	Session SessionResponse `json:"session"`
}

type QueuedImportResponse struct {
	Message string    `json:"message"`
	Job     ImportJob `json:"job"`
}
