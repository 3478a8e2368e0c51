package model

import (
	"fmt"
	"time"

	"driving-school-admin/internal/datefmt"
)

type Category string

const (
	CategoryBooked    Category = "booked"
	CategoryResult    Category = "result"
	CategoryCancelled Category = "cancelled"
	CategoryCaseFiled Category = "case_filed"
)

// ProcessingOrder is the order in which an import applies categories.
// Cancellations must run after bookings and results of the same workbook
// have been written, otherwise they hit nothing.
var ProcessingOrder = []Category{
	CategoryBooked,
	CategoryResult,
	CategoryCancelled,
	CategoryCaseFiled,
}

type OutcomeStatus string

const (
	OutcomeCreated  OutcomeStatus = "created"
	OutcomeUpdated  OutcomeStatus = "updated"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeError    OutcomeStatus = "error"
	OutcomeConflict OutcomeStatus = "conflict"
)

// Row is one parsed worksheet row. It is kept verbatim on conflict items so
// a force-apply replays exactly what was read.
type Row struct {
	Sheet      string `json:"sheet"`
	Number     int    `json:"row"`
	Identifier string `json:"student_id"`
	// BirthDate is the raw birth-date cell; zero when the sheet has none.
	BirthDate datefmt.Value `json:"birth_date"`
	Subject   string        `json:"subject,omitempty"`
	// EventDate is already rendered with datefmt.EventTimestamp.
	EventDate string      `json:"event_date,omitempty"`
	Result    ResultState `json:"result"`
	Location  string      `json:"location,omitempty"`
}

type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	Category  Category      `json:"category"`
	Sheet     string        `json:"sheet,omitempty"`
	Row       int           `json:"row,omitempty"`
	StudentID string        `json:"student_id"`
	Subject   string        `json:"subject,omitempty"`
	Date      string        `json:"date,omitempty"`
	Result    string        `json:"result,omitempty"`
	Location  string        `json:"location,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Existing  string        `json:"existing,omitempty"`
	Forced    bool          `json:"forced,omitempty"`
	// Seq is the position of the outcome among everything its session
	// recorded, starting at 1.
	Seq int `json:"seq,omitempty"`
}

type ConflictItem struct {
	ID              string   `json:"id"`
	Category        Category `json:"category"`
	Row             Row      `json:"row"`
	Reason          string   `json:"reason"`
	RowBirthDate    string   `json:"row_birth_date"`
	StoredBirthDate string   `json:"stored_birth_date"`
	StudentKey      int64    `json:"student_key"`
	StudentName     string   `json:"student_name,omitempty"`
}

// Session aggregates the outcomes of one import run and any force-applied
// conflicts that follow it.
type Session struct {
	ID        string         `json:"id"`
	RunAt     time.Time      `json:"run_at"`
	Sandbox   bool           `json:"sandbox"`
	Source    string         `json:"source,omitempty"`
	Created   []Outcome      `json:"created"`
	Updated   []Outcome      `json:"updated"`
	Skipped   []Outcome      `json:"skipped"`
	Errors    []Outcome      `json:"errors"`
	CaseFiled []string       `json:"case_filed"`
	Conflicts []ConflictItem `json:"conflicts"`
	ClosedAt  *time.Time     `json:"closed_at,omitempty"`
}

// Record files an outcome into its bucket. A case filing that flipped the
// flag goes to CaseFiled. Conflict outcomes are tracked through Conflicts
// and are ignored here.
func (s *Session) Record(o Outcome) {
	o.Seq = len(s.Created) + len(s.Updated) + len(s.Skipped) + len(s.Errors) + len(s.CaseFiled) + 1
	if o.Category == CategoryCaseFiled && o.Status == OutcomeUpdated {
		s.CaseFiled = append(s.CaseFiled, o.StudentID)
		return
	}

	switch o.Status {
	case OutcomeCreated:
		s.Created = append(s.Created, o)
	case OutcomeUpdated:
		s.Updated = append(s.Updated, o)
	case OutcomeSkipped:
		s.Skipped = append(s.Skipped, o)
	case OutcomeError:
		s.Errors = append(s.Errors, o)
	}
}

// TakeConflict removes a pending conflict from the session and returns it.
func (s *Session) TakeConflict(id string) (ConflictItem, bool) {
	for i, c := range s.Conflicts {
		if c.ID == id {
			s.Conflicts = append(s.Conflicts[:i:i], s.Conflicts[i+1:]...)
			return c, true
		}
	}
	return ConflictItem{}, false
}

func (s *Session) IsClosed() bool {
	return s.ClosedAt != nil
}

type SessionCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
	Conflicts int `json:"conflicts"`
	CaseFiled int `json:"case_filed"`
}

func (s *Session) Counts() SessionCounts {
	return SessionCounts{
		Created:   len(s.Created),
		Updated:   len(s.Updated),
		Skipped:   len(s.Skipped),
		Errors:    len(s.Errors),
		Conflicts: len(s.Conflicts),
		CaseFiled: len(s.CaseFiled),
	}
}

func (c SessionCounts) String() string {
	return fmt.Sprintf("created=%d updated=%d skipped=%d errors=%d conflicts=%d case_filed=%d",
		c.Created, c.Updated, c.Skipped, c.Errors, c.Conflicts, c.CaseFiled)
}
