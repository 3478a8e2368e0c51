package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Student is the slice of the student document the import engine reads
// and writes. Everything else on the document belongs to other parts of
// the back office.
type Student struct {
	Key         int64        `json:"key" db:"id"`
	Identifier  string       `json:"student_id,omitempty" db:"student_identifier"`
	Name        string       `json:"name,omitempty" db:"name"`
	BirthDate   string       `json:"birth_date,omitempty" db:"birth_date"`
	CaseFiled   bool         `json:"case_filed" db:"case_filed"`
	ExamResults []ExamResult `json:"exam_results" db:"exam_results"`
}

// FindExam returns the index of the entry with the given de-duplication
// key, or -1.
func (s *Student) FindExam(subject, date string) int {
	for i, r := range s.ExamResults {
		if r.Subject == subject && r.Date == date {
			return i
		}
	}
	return -1
}

type ExamResult struct {
	Subject    string      `json:"subject"`
	Date       string      `json:"date"`
	Result     ResultState `json:"result"`
	Location   string      `json:"location,omitempty"`
	ImportedAt time.Time   `json:"imported_at"`
}

type ResultKind int

const (
	ResultPending ResultKind = iota
	ResultRecorded
	ResultCancelled
)

// Labels used by the exam authority export and by the other consumers of
// the student store.
const (
	PendingLabel   = "Scheduled"
	CancelledLabel = "Cancelled"
)

// ResultState is the outcome of one exam: pending (booked, no result yet),
// a recorded result text, or cancelled.
type ResultState struct {
	Kind  ResultKind
	Value string
}

func Pending() ResultState { return ResultState{Kind: ResultPending} }

func Cancelled() ResultState { return ResultState{Kind: ResultCancelled} }

func Recorded(value string) ResultState {
	return ResultState{Kind: ResultRecorded, Value: value}
}

// ParseResult maps a raw cell to a ResultState. Blank cells and the
// placeholder label are pending.
func ParseResult(raw string) ResultState {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "", strings.EqualFold(raw, PendingLabel):
		return Pending()
	case strings.EqualFold(raw, CancelledLabel):
		return Cancelled()
	default:
		return Recorded(raw)
	}
}

// IsConcrete is false only for pending results.
func (r ResultState) IsConcrete() bool {
	return r.Kind != ResultPending
}

func (r ResultState) IsCancelled() bool {
	return r.Kind == ResultCancelled
}

func (r ResultState) String() string {
	switch r.Kind {
	case ResultPending:
		return PendingLabel
	case ResultCancelled:
		return CancelledLabel
	default:
		return r.Value
	}
}

func (r ResultState) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *ResultState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ParseResult(raw)
	return nil
}
