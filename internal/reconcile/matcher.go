package reconcile

import (
	"context"
	stderrors "errors"
	"fmt"

	"driving-school-admin/internal/datefmt"
	"driving-school-admin/internal/db"
	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"
)

type MatchStatus int

const (
	Matched MatchStatus = iota
	NotFound
	VerificationFailed
)

func (s MatchStatus) String() string {
	switch s {
	case Matched:
		return "matched"
	case NotFound:
		return "not_found"
	case VerificationFailed:
		return "verification_failed"
	default:
		return "unknown"
	}
}

// Match is the result of looking a row up in the student store.
type Match struct {
	Status  MatchStatus
	Student *model.Student
	// RowBirthDate is the normalized cell, or the raw text when it could not
	// be read as a date.
	RowBirthDate    string
	StoredBirthDate string
	Reason          string
}

// Matcher resolves the natural key of a row to a student and checks the
// row's birth date against the record.
type Matcher struct {
	store db.StudentStore
}

func NewMatcher(store db.StudentStore) *Matcher {
	return &Matcher{store: store}
}

func (m *Matcher) Match(ctx context.Context, identifier string, birthDate datefmt.Value) (Match, error) {
	student, err := m.store.FindByIdentifier(ctx, identifier)
	if stderrors.Is(err, errors.ErrStudentNotFound) {
		return Match{Status: NotFound, Reason: reasonStudentNotFound}, nil
	}
	if err != nil {
		return Match{}, fmt.Errorf("failed to look up student %s: %w", identifier, err)
	}

	match := Match{Status: Matched, Student: student, StoredBirthDate: student.BirthDate}
	if birthDate.IsZero() {
		return match, nil
	}

	normalized, ok := datefmt.Normalize(birthDate)
	if !ok {
		match.Status = VerificationFailed
		match.RowBirthDate = birthDate.String()
		match.Reason = "birth date could not be read"
		return match, nil
	}

	match.RowBirthDate = normalized
	if normalized != student.BirthDate {
		match.Status = VerificationFailed
		match.Reason = "birth date mismatch"
	}

	return match, nil
}
