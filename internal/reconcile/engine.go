package reconcile

import (
	"context"
	"fmt"
	"time"

	"driving-school-admin/internal/db"
	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"
)

const (
	reasonHasResult        = "already has a result"
	reasonAlreadyCancelled = "already cancelled"
)

// Engine applies the per-category upsert rules to one matched student.
type Engine struct {
	store db.StudentStore
	now   func() time.Time
}

func NewEngine(store db.StudentStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Apply reconciles one row against student. It returns nil when the row
// produces no outcome: a cancellation of an exam that was never booked, or
// a case filing that is already recorded. A returned error is a store
// failure; the student was not changed.
func (e *Engine) Apply(ctx context.Context, category model.Category, row model.Row, student *model.Student) (*model.Outcome, error) {
	outcome := &model.Outcome{
		Category:  category,
		Sheet:     row.Sheet,
		Row:       row.Number,
		StudentID: row.Identifier,
		Subject:   row.Subject,
		Date:      row.EventDate,
		Location:  row.Location,
	}

	switch category {
	case model.CategoryBooked, model.CategoryResult:
		return e.applyExam(ctx, row, student, outcome)
	case model.CategoryCancelled:
		return e.applyCancellation(ctx, row, student, outcome)
	case model.CategoryCaseFiled:
		return e.applyCaseFiled(ctx, student, outcome)
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
}

func (e *Engine) applyExam(ctx context.Context, row model.Row, student *model.Student, outcome *model.Outcome) (*model.Outcome, error) {
	outcome.Result = row.Result.String()
	if err := validateExamRow(row); err != nil {
		outcome.Status = model.OutcomeError
		outcome.Reason = err.Error()
		return outcome, nil
	}

	results := append([]model.ExamResult(nil), student.ExamResults...)
	idx := student.FindExam(row.Subject, row.EventDate)

	switch {
	case idx < 0:
		results = append(results, model.ExamResult{
			Subject:    row.Subject,
			Date:       row.EventDate,
			Result:     row.Result,
			Location:   row.Location,
			ImportedAt: e.now(),
		})
		outcome.Status = model.OutcomeCreated

	case !results[idx].Result.IsConcrete() && row.Result.IsConcrete():
		results[idx].Result = row.Result
		results[idx].ImportedAt = e.now()
		outcome.Status = model.OutcomeUpdated
		outcome.Existing = model.PendingLabel

	default:
		outcome.Status = model.OutcomeSkipped
		outcome.Reason = reasonHasResult
		outcome.Existing = results[idx].Result.String()
		return outcome, nil
	}

	if err := e.store.SaveExamResults(ctx, student.Key, results); err != nil {
		return nil, err
	}
	student.ExamResults = results
	return outcome, nil
}

func (e *Engine) applyCancellation(ctx context.Context, row model.Row, student *model.Student, outcome *model.Outcome) (*model.Outcome, error) {
	outcome.Result = model.CancelledLabel
	if err := validateExamRow(row); err != nil {
		outcome.Status = model.OutcomeError
		outcome.Reason = err.Error()
		return outcome, nil
	}

	idx := student.FindExam(row.Subject, row.EventDate)
	if idx < 0 {
		return nil, nil
	}

	existing := student.ExamResults[idx].Result
	outcome.Existing = existing.String()
	if existing.IsCancelled() {
		outcome.Status = model.OutcomeSkipped
		outcome.Reason = reasonAlreadyCancelled
		return outcome, nil
	}

	results := append([]model.ExamResult(nil), student.ExamResults...)
	results[idx].Result = model.Cancelled()
	results[idx].ImportedAt = e.now()

	if err := e.store.SaveExamResults(ctx, student.Key, results); err != nil {
		return nil, err
	}
	student.ExamResults = results
	outcome.Status = model.OutcomeUpdated
	return outcome, nil
}

func (e *Engine) applyCaseFiled(ctx context.Context, student *model.Student, outcome *model.Outcome) (*model.Outcome, error) {
	if student.CaseFiled {
		return nil, nil
	}
	if err := e.store.MarkCaseFiled(ctx, student.Key); err != nil {
		return nil, err
	}
	student.CaseFiled = true
	outcome.Status = model.OutcomeUpdated
	return outcome, nil
}

func validateExamRow(row model.Row) error {
	if row.Subject == "" {
		return errors.ValidationError{Field: "subject", Value: row.Subject, Message: "subject is required"}
	}
	if row.EventDate == "" {
		return errors.ValidationError{Field: "exam date", Value: row.EventDate, Message: "exam date is required"}
	}
	return nil
}
