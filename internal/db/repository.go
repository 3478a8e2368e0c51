package db

import (
	"context"

	"driving-school-admin/internal/model"
)

// StudentStore is the part of the student store the import engine relies
// on. Every write touches one field of one student.
type StudentStore interface {
	// FindByIdentifier returns the first student with the identifier, or
	// errors.ErrStudentNotFound.
	FindByIdentifier(ctx context.Context, identifier string) (*model.Student, error)
	Get(ctx context.Context, key int64) (*model.Student, error)
	SaveExamResults(ctx context.Context, key int64, results []model.ExamResult) error
	MarkCaseFiled(ctx context.Context, key int64) error
}

// SessionLog is the append-only audit log of import sessions. Retention is
// enforced by the caller through Trim.
type SessionLog interface {
	Save(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Recent(ctx context.Context, limit int) ([]model.Session, error)
	Trim(ctx context.Context, keep int) (int64, error)
}
