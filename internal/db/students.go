package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"

	"github.com/rs/zerolog"
)

const studentColumns = `id, student_identifier, name, birth_date, case_filed, exam_results`

type StudentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStudentRepository(db *sql.DB) *StudentRepository {
	return &StudentRepository{db: db, log: logger.Component("students")}
}

func (r *StudentRepository) FindByIdentifier(ctx context.Context, identifier string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE student_identifier = ? ORDER BY id LIMIT 2`

	rows, err := r.db.QueryContext(ctx, query, identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*model.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, student)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, errors.ErrStudentNotFound
	}
	if len(found) > 1 {
		r.log.Warn().
			Str("student_id", identifier).
			Int64("using_key", found[0].Key).
			Int64("duplicate_key", found[1].Key).
			Msg("Student identifier is not unique")
	}

	return found[0], nil
}

func (r *StudentRepository) Get(ctx context.Context, key int64) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = ?`

	student, err := scanStudent(r.db.QueryRowContext(ctx, query, key))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrStudentNotFound
	}
	return student, err
}

func (r *StudentRepository) SaveExamResults(ctx context.Context, key int64, results []model.ExamResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode exam results: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE students SET exam_results = ? WHERE id = ?`, string(data), key)
	return err
}

func (r *StudentRepository) MarkCaseFiled(ctx context.Context, key int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE students SET case_filed = 1 WHERE id = ?`, key)
	return err
}

// Create inserts a student and sets its Key. The back office owns student
// creation; this exists for seeding local databases.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	results := s.ExamResults
	if results == nil {
		results = []model.ExamResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode exam results: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO students (student_identifier, name, birth_date, case_filed, exam_results) VALUES (?, ?, ?, ?, ?)`,
		nullString(s.Identifier), nullString(s.Name), nullString(s.BirthDate), s.CaseFiled, string(data))
	if err != nil {
		return err
	}

	key, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.Key = key
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row rowScanner) (*model.Student, error) {
	var (
		s          model.Student
		identifier sql.NullString
		name       sql.NullString
		birthDate  sql.NullString
		results    sql.NullString
	)

	if err := row.Scan(&s.Key, &identifier, &name, &birthDate, &s.CaseFiled, &results); err != nil {
		return nil, err
	}

	s.Identifier = identifier.String
	s.Name = name.String
	s.BirthDate = birthDate.String

	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &s.ExamResults); err != nil {
			return nil, fmt.Errorf("failed to decode exam results of student %d: %w", s.Key, err)
		}
	}

	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
