package reconcile

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"driving-school-admin/internal/db"
	"driving-school-admin/internal/metrics"
	"driving-school-admin/internal/model"
	"driving-school-admin/internal/review"
	"driving-school-admin/internal/testutil"
	"driving-school-admin/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

var examHeader = []interface{}{"Student ID", "Birth date", "Subject", "Exam date", "Result", "Location"}

func sheet(name string, rows ...[]interface{}) testutil.Sheet {
	return testutil.Sheet{Name: name, Rows: append([][]interface{}{examHeader}, rows...)}
}

// fullExport exercises every category, including rows for an unknown
// student and a cancellation of an exam nobody booked.
func fullExport(t *testing.T) *bytes.Reader {
	return testutil.Workbook(t,
		sheet("Booked exams",
			[]interface{}{"A1", "2000.01.01.", "Theory", "2025.05.01. 10:00", "", "Budapest"},
			[]interface{}{"B2", "1995.05.05.", "Driving", "2025.05.02. 08:00", "", "Szeged"},
			[]interface{}{"Z9", "1980.01.01.", "Theory", "2025.05.01. 10:00", "", ""},
		),
		sheet("Exam results",
			[]interface{}{"A1", "2000.01.01.", "Theory", "2025.05.01. 10:00", "Passed", "Budapest"},
		),
		sheet("Cancelled exams",
			[]interface{}{"B2", "1995.05.05.", "Driving", "2025.05.02. 08:00", "", ""},
			[]interface{}{"A1", "2000.01.01.", "Parking", "2025.07.01. 10:00", "", ""},
		),
		testutil.Sheet{Name: "Case filings", Rows: [][]interface{}{
			{"Student ID", "Birth date"},
			{"A1", "2000.01.01."},
			{"Z9", ""},
		}},
	)
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

type failingStore struct {
	*db.MemoryStudentStore
	err error
}

func (f failingStore) SaveExamResults(ctx context.Context, key int64, results []model.ExamResult) error {
	return f.err
}

type ImporterSuite struct {
	suite.Suite
	ctx      context.Context
	students *db.MemoryStudentStore
	sessions *db.SessionRepository
	reviews  *review.MemoryStore
	metrics  *metrics.Metrics
	importer *Importer
	a1, b2   int64
}

func TestImporterSuite(t *testing.T) {
	suite.Run(t, new(ImporterSuite))
}

func (s *ImporterSuite) SetupTest() {
	s.ctx = context.Background()

	s.students = db.NewMemoryStudentStore()
	s.a1 = s.students.Add(model.Student{Identifier: "A1", Name: "Anna", BirthDate: "2000.01.01."})
	s.b2 = s.students.Add(model.Student{Identifier: "B2", Name: "Bela", BirthDate: "1995.05.05."})

	s.sessions = db.NewSessionRepository(testutil.SQLite(s.T()))

	s.reviews = review.NewMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.importer = s.newImporter(s.students)
}

func (s *ImporterSuite) newImporter(store db.StudentStore) *Importer {
	imp := NewImporter(store, s.sessions, s.reviews, Options{Metrics: s.metrics})
	c := &clock{t: time.Date(2025, 4, 30, 8, 0, 0, 0, time.UTC)}
	imp.now = c.now
	return imp
}

func (s *ImporterSuite) run(data *bytes.Reader, sandbox bool) *model.Session {
	session, err := s.importer.Run(s.ctx, Request{Workbook: data, Source: "export.xlsx", Sandbox: sandbox})
	s.Require().NoError(err)
	s.Require().NotNil(session)
	return session
}

func (s *ImporterSuite) student(key int64) *model.Student {
	st, err := s.students.Get(s.ctx, key)
	s.Require().NoError(err)
	return st
}

func (s *ImporterSuite) TestFullExport() {
	session := s.run(fullExport(s.T()), false)

	s.Equal(model.SessionCounts{Created: 2, Updated: 2, Skipped: 1, Errors: 1, CaseFiled: 1}, session.Counts())
	s.Equal("Theory", session.Created[0].Subject)
	s.Equal("Driving", session.Created[1].Subject)
	s.Equal(model.CategoryResult, session.Updated[0].Category)
	s.Equal(model.CategoryCancelled, session.Updated[1].Category)
	s.Equal("Z9", session.Errors[0].StudentID)
	s.Equal("student not found", session.Errors[0].Reason)
	s.Equal(model.CategoryCaseFiled, session.Skipped[0].Category)
	s.Equal([]string{"A1"}, session.CaseFiled)

	a1 := s.student(s.a1)
	s.True(a1.CaseFiled)
	s.Require().Len(a1.ExamResults, 1, "cancelling an unbooked exam writes nothing")
	s.Equal(model.Recorded("Passed"), a1.ExamResults[0].Result)
	s.Equal("Budapest", a1.ExamResults[0].Location)

	b2 := s.student(s.b2)
	s.Require().Len(b2.ExamResults, 1)
	s.True(b2.ExamResults[0].Result.IsCancelled())

	s.Equal(2.0, promtest.ToFloat64(s.metrics.ImportOutcomes.WithLabelValues("booked", "created")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ImportRuns.WithLabelValues("normal", "ok")))
}

func (s *ImporterSuite) TestSecondRunChangesNothing() {
	s.run(fullExport(s.T()), false)
	a1, b2 := s.student(s.a1), s.student(s.b2)

	session := s.run(fullExport(s.T()), false)

	s.Equal(model.SessionCounts{Skipped: 5, Errors: 1}, session.Counts())
	s.Equal(a1, s.student(s.a1))
	s.Equal(b2, s.student(s.b2))
}

func (s *ImporterSuite) TestResultLifecycleAcrossRuns() {
	booked := func() *bytes.Reader {
		return testutil.Workbook(s.T(), sheet("Booked",
			[]interface{}{"A1", "2000.01.01.", "Theory", "2025.05.01. 10:00", "Scheduled", ""},
		))
	}
	passed := func() *bytes.Reader {
		return testutil.Workbook(s.T(), sheet("Results",
			[]interface{}{"A1", "2000.01.01.", "Theory", "2025.05.01. 10:00", "Passed", ""},
		))
	}

	first := s.run(booked(), false)
	s.Require().Len(first.Created, 1)
	s.Equal(model.PendingLabel, first.Created[0].Result)

	second := s.run(passed(), false)
	s.Require().Len(second.Updated, 1)
	s.Equal("Passed", second.Updated[0].Result)

	third := s.run(passed(), false)
	s.Require().Len(third.Skipped, 1)
	s.Equal("already has a result", third.Skipped[0].Reason)
	s.Equal("Passed", third.Skipped[0].Existing)
}

func (s *ImporterSuite) mismatchExport() *bytes.Reader {
	return testutil.Workbook(s.T(), sheet("Booked exams",
		[]interface{}{"A1", "1999.01.01.", "Theory", "2025.05.01. 10:00", "Scheduled", ""},
	))
}

func (s *ImporterSuite) TestConflictWaitsForOperator() {
	session := s.run(s.mismatchExport(), false)

	s.Empty(session.Created)
	s.Require().Len(session.Conflicts, 1)
	conflict := session.Conflicts[0]
	s.Equal("birth date mismatch", conflict.Reason)
	s.Equal("1999.01.01.", conflict.RowBirthDate)
	s.Equal("2000.01.01.", conflict.StoredBirthDate)
	s.Equal(s.a1, conflict.StudentKey)
	s.Empty(s.student(s.a1).ExamResults, "a conflict row never writes on its own")

	logged, err := s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Len(logged.Conflicts, 1, "sessions with open conflicts are logged right away")

	updated, outcome, err := s.importer.ForceApply(s.ctx, session.ID, conflict.ID)
	s.Require().NoError(err)
	s.Require().NotNil(outcome)
	s.Equal(model.OutcomeCreated, outcome.Status)
	s.True(outcome.Forced)
	s.Equal("Theory", outcome.Subject)
	s.Equal("2025.05.01. 10:00", outcome.Date)
	s.Equal(model.PendingLabel, outcome.Result)
	s.Empty(updated.Conflicts)
	s.Len(updated.Created, 1)

	a1 := s.student(s.a1)
	s.Require().Len(a1.ExamResults, 1)
	s.Equal(model.Pending(), a1.ExamResults[0].Result)

	_, _, err = s.importer.ForceApply(s.ctx, session.ID, conflict.ID)
	s.ErrorIs(err, errors.ErrConflictNotFound)
	s.Len(s.student(s.a1).ExamResults, 1)

	logged, err = s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().Len(logged.Created, 1)
	s.True(logged.Created[0].Forced)
	s.Empty(logged.Conflicts)
}

func (s *ImporterSuite) TestUnreadableBirthDateIsAConflict() {
	session := s.run(testutil.Workbook(s.T(), sheet("Results",
		[]interface{}{"A1", "sometime in 2000", "Theory", "2025.05.01. 10:00", "Passed", ""},
	)), false)

	s.Require().Len(session.Conflicts, 1)
	s.Equal("birth date could not be read", session.Conflicts[0].Reason)
	s.Equal("sometime in 2000", session.Conflicts[0].RowBirthDate)
}

func (s *ImporterSuite) TestDiscardClosesSession() {
	session := s.run(s.mismatchExport(), false)

	closed, err := s.importer.Discard(s.ctx, session.ID)
	s.Require().NoError(err)
	s.NotNil(closed.ClosedAt)
	s.Empty(closed.Conflicts)

	_, _, err = s.importer.ForceApply(s.ctx, session.ID, session.Conflicts[0].ID)
	s.ErrorIs(err, errors.ErrSessionClosed)

	_, err = s.importer.Discard(s.ctx, session.ID)
	s.ErrorIs(err, errors.ErrSessionClosed)

	got, err := s.importer.Session(s.ctx, session.ID)
	s.Require().NoError(err)
	s.True(got.IsClosed())
	s.Empty(s.student(s.a1).ExamResults)
}

func (s *ImporterSuite) TestConflictsOutliveTheReviewStore() {
	session := s.run(s.mismatchExport(), false)
	s.Require().Len(session.Conflicts, 1)
	conflict := session.Conflicts[0]

	// A later process starts with an empty in-process review store.
	s.reviews = review.NewMemoryStore()
	s.importer = s.newImporter(s.students)

	got, err := s.importer.Session(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Len(got.Conflicts, 1)

	updated, outcome, err := s.importer.ForceApply(s.ctx, session.ID, conflict.ID)
	s.Require().NoError(err)
	s.Require().NotNil(outcome)
	s.Equal(model.OutcomeCreated, outcome.Status)
	s.True(outcome.Forced)
	s.Empty(updated.Conflicts)
	s.Len(s.student(s.a1).ExamResults, 1)

	_, _, err = s.importer.ForceApply(s.ctx, session.ID, conflict.ID)
	s.ErrorIs(err, errors.ErrConflictNotFound)
	s.Len(s.student(s.a1).ExamResults, 1)

	logged, err := s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Empty(logged.Conflicts)
	s.Require().Len(logged.Created, 1)
	s.True(logged.Created[0].Forced)

	_, err = s.importer.Discard(s.ctx, session.ID)
	s.Require().NoError(err)
	_, err = s.importer.Discard(s.ctx, session.ID)
	s.ErrorIs(err, errors.ErrSessionClosed)
}

func (s *ImporterSuite) TestSandboxForceApplySeesEarlierRows() {
	session := s.run(testutil.Workbook(s.T(),
		sheet("Booked exams",
			[]interface{}{"A1", "2000.01.01.", "Theory", "2025.05.01. 10:00", "", ""},
		),
		sheet("Cancelled exams",
			[]interface{}{"A1", "1999.01.01.", "Theory", "2025.05.01. 10:00", "", ""},
		),
	), true)
	s.Require().Len(session.Created, 1)
	s.Require().Len(session.Conflicts, 1)
	s.Equal(model.CategoryCancelled, session.Conflicts[0].Category)

	updated, outcome, err := s.importer.ForceApply(s.ctx, session.ID, session.Conflicts[0].ID)
	s.Require().NoError(err)
	s.Require().NotNil(outcome, "the cancellation finds the exam booked by the same run")
	s.Equal(model.OutcomeUpdated, outcome.Status)
	s.Equal(model.PendingLabel, outcome.Existing)
	s.Equal(model.CancelledLabel, outcome.Result)
	s.True(outcome.Forced)
	s.Require().Len(updated.Updated, 1)
	s.Greater(updated.Updated[0].Seq, updated.Created[0].Seq)

	s.Empty(s.student(s.a1).ExamResults, "sandbox writes stay out of the store")
}

func (s *ImporterSuite) TestUnknownSession() {
	_, _, err := s.importer.ForceApply(s.ctx, "missing", "missing")
	s.ErrorIs(err, errors.ErrSessionNotFound)

	_, err = s.importer.Discard(s.ctx, "missing")
	s.ErrorIs(err, errors.ErrSessionNotFound)

	_, err = s.importer.Session(s.ctx, "missing")
	s.ErrorIs(err, errors.ErrSessionNotFound)
}

func (s *ImporterSuite) TestSandboxLeavesStudentsUntouched() {
	session := s.run(fullExport(s.T()), true)

	s.True(session.Sandbox)
	s.Equal(model.SessionCounts{Created: 2, Updated: 2, Skipped: 1, Errors: 1, CaseFiled: 1}, session.Counts(),
		"a sandbox run sees its own writes")

	s.Empty(s.student(s.a1).ExamResults)
	s.False(s.student(s.a1).CaseFiled)
	s.Empty(s.student(s.b2).ExamResults)

	history, err := s.importer.History(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.True(history[0].Sandbox)
}

func (s *ImporterSuite) TestHistoryKeepsNewestFive() {
	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, s.run(fullExport(s.T()), false).ID)
	}

	history, err := s.importer.History(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(history, 5)
	s.Equal(ids[6], history[0].ID)
	s.Equal(ids[2], history[4].ID)

	_, err = s.sessions.Get(s.ctx, ids[0])
	s.ErrorIs(err, errors.ErrSessionNotFound)
}

func (s *ImporterSuite) TestInvalidWorkbookFailsRun() {
	session, err := s.importer.Run(s.ctx, Request{Workbook: strings.NewReader("not a workbook")})
	s.Nil(session)
	s.ErrorIs(err, errors.ErrInvalidWorkbook)

	history, err := s.importer.History(s.ctx)
	s.Require().NoError(err)
	s.Empty(history)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ImportRuns.WithLabelValues("normal", "failed")))
}

func (s *ImporterSuite) TestCancelledContextStopsBeforeRows() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	session, err := s.importer.Run(ctx, Request{Workbook: fullExport(s.T())})
	s.ErrorIs(err, context.Canceled)
	s.Require().NotNil(session)
	s.Equal(model.SessionCounts{}, session.Counts())
	s.Empty(s.student(s.a1).ExamResults)

	history, err := s.importer.History(s.ctx)
	s.Require().NoError(err)
	s.Len(history, 1, "the partial session is still logged")
}

func (s *ImporterSuite) TestStoreFailureBecomesRowError() {
	broken := failingStore{MemoryStudentStore: s.students, err: stderrors.New("connection reset")}
	s.importer = s.newImporter(broken)

	session := s.run(testutil.Workbook(s.T(), sheet("Booked",
		[]interface{}{"A1", "2000.01.01.", "Theory", "2025.05.01. 10:00", "", ""},
		[]interface{}{"B2", "1995.05.05.", "Driving", "2025.05.02. 08:00", "", ""},
	)), false)

	s.Require().Len(session.Errors, 2, "the run continues after a failed write")
	s.Contains(session.Errors[0].Reason, "connection reset")
	s.Empty(s.student(s.a1).ExamResults)
}
