package worker

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"testing"

	"driving-school-admin/internal/db"
	"driving-school-admin/internal/model"
	"driving-school-admin/internal/reconcile"
	"driving-school-admin/internal/review"
	"driving-school-admin/internal/storage"
	"driving-school-admin/internal/testutil"
	"driving-school-admin/pkg/errors"

	"github.com/stretchr/testify/suite"
)

type fakeQueue struct {
	requeued    []model.ImportJob
	deadLetters []model.ImportJob
}

func (q *fakeQueue) EnqueueImport(ctx context.Context, job *model.ImportJob) error {
	q.requeued = append(q.requeued, *job)
	return nil
}

func (q *fakeQueue) DeadLetter(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return err
	}
	q.deadLetters = append(q.deadLetters, job)
	return nil
}

type brokenStorage struct {
	*storage.MemoryStorage
}

func (brokenStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, stderrors.New("connection refused")
}

type ImportWorkerSuite struct {
	suite.Suite
	ctx      context.Context
	students *db.MemoryStudentStore
	sessions *db.SessionRepository
	storage  *storage.MemoryStorage
	queue    *fakeQueue
	worker   *ImportWorker
}

func TestImportWorkerSuite(t *testing.T) {
	suite.Run(t, new(ImportWorkerSuite))
}

func (s *ImportWorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.students = db.NewMemoryStudentStore()
	s.students.Add(model.Student{Identifier: "A1", BirthDate: "2000.01.01."})
	s.sessions = db.NewSessionRepository(testutil.SQLite(s.T()))
	s.storage = storage.NewMemoryStorage()
	s.queue = &fakeQueue{}
	s.worker = s.newWorker(s.storage)
}

func (s *ImportWorkerSuite) newWorker(store storage.Storage) *ImportWorker {
	importer := reconcile.NewImporter(s.students, s.sessions, review.NewMemoryStore(), reconcile.Options{})
	return NewImportWorker(importer, store, s.queue, nil, 1, 3)
}

func (s *ImportWorkerSuite) upload(key string, data io.ReadSeeker) model.ImportJob {
	s.Require().NoError(s.storage.Upload(s.ctx, key, data))
	return model.ImportJob{ID: "job-1", ObjectKey: key, Source: "export.xlsx"}
}

func (s *ImportWorkerSuite) TestImportsAndRemovesWorkbook() {
	job := s.upload("imports/a.xlsx", testutil.Workbook(s.T(), testutil.Sheet{
		Name: "Booked exams",
		Rows: [][]interface{}{
			{"Student ID", "Subject", "Exam date"},
			{"A1", "Theory", "2025.05.01. 10:00"},
		},
	}))

	s.Require().NoError(s.worker.runJob(s.ctx, job))

	history, err := s.sessions.Recent(s.ctx, 5)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("export.xlsx", history[0].Source)
	s.Len(history[0].Created, 1)

	exists, err := s.storage.Exists(s.ctx, job.ObjectKey)
	s.Require().NoError(err)
	s.False(exists)
	s.Empty(s.queue.requeued)
	s.Empty(s.queue.deadLetters)
}

func (s *ImportWorkerSuite) TestCorruptWorkbookGoesToDLQ() {
	job := s.upload("imports/bad.xlsx", bytes.NewReader([]byte("garbage")))

	err := s.worker.runJob(s.ctx, job)
	s.ErrorIs(err, errors.ErrInvalidWorkbook)

	s.Empty(s.queue.requeued, "a corrupt workbook is not retried")
	s.Require().Len(s.queue.deadLetters, 1)
	s.Equal("job-1", s.queue.deadLetters[0].ID)
}

func (s *ImportWorkerSuite) TestDownloadFailureIsRetried() {
	w := s.newWorker(brokenStorage{s.storage})
	job := model.ImportJob{ID: "job-2", ObjectKey: "imports/missing.xlsx"}

	err := w.runJob(s.ctx, job)
	s.True(errors.IsRetryable(err))
	s.Require().Len(s.queue.requeued, 1)
	s.Equal(1, s.queue.requeued[0].Attempts)

	job.Attempts = 2
	s.Error(w.runJob(s.ctx, job))
	s.Len(s.queue.requeued, 1, "the last attempt is not requeued")
	s.Require().Len(s.queue.deadLetters, 1)
	s.Equal(2, s.queue.deadLetters[0].Attempts)
}

func (s *ImportWorkerSuite) TestMalformedMessageIsRejected() {
	err := s.worker.handleMessage(s.ctx, []byte("{not json"))
	s.Error(err)
}
