package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/model"
	"driving-school-admin/internal/queue"
	"driving-school-admin/internal/reconcile"
	"driving-school-admin/internal/storage"
	"driving-school-admin/pkg/errors"

	"github.com/rs/zerolog"
)

// JobQueue is where a failed job goes next: back onto the queue or to the
// dead-letter list.
type JobQueue interface {
	EnqueueImport(ctx context.Context, job *model.ImportJob) error
	DeadLetter(ctx context.Context, data []byte) error
}

type ImportWorker struct {
	importer    *reconcile.Importer
	storage     storage.Storage
	jobs        JobQueue
	consumer    *queue.Consumer
	workerPool  *WorkerPool
	maxAttempts int
	log         zerolog.Logger
}

func NewImportWorker(
	importer *reconcile.Importer,
	storage storage.Storage,
	jobs JobQueue,
	consumer *queue.Consumer,
	workerCount, maxAttempts int,
) *ImportWorker {
	return &ImportWorker{
		importer:    importer,
		storage:     storage,
		jobs:        jobs,
		consumer:    consumer,
		workerPool:  NewWorkerPool(workerCount),
		maxAttempts: maxAttempts,
		log:         logger.Component("import_worker"),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	w.workerPool.Start(ctx)

	return w.consumer.Consume(ctx, w.handleMessage)
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to unmarshal import job: %w", err)
	}

	w.log.Info().
		Str("job_id", job.ID).
		Str("object_key", job.ObjectKey).
		Int("attempt", job.Attempts+1).
		Msg("Processing import job")

	err := w.workerPool.Submit(ctx, func(ctx context.Context) error {
		return w.runJob(ctx, job)
	})
	if err != nil {
		w.settle(ctx, job, errors.NewRetryableError(err, "worker shutting down"))
	}
	return nil
}

func (w *ImportWorker) runJob(ctx context.Context, job model.ImportJob) error {
	session, err := w.process(ctx, job)
	if err != nil {
		w.settle(ctx, job, err)
		return err
	}

	w.log.Info().
		Str("job_id", job.ID).
		Str("session_id", session.ID).
		Str("counts", session.Counts().String()).
		Msg("Import job finished")
	return nil
}

func (w *ImportWorker) process(ctx context.Context, job model.ImportJob) (*model.Session, error) {
	log := w.log.With().Str("job_id", job.ID).Logger()

	log.Debug().Msg("Downloading workbook")
	reader, err := w.storage.Download(ctx, job.ObjectKey)
	if err != nil {
		return nil, errors.NewRetryableError(err, "failed to download workbook")
	}
	defer reader.Close()

	session, err := w.importer.Run(ctx, reconcile.Request{
		Workbook: reader,
		Source:   job.Source,
		Sandbox:  job.Sandbox,
	})
	if err != nil {
		// Rows already applied are skipped when the job runs again.
		if !stderrors.Is(err, errors.ErrInvalidWorkbook) && ctx.Err() != nil {
			return nil, errors.NewRetryableError(err, "import interrupted")
		}
		return nil, err
	}

	if err := w.storage.Delete(ctx, job.ObjectKey); err != nil {
		log.Warn().Err(err).Str("object_key", job.ObjectKey).Msg("Failed to delete imported workbook")
	}
	return session, nil
}

// settle requeues a retryable failure until the attempts run out and sends
// everything else to the dead-letter queue.
func (w *ImportWorker) settle(ctx context.Context, job model.ImportJob, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := w.log.With().Str("job_id", job.ID).Int("attempt", job.Attempts+1).Logger()

	if errors.IsRetryable(cause) && job.Attempts+1 < w.maxAttempts {
		job.Attempts++
		err := w.jobs.EnqueueImport(ctx, &job)
		if err == nil {
			log.Warn().Err(cause).Msg("Import job requeued")
			return
		}
		log.Error().Err(err).Msg("Failed to requeue import job")
	}

	data, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode import job for DLQ")
		return
	}
	if err := w.jobs.DeadLetter(ctx, data); err != nil {
		log.Error().Err(err).Msg("Failed to move import job to DLQ")
		return
	}
	log.Error().Err(cause).Msg("Import job moved to DLQ")
}
