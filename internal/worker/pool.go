package worker

import (
	"context"
	"sync"

	"driving-school-admin/internal/logger"

	"github.com/rs/zerolog"
)

type WorkerPool struct {
	workerCount int
	jobChan     chan func(context.Context) error
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan func(context.Context) error, workerCount),
		log:         logger.Component("worker_pool"),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop waits for queued jobs to finish. No job may be submitted afterwards.
func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("Stopping worker pool")
	close(wp.jobChan)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit hands a job to the pool, waiting while every worker is busy. An
// import pulled off the queue must not be dropped.
func (wp *WorkerPool) Submit(ctx context.Context, job func(context.Context) error) error {
	select {
	case wp.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for job := range wp.jobChan {
		if err := job(ctx); err != nil {
			log.Error().Err(err).Msg("Job execution failed")
		}
	}
	log.Debug().Msg("Worker stopping due to closed job channel")
}
