package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
	"github.com/talentgate/cv-evaluator/internal/repositories"
)

const pollInterval = 10 * time.Second

// WorkerService consumes queued evaluations with a bounded pool of
// goroutines and recovers jobs orphaned by a crashed process.
type WorkerService interface {
	Start()
	Stop()
	EnqueueJob(evalID uuid.UUID)
}

type workerService struct {
	evaluator EvaluatorService
	evalRepo  repositories.EvaluationRepository
	cfg       config.WorkerConfig
	logger    *zap.Logger

	jobQueue chan uuid.UUID
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  sync.Once
	stopped  sync.Once
}

func NewWorkerService(
	evaluator EvaluatorService,
	evalRepo repositories.EvaluationRepository,
	cfg config.WorkerConfig,
	logger *zap.Logger,
) WorkerService {
	return &workerService{
		evaluator: evaluator,
		evalRepo:  evalRepo,
		cfg:       cfg,
		logger:    logger,
		jobQueue:  make(chan uuid.UUID, 100),
		stopChan:  make(chan struct{}),
	}
}

func (w *workerService) Start() {
	w.started.Do(func() {
		for i := 0; i < w.cfg.Concurrency; i++ {
			w.wg.Add(1)
			go w.runWorker(i)
		}

		w.wg.Add(1)
		go w.pollPendingJobs()

		w.logger.Info("worker pool started", zap.Int("concurrency", w.cfg.Concurrency))
	})
}

func (w *workerService) Stop() {
	w.stopped.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("worker pool stopped")
	})
}

// EnqueueJob hands a job to the pool without blocking the caller. A full
// queue is fine; the poller will pick the job up from the database.
func (w *workerService) EnqueueJob(evalID uuid.UUID) {
	select {
	case w.jobQueue <- evalID:
	default:
		w.logger.Warn("job queue full, job will be picked up by poller",
			zap.String("job_id", evalID.String()))
	}
}

func (w *workerService) runWorker(id int) {
	defer w.wg.Done()

	log := w.logger.With(zap.Int("worker_id", id))
	for {
		select {
		case <-w.stopChan:
			return
		case evalID := <-w.jobQueue:
			if err := w.evaluator.EvaluateCandidate(context.Background(), evalID); err != nil {
				log.Error("evaluation failed",
					zap.String("job_id", evalID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// pollPendingJobs periodically re-enqueues queued jobs and reclaims jobs
// stuck in processing longer than the stale timeout.
func (w *workerService) pollPendingJobs() {
	defer w.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.sweepStale()
			w.drainQueued()
		}
	}
}

func (w *workerService) sweepStale() {
	reclaimed, err := w.evalRepo.ReclaimStale(w.cfg.StaleJobTimeout)
	if err != nil {
		w.logger.Error("stale job sweep failed", zap.Error(err))
		return
	}
	for _, job := range reclaimed {
		w.logger.Warn("reclaimed stale job", zap.String("job_id", job.ID.String()))
		w.EnqueueJob(job.ID)
	}
}

func (w *workerService) drainQueued() {
	jobs, err := w.evalRepo.FindPendingJobs(50)
	if err != nil {
		w.logger.Error("pending job poll failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		w.EnqueueJob(job.ID)
	}
}
