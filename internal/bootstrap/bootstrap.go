package bootstrap

import (
	"github.com/rs/zerolog"

	"mailroom/adapter/in/worker"
	"mailroom/config"
)

// Worker bundles the running pipeline: the pool that executes jobs and
// the scheduler that feeds it poll jobs.
type Worker struct {
	Deps      *Dependencies
	Pool      *worker.Pool
	Scheduler *worker.Scheduler

	cleanup func()
	log     zerolog.Logger
}

func NewWorker(cfg *config.Config, log zerolog.Logger) (*Worker, error) {
	deps, cleanup, err := NewDependencies(cfg, log)
	if err != nil {
		return nil, err
	}

	pipeline := worker.NewPipelineProcessor(
		deps.Transport,
		deps.Ingestor,
		deps.Classifier,
		deps.Extractor,
		deps.Router,
		deps.MessageRepo,
		deps.Dispatcher,
		log,
	)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerCount > 0 {
		poolConfig.Workers = cfg.WorkerCount
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.QueueSize = cfg.WorkerQueueSize
	}
	if cfg.JobMaxRetries > 0 {
		poolConfig.MaxRetries = cfg.JobMaxRetries
	}

	pool := worker.NewPool(worker.NewHandler(pipeline), poolConfig, log)
	pipeline.SetSubmitter(pool)

	return &Worker{
		Deps:      deps,
		Pool:      pool,
		Scheduler: worker.NewScheduler(pool, cfg.PollInterval, log),
		cleanup:   cleanup,
		log:       log,
	}, nil
}

func (w *Worker) Start() error {
	w.Pool.Start()
	if err := w.Scheduler.Start(); err != nil {
		w.Pool.Stop()
		w.cleanup()
		return err
	}
	w.log.Info().Msg("worker started")
	return nil
}

// Stop drains in drain order: stop scheduling new polls first, then let
// the pool finish queued jobs, then release infrastructure.
func (w *Worker) Stop() {
	w.Scheduler.Stop()
	w.Pool.Stop()
	w.cleanup()
	w.log.Info().Msg("worker stopped")
}
