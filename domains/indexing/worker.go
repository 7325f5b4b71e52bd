package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gomantics/gitindex/config"
	"github.com/gomantics/gitindex/pkg/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Worker runs index updates on a fixed interval
type Worker struct {
	l            *zap.Logger
	cfg          *config.Config
	orchestrator *Orchestrator
	metrics      *metrics.Metrics
	scheduler    *gocron.Scheduler
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorker creates a worker for the configured scan path
func NewWorker(l *zap.Logger, cfg *config.Config, o *Orchestrator, m *metrics.Metrics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		l:            l,
		cfg:          cfg,
		orchestrator: o,
		metrics:      m,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// StartWorker schedules the worker for the lifetime of the application
func StartWorker(lc fx.Lifecycle, worker *Worker) error {
	if err := worker.schedule(); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			worker.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			worker.stop()
			return nil
		},
	})

	return nil
}

func (w *Worker) schedule() error {
	s := gocron.NewScheduler(time.UTC)
	// a pass still running when the next one is due makes the next one wait
	s.SingletonModeAll()

	s.Every(w.cfg.Index.RefreshInterval)
	if !w.cfg.Index.RunOnStart {
		s.WaitForSchedule()
	}

	if _, err := s.Do(w.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule index updates: %w", err)
	}

	w.scheduler = s
	return nil
}

// start begins the schedule
func (w *Worker) start() {
	w.l.Info("starting indexing worker",
		zap.Duration("refresh_interval", w.cfg.Index.RefreshInterval),
		zap.Bool("run_on_start", w.cfg.Index.RunOnStart),
	)
	w.scheduler.StartAsync()
}

// stop interrupts a running pass between repositories and waits for it
func (w *Worker) stop() {
	w.l.Info("stopping indexing worker")
	w.cancel()
	w.scheduler.Stop()
	// Run holds the orchestrator lock for the whole pass
	w.orchestrator.mu.Lock()
	defer w.orchestrator.mu.Unlock()
	w.l.Info("indexing worker stopped")
}

// RunOnce performs one index update and exports its metrics
func (w *Worker) RunOnce() {
	w.Run(context.Background())
}

// Run is RunOnce stopping between repositories when either ctx is done or
// the worker is stopped.
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(w.ctx, cancel)()

	if ctx.Err() != nil {
		return
	}

	w.orchestrator.Run(ctx, w.cfg.Index.ScanPath, NewSource(w.cfg.Index.ProjectsList))

	if path := w.cfg.Metrics.Textfile; path != "" && w.metrics != nil {
		if err := w.metrics.WriteTextfile(path); err != nil {
			w.l.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
}
