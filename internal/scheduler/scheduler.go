package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

// Runner is the periodic job; weather.Service satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler periodically runs the ingest + transform pipeline.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	cronExpr  string
	timeout   time.Duration
}

// New creates a new Scheduler. A non-empty cronExpr takes precedence over interval.
func New(runner Runner, interval time.Duration, cronExpr string, timeout time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		cronExpr:  cronExpr,
		timeout:   timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// Runs never overlap: gocron's singleton mode skips a tick while the previous
// run is active and the runner itself rejects concurrent calls.
func (s *Scheduler) Start() error {
	var job *gocron.Scheduler
	if s.cronExpr != "" {
		job = s.scheduler.Cron(s.cronExpr)
	} else {
		interval := s.interval
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		job = s.scheduler.Every(interval)
	}

	_, err := job.SingletonMode().Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	log.Println("scheduler: running pipeline job")

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, weather.ErrRunInProgress) {
			log.Println("scheduler: previous run still active; skipping")
			return
		}
		log.Printf("scheduler: pipeline job failed: %v", err)
		return
	}
	log.Println("scheduler: completed pipeline job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
