// Package scheduler runs recurring background jobs owned by a component.
// A job is started with StartWithContext and cancelled deterministically with
// StopWithContext; a tick already in flight runs to completion.
package scheduler

import (
	"context"
	"sync"
	"time"

	"mustody-console/core/utils"

	"github.com/robfig/cron/v3"
)

type RunFunc func(ctx context.Context) error

type JobConfig struct {
	Name     string
	Interval time.Duration
	// RunOnStart fires one tick immediately instead of waiting a full interval.
	RunOnStart bool
}

type Job struct {
	cfg    JobConfig
	run    RunFunc
	logger *utils.Logger
	obs    jobObs

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func NewJob(cfg JobConfig, run RunFunc, logger *utils.Logger) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Job{cfg: cfg, run: run, logger: logger}
}

func (j *Job) Name() string {
	if j == nil {
		return ""
	}
	return j.cfg.Name
}

func (j *Job) Running() bool {
	if j == nil {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) StartWithContext(ctx context.Context) {
	if j == nil || j.run == nil {
		return
	}
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(j.cfg.Interval), cron.FuncJob(func() {
		_ = j.scheduledTick(runCtx)
	}))
	j.cron = c
	j.cancel = cancel
	j.running = true
	if j.cfg.RunOnStart {
		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			_ = j.scheduledTick(runCtx)
		}()
	}
	j.mu.Unlock()
	c.Start()
	if j.logger != nil {
		j.logger.Debugf("job %s started interval=%s", j.cfg.Name, j.cfg.Interval)
	}
}

func (j *Job) StopWithContext(ctx context.Context) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	if !j.running || j.cancel == nil {
		j.mu.Unlock()
		return nil
	}
	cancel := j.cancel
	c := j.cron
	j.cancel = nil
	j.cron = nil
	j.mu.Unlock()

	cancel()
	waitDone := make(chan struct{})
	go func() {
		if c != nil {
			<-c.Stop().Done()
		}
		j.wg.Wait()
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		if j.logger != nil {
			j.logger.Debugf("job %s stopped", j.cfg.Name)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single tick synchronously, outside the schedule.
func (j *Job) RunOnce(ctx context.Context) error {
	if j == nil || j.run == nil {
		return nil
	}
	return j.tick(ctx)
}

// scheduledTick starts a tick only while the job is live. The tick itself runs
// detached from the job context so a stop never aborts work in flight.
func (j *Job) scheduledTick(runCtx context.Context) error {
	if runCtx.Err() != nil {
		return runCtx.Err()
	}
	return j.tick(context.WithoutCancel(runCtx))
}

func (j *Job) tick(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := j.run(ctx)
	j.obs.recordTick(time.Now().UTC(), err)
	if err != nil && j.logger != nil {
		j.logger.Errorf("job %s: %v", j.cfg.Name, err)
	}
	return err
}
