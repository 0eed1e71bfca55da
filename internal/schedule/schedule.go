// Package schedule periodically captures a web page into the pixel buffer.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tftfb/internal/capture"
	"tftfb/internal/convert"
	"tftfb/internal/ili9341"
	appLog "tftfb/internal/log"
)

// Stats summarizes capture job activity.
type Stats struct {
	Schedule  string    `json:"schedule"`
	Runs      uint64    `json:"runs"`
	Failures  uint64    `json:"failures"`
	LastRunAt time.Time `json:"last_run_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next,omitzero"`
}

// Job captures one page and loads it into a pixel buffer.
type Job struct {
	Capture capture.Func
	Options capture.Options
	Buffer  *ili9341.PixelBuffer
	// AfterLoad runs once the buffer holds the new image, e.g. to flush it
	// when no refresh loop is running.
	AfterLoad func() error
}

// Run executes the job once.
func (j *Job) Run(ctx context.Context) error {
	if j.Capture == nil || j.Buffer == nil {
		return errors.New("schedule: job is missing capture or buffer")
	}
	png, err := j.Capture(ctx, j.Options)
	if err != nil {
		return err
	}
	if err := convert.PackPNG(j.Buffer, png); err != nil {
		return err
	}
	if j.AfterLoad != nil {
		return j.AfterLoad()
	}
	return nil
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	job  *Job
	spec string
	id   cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	stats Stats
}

// New parses spec (five cron fields or a descriptor such as "@every 1m") and
// returns a stopped scheduler.
func New(spec string, job *Job) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, job: job, spec: spec, ctx: ctx, cancel: cancel}
	s.stats.Schedule = spec

	id, err := c.AddFunc(spec, func() { _ = s.RunNow(s.ctx) })
	if err != nil {
		cancel()
		return nil, fmt.Errorf("schedule: bad spec %q: %w", spec, err)
	}
	s.id = id
	return s, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("capture scheduled", "schedule", s.spec, "url", s.job.Options.URL)
}

// Stop cancels a running capture and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// RunNow executes the job immediately and records the outcome.
func (s *Scheduler) RunNow(ctx context.Context) error {
	err := s.job.Run(ctx)

	s.mu.Lock()
	s.stats.Runs++
	s.stats.LastRunAt = time.Now()
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		appLog.Error("capture failed", err, "url", s.job.Options.URL)
	} else {
		appLog.Debug("capture loaded", "url", s.job.Options.URL)
	}
	return err
}

// Stats returns a snapshot of the job counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()
	st.Next = s.cron.Entry(s.id).Next
	return st
}

// cronLogger routes cron's internal logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
