package ili9341

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	appLog "tftfb/internal/log"
)

// FrameSender pushes one complete frame to the panel. *Engine implements it.
type FrameSender interface {
	SendFrame(buf *PixelBuffer) error
}

// RetryPolicy decides whether a failed frame is sent again. attempt counts
// the failures of the current frame, starting at 1.
type RetryPolicy interface {
	Retry(attempt int, err error) (delay time.Duration, ok bool)
}

// NoRetry never retries; the first failed frame ends the loop.
type NoRetry struct{}

func (NoRetry) Retry(int, error) (time.Duration, bool) { return 0, false }

// BoundedRetry resends a failed frame up to Attempts more times, waiting
// Delay between attempts.
type BoundedRetry struct {
	Attempts int
	Delay    time.Duration
}

func (r BoundedRetry) Retry(attempt int, _ error) (time.Duration, bool) {
	return r.Delay, attempt <= r.Attempts
}

// RefreshOpts tunes a Refresher. The zero value refreshes back to back with
// no retry.
type RefreshOpts struct {
	// Interval is waited before every frame. Zero means continuous refresh.
	Interval time.Duration
	Retry    RetryPolicy
}

// RefreshStats is a point-in-time view of the refresh loop.
type RefreshStats struct {
	Running     bool      `json:"running"`
	Frames      uint64    `json:"frames"`
	Failures    uint64    `json:"failures"`
	LastFrameAt time.Time `json:"last_frame_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Refresher runs the background loop that keeps sending the pixel buffer to
// the panel. At most one loop runs per Refresher.
type Refresher struct {
	sender   FrameSender
	buf      *PixelBuffer
	interval time.Duration
	retry    RetryPolicy

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running   atomic.Bool
	frames    atomic.Uint64
	failures  atomic.Uint64
	lastFrame atomic.Int64

	errMu   sync.Mutex
	lastErr error
}

// NewRefresher returns a stopped Refresher. opts may be nil.
func NewRefresher(sender FrameSender, buf *PixelBuffer, opts *RefreshOpts) *Refresher {
	r := &Refresher{
		sender: sender,
		buf:    buf,
		retry:  NoRetry{},
	}
	if opts != nil {
		r.interval = opts.Interval
		if opts.Retry != nil {
			r.retry = opts.Retry
		}
	}
	return r
}

// Start launches the loop. It returns ErrAlreadyRunning if a previous loop
// has not exited yet.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running.Store(true)
	r.setErr(nil)

	go r.run(ctx, r.done)

	appLog.Info("refresh loop started", "interval", r.interval.String())
	return nil
}

// Stop cancels the loop and blocks until it has exited. A frame that is on
// the wire when Stop is called is finished first. Stop is a no-op when the
// loop is not running.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the current loop exits, either because it was stopped
// or because a frame failed. It returns nil before the first Start.
func (r *Refresher) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err returns the error that terminated the last loop, if any.
func (r *Refresher) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

// Stats returns counters for the loop.
func (r *Refresher) Stats() RefreshStats {
	s := RefreshStats{
		Running:  r.running.Load(),
		Frames:   r.frames.Load(),
		Failures: r.failures.Load(),
	}
	if ns := r.lastFrame.Load(); ns != 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	if err := r.Err(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

func (r *Refresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer r.running.Store(false)

	for {
		if ctx.Err() != nil {
			appLog.Info("refresh loop stopped", "frames", r.frames.Load())
			return
		}
		if !r.wait(ctx, r.interval) {
			appLog.Info("refresh loop stopped", "frames", r.frames.Load())
			return
		}
		if err := r.push(ctx); err != nil {
			r.setErr(err)
			appLog.Error("refresh loop terminated", err, "frames", r.frames.Load())
			return
		}
	}
}

// push sends one frame, consulting the retry policy on failure. Once a
// transfer has started it always runs to completion.
func (r *Refresher) push(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := r.sender.SendFrame(r.buf)
		if err == nil {
			r.frames.Add(1)
			r.lastFrame.Store(time.Now().UnixNano())
			return nil
		}
		r.failures.Add(1)

		delay, ok := r.retry.Retry(attempt, err)
		if !ok {
			return err
		}
		appLog.Warn("frame failed, retrying", "attempt", attempt, "err", err)
		if !r.wait(ctx, delay) {
			return nil
		}
	}
}

// wait sleeps for d and reports false if ctx was cancelled first.
func (r *Refresher) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Refresher) setErr(err error) {
	r.errMu.Lock()
	r.lastErr = err
	r.errMu.Unlock()
}
