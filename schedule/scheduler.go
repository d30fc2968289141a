package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxConcurrent is the default number of tasks allowed in flight.
	DefaultMaxConcurrent = 30

	// DefaultMinInterval is the default spacing between task starts.
	DefaultMinInterval = 50 * time.Millisecond
)

// queued is a task waiting for dispatch, erased to its run and fail closures.
type queued struct {
	ctx  context.Context
	run  func()
	fail func(error)
}

// Scheduler bounds concurrency and start rate of submitted tasks.
type Scheduler struct {
	maxConcurrent int
	minInterval   time.Duration
	logger        *slog.Logger

	pool    *ants.Pool
	limiter *rate.Limiter
	// slots holds one token per running task. A slot is taken before the
	// limiter so a rate token is never spent while the pool is full.
	slots chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queued
	closed bool

	inFlight atomic.Int64

	stop      context.Context
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithMaxConcurrent sets the maximum number of tasks executing at once.
// Default is DefaultMaxConcurrent.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) error {
		if n < 1 {
			return ErrInvalidMaxConcurrent
		}
		s.maxConcurrent = n
		return nil
	}
}

// WithMinInterval sets the minimum spacing between consecutive task starts.
// Zero disables spacing. Default is DefaultMinInterval.
func WithMinInterval(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d < 0 {
			return ErrInvalidMinInterval
		}
		s.minInterval = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Scheduler and starts its dispatcher.
// Close must be called to release the worker pool.
func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		maxConcurrent: DefaultMaxConcurrent,
		minInterval:   DefaultMinInterval,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "scheduler")

	pool, err := ants.NewPool(s.maxConcurrent, ants.WithLogger(antsLoggerAdapter{s.logger}))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	s.pool = pool
	s.slots = make(chan struct{}, s.maxConcurrent)

	if s.minInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(s.minInterval), 1)
	}

	s.cond = sync.NewCond(&s.mu)
	s.stop, s.cancel = context.WithCancel(context.Background())
	s.stopped = make(chan struct{})
	go s.dispatch()

	return s, nil
}

// Schedule queues task for execution on s and returns its Future.
//
// The task receives ctx. If ctx is done before the task starts, the task is
// not run and the Future resolves with ctx.Err(). A panic inside the task is
// recovered and reported as an ErrTaskPanicked error.
func Schedule[T any](s *Scheduler, ctx context.Context, task func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	q := queued{
		ctx:  ctx,
		fail: f.fail,
		run: func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("task panicked", "panic", r)
					f.fail(fmt.Errorf("%w: %v", ErrTaskPanicked, r))
				}
			}()
			value, err := task(ctx)
			f.resolve(value, err)
		},
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.fail(ErrClosed)
		return f
	}
	s.queue = append(s.queue, q)
	s.mu.Unlock()
	s.cond.Signal()

	return f
}

// InFlight returns the number of tasks currently executing.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Pending returns the number of tasks queued but not yet started.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops dispatching. Queued tasks resolve with ErrClosed; running tasks
// are allowed to finish. Close is safe to call more than once.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cond.Broadcast()
		s.cancel()

		<-s.stopped
		s.pool.Release()
	})
}

// next blocks until a task is queued or the scheduler is closed.
func (s *Scheduler) next() (queued, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return queued{}, false
	}

	q := s.queue[0]
	s.queue[0] = queued{}
	s.queue = s.queue[1:]
	return q, true
}

// drain fails every task still queued after close.
func (s *Scheduler) drain() {
	s.mu.Lock()
	remaining := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(remaining) > 0 {
		s.logger.Debug("dropping queued tasks", "count", len(remaining))
	}
	for _, q := range remaining {
		q.fail(ErrClosed)
	}
}

func (s *Scheduler) dispatch() {
	defer close(s.stopped)
	defer s.drain()

	for {
		q, ok := s.next()
		if !ok {
			return
		}

		if err := q.ctx.Err(); err != nil {
			q.fail(err)
			continue
		}

		select {
		case s.slots <- struct{}{}:
		case <-q.ctx.Done():
			q.fail(q.ctx.Err())
			continue
		case <-s.stop.Done():
			q.fail(ErrClosed)
			return
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(s.stop); err != nil {
				<-s.slots
				q.fail(ErrClosed)
				return
			}
		}

		// The task may have been cancelled while waiting for its turn.
		if err := q.ctx.Err(); err != nil {
			<-s.slots
			q.fail(err)
			continue
		}

		started := make(chan struct{})
		err := s.pool.Submit(func() {
			defer func() { <-s.slots }()
			s.inFlight.Add(1)
			close(started)
			defer s.inFlight.Add(-1)
			q.run()
		})
		if err != nil {
			<-s.slots
			s.logger.Error("error submitting task", "err", err)
			q.fail(fmt.Errorf("submitting task: %w", err))
			continue
		}

		// Wait for the worker to pick the task up so starts stay in
		// submission order.
		<-started
	}
}

// antsLoggerAdapter adapts slog.Logger to ants' Logger interface.
type antsLoggerAdapter struct {
	logger *slog.Logger
}

func (a antsLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
