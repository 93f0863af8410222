package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine with panic recovery and a deadline.
// The task context keeps the parent's values (request id, identity) but is
// detached from its cancellation, so a task started from an HTTP handler
// keeps running after the response is written.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *logrus.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// WorkerPool bounds the concurrency of submitted tasks. Each task gets its
// own timeout and panic recovery; task errors are collected on Errors.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	logger       *logrus.Logger
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool starts workers goroutines consuming submitted tasks
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, logger *logrus.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task. Returns an error once the pool has shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// Shutdown can close workCh between the check above and the send below.
	defer func() {
		recover()
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Errors exposes task failures. The channel is buffered; when it fills,
// further errors are logged and dropped.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

// Shutdown stops accepting tasks, drains queued work, and waits up to
// timeout for the workers to finish.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var err error
	p.shutdownOnce.Do(func() {
		close(p.workCh)
		select {
		case <-p.doneCh:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool shutdown timed out after %s", timeout)
		}
		p.cancel()
	})
	return err
}

func (p *WorkerPool) worker() {
	for fn := range p.workCh {
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					p.collect(fmt.Errorf("panic in %s: %v", p.taskName, r))
				}
			}()
			if err := fn(ctx); err != nil {
				p.collect(err)
			}
		}()
	}
}

func (p *WorkerPool) collect(err error) {
	select {
	case p.errCh <- err:
	default:
		p.logger.WithError(err).WithField("task", p.taskName).
			Warn("worker pool error channel full, dropping error")
	}
}

// Batch runs fn over items with bounded concurrency and returns every error
// encountered.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	logger *logrus.Logger, fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout, logger)
	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return []error{err}
		}
	}

	close(pool.workCh)
	<-pool.doneCh
	pool.cancel()

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
