package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"GarmentCaption/logger"
)

var (
	ErrQueueClosed = errors.New("job queue closed")
	ErrJobPanicked = errors.New("job panicked")
)

type Processor interface {
	Process(ctx context.Context, job Job) (Result, error)
}

type JobPackage struct {
	ctx    context.Context
	job    Job
	Result chan jobResult
}

type jobResult struct {
	res Result
	err error
}

// Queue feeds jobs to a fixed pool of workers. Each worker is pinned to its
// OS thread for the OpenCV calls made while tracking.
type Queue struct {
	proc      Processor
	jobs      chan JobPackage
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewQueue(proc Processor, workerNum int) *Queue {
	if workerNum <= 0 {
		workerNum = 1
	}
	q := &Queue{proc: proc, jobs: make(chan JobPackage, workerNum)}
	q.StartWorker(workerNum)
	return q
}

func (q *Queue) StartWorker(workerNum int) {
	for i := 0; i < workerNum; i++ {
		q.wg.Add(1)
		go q.runWorker(i)
	}
}

func (q *Queue) runWorker(workerID int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("worker panic, restarting in 1s", zap.Int("worker", workerID), zap.Any("panic", r))
			time.Sleep(1 * time.Second)
			go q.runWorker(workerID)
			return
		}
		q.wg.Done()
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Info("worker created", zap.Int("worker", workerID))
	for job := range q.jobs {
		res, err := q.safeProcess(job)
		job.Result <- jobResult{res: res, err: err}
	}
}

func (q *Queue) safeProcess(p JobPackage) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("job panic", zap.String("jobID", p.job.ID), zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return q.proc.Process(p.ctx, p.job)
}

// Submit queues job and waits for its result.
func (q *Queue) Submit(ctx context.Context, job Job) (Result, error) {
	pkg := JobPackage{ctx: ctx, job: job, Result: make(chan jobResult, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return Result{}, ErrQueueClosed
	}
	select {
	case q.jobs <- pkg:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return Result{}, ctx.Err()
	}

	select {
	case r := <-pkg.Result:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops accepting jobs and waits for the workers to drain the queue.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.wg.Wait()
}
