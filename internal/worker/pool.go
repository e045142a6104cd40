package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by SubmitJob when the queue has no free slot.
var ErrQueueFull = errors.New("job queue full")

// ErrStopped is returned by SubmitJob after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Job is a unit of work executed by a worker.
type Job interface {
	Execute(ctx context.Context) error
	ID() string
}

// Worker pulls jobs from its own channel after registering it with the pool.
type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Quit       chan struct{}
	Wg         *sync.WaitGroup
	log        *logrus.Entry
}

// NewWorker creates a worker registered against workerPool.
func NewWorker(id int, workerPool chan chan Job, wg *sync.WaitGroup, log *logrus.Entry) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Quit:       make(chan struct{}),
		Wg:         wg,
		log:        log.WithField("worker_id", id),
	}
}

// Start runs the worker loop. Jobs receive ctx, so cancelling it aborts the
// job in flight.
func (w Worker) Start(ctx context.Context) {
	w.Wg.Add(1)
	go func() {
		defer w.Wg.Done()
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-w.Quit:
				w.log.Debug("worker stopping")
				return
			}

			select {
			case job := <-w.JobChannel:
				w.run(ctx, job)
			case <-w.Quit:
				w.log.Debug("worker stopping")
				return
			}
		}
	}()
}

func (w Worker) run(ctx context.Context, job Job) {
	log := w.log.WithField("job_id", job.ID())
	log.Info("job started")
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("job panicked")
		}
	}()
	if err := job.Execute(ctx); err != nil {
		log.WithError(err).Error("job failed")
		return
	}
	log.Info("job finished")
}

// Stop signals the worker to exit after its current job.
func (w Worker) Stop() {
	close(w.Quit)
}

// Dispatcher owns a bounded queue and a fixed set of workers.
type Dispatcher struct {
	MaxWorkers int
	WorkerPool chan chan Job
	JobQueue   chan Job
	Workers    []Worker
	Wg         sync.WaitGroup

	quit    chan struct{}
	pending sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	log     *logrus.Entry
}

// NewDispatcher creates a dispatcher with maxWorkers workers and a queue of
// jobQueueSize.
func NewDispatcher(maxWorkers, jobQueueSize int, log *logrus.Logger) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if jobQueueSize < 0 {
		jobQueueSize = 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		MaxWorkers: maxWorkers,
		WorkerPool: make(chan chan Job, maxWorkers),
		JobQueue:   make(chan Job, jobQueueSize),
		Workers:    make([]Worker, 0, maxWorkers),
		quit:       make(chan struct{}),
		log:        log.WithField("component", "dispatcher"),
	}
}

// Run starts the workers and the dispatch loop. Jobs run under a context
// derived from ctx that Stop cancels.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.log.WithField("workers", d.MaxWorkers).Info("dispatcher starting")
	for i := 1; i <= d.MaxWorkers; i++ {
		w := NewWorker(i, d.WorkerPool, &d.Wg, d.log)
		d.Workers = append(d.Workers, w)
		w.Start(ctx)
	}
	go d.dispatch()
}

func (d *Dispatcher) dispatch() {
	for {
		select {
		case job := <-d.JobQueue:
			select {
			case jobChannel := <-d.WorkerPool:
				select {
				case jobChannel <- job:
				case <-d.quit:
					d.log.WithField("job_id", job.ID()).Warn("dispatcher stopped before job was assigned")
				}
			case <-d.quit:
				d.log.WithField("job_id", job.ID()).Warn("dispatcher stopped before job was assigned")
			}
			d.pending.Done()
		case <-d.quit:
			return
		}
	}
}

// SubmitJob queues job without blocking.
func (d *Dispatcher) SubmitJob(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	d.pending.Add(1)
	select {
	case d.JobQueue <- job:
		d.log.WithField("job_id", job.ID()).Debug("job queued")
		return nil
	default:
		d.pending.Done()
		d.log.WithField("job_id", job.ID()).Warn("job queue full")
		return ErrQueueFull
	}
}

// QueueDepth reports how many jobs wait for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.JobQueue)
}

// Stop refuses new jobs, cancels jobs in flight and waits for every worker.
// Queued jobs that never reached a worker are dropped.
func (d *Dispatcher) Stop() {
	d.shutdown(false)
}

// Drain refuses new jobs, waits until every queued job has reached a worker
// and finished, then stops.
func (d *Dispatcher) Drain() {
	d.shutdown(true)
}

func (d *Dispatcher) shutdown(drain bool) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.log.WithField("drain", drain).Info("dispatcher shutting down")
	if drain {
		d.pending.Wait()
	} else if d.cancel != nil {
		d.cancel()
	}
	close(d.quit)
	for _, w := range d.Workers {
		w.Stop()
	}
	d.Wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	d.log.Info("dispatcher stopped")
}
