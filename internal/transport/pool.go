package transport

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunc handles one queued task. Adapted from the teacher's
// internal/worker.go WorkerPool, unchanged in shape.
type WorkerFunc = func(t *tomb.Tomb, task any) error

// WorkerPool runs up to n workers pulling tasks off a shared channel,
// each supervised by the same tomb so a pool-wide shutdown drains them.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunc
}

func NewWorkerPool(n int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     n,
	}
}

// AddTask enqueues a task for the next free worker.
func (p *WorkerPool) AddTask(task any) {
	p.tasks <- task
}

// Setup spawns n long-lived workers, each pulling tasks off the shared
// queue until t dies. Unlike a one-task-per-goroutine pool, a worker
// here owns a task for as long as work takes (a whole connection's
// lifetime, in the transport server's case) before picking up another.
func (p *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunc) {
	p.work = work
	log.Info().Int("workers", p.n).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		t.Go(func() error { return p.worker(t) })
	}
}

func (p *WorkerPool) worker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := p.work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
