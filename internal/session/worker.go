package session

import "sync"

// worker runs jobs for one peer session in FIFO order on its own goroutine.
// enqueue never blocks.
type worker struct {
	mu      sync.Mutex
	ready   *sync.Cond
	jobs    []func()
	final   func()
	stopped bool
}

func newWorker() *worker {
	w := &worker{}
	w.ready = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// enqueue appends job. It reports false once the worker has been stopped.
func (w *worker) enqueue(job func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.jobs = append(w.jobs, job)
	w.ready.Signal()
	return true
}

// stop discards queued jobs, runs final after the job in progress and
// ends the goroutine.
func (w *worker) stop(final func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.jobs = nil
	w.final = final
	w.ready.Signal()
}

func (w *worker) run() {
	for {
		w.mu.Lock()
		for len(w.jobs) == 0 && !w.stopped {
			w.ready.Wait()
		}
		if w.stopped {
			final := w.final
			w.mu.Unlock()
			if final != nil {
				final()
			}
			return
		}
		job := w.jobs[0]
		w.jobs[0] = nil
		w.jobs = w.jobs[1:]
		w.mu.Unlock()

		job()
	}
}
