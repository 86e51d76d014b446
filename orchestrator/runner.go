package orchestrator

import "sync"

const runnerQueueDepth = 64

// Runner is a bounded worker pool that executes approved operations in the
// background. Enqueueing never blocks the caller beyond queue capacity.
type Runner struct {
	queue chan string
	wg    sync.WaitGroup
}

func newRunner(workers int, run func(operationID string)) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{queue: make(chan string, runnerQueueDepth)}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.wg.Done()
			for id := range r.queue {
				run(id)
			}
		}()
	}
	return r
}

func (r *Runner) enqueue(operationID string) {
	r.queue <- operationID
}

// close drains queued work, then stops the workers.
func (r *Runner) close() {
	close(r.queue)
	r.wg.Wait()
}
