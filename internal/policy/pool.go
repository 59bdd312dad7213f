package policy

import "context"

type job struct {
	run  func() error
	done chan error
}

// Pool runs blocking device RPC off the packet-handler goroutines. A slow
// or unreachable device ties up one worker, not the event loop; the issuing
// handler waits on its own result channel.
type Pool struct {
	jobs chan job
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for j := range p.jobs {
		j.done <- j.run()
	}
}

// Do submits fn and waits for its result. The context bounds both the wait
// for a free worker and the wait for the result.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	j := job{run: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops idle workers. In-flight jobs finish.
func (p *Pool) Close() {
	close(p.jobs)
}
