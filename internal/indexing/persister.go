package indexing

// persister runs cache writes one at a time on a dedicated goroutine.
type persister struct {
	jobs chan persistJob
	done chan struct{}
}

type persistJob struct {
	fn     func() error
	result chan error
}

func newPersister() *persister {
	p := &persister{
		jobs: make(chan persistJob),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) run() {
	defer close(p.done)
	for job := range p.jobs {
		job.result <- job.fn()
	}
}

// submit queues fn and returns a channel that receives its result. The
// channel is buffered so callers may ignore it.
func (p *persister) submit(fn func() error) <-chan error {
	result := make(chan error, 1)
	p.jobs <- persistJob{fn: fn, result: result}
	return result
}

// close waits for queued jobs and stops the worker. submit must not be
// called afterwards.
func (p *persister) close() {
	close(p.jobs)
	<-p.done
}
