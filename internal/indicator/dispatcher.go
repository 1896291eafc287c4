package indicator

import "sync"

// Dispatcher runs jobs on a per-instance queue: each instance key gets its
// own goroutine draining its own channel, so jobs for one instance always
// execute in enqueue order (no reordering within an instance), while
// different instances' jobs run fully concurrently with each other (no
// global lock). This is the concurrency-model departure from the teacher's
// single-goroutine, globally-serialized Engine.Process() that §5 requires.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[string]chan func()
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{queues: make(map[string]chan func())}
}

// Dispatch enqueues fn onto instanceKey's queue, lazily creating its drain
// goroutine on first use. Returns a channel that is closed once fn has run.
func (d *Dispatcher) Dispatch(instanceKey string, fn func()) <-chan struct{} {
	done := make(chan struct{})

	d.mu.Lock()
	q, ok := d.queues[instanceKey]
	if !ok {
		q = make(chan func(), 256)
		d.queues[instanceKey] = q
		go drain(q)
	}
	d.mu.Unlock()

	q <- func() {
		fn()
		close(done)
	}
	return done
}

// DispatchAll submits one job per instance and blocks until every job has
// completed, without serializing the jobs against each other — it's a
// fan-out/fan-in over the per-instance queues, not a global lock.
func (d *Dispatcher) DispatchAll(jobs map[string]func()) {
	waits := make([]<-chan struct{}, 0, len(jobs))
	for key, fn := range jobs {
		waits = append(waits, d.Dispatch(key, fn))
	}
	for _, w := range waits {
		<-w
	}
}

// Close removes instanceKey's queue so its goroutine exits once drained.
// Safe to call even if no queue exists for the key.
func (d *Dispatcher) Close(instanceKey string) {
	d.mu.Lock()
	q, ok := d.queues[instanceKey]
	if ok {
		delete(d.queues, instanceKey)
	}
	d.mu.Unlock()
	if ok {
		close(q)
	}
}

func drain(q chan func()) {
	for fn := range q {
		fn()
	}
}
