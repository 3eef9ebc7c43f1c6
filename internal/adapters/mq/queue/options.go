package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity caps how many candidate jobs may wait at once.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sizes the underlying channel. It is raised to the capacity
// when smaller.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// WithPlan sizes the queue to hold exactly n planned jobs, so a whole
// evaluation plan can be enqueued before any worker starts.
func WithPlan(n int) Option {
	n = max(n, 1)
	return func(q *InMemoryQueue) {
		WithCapacity(n)(q)
		WithBufferSize(n)(q)
	}
}
