package queue

import "errors"

// ErrRejected is returned by callers when Enqueue refuses a job because the
// queue is full, closed or the context ended.
var ErrRejected = errors.New("queue rejected job")
