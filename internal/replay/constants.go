package replay

import "time"

// Defaults used by the replay command.
const (
	DefaultBaseURL   = "http://localhost:9080"
	DefaultTimeout   = 30 * time.Second
	DefaultHitRadius = 16.0
)

// workerChannelMultiplier sizes the path channel per worker.
const workerChannelMultiplier = 2
