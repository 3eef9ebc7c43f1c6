package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL   string        // Base URL of the service
	LogPath   string        // Movement log to replay
	TracePath string        // Output trace CSV; empty skips it
	Mode      string        // Projection mode sent with every prediction; empty uses the server default
	Workers   int           // Concurrent sessions
	Speed     float64       // Playback speed relative to the recording; 0 sends points without delay
	HitRadius float64       // Radius around the target counted as a hit
	Timeout   time.Duration // HTTP request timeout
	Verbose   bool          // Log every path
}

// Stats holds replay statistics.
type Stats struct {
	Paths       int
	Points      int
	Rejected    int
	Predictions int
	Failed      int
	// FinalHits counts paths whose last prediction landed within HitRadius of the target.
	FinalHits   int
	MeanError2D float64
	StdError2D  float64
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
