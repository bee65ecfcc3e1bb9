package loadgen

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultWaitTimeout   = 2 * time.Minute
	PercentageMultiplier = 100
	progressInterval     = time.Second
)
