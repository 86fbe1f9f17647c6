package allocctl

import "time"

// HTTP defaults.
const (
	DefaultBaseURL = "http://localhost:9080"
	DefaultTimeout = 30 * time.Second
)

// Generator defaults.
const (
	DefaultApplicants  = 200
	DefaultResources   = 12
	DefaultPreferences = 4
)

// Pass polling for push --async.
const (
	pollInterval = 250 * time.Millisecond
	pollAttempts = 120
)
