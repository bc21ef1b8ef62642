package driving

import "context"

// Scheduler runs background jobs such as queue processing and temp-file cleanup.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error

	// RunNow executes a task immediately and records its result.
	RunNow(ctx context.Context, taskID string) error
}
