package jobs

import (
	"context"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/retention"
)

// CycleTask runs one occurrence cycle at the engine clock's current instant.
// Per-user failures are reported by the engine's own logging and do not fail
// the job.
func CycleTask(e *engine.Engine) TaskFunc {
	return func(ctx context.Context) error {
		_, err := e.RunNow(ctx)
		return err
	}
}

// RetentionTask runs one retention purge at the cleaner clock's current
// instant.
func RetentionTask(c *retention.Cleaner) TaskFunc {
	return func(ctx context.Context) error {
		_, err := c.Run(ctx)
		return err
	}
}
