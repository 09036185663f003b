package memory

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// StartJanitor schedules periodic purging of expired cache entries.
// The returned cron must be stopped by the caller on shutdown.
func StartJanitor(schedule string, c *ResponseCache, logger *zerolog.Logger) (*cron.Cron, error) {
	cr := cron.New()
	_, err := cr.AddFunc(schedule, func() {
		n := c.Purge()
		if n > 0 {
			logger.Debug().Int("purged", n).Int("entries", c.Len()).Msg("cache janitor purged expired entries")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cache janitor schedule %q: %w", schedule, err)
	}
	cr.Start()
	return cr, nil
}
