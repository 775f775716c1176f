package domain

import "time"

// Interval defines how frequently or at what specific times an orchestration tick becomes due.
// It supports two scheduling methods: interval-based scheduling and cron-based scheduling.
// Only one scheduling method should be used per configuration to avoid conflicts.
type Interval struct {
	// Time specifies the duration between consecutive ticks.
	// If Time is set, CronExpr must be empty.
	Time time.Duration

	// CronExpr specifies a five-field cron expression (e.g., "1 6-8 * * *" for 06:01, 07:01 and 08:01 daily).
	// If CronExpr is set, Time must be zero.
	CronExpr string
}
