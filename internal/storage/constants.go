package storage

import "time"

const (
	// CleanupInterval is an hourly interval for record cleanup; no store or
	// background loop reads it, and no cleanup of expired records runs.
	CleanupInterval = 1 * time.Hour
)
