package hoist

import "errors"

var (
	// Store errors.
	ErrStoreClosed     = errors.New("hoist: store closed")
	ErrMigrationFailed = errors.New("hoist: migration failed")

	// Not found errors.
	ErrJobNotFound          = errors.New("hoist: job not found")
	ErrRecurringJobNotFound = errors.New("hoist: recurring job not found")
	ErrMetadataNotFound     = errors.New("hoist: metadata not found")
	ErrNoServers            = errors.New("hoist: no background job servers registered")

	// Liveness errors.
	ErrServerTimedOut = errors.New("hoist: background job server timed out")

	// Argument errors.
	ErrInvalidArgument = errors.New("hoist: invalid argument")
)
