package jobs

import "errors"

// Sentinel errors for the Job Repository.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobFileNotFound = errors.New("job file not found")
)
