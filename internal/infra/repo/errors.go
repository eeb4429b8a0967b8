package repo

import "errors"

// ErrJobNotFound is returned by the in-memory JobRepository when updating a
// status for a job id that was never created.
var ErrJobNotFound = errors.New("job not found")
