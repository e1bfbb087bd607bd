// Package jobs implements the collection job engine: the job service,
// ingestor, runner and scheduler.
package jobs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/types"
)

// ErrJobNotFound indicates the requested job does not exist.
type ErrJobNotFound struct {
	ID uuid.UUID
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job not found: %s", e.ID)
}

// ErrInvalidJobType indicates an unknown job type was requested.
type ErrInvalidJobType struct {
	JobType types.JobType
}

func (e *ErrInvalidJobType) Error() string {
	return fmt.Sprintf("invalid job type: %q", e.JobType)
}
