// Package jobs keeps short-lived records of in-flight fleet actuator
// operations. A missing record means "no job in flight"; records expire on
// their own so a crashed actuator can never leave a rider stuck.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/example/fleet-rides/internal/models"
)

// DefaultTTL bounds the lifetime of every job record.
const DefaultTTL = 5 * time.Minute

var (
	ErrNotFound   = errors.New("job not found")
	ErrInvalidJob = errors.New("job id, state and type are required")
)

// Store is implemented by RedisStore and MemoryStore.
//
// The API process only ever calls Insert (pending), Get and Delete. SetState
// is reserved for the actuator, which owns the started and failed states.
type Store interface {
	Insert(ctx context.Context, job models.Job) error
	Get(ctx context.Context, id string) (models.Job, error)
	Delete(ctx context.Context, id string) error
	SetState(ctx context.Context, id string, state models.JobState) error
}

func validate(job models.Job) error {
	if job.ID == "" || job.State == "" || job.Type == "" {
		return ErrInvalidJob
	}
	return nil
}
