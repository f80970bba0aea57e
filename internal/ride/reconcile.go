package ride

import (
	"net/http"

	"github.com/example/fleet-rides/internal/models"
)

// RideState is what the active-ride store says about a rider.
type RideState int

const (
	RideAbsent RideState = iota
	RideActive
)

// JobState is the rider's job record folded to what reconciliation needs.
type JobState int

const (
	NoJob JobState = iota
	UnlockPending
	UnlockStarted
	UnlockFailed
	OtherJob
)

func (j JobState) String() string {
	switch j {
	case NoJob:
		return "none"
	case UnlockPending:
		return "unlock_pending"
	case UnlockStarted:
		return "unlock_started"
	case UnlockFailed:
		return "unlock_failed"
	default:
		return "other"
	}
}

func classifyJob(job *models.Job) JobState {
	switch {
	case job == nil:
		return NoJob
	case job.Type != models.JobUnlock:
		return OtherJob
	case job.State == models.JobStarted:
		return UnlockStarted
	case job.State == models.JobFailed:
		return UnlockFailed
	default:
		return UnlockPending
	}
}

// Outcome is the client-facing result of joining the two stores. DeleteJob
// asks the caller to remove a job whose terminal state has been consumed.
type Outcome struct {
	Status    int
	DeleteJob bool
}

// Reconcile maps (ride, job) to a status code. The stores are written
// independently by the actuator, so a started unlock may briefly be seen
// without its ride; that reads as 404 until the ride appears.
func Reconcile(ride RideState, job JobState) Outcome {
	if ride == RideActive {
		switch job {
		case UnlockStarted, UnlockFailed:
			return Outcome{Status: http.StatusOK, DeleteJob: true}
		default:
			return Outcome{Status: http.StatusOK}
		}
	}
	switch job {
	case NoJob, UnlockPending, UnlockStarted:
		return Outcome{Status: http.StatusNotFound}
	case UnlockFailed:
		return Outcome{Status: http.StatusFailedDependency, DeleteJob: true}
	default:
		return Outcome{Status: http.StatusBadRequest}
	}
}
