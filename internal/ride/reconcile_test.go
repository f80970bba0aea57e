package ride

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/fleet-rides/internal/models"
)

func TestReconcile(t *testing.T) {
	cases := []struct {
		name string
		ride RideState
		job  JobState
		want Outcome
	}{
		{"ride without job", RideActive, NoJob, Outcome{Status: http.StatusOK}},
		{"ride with started unlock", RideActive, UnlockStarted, Outcome{Status: http.StatusOK, DeleteJob: true}},
		{"ride with pending unlock", RideActive, UnlockPending, Outcome{Status: http.StatusOK}},
		{"ride with other job", RideActive, OtherJob, Outcome{Status: http.StatusOK}},
		{"nothing", RideAbsent, NoJob, Outcome{Status: http.StatusNotFound}},
		{"pending unlock", RideAbsent, UnlockPending, Outcome{Status: http.StatusNotFound}},
		{"started unlock before ride appears", RideAbsent, UnlockStarted, Outcome{Status: http.StatusNotFound}},
		{"failed unlock", RideAbsent, UnlockFailed, Outcome{Status: http.StatusFailedDependency, DeleteJob: true}},
		{"unexpected job type", RideAbsent, OtherJob, Outcome{Status: http.StatusBadRequest}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Reconcile(tc.ride, tc.job))
		})
	}
}

func TestClassifyJob(t *testing.T) {
	assert.Equal(t, NoJob, classifyJob(nil))
	assert.Equal(t, UnlockPending, classifyJob(&models.Job{Type: models.JobUnlock, State: models.JobPending}))
	assert.Equal(t, UnlockStarted, classifyJob(&models.Job{Type: models.JobUnlock, State: models.JobStarted}))
	assert.Equal(t, UnlockFailed, classifyJob(&models.Job{Type: models.JobUnlock, State: models.JobFailed}))
	assert.Equal(t, OtherJob, classifyJob(&models.Job{Type: models.JobVehicleStatusChange, State: models.JobFailed}))
}
