package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fleet-rides/internal/config"
	"github.com/example/fleet-rides/internal/dispatch"
	"github.com/example/fleet-rides/internal/geo"
	"github.com/example/fleet-rides/internal/jobs"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/storage"
)

func newTestActuator(t *testing.T) (*actuator, *storage.MemoryStore, *jobs.MemoryStore) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	st := storage.NewMemoryStore().WithClock(func() time.Time { return now })
	st.PutVehicle(models.Vehicle{ID: "v1", OwnerID: "o1", QRCode: "qr-1", Status: models.StatusAvailable, BatteryLevel: 80, GeoHash: "u4pruyd"})
	st.PutVehicle(models.Vehicle{ID: "v2", OwnerID: "o1", QRCode: "qr-2", Status: models.StatusMaintenance, GeoHash: "u4pruyz"})
	js := jobs.NewMemoryStore(jobs.DefaultTTL)
	a := &actuator{
		channels:       config.DefaultChannels(),
		store:          st,
		jobs:           js,
		index:          geo.NewMemoryIndex(0, 0),
		pricePerMinute: 0.5,
		currency:       "EUR",
		attempts:       3,
		delay:          time.Millisecond,
		now:            func() time.Time { return now },
		logger:         logging.Discard(),
	}
	return a, st, js
}

func TestUnlock_StartsRide(t *testing.T) {
	a, st, js := newTestActuator(t)
	ctx := context.Background()
	require.NoError(t, js.Insert(ctx, models.Job{ID: "r1", State: models.JobPending, Type: models.JobUnlock}))

	require.NoError(t, a.handle(ctx, "unlock-vehicle", []byte(`{"qrCode":"qr-1","riderId":"r1","jobId":"r1"}`)))

	ride, err := st.GetActiveRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v1", ride.VehicleID)
	assert.Equal(t, 80, ride.StartBatteryPercentage)
	assert.Zero(t, ride.StartTime.Nanosecond()%int(time.Millisecond))

	// a client echoes the start time back as epoch millis
	echoed := time.UnixMilli(ride.StartTime.UnixMilli()).UTC()
	assert.True(t, echoed.Equal(ride.StartTime))

	job, err := js.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStarted, job.State)

	v, err := st.FindVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnMission, v.Status)
}

func TestUnlock_FailsJobForUnavailableVehicle(t *testing.T) {
	for _, qr := range []string{"qr-2", "qr-missing"} {
		t.Run(qr, func(t *testing.T) {
			a, st, js := newTestActuator(t)
			ctx := context.Background()
			require.NoError(t, js.Insert(ctx, models.Job{ID: "r1", State: models.JobPending, Type: models.JobUnlock}))

			require.NoError(t, a.handle(ctx, "unlock-vehicle", []byte(`{"qrCode":"`+qr+`","riderId":"r1","jobId":"r1"}`)))

			job, err := js.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, models.JobFailed, job.State)
			_, err = st.GetActiveRide(ctx, "r1")
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestEndRide_WritesSummary(t *testing.T) {
	a, st, _ := newTestActuator(t)
	ctx := context.Background()
	start := a.now().Add(-90 * time.Second)
	require.NoError(t, st.PutActiveRide(ctx, models.ActiveRide{RiderID: "r1", VehicleID: "v1", StartTime: start}))
	require.NoError(t, st.SetVehicleStatus(ctx, "v1", models.StatusOnMission))

	require.NoError(t, a.handle(ctx, "end-ride", []byte(`{"riderId":"r1","parkingImageUrl":"https://img"}`)))

	_, err := st.GetActiveRide(ctx, "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	s, err := st.GetRideSummary(ctx, "r1", "v1", start)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Price)
	assert.Equal(t, "EUR", s.CurrencyCode)
	assert.Equal(t, "2024-05-01", s.EffectiveDate)
	assert.Equal(t, "o1", s.OwnerID)
	require.NotNil(t, s.EndTime)
	assert.Equal(t, a.now().Truncate(time.Millisecond), *s.EndTime)

	v, err := st.FindVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, v.Status)

	assert.NoError(t, a.handle(ctx, "end-ride", []byte(`{"riderId":"r1"}`)))
}

func TestChangeStatus(t *testing.T) {
	a, st, js := newTestActuator(t)
	ctx := context.Background()
	require.NoError(t, js.Insert(ctx, models.Job{ID: "j1", State: models.JobPending, Type: models.JobVehicleStatusChange}))
	require.NoError(t, js.Insert(ctx, models.Job{ID: "j2", State: models.JobPending, Type: models.JobVehicleStatusChange}))

	require.NoError(t, a.handle(ctx, dispatch.ChannelCordonGarageVehicle, []byte(`{"vehicleId":"v1","jobId":"j1"}`)))
	v, err := st.FindVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusMaintenance, v.Status)
	job, err := js.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStarted, job.State)

	require.NoError(t, a.handle(ctx, dispatch.ChannelCordonVehicle, []byte(`{"vehicleId":"ghost","jobId":"j2"}`)))
	job, err = js.Get(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.State)
}

func TestSearch_StoresAvailableVehicles(t *testing.T) {
	a, _, _ := newTestActuator(t)
	ctx := context.Background()

	require.NoError(t, a.handle(ctx, "search-vehicles", []byte(`{"searchPrefixLength":4,"locationHash":"u4pr"}`)))

	res, err := a.index.Lookup(ctx, "u4pr")
	require.NoError(t, err)
	assert.Equal(t, geo.Ready, res.State)
	require.Len(t, res.Vehicles, 1)
	assert.Equal(t, "v1", res.Vehicles[0].ID)

	assert.Error(t, a.handle(ctx, "search-vehicles", []byte(`{"searchPrefixLength":4}`)))
}

func TestHandle_Rejects(t *testing.T) {
	a, _, _ := newTestActuator(t)
	assert.ErrorIs(t, a.handle(context.Background(), "driver-locations", []byte(`{}`)), errUnknownChannel)
	assert.Error(t, a.handle(context.Background(), "unlock-vehicle", []byte(`{`)))
}

func TestTopics(t *testing.T) {
	a, _, _ := newTestActuator(t)
	topics := a.topics()
	assert.Len(t, topics, 9)
	assert.Contains(t, topics, "unlock-vehicle")
	assert.Contains(t, topics, "search-vehicles")
	assert.Contains(t, topics, dispatch.ChannelUngarageVehicle)
}

func TestWithRetry_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	start := time.Now()
	err := withRetry(context.Background(), 3, 10*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("store busy")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWithRetry_FailsWhenExhausted(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("store down")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExpiredJobIsNotRetried(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return jobs.ErrNotFound
	})
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	assert.Equal(t, 1, calls)
}

type fakeReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func TestRun_HandlesUntilCancelled(t *testing.T) {
	a, st, js := newTestActuator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, js.Insert(ctx, models.Job{ID: "r1", State: models.JobPending, Type: models.JobUnlock}))

	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Topic: "bogus", Value: []byte(`{}`)},
		{Topic: "unlock-vehicle", Value: []byte(`{"qrCode":"qr-1","riderId":"r1","jobId":"r1"}`)},
	}}
	run(ctx, r, a)

	_, err := st.GetActiveRide(context.Background(), "r1")
	assert.NoError(t, err)
}
