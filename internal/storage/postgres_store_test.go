package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fleet-rides/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{db: db, now: time.Now}, mock
}

var ratedRide = models.Rating{
	RiderID:       "r1",
	VehicleID:     "v1",
	StartTime:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	EffectiveDate: "2024-05-01",
	Rating:        5,
	Tags:          []string{"smooth"},
}

func TestPostgresSetRating_UpdatesBothTablesInOneTx(t *testing.T) {
	p, mock := newMockStore(t)
	r := ratedRide

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rides_summary SET rating`).
		WithArgs(r.Rating, sqlmock.AnyArg(), r.RiderID, r.VehicleID, r.StartTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE rides_summary_effective_date SET rating`).
		WithArgs(r.Rating, sqlmock.AnyArg(), r.EffectiveDate, r.RiderID, r.VehicleID, r.StartTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.SetRating(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetRating_MissingSummaryRollsBack(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rides_summary SET rating`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, p.SetRating(context.Background(), ratedRide), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetRating_ProjectionFailureRollsBack(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rides_summary SET rating`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE rides_summary_effective_date SET rating`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	assert.EqualError(t, p.SetRating(context.Background(), ratedRide), "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRideSummary_WritesProjection(t *testing.T) {
	p, mock := newMockStore(t)
	s := models.RideSummary{
		RiderID: "r1", VehicleID: "v1", StartTime: ratedRide.StartTime,
		EffectiveDate: "2024-05-01", Price: 2.5, PaymentMethodDav: true,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO rides_summary \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO rides_summary_effective_date`).
		WithArgs("2024-05-01", "r1", "v1", s.StartTime, 2.5, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.SaveRideSummary(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVehicleFeedbacks_ScansTags(t *testing.T) {
	p, mock := newMockStore(t)
	before := ratedRide.StartTime.Add(time.Hour)
	end := ratedRide.StartTime.Add(10 * time.Minute)

	rows := sqlmock.NewRows([]string{"rider_id", "vehicle_id", "owner_id", "start_time", "end_time", "parking_image_url", "rating", "feedback_tags"}).
		AddRow("r1", "v1", "o1", ratedRide.StartTime, end, "https://img/1", int64(5), []byte("{smooth,clean}"))
	mock.ExpectQuery(`FROM rides_summary`).WithArgs("v1", before, 5).WillReturnRows(rows)

	got, err := p.VehicleFeedbacks(context.Background(), "v1", before, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"smooth", "clean"}, got[0].Tags)
	assert.Equal(t, 5, got[0].Rating)
	require.NotNil(t, got[0].EndTime)
	assert.Equal(t, end, *got[0].EndTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}
