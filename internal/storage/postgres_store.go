package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/fleet-rides/internal/models"
)

// PostgresStore implements the storage interfaces on the tables created by
// migrations/001_init.sql.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) GetActiveRide(ctx context.Context, riderID string) (models.ActiveRide, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT rider_id, vehicle_id, start_time, end_time, start_geohash, end_geohash,
		       start_battery_percentage, last_battery_percentage, distance
		FROM rider_active_rides
		WHERE rider_id = $1`, riderID)

	var (
		rid, vid                 sql.NullString
		startTime                sql.NullTime
		endTime                  sql.NullTime
		startGeohash, endGeohash sql.NullString
		startBattery, lastBatt   sql.NullInt64
		distance                 sql.NullFloat64
	)
	err := row.Scan(&rid, &vid, &startTime, &endTime, &startGeohash, &endGeohash, &startBattery, &lastBatt, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ActiveRide{}, ErrNotFound
	}
	if err != nil {
		return models.ActiveRide{}, fmt.Errorf("get active ride %s: %w", riderID, err)
	}
	// half-written rows from the actuator count as no ride
	if !rid.Valid || rid.String == "" || !vid.Valid || vid.String == "" {
		return models.ActiveRide{}, ErrNotFound
	}

	r := models.ActiveRide{
		RiderID:                rid.String,
		VehicleID:              vid.String,
		StartTime:              startTime.Time,
		StartGeohash:           startGeohash.String,
		EndGeohash:             endGeohash.String,
		StartBatteryPercentage: int(startBattery.Int64),
		LastBatteryPercentage:  int(lastBatt.Int64),
		Distance:               distance.Float64,
	}
	if endTime.Valid {
		t := endTime.Time
		r.EndTime = &t
	}
	return withDuration(r, p.now()), nil
}

func (p *PostgresStore) PutActiveRide(ctx context.Context, r models.ActiveRide) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rider_active_rides (rider_id, vehicle_id, start_time, end_time, start_geohash, end_geohash,
		                                start_battery_percentage, last_battery_percentage, distance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (rider_id) DO UPDATE SET
			vehicle_id = EXCLUDED.vehicle_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			start_geohash = EXCLUDED.start_geohash,
			end_geohash = EXCLUDED.end_geohash,
			start_battery_percentage = EXCLUDED.start_battery_percentage,
			last_battery_percentage = EXCLUDED.last_battery_percentage,
			distance = EXCLUDED.distance`,
		r.RiderID, r.VehicleID, r.StartTime, r.EndTime, r.StartGeohash, r.EndGeohash,
		r.StartBatteryPercentage, r.LastBatteryPercentage, r.Distance)
	return err
}

func (p *PostgresStore) DeleteUserRide(ctx context.Context, riderID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM rider_active_rides WHERE rider_id = $1`, riderID)
	return err
}

const vehicleColumns = `id, owner_id, status, in_transition, battery_percentage, model, qr_code, geo_hash, vehicle_name, vendor, device_id`

func scanVehicle(scan func(dest ...any) error) (models.Vehicle, error) {
	var (
		v                                      models.Vehicle
		status                                 string
		model, qr, geo, name, vendor, deviceID sql.NullString
	)
	if err := scan(&v.ID, &v.OwnerID, &status, &v.InTransition, &v.BatteryLevel, &model, &qr, &geo, &name, &vendor, &deviceID); err != nil {
		return models.Vehicle{}, err
	}
	v.Status, _ = models.ParseVehicleStatus(status)
	v.Model = model.String
	v.QRCode = qr.String
	v.GeoHash = geo.String
	v.Name = name.String
	v.Vendor = vendor.String
	v.DeviceID = deviceID.String
	return v, nil
}

func (p *PostgresStore) FindVehicle(ctx context.Context, id string) (models.Vehicle, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vehicle{}, ErrNotFound
	}
	return v, err
}

func (p *PostgresStore) FindVehicleByQRCode(ctx context.Context, qrCode string) (models.Vehicle, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE lower(qr_code) = lower($1)`, qrCode)
	v, err := scanVehicle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vehicle{}, ErrNotFound
	}
	return v, err
}

func (p *PostgresStore) VehiclesByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) VehiclesByGeoHashPrefix(ctx context.Context, prefix string) ([]models.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE geo_hash LIKE $1 || '%' ORDER BY id`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetVehicleStatus(ctx context.Context, id string, status models.VehicleStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE vehicles SET status = $1, in_transition = false WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) FindRider(ctx context.Context, id string) (models.Rider, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, phone_number, first_name, last_name, dav_balance, payment_method_id, payment_method_customer
		FROM riders WHERE id = $1`, id)
	var (
		r                                     models.Rider
		email, phone, first, last, pm, pmCust sql.NullString
		balance                               sql.NullFloat64
	)
	err := row.Scan(&r.ID, &email, &phone, &first, &last, &balance, &pm, &pmCust)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rider{}, ErrNotFound
	}
	if err != nil {
		return models.Rider{}, fmt.Errorf("find rider %s: %w", id, err)
	}
	r.Email = email.String
	r.PhoneNumber = phone.String
	r.FirstName = first.String
	r.LastName = last.String
	r.DavBalance = balance.Float64
	r.PaymentMethodID = pm.String
	r.PaymentMethodCustomer = pmCust.String
	return r, nil
}

func (p *PostgresStore) UpdatePaymentMethod(ctx context.Context, riderID, paymentMethodID, customerID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE riders SET payment_method_id = $1, payment_method_customer = $2 WHERE id = $3`,
		paymentMethodID, customerID, riderID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetRideSummary(ctx context.Context, riderID, vehicleID string, startTime time.Time) (models.RideSummary, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT rider_id, vehicle_id, owner_id, start_time, end_time, start_geohash, end_geohash,
		       parking_image_url, rating, feedback_tags, price, payment_method_dav, currency_code,
		       effective_date, distance, dav_awarded, conversion_rate
		FROM rides_summary
		WHERE rider_id = $1 AND vehicle_id = $2 AND start_time = $3`, riderID, vehicleID, startTime)

	var (
		s                                           models.RideSummary
		ownerID, startGeo, endGeo, parking, curr    sql.NullString
		effective                                   sql.NullString
		endTime                                     sql.NullTime
		rating                                      sql.NullInt64
		price, distance, davAwarded, conversionRate sql.NullFloat64
		payDav                                      sql.NullBool
	)
	err := row.Scan(&s.RiderID, &s.VehicleID, &ownerID, &s.StartTime, &endTime, &startGeo, &endGeo,
		&parking, &rating, pq.Array(&s.Tags), &price, &payDav, &curr,
		&effective, &distance, &davAwarded, &conversionRate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RideSummary{}, ErrNotFound
	}
	if err != nil {
		return models.RideSummary{}, fmt.Errorf("get ride summary: %w", err)
	}
	s.OwnerID = ownerID.String
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	s.StartGeohash = startGeo.String
	s.EndGeohash = endGeo.String
	s.ParkingImageURL = parking.String
	s.Rating = int(rating.Int64)
	s.Price = price.Float64
	s.PaymentMethodDav = payDav.Bool
	s.CurrencyCode = curr.String
	s.EffectiveDate = effective.String
	s.Distance = distance.Float64
	s.DavAwarded = davAwarded.Float64
	s.DavRate = conversionRate.Float64
	return s, nil
}

// SaveRideSummary writes both the primary row and its effective-date projection.
func (p *PostgresStore) SaveRideSummary(ctx context.Context, s models.RideSummary) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rides_summary (rider_id, vehicle_id, owner_id, start_time, end_time, start_geohash, end_geohash,
			                           parking_image_url, price, payment_method_dav, currency_code, effective_date,
			                           distance, dav_awarded, conversion_rate)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			s.RiderID, s.VehicleID, s.OwnerID, s.StartTime, s.EndTime, s.StartGeohash, s.EndGeohash,
			s.ParkingImageURL, s.Price, s.PaymentMethodDav, s.CurrencyCode, s.EffectiveDate,
			s.Distance, s.DavAwarded, s.DavRate); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rides_summary_effective_date (effective_date, rider_id, vehicle_id, start_time, price, payment_method_dav)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			s.EffectiveDate, s.RiderID, s.VehicleID, s.StartTime, s.Price, s.PaymentMethodDav)
		return err
	})
}

func (p *PostgresStore) SetRating(ctx context.Context, r models.Rating) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE rides_summary SET rating = $1, feedback_tags = $2
			WHERE rider_id = $3 AND vehicle_id = $4 AND start_time = $5`,
			r.Rating, pq.Array(r.Tags), r.RiderID, r.VehicleID, r.StartTime)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE rides_summary_effective_date SET rating = $1, feedback_tags = $2
			WHERE effective_date = $3 AND rider_id = $4 AND vehicle_id = $5 AND start_time = $6`,
			r.Rating, pq.Array(r.Tags), r.EffectiveDate, r.RiderID, r.VehicleID, r.StartTime)
		return err
	})
}

// OwnerVehicleStats aggregates the effective-date projection up to day. The
// parking image comes from the newest primary summary that has one.
func (p *PostgresStore) OwnerVehicleStats(ctx context.Context, ownerID, day string) ([]models.VehicleStats, error) {
	rows, err := p.db.QueryContext(ctx, `
		WITH stats AS (
			SELECT e.vehicle_id,
			       COUNT(*) FILTER (WHERE e.effective_date = $2)                    AS daily_use,
			       COALESCE(SUM(e.price) FILTER (WHERE e.effective_date = $2), 0)   AS daily_profit,
			       COUNT(*)                                                        AS total_use,
			       COALESCE(SUM(e.price), 0)                                       AS total_profit,
			       COUNT(*) FILTER (WHERE e.effective_date = $2 AND e.rating = 1)   AS rating_1,
			       COUNT(*) FILTER (WHERE e.effective_date = $2 AND e.rating = 2)   AS rating_2,
			       COUNT(*) FILTER (WHERE e.effective_date = $2 AND e.rating = 3)   AS rating_3,
			       COUNT(*) FILTER (WHERE e.effective_date = $2 AND e.rating = 4)   AS rating_4,
			       COUNT(*) FILTER (WHERE e.effective_date = $2 AND e.rating = 5)   AS rating_5
			FROM rides_summary_effective_date e
			JOIN vehicles v ON v.id = e.vehicle_id
			WHERE v.owner_id = $1 AND e.effective_date <= $2
			GROUP BY e.vehicle_id
		)
		SELECT st.vehicle_id, st.daily_use, st.daily_profit, st.total_use, st.total_profit,
		       st.rating_1, st.rating_2, st.rating_3, st.rating_4, st.rating_5,
		       COALESCE((SELECT r.parking_image_url FROM rides_summary r
		                 WHERE r.vehicle_id = st.vehicle_id AND r.effective_date <= $2 AND r.parking_image_url <> ''
		                 ORDER BY r.start_time DESC LIMIT 1), '')
		FROM stats st
		ORDER BY st.vehicle_id`, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("owner vehicle stats: %w", err)
	}
	defer rows.Close()
	out := make([]models.VehicleStats, 0)
	for rows.Next() {
		var st models.VehicleStats
		c := &st.FeedbackRatingCount
		if err := rows.Scan(&st.VehicleID, &st.DailyUse, &st.DailyProfit, &st.TotalUse, &st.TotalProfit,
			&c[0], &c[1], &c[2], &c[3], &c[4], &st.LastParkingImageURL); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (p *PostgresStore) VehicleFeedbacks(ctx context.Context, vehicleID string, before time.Time, limit int) ([]models.RideSummary, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT rider_id, vehicle_id, owner_id, start_time, end_time, parking_image_url, rating, feedback_tags
		FROM rides_summary
		WHERE vehicle_id = $1 AND start_time < $2 AND rating > 0
		ORDER BY start_time DESC
		LIMIT $3`, vehicleID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("vehicle feedbacks: %w", err)
	}
	defer rows.Close()
	out := make([]models.RideSummary, 0)
	for rows.Next() {
		var (
			s                models.RideSummary
			ownerID, parking sql.NullString
			endTime          sql.NullTime
			rating           sql.NullInt64
		)
		if err := rows.Scan(&s.RiderID, &s.VehicleID, &ownerID, &s.StartTime, &endTime, &parking, &rating, pq.Array(&s.Tags)); err != nil {
			return nil, err
		}
		s.OwnerID = ownerID.String
		s.ParkingImageURL = parking.String
		s.Rating = int(rating.Int64)
		if endTime.Valid {
			t := endTime.Time
			s.EndTime = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
