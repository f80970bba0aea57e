package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/fleet-rides/internal/models"
)

type summaryKey struct {
	riderID   string
	vehicleID string
	startTime int64
}

type projectionKey struct {
	effectiveDate string
	summaryKey
}

// MemoryStore implements every storage interface in process. It backs local
// runs without PG_DSN and the controller tests.
type MemoryStore struct {
	mu        sync.RWMutex
	rides     map[string]models.ActiveRide
	vehicles  map[string]models.Vehicle
	riders    map[string]models.Rider
	summaries map[summaryKey]models.RideSummary
	// byDate mirrors rides_summary_effective_date.
	byDate map[projectionKey]models.RideSummary
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:     make(map[string]models.ActiveRide),
		vehicles:  make(map[string]models.Vehicle),
		riders:    make(map[string]models.Rider),
		summaries: make(map[summaryKey]models.RideSummary),
		byDate:    make(map[projectionKey]models.RideSummary),
		now:       time.Now,
	}
}

func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) GetActiveRide(_ context.Context, riderID string) (models.ActiveRide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[riderID]
	if !ok || r.RiderID == "" || r.VehicleID == "" {
		return models.ActiveRide{}, ErrNotFound
	}
	return withDuration(r, m.now()), nil
}

func (m *MemoryStore) PutActiveRide(_ context.Context, ride models.ActiveRide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.RiderID] = ride
	return nil
}

func (m *MemoryStore) DeleteUserRide(_ context.Context, riderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, riderID)
	return nil
}

func (m *MemoryStore) PutVehicle(v models.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
}

func (m *MemoryStore) FindVehicle(_ context.Context, id string) (models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return models.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) FindVehicleByQRCode(_ context.Context, qrCode string) (models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if strings.EqualFold(v.QRCode, qrCode) {
			return v, nil
		}
	}
	return models.Vehicle{}, ErrNotFound
}

func (m *MemoryStore) VehiclesByOwner(_ context.Context, ownerID string) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Vehicle, 0)
	for _, v := range m.vehicles {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) VehiclesByGeoHashPrefix(_ context.Context, prefix string) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Vehicle, 0)
	for _, v := range m.vehicles {
		if v.GeoHash != "" && strings.HasPrefix(v.GeoHash, prefix) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetVehicleStatus(_ context.Context, id string, status models.VehicleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Status = status
	m.vehicles[id] = v
	return nil
}

func (m *MemoryStore) PutRider(r models.Rider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[r.ID] = r
}

func (m *MemoryStore) FindRider(_ context.Context, id string) (models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	if !ok {
		return models.Rider{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) UpdatePaymentMethod(_ context.Context, riderID, paymentMethodID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riders[riderID]
	if !ok {
		return ErrNotFound
	}
	r.PaymentMethodID = paymentMethodID
	r.PaymentMethodCustomer = customerID
	m.riders[riderID] = r
	return nil
}

func keyOf(riderID, vehicleID string, startTime time.Time) summaryKey {
	return summaryKey{riderID: riderID, vehicleID: vehicleID, startTime: startTime.UnixMilli()}
}

func (m *MemoryStore) GetRideSummary(_ context.Context, riderID, vehicleID string, startTime time.Time) (models.RideSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[keyOf(riderID, vehicleID, startTime)]
	if !ok {
		return models.RideSummary{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) SaveRideSummary(_ context.Context, s models.RideSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(s.RiderID, s.VehicleID, s.StartTime)
	m.summaries[k] = s
	m.byDate[projectionKey{effectiveDate: s.EffectiveDate, summaryKey: k}] = models.RideSummary{
		RiderID:          s.RiderID,
		VehicleID:        s.VehicleID,
		StartTime:        s.StartTime,
		EffectiveDate:    s.EffectiveDate,
		Price:            s.Price,
		PaymentMethodDav: s.PaymentMethodDav,
	}
	return nil
}

// SetRating writes the summary and its effective-date row under one lock.
func (m *MemoryStore) SetRating(_ context.Context, r models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(r.RiderID, r.VehicleID, r.StartTime)
	s, ok := m.summaries[k]
	if !ok {
		return ErrNotFound
	}
	tags := append([]string(nil), r.Tags...)
	s.Rating = r.Rating
	s.Tags = tags
	m.summaries[k] = s

	pk := projectionKey{effectiveDate: r.EffectiveDate, summaryKey: k}
	if row, ok := m.byDate[pk]; ok {
		row.Rating = r.Rating
		row.Tags = tags
		m.byDate[pk] = row
	}
	return nil
}

func (m *MemoryStore) OwnerVehicleStats(_ context.Context, ownerID, day string) ([]models.VehicleStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byVehicle := make(map[string]*models.VehicleStats)
	for k, row := range m.byDate {
		if k.effectiveDate > day || m.vehicles[row.VehicleID].OwnerID != ownerID {
			continue
		}
		st, ok := byVehicle[row.VehicleID]
		if !ok {
			st = &models.VehicleStats{VehicleID: row.VehicleID}
			byVehicle[row.VehicleID] = st
		}
		st.TotalUse++
		st.TotalProfit += row.Price
		if k.effectiveDate != day {
			continue
		}
		st.DailyUse++
		st.DailyProfit += row.Price
		if row.Rating >= 1 && row.Rating <= 5 {
			st.FeedbackRatingCount[row.Rating-1]++
		}
	}

	out := make([]models.VehicleStats, 0, len(byVehicle))
	for id, st := range byVehicle {
		var last models.RideSummary
		for _, s := range m.summaries {
			if s.VehicleID == id && s.ParkingImageURL != "" && s.EffectiveDate <= day && s.StartTime.After(last.StartTime) {
				last = s
			}
		}
		st.LastParkingImageURL = last.ParkingImageURL
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

func (m *MemoryStore) VehicleFeedbacks(_ context.Context, vehicleID string, before time.Time, limit int) ([]models.RideSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideSummary, 0)
	for _, s := range m.summaries {
		if s.VehicleID == vehicleID && s.Rating > 0 && s.StartTime.Before(before) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
