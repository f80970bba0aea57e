package vehicle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/fleet-rides/internal/dispatch"
	"github.com/example/fleet-rides/internal/geo"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/models"
	"github.com/example/fleet-rides/internal/storage"
)

var ErrMissingGeoHash = errors.New("geoHash is required")

// MinBatteryLevel is the charge below which a vehicle is not offered.
const MinBatteryLevel = 20

type CatalogOptions struct {
	SearchChannel     string
	MaxRange          int
	TestUserID        string
	TestVehicleQRCode string
}

// Catalog answers the rider app's vehicle lookups. The test rider only ever
// sees the test vehicle and everyone else never does.
type Catalog struct {
	vehicles   storage.Vehicles
	index      geo.Index
	dispatcher dispatch.Dispatcher
	opts       CatalogOptions
	logger     *slog.Logger
}

func NewCatalog(vehicles storage.Vehicles, index geo.Index, dispatcher dispatch.Dispatcher, opts CatalogOptions, logger *slog.Logger) *Catalog {
	if opts.SearchChannel == "" {
		opts.SearchChannel = "search-vehicles"
	}
	if opts.MaxRange <= 0 {
		opts.MaxRange = 4
	}
	return &Catalog{
		vehicles:   vehicles,
		index:      index,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logging.Component(logger, "catalog"),
	}
}

func (c *Catalog) isTestVehicle(v models.Vehicle) bool {
	return strings.EqualFold(v.QRCode, c.opts.TestVehicleQRCode)
}

func (c *Catalog) visible(riderID string, v models.Vehicle) bool {
	return (riderID == c.opts.TestUserID) == c.isTestVehicle(v)
}

// DecodeQRCode turns the base64 path segment the app sends into the code
// printed on the vehicle. Scanned URLs keep only their last path element.
func DecodeQRCode(code string) (string, error) {
	var raw []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if raw, err = enc.DecodeString(code); err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode qr code: %w", err)
	}
	s := string(raw)
	return s[strings.LastIndex(s, "/")+1:], nil
}

// Availability is a scanned vehicle. Reason is set when it cannot be rented:
// the vehicle status, or "batteryLevel" when the charge is too low.
type Availability struct {
	Vehicle models.Vehicle
	Reason  string
}

func (a Availability) Available() bool { return a.Reason == "" }

func (c *Catalog) ByQRCode(ctx context.Context, riderID, code string) (Availability, error) {
	qr, err := DecodeQRCode(code)
	if err != nil {
		return Availability{}, ErrNotFound
	}
	v, err := c.vehicles.FindVehicleByQRCode(ctx, qr)
	if errors.Is(err, storage.ErrNotFound) {
		return Availability{}, ErrNotFound
	}
	if err != nil {
		return Availability{}, fmt.Errorf("find vehicle by qr: %w", err)
	}
	if !c.visible(riderID, v) {
		return Availability{}, ErrNotFound
	}
	switch {
	case v.Status != models.StatusAvailable:
		return Availability{Vehicle: v, Reason: string(v.Status)}, nil
	case v.BatteryLevel < MinBatteryLevel:
		return Availability{Vehicle: v, Reason: "batteryLevel"}, nil
	}
	return Availability{Vehicle: v}, nil
}

type searchMessage struct {
	SearchPrefixLength int    `json:"searchPrefixLength"`
	LocationHash       string `json:"locationHash"`
}

// SearchResult is pending until the search worker has filled the prefix.
type SearchResult struct {
	Pending  bool
	Vehicles []models.Vehicle
}

// Search looks up vehicles around geoHash at the given accuracy. A cold
// prefix is marked pending and handed to the search worker; the marker
// expires on its own if the worker never answers.
func (c *Catalog) Search(ctx context.Context, riderID, geoHash string, accuracy int) (SearchResult, error) {
	if geoHash == "" {
		return SearchResult{}, ErrMissingGeoHash
	}
	prefix, n := geo.Prefix(geoHash, accuracy, c.opts.MaxRange)
	res, err := c.index.Lookup(ctx, prefix)
	if err != nil {
		return SearchResult{}, err
	}

	switch res.State {
	case geo.Missing:
		if err := c.index.MarkPending(ctx, prefix); err != nil {
			return SearchResult{}, err
		}
		if err := c.dispatcher.Send(ctx, c.opts.SearchChannel, searchMessage{SearchPrefixLength: n, LocationHash: prefix}); err != nil {
			return SearchResult{}, fmt.Errorf("dispatch search: %w", err)
		}
		c.logger.Info("vehicle search requested", "prefix", prefix, "precision", n)
		return SearchResult{Pending: true}, nil
	case geo.Pending:
		return SearchResult{Pending: true}, nil
	}

	if riderID == c.opts.TestUserID {
		v, err := c.vehicles.FindVehicleByQRCode(ctx, c.opts.TestVehicleQRCode)
		if errors.Is(err, storage.ErrNotFound) {
			return SearchResult{Vehicles: []models.Vehicle{}}, nil
		}
		if err != nil {
			return SearchResult{}, fmt.Errorf("find test vehicle: %w", err)
		}
		return SearchResult{Vehicles: []models.Vehicle{v}}, nil
	}
	out := make([]models.Vehicle, 0, len(res.Vehicles))
	for _, v := range res.Vehicles {
		if !c.isTestVehicle(v) {
			out = append(out, v)
		}
	}
	return SearchResult{Vehicles: out}, nil
}
