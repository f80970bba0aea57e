// Package geo caches vehicle search results per geohash prefix. A search
// worker fills a prefix after the API marks it pending; until then riders
// are told to poll again.
package geo

import (
	"context"
	"sync"
	"time"

	"github.com/example/fleet-rides/internal/models"
)

type State int

const (
	Missing State = iota
	Pending
	Ready
)

type Result struct {
	State    State
	Vehicles []models.Vehicle
}

// Index is the search cache shared by the API and the search worker.
type Index interface {
	Lookup(ctx context.Context, prefix string) (Result, error)
	MarkPending(ctx context.Context, prefix string) error
	Store(ctx context.Context, prefix string, vehicles []models.Vehicle) error
}

const (
	DefaultPendingTTL = 15 * time.Second
	DefaultResultTTL  = time.Minute
)

// Prefix cuts geoHash to the search precision, the larger of accuracy and
// maxRange, and returns the precision used.
func Prefix(geoHash string, accuracy, maxRange int) (string, int) {
	n := max(accuracy, maxRange)
	if n <= 0 || n > len(geoHash) {
		return geoHash, n
	}
	return geoHash[:n], n
}

type entry struct {
	result  Result
	expires time.Time
}

// MemoryIndex keeps entries in process with the same expiry rules as Redis.
type MemoryIndex struct {
	mu         sync.Mutex
	entries    map[string]entry
	pendingTTL time.Duration
	resultTTL  time.Duration
	now        func() time.Time
}

func NewMemoryIndex(pendingTTL, resultTTL time.Duration) *MemoryIndex {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	return &MemoryIndex{entries: make(map[string]entry), pendingTTL: pendingTTL, resultTTL: resultTTL, now: time.Now}
}

func (g *MemoryIndex) Lookup(_ context.Context, prefix string) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[prefix]
	if !ok || !g.now().Before(e.expires) {
		delete(g.entries, prefix)
		return Result{State: Missing}, nil
	}
	return e.result, nil
}

func (g *MemoryIndex) MarkPending(_ context.Context, prefix string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[prefix] = entry{result: Result{State: Pending}, expires: g.now().Add(g.pendingTTL)}
	return nil
}

func (g *MemoryIndex) Store(_ context.Context, prefix string, vehicles []models.Vehicle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	vs := append(make([]models.Vehicle, 0, len(vehicles)), vehicles...)
	g.entries[prefix] = entry{result: Result{State: Ready, Vehicles: vs}, expires: g.now().Add(g.resultTTL)}
	return nil
}
