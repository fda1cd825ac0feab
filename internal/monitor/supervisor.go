package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kronicaler/hzpp-delay-stats/internal/config"
	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// Supervisor owns the fleet of route monitors. At startup it recovers
// every unfinished route from the store, then keeps spawning monitors for
// batches arriving on the ingestion channel until the channel closes.
type Supervisor struct {
	store  Gateway
	source StatusSource
	cfg    *config.Config

	stations map[string]model.Station

	mu      sync.Mutex
	claimed map[string]struct{}

	wg sync.WaitGroup
}

func NewSupervisor(store Gateway, source StatusSource, cfg *config.Config) *Supervisor {
	return &Supervisor{
		store:   store,
		source:  source,
		cfg:     cfg,
		claimed: make(map[string]struct{}),
	}
}

// ActiveMonitors reports how many routes currently have a running monitor.
func (s *Supervisor) ActiveMonitors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claimed)
}

// Run blocks until the ingestion channel closes and every monitor has
// exited. Channel closure is a normal shutdown signal, not an error.
func (s *Supervisor) Run(ctx context.Context, batches <-chan []model.Route) error {
	stations, err := s.store.GetStations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stations: %w", err)
	}
	// Read-only for the lifetime of the session, shared by all monitors.
	s.stations = stations
	slog.Info("loaded station reference data", "stations", len(stations))

	unfinished, err := s.store.GetUnfinishedRoutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unfinished routes: %w", err)
	}
	slog.Info("recovered unfinished routes", "routes", len(unfinished))
	for _, route := range unfinished {
		s.spawn(ctx, route)
	}

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				slog.Info("ingestion channel closed, waiting for monitors to finish")
				s.wg.Wait()
				return nil
			}
			for _, route := range batch {
				s.spawn(ctx, route)
			}
		}
	}
}

// spawn claims the route's compound key and starts its monitor. Routes
// already past their end time are discarded without polling, and a route
// that is already claimed keeps its existing monitor.
func (s *Supervisor) spawn(ctx context.Context, route model.Route) {
	if route.ExpectedEndTime.Before(time.Now()) {
		slog.Info("discarding route already past its end time",
			"route", route.ID,
			"expected_end", route.ExpectedEndTime,
		)
		return
	}

	key := route.Key()
	s.mu.Lock()
	if _, dup := s.claimed[key]; dup {
		s.mu.Unlock()
		slog.Warn("route is already being monitored, skipping",
			"route", route.ID,
			"expected_start", route.ExpectedStartTime,
		)
		return
	}
	s.claimed[key] = struct{}{}
	s.mu.Unlock()

	m := New(&route, s.stations, s.source, s.store, s.cfg)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.claimed, key)
			s.mu.Unlock()
		}()

		outcome := m.Run(ctx)
		slog.Info("monitor finished",
			"route", route.ID,
			"train", route.RouteNumber,
			"expected_start", route.ExpectedStartTime,
			"outcome", outcome.String(),
		)
	}()
}
