package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Kronicaler/hzpp-delay-stats/internal/config"
	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// Gateway is the full persistence surface of the monitor service. All
// writes are point updates or conflict-ignoring inserts keyed by the
// compound keys of the data model, so no caller needs multi-row
// transactions beyond what InsertTimetable does internally.
type Gateway interface {
	// EnsureSchema creates the tables if they do not exist.
	EnsureSchema(ctx context.Context) error

	Ping(ctx context.Context) error

	// InsertTimetable saves stations, routes and stops in one transaction,
	// ignoring rows that already exist, and returns only the routes that
	// were actually inserted.
	InsertTimetable(ctx context.Context, stations []model.Station, routes []model.Route) ([]model.Route, error)

	// GetStations loads the immutable station reference data.
	GetStations(ctx context.Context) (map[string]model.Station, error)

	// GetUnfinishedRoutes loads every route missing a real start or end
	// time, with its stops attached in sequence order.
	GetUnfinishedRoutes(ctx context.Context) ([]model.Route, error)

	UpdateRouteRealTimes(ctx context.Context, routeID string, expectedStart time.Time, realStart, realEnd *time.Time) error
	UpdateStopRealArrival(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realArrival time.Time) error
	UpdateStopRealDeparture(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realDeparture time.Time) error

	Close() error
}

// Open connects the backend selected by the configuration.
func Open(ctx context.Context, cfg *config.Config) (Gateway, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
