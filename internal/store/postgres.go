package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres is the production Gateway backend.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *Postgres) InsertTimetable(ctx context.Context, stations []model.Station, routes []model.Route) ([]model.Route, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stationBatch := &pgx.Batch{}
	for _, s := range stations {
		stationBatch.Queue(`
			INSERT INTO stations (id, code, name, latitude, longitude)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			s.ID, s.Code, s.Name, s.Latitude, s.Longitude,
		)
	}
	if err := tx.SendBatch(ctx, stationBatch).Close(); err != nil {
		return nil, fmt.Errorf("failed to insert stations: %w", err)
	}

	var saved []model.Route
	for _, r := range routes {
		row := tx.QueryRow(ctx, `
			INSERT INTO routes (
				id, route_number, source, destination,
				bikes_allowed, wheelchair_accessible, route_type,
				expected_start_time, expected_end_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id, expected_start_time) DO NOTHING
			RETURNING route_number`,
			r.ID, r.RouteNumber, r.Source, r.Destination,
			int16(r.BikesAllowed), int16(r.WheelchairAccessible), int16(r.Type),
			r.ExpectedStartTime, r.ExpectedEndTime,
		)

		var routeNumber int
		if err := row.Scan(&routeNumber); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // duplicate of an earlier ingest run
			}
			return nil, fmt.Errorf("failed to insert route %s: %w", r.ID, err)
		}
		saved = append(saved, r)
	}

	stopBatch := &pgx.Batch{}
	for _, r := range saved {
		for _, s := range r.Stops {
			stopBatch.Queue(`
				INSERT INTO stops (
					station_id, route_id, route_expected_start_time, sequence,
					real_arrival, expected_arrival, real_departure, expected_departure
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (route_id, route_expected_start_time, sequence) DO NOTHING`,
				s.StationID, s.RouteID, s.RouteExpectedStartTime, s.Sequence,
				s.RealArrival, s.ExpectedArrival, s.RealDeparture, s.ExpectedDeparture,
			)
		}
	}
	if err := tx.SendBatch(ctx, stopBatch).Close(); err != nil {
		return nil, fmt.Errorf("failed to insert stops: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit timetable: %w", err)
	}
	return saved, nil
}

func (p *Postgres) GetStations(ctx context.Context) (map[string]model.Station, error) {
	rows, err := p.pool.Query(ctx, "SELECT id, code, name, latitude, longitude FROM stations")
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	stations := make(map[string]model.Station)
	for rows.Next() {
		var s model.Station
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan station row: %w", err)
		}
		stations[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating station rows: %w", err)
	}
	return stations, nil
}

func (p *Postgres) GetUnfinishedRoutes(ctx context.Context) ([]model.Route, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, route_number, source, destination,
			bikes_allowed, wheelchair_accessible, route_type,
			expected_start_time, expected_end_time, real_start_time, real_end_time
		FROM routes
		WHERE real_end_time IS NULL OR real_start_time IS NULL
		ORDER BY id, expected_start_time`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished routes: %w", err)
	}
	defer rows.Close()

	var routes []model.Route
	index := make(map[string]int)
	for rows.Next() {
		var r model.Route
		var bikes, wheelchair, routeType int16
		err := rows.Scan(
			&r.ID, &r.RouteNumber, &r.Source, &r.Destination,
			&bikes, &wheelchair, &routeType,
			&r.ExpectedStartTime, &r.ExpectedEndTime, &r.RealStartTime, &r.RealEndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		r.BikesAllowed = model.BikesAllowed(bikes)
		r.WheelchairAccessible = model.WheelchairAccessible(wheelchair)
		r.Type = model.RouteType(routeType)

		index[r.Key()] = len(routes)
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route rows: %w", err)
	}

	stopRows, err := p.pool.Query(ctx, `
		SELECT s.station_id, s.route_id, s.route_expected_start_time, s.sequence,
			s.real_arrival, s.expected_arrival, s.real_departure, s.expected_departure
		FROM stops s
		JOIN routes r
			ON r.id = s.route_id AND r.expected_start_time = s.route_expected_start_time
		WHERE r.real_end_time IS NULL OR r.real_start_time IS NULL
		ORDER BY s.route_id, s.route_expected_start_time, s.sequence`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	defer stopRows.Close()

	for stopRows.Next() {
		var s model.Stop
		err := stopRows.Scan(
			&s.StationID, &s.RouteID, &s.RouteExpectedStartTime, &s.Sequence,
			&s.RealArrival, &s.ExpectedArrival, &s.RealDeparture, &s.ExpectedDeparture,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stop row: %w", err)
		}

		owner := model.Route{ID: s.RouteID, ExpectedStartTime: s.RouteExpectedStartTime}
		if i, ok := index[owner.Key()]; ok {
			routes[i].Stops = append(routes[i].Stops, s)
		}
	}
	if err := stopRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stop rows: %w", err)
	}

	return routes, nil
}

func (p *Postgres) UpdateRouteRealTimes(ctx context.Context, routeID string, expectedStart time.Time, realStart, realEnd *time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE routes
		SET real_start_time = $1, real_end_time = $2
		WHERE expected_start_time = $3 AND id = $4`,
		realStart, realEnd, expectedStart, routeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update route %s real times: %w", routeID, err)
	}
	return nil
}

func (p *Postgres) UpdateStopRealArrival(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realArrival time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE stops
		SET real_arrival = $1
		WHERE route_expected_start_time = $2 AND route_id = $3 AND sequence = $4`,
		realArrival, routeExpectedStart, routeID, sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to update stop %s/%d real arrival: %w", routeID, sequence, err)
	}
	return nil
}

func (p *Postgres) UpdateStopRealDeparture(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realDeparture time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE stops
		SET real_departure = $1
		WHERE route_expected_start_time = $2 AND route_id = $3 AND sequence = $4`,
		realDeparture, routeExpectedStart, routeID, sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to update stop %s/%d real departure: %w", routeID, sequence, err)
	}
	return nil
}
