package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLite is the self-contained Gateway backend, used for single-node
// deployments and tests. SQLite allows only one writer at a time, so all
// writes are serialized through a mutex on top of a single connection.
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

func NewSQLite(dbPath string) (*SQLite, error) {
	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) InsertTimetable(ctx context.Context, stations []model.Station, routes []model.Route) ([]model.Route, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stationStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stations (id, code, name, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare station statement: %w", err)
	}
	defer stationStmt.Close()

	for _, st := range stations {
		if _, err := stationStmt.ExecContext(ctx, st.ID, st.Code, st.Name, st.Latitude, st.Longitude); err != nil {
			return nil, fmt.Errorf("failed to insert station %s: %w", st.ID, err)
		}
	}

	var saved []model.Route
	for _, r := range routes {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO routes (
				id, route_number, source, destination,
				bikes_allowed, wheelchair_accessible, route_type,
				expected_start_time, expected_end_time
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id, expected_start_time) DO NOTHING
			RETURNING route_number`,
			r.ID, r.RouteNumber, r.Source, r.Destination,
			int16(r.BikesAllowed), int16(r.WheelchairAccessible), int16(r.Type),
			formatTime(r.ExpectedStartTime), formatTime(r.ExpectedEndTime),
		)

		var routeNumber int
		if err := row.Scan(&routeNumber); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue // duplicate of an earlier ingest run
			}
			return nil, fmt.Errorf("failed to insert route %s: %w", r.ID, err)
		}
		saved = append(saved, r)
	}

	stopStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stops (
			station_id, route_id, route_expected_start_time, sequence,
			real_arrival, expected_arrival, real_departure, expected_departure
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (route_id, route_expected_start_time, sequence) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare stop statement: %w", err)
	}
	defer stopStmt.Close()

	for _, r := range saved {
		for _, st := range r.Stops {
			_, err := stopStmt.ExecContext(ctx,
				st.StationID, st.RouteID, formatTime(st.RouteExpectedStartTime), st.Sequence,
				formatNullableTime(st.RealArrival), formatTime(st.ExpectedArrival),
				formatNullableTime(st.RealDeparture), formatTime(st.ExpectedDeparture),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to insert stop %s/%d: %w", st.RouteID, st.Sequence, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit timetable: %w", err)
	}
	return saved, nil
}

func (s *SQLite) GetStations(ctx context.Context) (map[string]model.Station, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, code, name, latitude, longitude FROM stations")
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	stations := make(map[string]model.Station)
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Latitude, &st.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan station row: %w", err)
		}
		stations[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating station rows: %w", err)
	}
	return stations, nil
}

func (s *SQLite) GetUnfinishedRoutes(ctx context.Context) ([]model.Route, error) {
	rows, err := s.conn.QueryContext(ctx, `
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
		var start, end string
		var realStart, realEnd sql.NullString
		err := rows.Scan(
			&r.ID, &r.RouteNumber, &r.Source, &r.Destination,
			&bikes, &wheelchair, &routeType,
			&start, &end, &realStart, &realEnd,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		r.BikesAllowed = model.BikesAllowed(bikes)
		r.WheelchairAccessible = model.WheelchairAccessible(wheelchair)
		r.Type = model.RouteType(routeType)

		if r.ExpectedStartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("route %s expected_start_time: %w", r.ID, err)
		}
		if r.ExpectedEndTime, err = parseTime(end); err != nil {
			return nil, fmt.Errorf("route %s expected_end_time: %w", r.ID, err)
		}
		if r.RealStartTime, err = parseNullableTime(realStart); err != nil {
			return nil, fmt.Errorf("route %s real_start_time: %w", r.ID, err)
		}
		if r.RealEndTime, err = parseNullableTime(realEnd); err != nil {
			return nil, fmt.Errorf("route %s real_end_time: %w", r.ID, err)
		}

		index[r.Key()] = len(routes)
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route rows: %w", err)
	}

	stopRows, err := s.conn.QueryContext(ctx, `
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
		var st model.Stop
		var routeStart, expArr, expDep string
		var realArr, realDep sql.NullString
		err := stopRows.Scan(
			&st.StationID, &st.RouteID, &routeStart, &st.Sequence,
			&realArr, &expArr, &realDep, &expDep,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stop row: %w", err)
		}

		if st.RouteExpectedStartTime, err = parseTime(routeStart); err != nil {
			return nil, fmt.Errorf("stop %s/%d route_expected_start_time: %w", st.RouteID, st.Sequence, err)
		}
		if st.ExpectedArrival, err = parseTime(expArr); err != nil {
			return nil, fmt.Errorf("stop %s/%d expected_arrival: %w", st.RouteID, st.Sequence, err)
		}
		if st.ExpectedDeparture, err = parseTime(expDep); err != nil {
			return nil, fmt.Errorf("stop %s/%d expected_departure: %w", st.RouteID, st.Sequence, err)
		}
		if st.RealArrival, err = parseNullableTime(realArr); err != nil {
			return nil, fmt.Errorf("stop %s/%d real_arrival: %w", st.RouteID, st.Sequence, err)
		}
		if st.RealDeparture, err = parseNullableTime(realDep); err != nil {
			return nil, fmt.Errorf("stop %s/%d real_departure: %w", st.RouteID, st.Sequence, err)
		}

		owner := model.Route{ID: st.RouteID, ExpectedStartTime: st.RouteExpectedStartTime}
		if i, ok := index[owner.Key()]; ok {
			routes[i].Stops = append(routes[i].Stops, st)
		}
	}
	if err := stopRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stop rows: %w", err)
	}

	return routes, nil
}

func (s *SQLite) UpdateRouteRealTimes(ctx context.Context, routeID string, expectedStart time.Time, realStart, realEnd *time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		UPDATE routes
		SET real_start_time = ?, real_end_time = ?
		WHERE expected_start_time = ? AND id = ?`,
		formatNullableTime(realStart), formatNullableTime(realEnd), formatTime(expectedStart), routeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update route %s real times: %w", routeID, err)
	}
	return nil
}

func (s *SQLite) UpdateStopRealArrival(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realArrival time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		UPDATE stops
		SET real_arrival = ?
		WHERE route_expected_start_time = ? AND route_id = ? AND sequence = ?`,
		formatTime(realArrival), formatTime(routeExpectedStart), routeID, sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to update stop %s/%d real arrival: %w", routeID, sequence, err)
	}
	return nil
}

func (s *SQLite) UpdateStopRealDeparture(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realDeparture time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		UPDATE stops
		SET real_departure = ?
		WHERE route_expected_start_time = ? AND route_id = ? AND sequence = ?`,
		formatTime(realDeparture), formatTime(routeExpectedStart), routeID, sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to update stop %s/%d real departure: %w", routeID, sequence, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
