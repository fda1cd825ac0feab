// Package ingest fetches the day's timetable from the HZPP planner API
// and hands the newly inserted routes to the monitor supervisor.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// TimetableSource serves the planner API data.
type TimetableSource interface {
	Stations(ctx context.Context) ([]model.Station, error)
	Routes(ctx context.Context, day time.Time) ([]model.Route, error)
}

// Gateway is the slice of the persistence surface ingestion needs.
type Gateway interface {
	InsertTimetable(ctx context.Context, stations []model.Station, routes []model.Route) ([]model.Route, error)
}

// Job periodically ingests the current day's timetable. Routes already in
// the store are ignored on insert and never re-sent downstream, so
// re-running the job is harmless.
type Job struct {
	source   TimetableSource
	store    Gateway
	out      chan<- []model.Route
	interval time.Duration
}

func NewJob(source TimetableSource, store Gateway, out chan<- []model.Route, interval time.Duration) *Job {
	return &Job{source: source, store: store, out: out, interval: interval}
}

// Run ingests once immediately, then on every tick until the context is
// canceled. A failed run is logged and retried at the next tick.
func (j *Job) Run(ctx context.Context) error {
	if err := j.ingestOnce(ctx); err != nil {
		slog.Error("timetable ingest failed", "error", err)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.ingestOnce(ctx); err != nil {
				slog.Error("timetable ingest failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (j *Job) ingestOnce(ctx context.Context) error {
	log := slog.With("run", uuid.New().String())
	started := time.Now()

	stations, err := j.source.Stations(ctx)
	if err != nil {
		return fmt.Errorf("fetching stations: %w", err)
	}

	routes, err := j.source.Routes(ctx, started)
	if err != nil {
		return fmt.Errorf("fetching routes: %w", err)
	}

	saved, err := j.store.InsertTimetable(ctx, stations, routes)
	if err != nil {
		return fmt.Errorf("saving timetable: %w", err)
	}

	log.Info("timetable ingested",
		"stations", len(stations),
		"routes", len(routes),
		"new_routes", len(saved),
		"took", time.Since(started),
	)

	if len(saved) == 0 {
		return nil
	}

	select {
	case j.out <- saved:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
