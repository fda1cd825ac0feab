package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kronicaler/hzpp-delay-stats/internal/config"
	"github.com/Kronicaler/hzpp-delay-stats/internal/hzpp"
	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// StatusSource reports the current upstream status of one train.
type StatusSource interface {
	TrainStatus(ctx context.Context, routeNumber int) (hzpp.TrainStatus, error)
}

// Gateway is the slice of the persistence surface the monitors need.
type Gateway interface {
	GetStations(ctx context.Context) (map[string]model.Station, error)
	GetUnfinishedRoutes(ctx context.Context) ([]model.Route, error)
	UpdateRouteRealTimes(ctx context.Context, routeID string, expectedStart time.Time, realStart, realEnd *time.Time) error
	UpdateStopRealArrival(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realArrival time.Time) error
	UpdateStopRealDeparture(ctx context.Context, routeID string, routeExpectedStart time.Time, sequence int, realDeparture time.Time) error
}

// Outcome is the terminal state a monitor reached.
type Outcome int

const (
	// OutcomeDiscarded: the route was already past its end time at spawn.
	OutcomeDiscarded Outcome = iota
	// OutcomeCompleted: a finish report was applied and the real end time persisted.
	OutcomeCompleted
	// OutcomeAbandoned: the upstream registry has no record of the train.
	OutcomeAbandoned
	// OutcomeTimedOut: the safety timeout past the expected end fired.
	OutcomeTimedOut
	// OutcomeCanceled: the process is shutting down.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeCompleted:
		return "completed"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeTimedOut:
		return "timed out"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Monitor tracks one route against the upstream delay endpoint and
// persists its real times. Exactly one monitor owns a route at a time;
// it is the only writer of that route's real_* fields.
type Monitor struct {
	route      *model.Route
	stations   map[string]model.Station
	source     StatusSource
	store      Gateway
	interval   time.Duration
	grace      time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func New(route *model.Route, stations map[string]model.Station, source StatusSource, store Gateway, cfg *config.Config) *Monitor {
	return &Monitor{
		route:      route,
		stations:   stations,
		source:     source,
		store:      store,
		interval:   cfg.PollInterval,
		grace:      cfg.MonitorGrace,
		staleAfter: cfg.StaleFinishAfter,
		now:        time.Now,
		log: slog.With(
			"route", route.ID,
			"train", route.RouteNumber,
			"expected_start", route.ExpectedStartTime,
		),
	}
}

// Run drives the route through its lifecycle: wait for the scheduled
// start, then poll the delay endpoint every interval until the journey
// completes, is abandoned, times out or the context is canceled.
func (m *Monitor) Run(ctx context.Context) Outcome {
	now := m.now()

	if m.route.ExpectedEndTime.Before(now) {
		m.log.Info("route already past its end time, discarding")
		return OutcomeDiscarded
	}

	// A recovered mid-journey route has a start time in the past and
	// proceeds straight to polling.
	if wait := m.route.ExpectedStartTime.Sub(now); wait > 0 {
		m.log.Info("waiting for route to start", "in", wait)
		if err := m.sleep(ctx, wait); err != nil {
			return OutcomeCanceled
		}
	}

	for {
		if m.now().After(m.route.ExpectedEndTime.Add(m.grace)) {
			m.log.Warn("monitor timed out",
				"start_observed", m.route.RealStartTime != nil,
				"end_observed", m.route.RealEndTime != nil,
			)
			return OutcomeTimedOut
		}

		status, err := m.source.TrainStatus(ctx, m.route.RouteNumber)
		switch {
		case errors.Is(err, hzpp.ErrNotEvidented):
			m.log.Info("train not evidented upstream, abandoning route")
			return OutcomeAbandoned
		case errors.Is(err, hzpp.ErrInfrastructureDown):
			m.log.Debug("upstream infrastructure error, will retry")
		case err != nil:
			m.log.Error("failed to poll train status", "error", err)
		default:
			if m.apply(ctx, status) {
				return OutcomeCompleted
			}
		}

		if err := m.sleep(ctx, m.interval); err != nil {
			return OutcomeCanceled
		}
	}
}

// apply folds one status report into the route. Returns true when the
// journey is complete. Persistence failures are logged and left for the
// next cycle to retry; in-memory state only advances after a successful
// write.
func (m *Monitor) apply(ctx context.Context, status hzpp.TrainStatus) bool {
	minutesLate, ok := status.LateMinutes()
	if !ok {
		m.log.Debug("report carries no usable lateness", "delay", status.Delay)
		return false
	}

	switch status.Phase {
	case hzpp.PhaseFormed:
		// Train not moving yet.

	case hzpp.PhaseDeparting:
		if err := m.recordUnderway(ctx, status, minutesLate, false); err != nil {
			m.log.Error("failed to record departure", "error", err)
		}

	case hzpp.PhaseArriving:
		if err := m.recordUnderway(ctx, status, minutesLate, true); err != nil {
			m.log.Error("failed to record arrival", "error", err)
		}

	case hzpp.PhaseFinished:
		// The endpoint can echo the previous day's completion for the
		// same train number.
		if m.now().Sub(status.PhaseTime) > m.staleAfter {
			m.log.Warn("ignoring stale finish report", "reported_at", status.PhaseTime)
			return false
		}

		done, err := m.recordFinish(ctx, status, minutesLate)
		if err != nil {
			m.log.Error("failed to record finish", "error", err)
			return false
		}
		return done
	}

	return false
}

func (m *Monitor) recordUnderway(ctx context.Context, status hzpp.TrainStatus, minutesLate int, arrived bool) error {
	if err := m.ensureRealStart(ctx, minutesLate); err != nil {
		return err
	}

	stop := FindCurrentStop(m.route.Stops, m.stations, status.Station)
	if stop == nil {
		m.log.Warn("reported station matches no stop", "station", status.Station)
		return nil
	}

	if arrived {
		return m.ensureStopArrival(ctx, stop, minutesLate)
	}
	return m.ensureStopDeparture(ctx, stop, minutesLate)
}

// recordFinish persists the final stop's arrival and, once the start has
// been observed at some point this session, the route's real end time.
// A train that reports finished without ever reporting a departure keeps
// its monitor alive: the start time is still unknown.
func (m *Monitor) recordFinish(ctx context.Context, status hzpp.TrainStatus, minutesLate int) (bool, error) {
	stop := FindCurrentStop(m.route.Stops, m.stations, status.Station)
	if stop != nil {
		if err := m.ensureStopArrival(ctx, stop, minutesLate); err != nil {
			return false, err
		}
	} else {
		m.log.Warn("finish reported at a station matching no stop", "station", status.Station)
	}

	if m.route.RealStartTime == nil {
		m.log.Info("finish reported before any start was observed, keeping monitor alive")
		return false, nil
	}

	if m.route.RealEndTime == nil {
		end := m.route.ExpectedEndTime.Add(time.Duration(minutesLate) * time.Minute)
		err := m.store.UpdateRouteRealTimes(ctx, m.route.ID, m.route.ExpectedStartTime, m.route.RealStartTime, &end)
		if err != nil {
			return false, fmt.Errorf("persisting real end time: %w", err)
		}
		m.route.RealEndTime = &end
		m.log.Info("route completed", "real_end", end, "minutes_late", minutesLate)
	}
	return true, nil
}

func (m *Monitor) ensureRealStart(ctx context.Context, minutesLate int) error {
	if m.route.RealStartTime != nil {
		return nil
	}

	start := m.route.ExpectedStartTime.Add(time.Duration(minutesLate) * time.Minute)
	err := m.store.UpdateRouteRealTimes(ctx, m.route.ID, m.route.ExpectedStartTime, &start, nil)
	if err != nil {
		return fmt.Errorf("persisting real start time: %w", err)
	}
	m.route.RealStartTime = &start
	m.log.Info("recorded real start time", "real_start", start, "minutes_late", minutesLate)
	return nil
}

func (m *Monitor) ensureStopArrival(ctx context.Context, stop *model.Stop, minutesLate int) error {
	if stop.RealArrival != nil {
		return nil
	}

	arrival := stop.ExpectedArrival.Add(time.Duration(minutesLate) * time.Minute)
	err := m.store.UpdateStopRealArrival(ctx, m.route.ID, m.route.ExpectedStartTime, stop.Sequence, arrival)
	if err != nil {
		return fmt.Errorf("persisting stop %d real arrival: %w", stop.Sequence, err)
	}
	stop.RealArrival = &arrival
	m.log.Info("recorded stop arrival", "sequence", stop.Sequence, "real_arrival", arrival)
	return nil
}

func (m *Monitor) ensureStopDeparture(ctx context.Context, stop *model.Stop, minutesLate int) error {
	if stop.RealDeparture != nil {
		return nil
	}

	departure := stop.ExpectedDeparture.Add(time.Duration(minutesLate) * time.Minute)
	err := m.store.UpdateStopRealDeparture(ctx, m.route.ID, m.route.ExpectedStartTime, stop.Sequence, departure)
	if err != nil {
		return fmt.Errorf("persisting stop %d real departure: %w", stop.Sequence, err)
	}
	stop.RealDeparture = &departure
	m.log.Info("recorded stop departure", "sequence", stop.Sequence, "real_departure", departure)
	return nil
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
