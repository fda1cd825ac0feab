package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "hzpp.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func testTimetable() ([]model.Station, []model.Route) {
	// Second precision: timestamps survive the RFC3339 round trip.
	start := time.Date(2024, 8, 26, 4, 15, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	stations := []model.Station{
		{ID: "st1", Code: 71000, Name: "Zagreb Glavni kolodvor", Latitude: 45.804, Longitude: 15.978},
		{ID: "st2", Code: 72000, Name: "Sesvete", Latitude: 45.830, Longitude: 16.116},
	}
	route := model.Route{
		ID:                   "200",
		RouteNumber:          2023,
		Source:               "Zagreb Glavni kolodvor",
		Destination:          "Sesvete",
		BikesAllowed:         model.BikesAllowedYes,
		WheelchairAccessible: model.WheelchairAccessibleNo,
		Type:                 model.RouteTypeTrain,
		ExpectedStartTime:    start,
		ExpectedEndTime:      end,
		Stops: []model.Stop{
			{StationID: "st1", RouteID: "200", RouteExpectedStartTime: start, Sequence: 1, ExpectedArrival: start, ExpectedDeparture: start},
			{StationID: "st2", RouteID: "200", RouteExpectedStartTime: start, Sequence: 2, ExpectedArrival: end, ExpectedDeparture: end},
		},
	}
	return stations, []model.Route{route}
}

func TestSQLiteInsertTimetable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	stations, routes := testTimetable()

	saved, err := s.InsertTimetable(ctx, stations, routes)
	if err != nil {
		t.Fatalf("InsertTimetable: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("saved %d routes, expected 1", len(saved))
	}

	// The second ingest run sees the same timetable; nothing is new.
	saved, err = s.InsertTimetable(ctx, stations, routes)
	if err != nil {
		t.Fatalf("InsertTimetable (repeat): %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("repeat ingest saved %d routes, expected 0", len(saved))
	}

	// The same route id on a later day is a distinct row.
	nextDay := routes[0]
	nextDay.ExpectedStartTime = nextDay.ExpectedStartTime.Add(24 * time.Hour)
	nextDay.ExpectedEndTime = nextDay.ExpectedEndTime.Add(24 * time.Hour)
	for i := range nextDay.Stops {
		nextDay.Stops[i].RouteExpectedStartTime = nextDay.ExpectedStartTime
	}
	saved, err = s.InsertTimetable(ctx, stations, []model.Route{routes[0], nextDay})
	if err != nil {
		t.Fatalf("InsertTimetable (next day): %v", err)
	}
	if len(saved) != 1 || !saved[0].ExpectedStartTime.Equal(nextDay.ExpectedStartTime) {
		t.Errorf("expected only the next-day route to be saved, got %+v", saved)
	}
}

func TestSQLiteGetStations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	stations, routes := testTimetable()
	if _, err := s.InsertTimetable(ctx, stations, routes); err != nil {
		t.Fatalf("InsertTimetable: %v", err)
	}

	got, err := s.GetStations(ctx)
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d stations, expected 2", len(got))
	}
	st, ok := got["st1"]
	if !ok {
		t.Fatal("station st1 missing")
	}
	if st.Name != "Zagreb Glavni kolodvor" || st.Code != 71000 || st.Latitude != 45.804 {
		t.Errorf("station st1 round-tripped as %+v", st)
	}
}

func TestSQLiteUnfinishedRouteLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	stations, routes := testTimetable()
	if _, err := s.InsertTimetable(ctx, stations, routes); err != nil {
		t.Fatalf("InsertTimetable: %v", err)
	}

	unfinished, err := s.GetUnfinishedRoutes(ctx)
	if err != nil {
		t.Fatalf("GetUnfinishedRoutes: %v", err)
	}
	if len(unfinished) != 1 {
		t.Fatalf("got %d unfinished routes, expected 1", len(unfinished))
	}

	r := unfinished[0]
	if r.ID != "200" || r.RouteNumber != 2023 || r.Type != model.RouteTypeTrain {
		t.Errorf("route round-tripped as %+v", r)
	}
	if !r.BikesAllowed.Bool() || r.WheelchairAccessible.Bool() {
		t.Errorf("wire enums round-tripped as bikes=%v wheelchair=%v", r.BikesAllowed, r.WheelchairAccessible)
	}
	if r.RealStartTime != nil || r.RealEndTime != nil {
		t.Errorf("fresh route carries real times: start=%v end=%v", r.RealStartTime, r.RealEndTime)
	}
	if len(r.Stops) != 2 || r.Stops[0].Sequence != 1 || r.Stops[1].Sequence != 2 {
		t.Fatalf("stops came back as %+v, expected 2 in sequence order", r.Stops)
	}
	if !r.ExpectedStartTime.Equal(routes[0].ExpectedStartTime) {
		t.Errorf("expected start round-tripped as %v, want %v", r.ExpectedStartTime, routes[0].ExpectedStartTime)
	}

	// Observe the departure.
	realStart := r.ExpectedStartTime.Add(5 * time.Minute)
	if err := s.UpdateRouteRealTimes(ctx, r.ID, r.ExpectedStartTime, &realStart, nil); err != nil {
		t.Fatalf("UpdateRouteRealTimes (start): %v", err)
	}
	if err := s.UpdateStopRealDeparture(ctx, r.ID, r.ExpectedStartTime, 1, realStart); err != nil {
		t.Fatalf("UpdateStopRealDeparture: %v", err)
	}

	// Started but not ended: still unfinished, with the start attached.
	unfinished, err = s.GetUnfinishedRoutes(ctx)
	if err != nil {
		t.Fatalf("GetUnfinishedRoutes (mid-journey): %v", err)
	}
	if len(unfinished) != 1 {
		t.Fatalf("got %d unfinished routes mid-journey, expected 1", len(unfinished))
	}
	r = unfinished[0]
	if r.RealStartTime == nil || !r.RealStartTime.Equal(realStart) {
		t.Errorf("real start round-tripped as %v, want %v", r.RealStartTime, realStart)
	}
	if r.Stops[0].RealDeparture == nil || !r.Stops[0].RealDeparture.Equal(realStart) {
		t.Errorf("stop 1 real departure round-tripped as %v, want %v", r.Stops[0].RealDeparture, realStart)
	}

	// Observe the finish.
	realEnd := r.ExpectedEndTime.Add(5 * time.Minute)
	if err := s.UpdateStopRealArrival(ctx, r.ID, r.ExpectedStartTime, 2, realEnd); err != nil {
		t.Fatalf("UpdateStopRealArrival: %v", err)
	}
	if err := s.UpdateRouteRealTimes(ctx, r.ID, r.ExpectedStartTime, &realStart, &realEnd); err != nil {
		t.Fatalf("UpdateRouteRealTimes (end): %v", err)
	}

	unfinished, err = s.GetUnfinishedRoutes(ctx)
	if err != nil {
		t.Fatalf("GetUnfinishedRoutes (finished): %v", err)
	}
	if len(unfinished) != 0 {
		t.Errorf("got %d unfinished routes after completion, expected 0", len(unfinished))
	}
}

func TestSQLiteTimesStoredAsUTC(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	stations, routes := testTimetable()

	// Shift the schedule into a civil timezone; it must come back as the
	// same instant in UTC.
	zagreb, err := time.LoadLocation("Europe/Zagreb")
	if err != nil {
		t.Fatal(err)
	}
	routes[0].ExpectedStartTime = routes[0].ExpectedStartTime.In(zagreb)
	if _, err := s.InsertTimetable(ctx, stations, routes); err != nil {
		t.Fatalf("InsertTimetable: %v", err)
	}

	unfinished, err := s.GetUnfinishedRoutes(ctx)
	if err != nil {
		t.Fatalf("GetUnfinishedRoutes: %v", err)
	}
	if len(unfinished) != 1 {
		t.Fatalf("got %d routes, expected 1", len(unfinished))
	}
	got := unfinished[0].ExpectedStartTime
	if !got.Equal(routes[0].ExpectedStartTime) {
		t.Errorf("start round-tripped as %v, want the same instant as %v", got, routes[0].ExpectedStartTime)
	}
	if got.Location() != time.UTC {
		t.Errorf("start came back in %v, expected UTC", got.Location())
	}
}
