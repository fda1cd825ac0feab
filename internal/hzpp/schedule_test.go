package hzpp

import (
	"testing"
	"time"
)

func TestResolveClockTime(t *testing.T) {
	summerDay := time.Date(2024, 8, 26, 10, 0, 0, 0, time.UTC)
	winterDay := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		day   time.Time
		clock string
		want  time.Time
	}{
		// Zagreb is UTC+2 in summer, UTC+1 in winter.
		{"summer morning", summerDay, "06:15:00", time.Date(2024, 8, 26, 4, 15, 0, 0, time.UTC)},
		{"winter morning", winterDay, "08:05:00", time.Date(2024, 1, 15, 7, 5, 0, 0, time.UTC)},
		// The planner uses clock values past midnight, like "25:49:00"
		// meaning 01:49 the next day.
		{"rolls over past midnight", summerDay, "25:49:00", time.Date(2024, 8, 26, 23, 49, 0, 0, time.UTC)},
		{"without seconds", summerDay, "14:30", time.Date(2024, 8, 26, 12, 30, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveClockTime(tc.day, tc.clock)
			if err != nil {
				t.Fatalf("ResolveClockTime(%q) failed: %v", tc.clock, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ResolveClockTime(%q) = %v, expected %v", tc.clock, got, tc.want)
			}
		})
	}

	for _, clock := range []string{"", "615", "ab:cd:00", "06:-1:00", "06:72:00"} {
		if _, err := ResolveClockTime(summerDay, clock); err == nil {
			t.Errorf("ResolveClockTime(%q) expected error", clock)
		}
	}
}

func TestConvertRoute(t *testing.T) {
	day := time.Date(2024, 8, 26, 8, 0, 0, 0, time.UTC)

	pr := PlannerRoute{
		RouteID:              "5021_1",
		RouteNumber:          5021,
		BikesAllowed:         2,
		WheelchairAccessible: 1,
		RouteType:            2,
		Stops: []PlannerStop{
			// Deliberately out of order; conversion sorts by sequence.
			{StopID: "st2", StopName: "Sesvete", ArrivalTime: "06:28:00", DepartureTime: "06:29:00", Sequence: 2},
			{StopID: "st1", StopName: "Zagreb Glavni kolodvor", ArrivalTime: "06:15:00", DepartureTime: "06:15:00", Sequence: 1},
			{StopID: "st3", StopName: "Dugo Selo", ArrivalTime: "06:44:00", DepartureTime: "06:45:00", Sequence: 3},
		},
	}

	route, err := ConvertRoute(pr, day)
	if err != nil {
		t.Fatalf("ConvertRoute failed: %v", err)
	}

	wantStart := time.Date(2024, 8, 26, 4, 15, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 8, 26, 4, 44, 0, 0, time.UTC)

	if !route.ExpectedStartTime.Equal(wantStart) {
		t.Errorf("expected start = %v, expected %v", route.ExpectedStartTime, wantStart)
	}
	if !route.ExpectedEndTime.Equal(wantEnd) {
		t.Errorf("expected end = %v, expected %v", route.ExpectedEndTime, wantEnd)
	}
	if route.Source != "Zagreb Glavni kolodvor" || route.Destination != "Dugo Selo" {
		t.Errorf("source/destination = %q/%q", route.Source, route.Destination)
	}
	if route.BikesAllowed.Bool() {
		t.Error("bikes_allowed = 2 must collapse to false")
	}
	if !route.WheelchairAccessible.Bool() {
		t.Error("wheelchair_accessible = 1 must collapse to true")
	}

	if len(route.Stops) != 3 {
		t.Fatalf("got %d stops, expected 3", len(route.Stops))
	}
	for i, stop := range route.Stops {
		if stop.Sequence != i+1 {
			t.Errorf("stop %d has sequence %d, expected stops sorted by sequence", i, stop.Sequence)
		}
		if !stop.RouteExpectedStartTime.Equal(wantStart) {
			t.Errorf("stop %d route_expected_start_time = %v", i, stop.RouteExpectedStartTime)
		}
		if stop.RealArrival != nil || stop.RealDeparture != nil {
			t.Errorf("stop %d has real times set on conversion", i)
		}
		if stop.ExpectedArrival.After(stop.ExpectedDeparture) {
			t.Errorf("stop %d arrival after departure", i)
		}
	}

	if _, err := ConvertRoute(PlannerRoute{RouteID: "empty"}, day); err == nil {
		t.Error("route without stops must fail conversion")
	}

	bad := pr
	bad.BikesAllowed = 9
	if _, err := ConvertRoute(bad, day); err == nil {
		t.Error("invalid bikes_allowed wire value must fail conversion")
	}
}
