package hzpp

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// Planner API payloads. Times come as "HH:MM:SS" clock strings that can
// exceed 24 hours ("25:49:00" means 01:49 the next day), and the boolean
// fields use the 0/1/2 wire encoding handled in the model package.

type PlannerRoute struct {
	RouteID              string        `json:"route_id"`
	RouteNumber          int           `json:"route_number"`
	RouteSrc             string        `json:"route_src"`
	RouteDesc            string        `json:"route_desc"`
	ArrivalTime          string        `json:"arrival_time"`
	DepartureTime        string        `json:"departure_time"`
	BikesAllowed         int           `json:"bikes_allowed"`
	WheelchairAccessible int           `json:"wheelchair_accessible"`
	RouteType            int           `json:"route_type"`
	Stops                []PlannerStop `json:"stops"`
}

type PlannerStop struct {
	StopID        string  `json:"stop_id"`
	StopName      string  `json:"stop_name"`
	ArrivalTime   string  `json:"arrival_time"`
	DepartureTime string  `json:"departure_time"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Sequence      int     `json:"sequence"`
}

type PlannerStation struct {
	StopID   string  `json:"stop_id"`
	StopCode int     `json:"stop_code"`
	StopName string  `json:"stop_name"`
	StopLat  float64 `json:"stop_lat"`
	StopLng  float64 `json:"stop_lng"`
}

// ConvertRoute turns a planner route for the given service day into a
// domain route with its stops attached. The route-level arrival_time and
// departure_time fields are unreliable upstream, so the schedule is
// derived from the first and last stop instead.
func ConvertRoute(pr PlannerRoute, day time.Time) (model.Route, error) {
	if len(pr.Stops) == 0 {
		return model.Route{}, fmt.Errorf("route %s has no stops", pr.RouteID)
	}

	stops := slices.Clone(pr.Stops)
	slices.SortFunc(stops, func(a, b PlannerStop) int { return cmp.Compare(a.Sequence, b.Sequence) })

	first, last := stops[0], stops[len(stops)-1]

	start, err := ResolveClockTime(day, first.DepartureTime)
	if err != nil {
		return model.Route{}, fmt.Errorf("route %s start time: %w", pr.RouteID, err)
	}
	end, err := ResolveClockTime(day, last.ArrivalTime)
	if err != nil {
		return model.Route{}, fmt.Errorf("route %s end time: %w", pr.RouteID, err)
	}

	bikes, err := model.BikesAllowedFromWire(pr.BikesAllowed)
	if err != nil {
		return model.Route{}, fmt.Errorf("route %s: %w", pr.RouteID, err)
	}
	wheelchair, err := model.WheelchairAccessibleFromWire(pr.WheelchairAccessible)
	if err != nil {
		return model.Route{}, fmt.Errorf("route %s: %w", pr.RouteID, err)
	}
	routeType, err := model.RouteTypeFromWire(pr.RouteType)
	if err != nil {
		return model.Route{}, fmt.Errorf("route %s: %w", pr.RouteID, err)
	}

	route := model.Route{
		ID:                   pr.RouteID,
		RouteNumber:          pr.RouteNumber,
		Source:               first.StopName,
		Destination:          last.StopName,
		BikesAllowed:         bikes,
		WheelchairAccessible: wheelchair,
		Type:                 routeType,
		ExpectedStartTime:    start,
		ExpectedEndTime:      end,
		Stops:                make([]model.Stop, 0, len(stops)),
	}

	for _, ps := range stops {
		arrival, err := ResolveClockTime(day, ps.ArrivalTime)
		if err != nil {
			return model.Route{}, fmt.Errorf("route %s stop %d arrival: %w", pr.RouteID, ps.Sequence, err)
		}
		departure, err := ResolveClockTime(day, ps.DepartureTime)
		if err != nil {
			return model.Route{}, fmt.Errorf("route %s stop %d departure: %w", pr.RouteID, ps.Sequence, err)
		}

		route.Stops = append(route.Stops, model.Stop{
			StationID:              ps.StopID,
			RouteID:                pr.RouteID,
			RouteExpectedStartTime: start,
			Sequence:               ps.Sequence,
			ExpectedArrival:        arrival,
			ExpectedDeparture:      departure,
		})
	}

	return route, nil
}

func ConvertStation(ps PlannerStation) model.Station {
	return model.Station{
		ID:        ps.StopID,
		Code:      ps.StopCode,
		Name:      ps.StopName,
		Latitude:  ps.StopLat,
		Longitude: ps.StopLng,
	}
}

// ResolveClockTime anchors a planner clock string like "06:15:00" or
// "25:49:00" to the given service day in the Zagreb timezone and returns
// the instant in UTC. Hours of 24 and above roll over to the next day.
func ResolveClockTime(day time.Time, clock string) (time.Time, error) {
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid clock time %q", clock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 {
		return time.Time{}, fmt.Errorf("invalid hour in clock time %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute in clock time %q", clock)
	}

	local := day.In(Zagreb)
	// time.Date normalizes the day overflow from hours >= 24.
	resolved := time.Date(local.Year(), local.Month(), local.Day()+hour/24, hour%24, minute, 0, 0, Zagreb)
	return resolved.UTC(), nil
}
