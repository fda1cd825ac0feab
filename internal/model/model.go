package model

import (
	"fmt"
	"strconv"
	"time"
)

// Route is one scheduled journey of a train or bus. The same numeric route
// id recurs on different days, so the identity of a row is the compound
// (ID, ExpectedStartTime) key.
type Route struct {
	ID                   string
	RouteNumber          int
	Source               string
	Destination          string
	BikesAllowed         BikesAllowed
	WheelchairAccessible WheelchairAccessible
	Type                 RouteType
	// ExpectedStartTime is the scheduled departure of the first stop.
	ExpectedStartTime time.Time
	// ExpectedEndTime is the scheduled arrival at the last stop.
	ExpectedEndTime time.Time
	RealStartTime   *time.Time
	RealEndTime     *time.Time
	Stops           []Stop
}

// Key identifies the route row across days. Used for claim tracking and
// as the WHERE clause of all point updates.
func (r *Route) Key() string {
	return r.ID + "@" + strconv.FormatInt(r.ExpectedStartTime.Unix(), 10)
}

// Stop is one scheduled station visit within a route, keyed by
// (RouteID, RouteExpectedStartTime, Sequence).
type Stop struct {
	StationID              string
	RouteID                string
	RouteExpectedStartTime time.Time
	// Sequence is the 1-based order of the stop along the route.
	Sequence          int
	ExpectedArrival   time.Time
	RealArrival       *time.Time
	ExpectedDeparture time.Time
	RealDeparture     *time.Time
}

// Station is immutable reference data. Name is only used for fuzzy
// matching against the free-text station names of the delay endpoint.
type Station struct {
	ID        string
	Code      int
	Name      string
	Latitude  float64
	Longitude float64
}

// The planner API encodes booleans with two false values: 0 and 2 both
// mean false, 1 means true. The wire values are preserved in these enums
// and collapsed to a bool only through the Bool helpers.

type BikesAllowed int16

const (
	BikesAllowedYes BikesAllowed = 1
	BikesAllowedNo  BikesAllowed = 2
)

func BikesAllowedFromWire(v int) (BikesAllowed, error) {
	switch v {
	case 0, 2:
		return BikesAllowedNo, nil
	case 1:
		return BikesAllowedYes, nil
	default:
		return 0, fmt.Errorf("invalid bikes_allowed value %d", v)
	}
}

func (b BikesAllowed) Bool() bool { return b == BikesAllowedYes }

type WheelchairAccessible int16

const (
	WheelchairAccessibleYes WheelchairAccessible = 1
	WheelchairAccessibleNo  WheelchairAccessible = 2
)

func WheelchairAccessibleFromWire(v int) (WheelchairAccessible, error) {
	switch v {
	case 0, 2:
		return WheelchairAccessibleNo, nil
	case 1:
		return WheelchairAccessibleYes, nil
	default:
		return 0, fmt.Errorf("invalid wheelchair_accessible value %d", v)
	}
}

func (w WheelchairAccessible) Bool() bool { return w == WheelchairAccessibleYes }

type RouteType int16

const (
	RouteTypeTrain RouteType = 2
	RouteTypeBus   RouteType = 3
)

func RouteTypeFromWire(v int) (RouteType, error) {
	switch v {
	case 2:
		return RouteTypeTrain, nil
	case 3:
		return RouteTypeBus, nil
	default:
		return 0, fmt.Errorf("invalid route_type value %d", v)
	}
}

func (t RouteType) String() string {
	switch t {
	case RouteTypeTrain:
		return "train"
	case RouteTypeBus:
		return "bus"
	default:
		return "unknown"
	}
}
