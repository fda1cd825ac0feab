package hzpp

import (
	"fmt"
	"time"
)

// Zagreb is the civil timezone of every timestamp printed by the HZPP
// delay endpoint.
var Zagreb *time.Location

func init() {
	var err error
	Zagreb, err = time.LoadLocation("Europe/Zagreb")
	if err != nil {
		panic(fmt.Errorf("failed to load Europe/Zagreb timezone: %w", err))
	}
}

// Phase is the journey state reported by the delay endpoint.
type Phase int

const (
	PhaseFormed Phase = iota + 1
	PhaseDeparting
	PhaseArriving
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseFormed:
		return "formed"
	case PhaseDeparting:
		return "departing"
	case PhaseArriving:
		return "arriving"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// DelayKind is the lateness report accompanying a phase.
type DelayKind int

const (
	DelayNoData DelayKind = iota
	DelayWaitingToDepart
	DelayOnTime
	DelayLate
)

func (d DelayKind) String() string {
	switch d {
	case DelayNoData:
		return "no data"
	case DelayWaitingToDepart:
		return "waiting to depart"
	case DelayOnTime:
		return "on time"
	case DelayLate:
		return "late"
	default:
		return "unknown"
	}
}

// TrainStatus is one successfully parsed delay-page report. Station is the
// free-text station name as printed by the endpoint (separators already
// normalized); PhaseTime is the reported civil time converted to UTC.
type TrainStatus struct {
	Station     string
	Phase       Phase
	PhaseTime   time.Time
	Delay       DelayKind
	MinutesLate int
}

// LateMinutes reports how many minutes late the train is, if the report
// carries usable lateness. WaitingToDepart and NoData carry none.
func (s TrainStatus) LateMinutes() (int, bool) {
	switch s.Delay {
	case DelayOnTime:
		return 0, true
	case DelayLate:
		return s.MinutesLate, true
	default:
		return 0, false
	}
}
