package monitor

import (
	"strings"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// FindCurrentStop reconciles the free-text station name from a delay
// report against the route's stop list. Names are compared word by word
// after lowercasing and period-stripping; a pair of words matches when
// either contains the other, so an abbreviated "Gl. Kol." matches
// "Glavni kolodvor". Word counts must match exactly.
//
// When several stops match (a terminus visited twice), the last one in
// stop order wins, favoring the most recently reached stop. Returns nil
// when nothing matches.
func FindCurrentStop(stops []model.Stop, stations map[string]model.Station, reportedName string) *model.Stop {
	reported := nameWords(reportedName)
	if len(reported) == 0 {
		return nil
	}

	var match *model.Stop
	for i := range stops {
		station, ok := stations[stops[i].StationID]
		if !ok {
			continue
		}
		if wordsMatch(nameWords(station.Name), reported) {
			match = &stops[i]
		}
	}
	return match
}

func nameWords(name string) []string {
	name = strings.ToLower(strings.ReplaceAll(name, ".", ""))
	return strings.Fields(name)
}

func wordsMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.Contains(a[i], b[i]) && !strings.Contains(b[i], a[i]) {
			return false
		}
	}
	return true
}
