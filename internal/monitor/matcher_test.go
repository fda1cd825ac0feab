package monitor

import (
	"testing"

	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

func TestWordsMatch(t *testing.T) {
	tests := []struct {
		stored   string
		reported string
		want     bool
	}{
		{"Sveti Ivan Žabno", "SV. IVAN ŽABNO", true},
		{"Zagreb Glavni kolodvor", "Zagreb Gl. Kol.", true},
		{"Zagreb zapadni kolodvor", "Zagreb Gl. Kol.", false},
		{"Sesvete", "SESVETE", true},
		{"Sesvete", "Sesvetski Kraljevec", false},
		// Word counts must match exactly.
		{"Zagreb Glavni kolodvor", "Zagreb", false},
		{"Dugo Selo", "DUGO SELO ", true},
	}

	for _, tc := range tests {
		got := wordsMatch(nameWords(tc.stored), nameWords(tc.reported))
		if got != tc.want {
			t.Errorf("wordsMatch(%q, %q) = %v, expected %v", tc.stored, tc.reported, got, tc.want)
		}
	}
}

func TestFindCurrentStop(t *testing.T) {
	stations := map[string]model.Station{
		"st1": {ID: "st1", Name: "Zagreb Glavni kolodvor"},
		"st2": {ID: "st2", Name: "Sesvete"},
		"st3": {ID: "st3", Name: "Sveti Ivan Žabno"},
	}
	stops := []model.Stop{
		{StationID: "st1", Sequence: 1},
		{StationID: "st2", Sequence: 2},
		{StationID: "st3", Sequence: 3},
	}

	stop := FindCurrentStop(stops, stations, "SV. IVAN ŽABNO")
	if stop == nil || stop.Sequence != 3 {
		t.Fatalf("FindCurrentStop = %+v, expected stop 3", stop)
	}

	stop = FindCurrentStop(stops, stations, "ZAGREB+GL.+KOL.")
	if stop != nil {
		t.Errorf("unnormalized separators must not match, got stop %d", stop.Sequence)
	}

	stop = FindCurrentStop(stops, stations, "Zagreb Gl. Kol.")
	if stop == nil || stop.Sequence != 1 {
		t.Fatalf("FindCurrentStop = %+v, expected stop 1", stop)
	}

	if stop := FindCurrentStop(stops, stations, "Novska"); stop != nil {
		t.Errorf("expected no match, got stop %d", stop.Sequence)
	}
	if stop := FindCurrentStop(stops, stations, ""); stop != nil {
		t.Errorf("empty report must not match, got stop %d", stop.Sequence)
	}

	// Returned pointer aliases the slice so real times can be set in place.
	stop = FindCurrentStop(stops, stations, "Sesvete")
	if stop != &stops[1] {
		t.Error("returned stop must alias the input slice")
	}
}

// A terminus visited twice (out-and-back route) must resolve to the
// later visit.
func TestFindCurrentStopLastMatchWins(t *testing.T) {
	stations := map[string]model.Station{
		"st1": {ID: "st1", Name: "Zagreb Glavni kolodvor"},
		"st2": {ID: "st2", Name: "Sesvete"},
	}
	stops := []model.Stop{
		{StationID: "st1", Sequence: 1},
		{StationID: "st2", Sequence: 2},
		{StationID: "st1", Sequence: 3},
	}

	stop := FindCurrentStop(stops, stations, "ZAGREB GL. KOL.")
	if stop == nil || stop.Sequence != 3 {
		t.Fatalf("FindCurrentStop = %+v, expected the later visit (stop 3)", stop)
	}
}

func TestFindCurrentStopUnknownStation(t *testing.T) {
	// A stop whose station id is missing from the lookup is skipped
	// rather than failing the cycle.
	stops := []model.Stop{{StationID: "ghost", Sequence: 1}}
	if stop := FindCurrentStop(stops, map[string]model.Station{}, "Sesvete"); stop != nil {
		t.Errorf("expected no match, got stop %d", stop.Sequence)
	}
}
