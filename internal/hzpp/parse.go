package hzpp

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The delay endpoint serves an undocumented HTML-flavored page whose shape
// has changed repeatedly. Every extraction here is best-effort substring
// scanning, never strict markup parsing. New quirks get appended to the
// detection chain and a captured fixture goes into testdata/.

// ErrInfrastructureDown marks the error page served when the railway
// infrastructure backend is unavailable. Transient; callers retry.
var ErrInfrastructureDown = errors.New("hzpp: infrastructure error page")

// ErrNotEvidented marks the page served when the upstream registry has no
// record of the train. Terminal for the route being monitored.
var ErrNotEvidented = errors.New("hzpp: train not evidented")

const (
	markerInfraError   = "Došlo je do pogreške"
	markerNotEvidented = "Vlak nije evidentiran"

	stationLabel = "Kolodvor:"

	markerFinished  = "Završio je vožnju"
	markerDeparting = "Odlazak"
	markerFormed    = "Formiran"
	markerArriving  = "Dolazak"

	markerLateOpen  = "Kasni "
	markerLateClose = " min."
	markerWaiting   = "Vlak ceka polazak"
	markerOnTime    = "Vlak je redovit"
	markerBlank     = "&nbsp;&nbsp;"

	// Reported as civil time in the Zagreb timezone, e.g. "26.08.24. 15:21".
	phaseTimeLayout = "02.01.06. 15:04"
)

// ParseError is a hard parse failure: the page matched no known shape.
// Callers treat it as transient and retry, but it is worth capturing the
// body as a new fixture when it shows up in logs.
type ParseError struct {
	Reason string
	Body   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hzpp: unparseable delay page: %s", e.Reason)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// ParseStatus parses a raw delay-page body into a TrainStatus.
// Detection order matters: malformed pages can contain several markers at
// once, so sentinels are checked before any field extraction.
func ParseStatus(body string) (TrainStatus, error) {
	if strings.Contains(body, markerInfraError) {
		return TrainStatus{}, ErrInfrastructureDown
	}
	if strings.Contains(body, markerNotEvidented) {
		return TrainStatus{}, ErrNotEvidented
	}

	station, err := parseStation(body)
	if err != nil {
		return TrainStatus{}, err
	}

	phase, phaseTime, err := parsePhase(body)
	if err != nil {
		return TrainStatus{}, err
	}

	delay, minutes, err := parseDelay(body)
	if err != nil {
		return TrainStatus{}, err
	}

	return TrainStatus{
		Station:     station,
		Phase:       phase,
		PhaseTime:   phaseTime,
		Delay:       delay,
		MinutesLate: minutes,
	}, nil
}

func parseStation(body string) (string, error) {
	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, stationLabel) {
			continue
		}

		name, ok := strBetween(line, stationLabel, "</")
		if !ok {
			// Older page shapes close the station line with a bare newline.
			i := strings.Index(line, stationLabel)
			name = line[i+len(stationLabel):]
		}

		name = html.UnescapeString(tagPattern.ReplaceAllString(name, ""))
		// The endpoint joins station name words with '+'.
		name = strings.TrimSpace(strings.ReplaceAll(name, "+", " "))
		if name == "" {
			break
		}
		return name, nil
	}

	return "", &ParseError{Reason: "no station line", Body: body}
}

func parsePhase(body string) (Phase, time.Time, error) {
	markers := []struct {
		marker string
		phase  Phase
	}{
		{markerFinished, PhaseFinished},
		{markerDeparting, PhaseDeparting},
		{markerFormed, PhaseFormed},
		{markerArriving, PhaseArriving},
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		for _, m := range markers {
			if !strings.Contains(line, m.marker) {
				continue
			}

			at, err := parsePhaseTime(lines[i+1:])
			if err != nil {
				return 0, time.Time{}, err
			}
			return m.phase, at, nil
		}
	}

	return 0, time.Time{}, &ParseError{Reason: "no phase marker", Body: body}
}

// parsePhaseTime reads the fixed-width date+time field from the first
// non-empty line following a phase marker.
func parsePhaseTime(rest []string) (time.Time, error) {
	for _, line := range rest {
		text := strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(line, "")))
		if text == "" {
			continue
		}

		if len(text) < len(phaseTimeLayout) {
			return time.Time{}, &ParseError{Reason: "phase time line too short", Body: text}
		}
		at, err := time.ParseInLocation(phaseTimeLayout, text[:len(phaseTimeLayout)], Zagreb)
		if err != nil {
			return time.Time{}, &ParseError{Reason: "invalid phase time: " + err.Error(), Body: text}
		}
		return at.UTC(), nil
	}

	return time.Time{}, &ParseError{Reason: "no phase time line"}
}

func parseDelay(body string) (DelayKind, int, error) {
	if raw, ok := strBetween(body, markerLateOpen, markerLateClose); ok {
		minutes, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, 0, &ParseError{Reason: "non-numeric lateness " + strconv.Quote(raw), Body: body}
		}
		return DelayLate, minutes, nil
	}

	switch {
	case strings.Contains(body, markerWaiting):
		return DelayWaitingToDepart, 0, nil
	case strings.Contains(body, markerOnTime):
		return DelayOnTime, 0, nil
	case strings.Contains(body, markerBlank):
		return DelayNoData, 0, nil
	}

	return 0, 0, &ParseError{Reason: "no delay marker", Body: body}
}

// strBetween extracts the substring between the first occurrence of open
// and the next occurrence of close.
func strBetween(s, open, close string) (string, bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	i += len(open)

	j := strings.Index(s[i:], close)
	if j < 0 {
		return "", false
	}
	return s[i : i+j], true
}
