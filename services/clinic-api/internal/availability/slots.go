// Package availability computes free consultation start times for a
// practitioner's working window.
package availability

import "time"

// Window is one day's working period, expressed as wall-clock instants on
// that day.
type Window struct {
	Start time.Time
	End   time.Time
}

// StartTimes returns the candidate start times inside win that are free and
// strictly in the future.
//
// Candidates are generated on a fixed grid: win.Start, win.Start+step and so
// on, where step is the consultation duration. A candidate survives only if
// the whole consultation fits before win.End. Booked times knock out the
// candidate with the exact same start instant; appointments off the grid do
// not affect neighbouring slots.
func StartTimes(win Window, duration time.Duration, booked []time.Time, now time.Time) []time.Time {
	if duration <= 0 || !win.Start.Before(win.End) {
		return nil
	}

	taken := make(map[time.Time]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	var out []time.Time
	for c := win.Start; !c.Add(duration).After(win.End); c = c.Add(duration) {
		if !c.After(now) {
			continue
		}
		if _, ok := taken[c]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
