// Package schedule evaluates campaign calling windows against wall-clock
// instants. All math runs in IANA-database timezones via time.LoadLocation,
// so DST transitions are handled by the location rules themselves.
package schedule

import (
	"fmt"
	"time"

	"github.com/outdial/outdial/internal/domain/campaign"
	"github.com/outdial/outdial/internal/domain/errors"
)

// searchHorizonDays bounds the forward scan in NextInstant.
const searchHorizonDays = 14

// InWindow reports whether t falls inside the window evaluated in the given
// timezone. The timezone argument overrides the window's own, which is how
// contact-local scheduling reuses a campaign window. Empty clock bounds
// permit any time of day, the same way an empty Days list permits any
// weekday.
func InWindow(w campaign.CallWindow, timezone string, t time.Time) (bool, error) {
	loc, err := loadLocation(timezone, w)
	if err != nil {
		return false, err
	}

	local := t.In(loc)
	if !dayPermitted(w.Days, local.Weekday()) {
		return false, nil
	}
	if w.Start == "" && w.End == "" {
		return true, nil
	}

	startMin, err := parseClock(w.Start)
	if err != nil {
		return false, err
	}
	endMin, err := parseClock(w.End)
	if err != nil {
		return false, err
	}

	nowMin := local.Hour()*60 + local.Minute()
	if startMin > endMin {
		// Window spans midnight.
		return nowMin >= startMin || nowMin < endMin, nil
	}
	return nowMin >= startMin && nowMin < endMin, nil
}

// NextInstant returns the earliest instant at or after from that satisfies the
// window in the given timezone. If from itself qualifies it is returned
// unchanged. The scan is bounded to searchHorizonDays; past the bound it falls
// back to the window start time on the following day regardless of weekday.
func NextInstant(w campaign.CallWindow, timezone string, from time.Time) (time.Time, error) {
	ok, err := InWindow(w, timezone, from)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return from, nil
	}

	loc, err := loadLocation(timezone, w)
	if err != nil {
		return time.Time{}, err
	}
	startMin := 0
	if w.Start != "" {
		if startMin, err = parseClock(w.Start); err != nil {
			return time.Time{}, err
		}
	}

	local := from.In(loc)
	for day := 0; day < searchHorizonDays; day++ {
		d := local.AddDate(0, 0, day)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), startMin/60, startMin%60, 0, 0, loc)
		if candidate.Before(from) {
			continue
		}
		ok, err := InWindow(w, timezone, candidate)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return candidate, nil
		}
	}

	// No permitted instant inside the horizon. Fall back to start time the
	// next day so the contact is not lost; the tick-time check still gates
	// the actual call.
	d := local.AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), startMin/60, startMin%60, 0, 0, loc), nil
}

func loadLocation(timezone string, w campaign.CallWindow) (*time.Location, error) {
	tz := timezone
	if tz == "" {
		tz = w.Timezone
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_TIMEZONE",
			fmt.Sprintf("unknown timezone %q", tz)).WithCause(err)
	}
	return loc, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.NewValidationError("INVALID_CLOCK_TIME",
			fmt.Sprintf("bad clock time %q, want HH:MM", s)).WithCause(err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func dayPermitted(days []time.Weekday, d time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, pd := range days {
		if pd == d {
			return true
		}
	}
	return false
}
