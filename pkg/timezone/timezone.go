package timezone

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultZone is the civil time zone the schedule table is keyed in.
const DefaultZone = "US/Central"

// maxEpochSeconds is the largest 10-digit unix timestamp. Provider feeds mix
// second and millisecond epochs; anything longer is truncated to seconds.
const maxEpochSeconds = 9999999999

// Window is a time range anchored at a civil wall-clock hour in a named
// time zone. Which endpoint is inclusive is decided by each consumer:
// the schedule query selects (Start, End], the provider and portal
// queries select [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow localizes the civil date-hour in the given zone and extends it
// by offset to produce the window end. A negative offset extends backwards,
// anchoring the civil hour as the window end instead; schedule blocks stamp
// the end of their trip hour, so their extraction window is built this way.
func NewWindow(year, month, day, hour int, offset time.Duration, zone string) (Window, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Window{}, fmt.Errorf("failed to load time zone %s: %w", zone, err)
	}
	start := time.Date(year, time.Month(month), day, hour, 0, 0, 0, loc)
	end := start.Add(offset)
	if end.Before(start) {
		start, end = end, start
	}
	return Window{Start: start, End: end}, nil
}

// UnixStart returns the UTC unix timestamp of the window start.
func (w Window) UnixStart() int64 {
	return w.Start.Unix()
}

// UnixEnd returns the UTC unix timestamp of the window end.
func (w Window) UnixEnd() int64 {
	return w.End.Unix()
}

// StartISO returns the window start as a zone-qualified SQL timestamp.
func (w Window) StartISO() string {
	return w.Start.Format("2006-01-02 15:04:05-07:00")
}

// EndISO returns the window end as a zone-qualified SQL timestamp.
func (w Window) EndISO() string {
	return w.End.Format("2006-01-02 15:04:05-07:00")
}

// StartCivil returns the window start as a naive SQL timestamp.
func (w Window) StartCivil() string {
	return w.Start.Format("2006-01-02 15:04:05")
}

// EndCivil returns the window end as a naive SQL timestamp.
func (w Window) EndCivil() string {
	return w.End.Format("2006-01-02 15:04:05")
}

// ParseBlockTime parses a "yyyy-m-d-h" string into its civil components.
// No zero padding is required.
func ParseBlockTime(s string) (year, month, day, hour int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("invalid block time %q: want yyyy-m-d-h", s)
	}
	fields := make([]int, 4)
	for i, p := range parts {
		v, convErr := strconv.Atoi(p)
		if convErr != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid block time %q: %w", s, convErr)
		}
		fields[i] = v
	}
	if fields[1] < 1 || fields[1] > 12 || fields[2] < 1 || fields[2] > 31 || fields[3] < 0 || fields[3] > 23 {
		return 0, 0, 0, 0, fmt.Errorf("invalid block time %q: component out of range", s)
	}
	return fields[0], fields[1], fields[2], fields[3], nil
}

// TruncateEpoch reduces an epoch that may carry sub-second digits down to
// whole seconds. Values already at 10 digits or fewer pass through.
func TruncateEpoch(epoch int64) int64 {
	for epoch > maxEpochSeconds {
		epoch /= 10
	}
	return epoch
}

// FormatEpoch renders a unix epoch as a wall-clock timestamp with the
// zone's abbreviation, e.g. "2020-01-01 16:59:59 CST". Millisecond epochs
// are truncated to seconds first.
func FormatEpoch(epoch int64, zone string) (string, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("failed to load time zone %s: %w", zone, err)
	}
	return time.Unix(TruncateEpoch(epoch), 0).In(loc).Format("2006-01-02 15:04:05 MST"), nil
}

// Now renders the current instant in the same format FormatEpoch uses.
func Now(zone string) (string, error) {
	return FormatEpoch(time.Now().Unix(), zone)
}
