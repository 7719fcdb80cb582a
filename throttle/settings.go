package throttle

import "time"

// Settings is the per-provider throttle state resolved fresh for each run.
type Settings struct {
	ProviderID  string
	QuietStart  int
	QuietEnd    int
	DailyCap    int
	SentToday   int
	Remaining   int
	WindowHours int
	Timezone    string
	IsQuiet     bool
	Allowed     bool
}

// inQuietWindow reports whether hour falls inside [start, end) in
// provider-local hours. A window that ends before it starts wraps past
// midnight. start == end means no quiet window at all.
func inQuietWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// localDayStart returns provider-local midnight for the given instant.
func localDayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
