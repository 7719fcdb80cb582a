package notify

import "leadflow/throttle"

// Admit applies the quiet-hours and cap constraints to a filtered
// candidate list. It returns the admitted slice, truncated to the
// remaining budget in miner order, and a reason when nothing may go out.
// No priority scoring happens here; ordering is whatever the miner
// produced.
func Admit(settings throttle.Settings, candidates []Candidate) ([]Candidate, string) {
	if settings.IsQuiet {
		return nil, ReasonQuietHours
	}
	if settings.Remaining <= 0 {
		return nil, ReasonCapExhausted
	}
	if len(candidates) > settings.Remaining {
		candidates = candidates[:settings.Remaining]
	}
	return candidates, ""
}
