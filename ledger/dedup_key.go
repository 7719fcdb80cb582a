package ledger

import (
	"fmt"
	"net/url"
	"time"
)

// DedupKey identifies one notification opportunity: a (lead, anchor) pair.
// Either component may be absent. Encoding keeps absent components out of
// the string entirely, so "missing lead" and "missing anchor" can never
// collide with each other or with a genuine value.
type DedupKey struct {
	leadID    string
	hasLead   bool
	anchorMS  int64
	hasAnchor bool
}

// ReminderKey builds the key for an upcoming-slot reminder.
func ReminderKey(leadID *string, slot time.Time) DedupKey {
	k := DedupKey{anchorMS: slot.UnixMilli(), hasAnchor: true}
	if leadID != nil && *leadID != "" {
		k.leadID = *leadID
		k.hasLead = true
	}
	return k
}

// ReactivationKey builds the key for a win-back message. Reactivation has a
// single active cooldown per lead, so the lead id alone anchors it.
func ReactivationKey(leadID *string) DedupKey {
	var k DedupKey
	if leadID != nil && *leadID != "" {
		k.leadID = *leadID
		k.hasLead = true
	}
	return k
}

// Deduplicable reports whether the key can participate in dedup at all.
// A key with neither component identifies nothing and must never suppress
// other candidates.
func (k DedupKey) Deduplicable() bool {
	return k.hasLead || k.hasAnchor
}

// String renders the canonical encoding, e.g. "l=abc&a=1712000000000".
// The lead id is escaped so separator characters inside it cannot forge a
// different key. Non-deduplicable keys render empty.
func (k DedupKey) String() string {
	switch {
	case k.hasLead && k.hasAnchor:
		return fmt.Sprintf("l=%s&a=%d", url.QueryEscape(k.leadID), k.anchorMS)
	case k.hasLead:
		return "l=" + url.QueryEscape(k.leadID)
	case k.hasAnchor:
		return fmt.Sprintf("a=%d", k.anchorMS)
	default:
		return ""
	}
}
