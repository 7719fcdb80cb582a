package provider

import "time"

// Provider captures the subset of provider data the notification engine
// and API layer consume.
type Provider struct {
	ID        string
	Slug      string
	Name      string
	Category  string
	LangPref  string
	Timezone  string
	Active    bool
	CreatedAt time.Time
}
