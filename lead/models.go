package lead

import "time"

// Lead mirrors the columns of the leads table the engine reads. Lead CRUD
// itself lives upstream; the engine only consumes ids and recency.
type Lead struct {
	ID         string
	ProviderID string
	Phone      string
	CreatedAt  time.Time
}
