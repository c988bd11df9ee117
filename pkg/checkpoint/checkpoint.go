package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is the progress of one run after its last completed page.
type Checkpoint struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// BaseURL is the search the run belongs to.
	BaseURL string `json:"base_url"`

	// Token continues the run. It is only valid while the server keeps the
	// scroll context alive.
	Token string `json:"token"`

	// Pages and Hits count what the run delivered so far.
	Pages int `json:"pages"`
	Hits  int `json:"hits"`

	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt is when the scroll context, and with it Token, expires.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the scroll context has expired.
func (c *Checkpoint) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (c *Checkpoint) TTL() time.Duration {
	ttl := time.Until(c.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Key identifies a stored checkpoint.
type Key struct {
	RunID string
}

// String returns the Redis key.
// Format: esscroll:checkpoint:{run_id}
func (k Key) String() string {
	return "esscroll:checkpoint:" + k.RunID
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}
