package lease

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Lease grants one writer exclusive sync rights over a project until ExpiresAt.
type Lease struct {
	Project    string    `json:"project"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Active reports whether the lease still blocks other holders at now.
func (l *Lease) Active(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// NewHolderID builds a holder identity unique to this process run.
func NewHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()[:8])
}
