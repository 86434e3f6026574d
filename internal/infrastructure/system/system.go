// Package system provides the clock and identifier ports backed by the host.
package system

import (
	"time"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/google/uuid"
)

// Clock returns the current UTC time
type Clock struct{}

// Now returns the current time in UTC
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDv7Generator returns time-ordered UUIDv7 strings, so lexical order is
// creation order
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7. It panics only if the system random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

var (
	_ port.Clock       = Clock{}
	_ port.IDGenerator = UUIDv7Generator{}
)
