// Package ids generates the identifiers persisted by the audit and fraud
// sinks. ULIDs sort by creation time, which keeps the audit_log primary index
// append-friendly and makes time-range scans cheap.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a time-ordered identifier. Entries created within the same
// millisecond keep their relative order through the monotonic entropy.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
