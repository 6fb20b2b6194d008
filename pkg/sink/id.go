package sink

import (
	"fmt"
	"sync"
	"time"
)

// Case identifiers are minute-resolution: MMDD"T"HHMM in UTC+3 plus a
// wrapping two-digit sequence. More than 99 cases within one minute can
// collide; accepted at this volume.
var caseIDZone = time.FixedZone("UTC+3", 3*60*60)

const caseIDLayout = "0102T1504"

// IDGenerator produces human-readable case identifiers. The sequence
// counter is owned by the generator and guarded by its own mutex.
type IDGenerator struct {
	mu   sync.Mutex
	last int
	now  func() time.Time
}

// NewIDGenerator builds a generator starting its sequence at 01.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns the next identifier, e.g. "0131T1423-01". The suffix wraps
// from 99 back to 01.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.last++
	if g.last > 99 {
		g.last = 1
	}

	return fmt.Sprintf("%s-%02d", g.now().In(caseIDZone).Format(caseIDLayout), g.last)
}
