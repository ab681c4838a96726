package forge

import "time"

// SetNow pins the orchestrator clock for tests.
func (o *Orchestrator) SetNow(now func() time.Time) {
	o.now = now
}
