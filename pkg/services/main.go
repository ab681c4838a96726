package services

import (
	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/conductor"
)

// StartServices registers the background services with the conductor.
// emitter is nil when no ZMQ feed is configured; the TipTracker then
// relies on polling alone.
func StartServices(cond *conductor.Conductor, conf forge.Config, bus forge.MessageBus, orch *forge.Orchestrator, client forge.NodeClient, emitter forge.NodeEmitter) {
	// TipTracker announces NET_TIP_CHANGED as the chain grows.
	tracker := NewTipTracker(conf, client, bus)
	if emitter != nil {
		emitter.Subscribe(tracker.ReceiveFromNode)
	}
	cond.Service("TipTracker", tracker)

	// Expirer recovers interrupted requests and expires stale ones.
	cond.Service("Expirer", NewExpirer(conf, orch))
}
