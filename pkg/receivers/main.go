package receivers

import (
	"fmt"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/conductor"
)

// Sets up all receivers named in config: log files, outbound webhooks
// and the MQTT publisher. Each runs as its own conductor service.
func SetUpReceivers(cond *conductor.Conductor, bus forge.MessageBus, conf forge.Config) {
	SetupLoggers(cond, bus, conf)
	SetupWebhooks(cond, bus, conf)
	SetupMQTT(cond, bus, conf)
}

// matchTypes resolves configured event-class names (ALL, SYS, NET, REQ)
// against the known classes, dropping anything unknown with a warning.
func matchTypes(name string, wanted []string) []forge.EventType {
	types := []forge.EventType{}
	for _, t := range wanted {
		match := false
		for _, x := range forge.EVENT_TYPES {
			if t == x.Type() {
				match = true
				types = append(types, x)
			}
		}
		if !match {
			fmt.Printf("⚠️  %s: ignoring invalid message type: %s\n", name, t)
		}
	}
	return types
}
