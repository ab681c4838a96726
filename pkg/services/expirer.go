package services

import (
	"context"
	"log"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
)

/*
 * Expirer drives the time-based edges of the request state machine.
 * On startup it fails requests left in submitting by a crash during
 * broadcast; afterwards it sweeps timed-out pending requests to
 * expired on a fixed cadence. Both operations are compare-and-swap
 * based, so running alongside live callbacks is safe.
 */
type Expirer struct {
	orch  *forge.Orchestrator
	sweep time.Duration
}

func NewExpirer(conf forge.Config, orch *forge.Orchestrator) Expirer {
	sweep := time.Duration(conf.Signing.SweepSeconds) * time.Second
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	return Expirer{orch: orch, sweep: sweep}
}

// Implements conductor.Service
func (e Expirer) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		if n, err := e.orch.RecoverInterrupted(); err != nil {
			log.Println("Expirer: startup recovery:", err)
		} else if n > 0 {
			log.Println("Expirer: failed requests interrupted during broadcast:", n)
		}
		for {
			select {
			case <-stop:
				close(stopped)
				return
			case <-time.After(e.sweep):
				if _, err := e.orch.ExpireSweep(); err != nil {
					log.Println("Expirer: sweep:", err)
				}
			}
		}
	}()
	return nil
}
