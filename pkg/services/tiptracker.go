package services

import (
	"context"
	"log"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
)

// Ergo targets a two-minute block interval; silence much longer than
// that means the ZMQ feed is dead and polling must take over.
const expectedBlockInterval = 4 * time.Minute

type TipSubscription struct {
	channel  chan<- uint32
	blocking bool
}

/*
 * TipTracker follows the indexed height of the chain. It learns of new
 * blocks from the ZMQ receiver when one is configured and falls back to
 * polling the node when the feed is quiet. Every change is confirmed
 * against the node itself (ZMQ is unauthenticated) and then announced
 * on the bus as NET_TIP_CHANGED and to subscribed channels.
 */
type TipTracker struct {
	node            forge.NodeClient
	bus             forge.MessageBus
	poll            time.Duration
	timeout         time.Duration
	ReceiveFromNode chan forge.NodeEvent
	listeners       []TipSubscription
}

func NewTipTracker(conf forge.Config, node forge.NodeClient, bus forge.MessageBus) *TipTracker {
	poll := time.Duration(conf.Node.PollSeconds) * time.Second
	if poll <= 0 {
		poll = expectedBlockInterval
	}
	timeout := time.Duration(conf.Node.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TipTracker{
		node:            node,
		bus:             bus,
		poll:            poll,
		timeout:         timeout,
		ReceiveFromNode: make(chan forge.NodeEvent, 1000),
	}
}

func (t *TipTracker) Subscribe(ch chan<- uint32, blocking bool) {
	t.listeners = append(t.listeners, TipSubscription{ch, blocking})
}

// Implements conductor.Service
func (t *TipTracker) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		var lastHeight uint32
		for {
			select {
			case <-stop:
				close(stopped)
				return
			case e := <-t.ReceiveFromNode:
				if e.Type == forge.Block {
					t.refresh(&lastHeight)
				}
			case <-time.After(t.poll):
				t.refresh(&lastHeight)
			}
		}
	}()
	return nil
}

// refresh asks the node for its height and announces a change.
func (t *TipTracker) refresh(last *uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	height, err := t.node.GetHeight(ctx)
	if err != nil {
		log.Println("TipTracker: height request failed:", err)
		t.bus.Send(forge.NET_DEGRADED, forge.TipEvent{Height: *last})
		return
	}
	if height != *last {
		*last = height
		t.sendEvent(height)
	}
}

func (t *TipTracker) sendEvent(height uint32) {
	log.Println("TipTracker: chain tip moved to height:", height)
	t.bus.Send(forge.NET_TIP_CHANGED, forge.TipEvent{Height: height})
	for _, ch := range t.listeners {
		if ch.blocking {
			ch.channel <- height
		} else {
			// non-blocking send.
			select {
			case ch.channel <- height:
			default:
			}
		}
	}
}
