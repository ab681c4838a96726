package forge

/*
The message subsystem gives external integrations event-based access
to what SigmaForge is doing, without coupling them to the request
orchestrator.

A simple internal 'message bus' is passed around as a singleton, with
an internal goroutine and a 'send' method for publishing 'messages'.

Outbound destinations are created in config, which result in these
messages being routed to external services: MQTT, webhook callbacks,
log files. These are managed by MessageSubscribers:

MessageSubscribers are registered with the bus and are subscribed via
their own channels along with a list of EventTypes they want to
receive.
*/

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// MessageSubscribers are things that subscribe to the bus and handle
// messages: MQTT, webhook callbacks, log files etc.
type MessageSubscriber interface {
	GetChan() chan Message
}

// Created by the bus, wraps anything sent with Send
type Message struct {
	EventType EventType
	Message   []byte
	ID        string // correlates messages about one signing request
}

type Subscription struct {
	dest  MessageSubscriber
	types []EventType
}

func NewMessageBus() MessageBus {
	return MessageBus{
		receivers: make(map[*Subscription]bool),
		inbound:   make(chan Message, 1),
	}
}

type MessageBus struct {
	// Registered MessageSubscribers.
	receivers map[*Subscription]bool

	// Messages from Send(), destined for MessageSubscribers
	inbound chan Message
}

// Send a message to the bus with a specific EventType.
// msg can be anything JSON serialisable; it is turned into a Message
// and delivered to any interested MessageSubscribers.
func (b MessageBus) Send(t EventType, msg interface{}, msgID ...string) error {
	j, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if len(msgID) == 0 {
		b.inbound <- Message{t, j, generateID()}
	} else {
		b.inbound <- Message{t, j, msgID[0]}
	}
	return nil
}

func (b MessageBus) Register(m MessageSubscriber, types ...EventType) {
	sub := Subscription{m, types}
	b.receivers[&sub] = true
}

func (b MessageBus) Unregister(sub *Subscription) {
	delete(b.receivers, sub)
	close((*sub).dest.GetChan())
}

// Implements conductor Service
func (b MessageBus) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		stopBus := make(chan bool)
		go func() {
			for {
				select {
				case <-stopBus:
					return
				case message := <-b.inbound:
					for sub := range b.receivers {
						// check if this receiver wants this message type
						wanted := false
						for _, t := range (*sub).types {
							if t.Type() == "ALL" || t.Type() == message.EventType.Type() {
								wanted = true
								break
							}
						}
						if !wanted {
							continue
						}

						// deliver without blocking the bus; a receiver
						// that cannot keep up loses its subscription
						select {
						case (*sub).dest.GetChan() <- message:
						default:
							b.Send(SYS_ERR, struct{ msg string }{msg: "receiver failed to handle msg, closing"})
							b.Unregister(sub)
						}
					}
				}
			}
		}()

		started <- true
		// wait for shutdown.
		<-stop
		close(stopBus)
		stopped <- true
	}()
	return nil
}

// create a short random ID for msgs that have none
func generateID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:8]
}
