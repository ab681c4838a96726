package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"syscall"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/pebbe/zmq4"
)

// interface guard ensures BlockReceiver implements forge.NodeEmitter
var _ forge.NodeEmitter = &BlockReceiver{}

// BlockReceiver receives new-block notifications over ZMQ.
// CAUTION: the protocol is not authenticated!
// CAUTION: subscribers MUST validate received ids against the node,
// since the feed may be out of date, incomplete or even fake.
type BlockReceiver struct {
	bus         forge.MessageBus
	sock        *zmq4.Socket
	listeners   []chan<- forge.NodeEvent
	nodeAddress string
}

func (r *BlockReceiver) Subscribe(ch chan<- forge.NodeEvent) {
	r.listeners = append(r.listeners, ch)
}

func NewBlockReceiver(bus forge.MessageBus, config forge.Config) (*BlockReceiver, error) {
	return &BlockReceiver{
		bus:         bus,
		listeners:   make([]chan<- forge.NodeEvent, 0, 10),
		nodeAddress: config.Node.ZMQ,
	}, nil
}

func (r *BlockReceiver) Run(started, stopped chan bool, stop chan context.Context) error {
	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return err
	}
	sock.SetRcvtimeo(2 * time.Second)
	r.sock = sock
	r.bus.Send(forge.SYS_STARTUP, fmt.Sprintf("ZMQ: connecting to: %s", r.nodeAddress))
	err = sock.Connect(r.nodeAddress)
	if err != nil {
		return err
	}
	err = subscribeAll(sock, "newBlock")
	if err != nil {
		return err
	}
	go func() {
		started <- true

		for {
			// Handle shutdown
			select {
			case <-stop:
				sock.Close()
				close(stopped)
				return
			default:
				// fall through to zmq recv
			}

			msg, err := r.sock.RecvMessageBytes(0)
			if err != nil {
				switch err := err.(type) {
				case zmq4.Errno:
					if err == zmq4.Errno(syscall.ETIMEDOUT) {
						// timeouts are routine between blocks
						continue
					} else if err == zmq4.Errno(syscall.EAGAIN) {
						continue
					} else {
						r.bus.Send(forge.SYS_ERR, fmt.Sprintf("ZMQ err: %s", err))
						continue
					}
				default:
					panic(fmt.Sprintf("zmq error: %v\n", err))
				}
			}
			tag := string(msg[0])
			switch tag {
			case "newBlock":
				id := hex.EncodeToString(msg[1])
				r.notify(forge.Block, id)
			default:
				r.bus.Send(forge.SYS_MSG, fmt.Sprintf("ZMQ: unknown topic %q", tag))
			}
		}
	}()
	return nil
}

func (r *BlockReceiver) notify(tag forge.NodeEventType, id string) {
	e := forge.NodeEvent{Type: tag, ID: id}
	for _, ch := range r.listeners {
		ch <- e
	}
}

func subscribeAll(sock *zmq4.Socket, topics ...string) error {
	for _, topic := range topics {
		err := sock.SetSubscribe(topic)
		if err != nil {
			return err
		}
	}
	return nil
}
