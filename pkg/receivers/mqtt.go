package receivers

import (
	"context"
	"fmt"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/conductor"
	"github.com/yosssi/gmq/mqtt"
	"github.com/yosssi/gmq/mqtt/client"
)

// MQTTSender republishes bus messages to configured MQTT topics, one
// queue per topic filter. SYS messages are never republished: an MQTT
// failure raises SYS_ERR, and forwarding those back out would loop.
type MQTTSender struct {
	// incoming msgs
	Rec    chan forge.Message
	Config forge.MQTTConfig
	Bus    forge.MessageBus
}

func NewMQTTSender(config forge.MQTTConfig, bus forge.MessageBus) MQTTSender {
	return MQTTSender{
		make(chan forge.Message, 1000),
		config,
		bus,
	}
}

// Implements forge.MessageSubscriber
func (s MQTTSender) GetChan() chan forge.Message {
	return s.Rec
}

// Implements conductor.Service
func (s MQTTSender) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		cli := client.New(&client.Options{
			ErrorHandler: func(err error) {
				s.Bus.Send(forge.SYS_ERR, fmt.Sprintf("MQTTSender: %s", err))
			},
		})

		// connect to the MQTT broker
		err := cli.Connect(&client.ConnectOptions{
			Network:  "tcp",
			Address:  s.Config.Address,
			ClientID: []byte(s.Config.ClientID),
			UserName: []byte(s.Config.Username),
			Password: []byte(s.Config.Password),
		})
		if err != nil {
			s.Bus.Send(forge.SYS_ERR, fmt.Sprintf("MQTTSender connection failure %s", err))
			close(s.Rec)
			close(stopped)
			return
		}

		started <- true

		for {
			select {
			case <-stop:
				cli.Disconnect()
				close(s.Rec)
				close(stopped)
				return
			case msg := <-s.Rec:
				if msg.EventType.Type() == "SYS" {
					continue
				}
				for _, queue := range s.Config.Queues {
					if !queueWants(queue.Types, msg.EventType) {
						continue
					}
					err = cli.Publish(&client.PublishOptions{
						QoS:       mqtt.QoS0,
						TopicName: []byte(queue.TopicFilter),
						Message:   msg.Message,
					})
					if err != nil {
						s.Bus.Send(forge.SYS_ERR, fmt.Sprintf("MQTTSender: publish to %s: %v", queue.TopicFilter, err))
					}
				}
			}
		}
	}()
	return nil
}

// queueWants reports whether a queue's type list covers the event.
func queueWants(types []string, et forge.EventType) bool {
	for _, t := range types {
		if t == "ALL" || t == et.Type() {
			return true
		}
	}
	return false
}

func SetupMQTT(cond *conductor.Conductor, bus forge.MessageBus, conf forge.Config) {
	if conf.MQTT.Address != "" {
		s := NewMQTTSender(conf.MQTT, bus)
		cond.Service("MQTT sender", s)
		// Sub to 'ALL' because we're filtering on our side
		bus.Register(s, forge.EVENT_ALL("ALL"))
	}
}
