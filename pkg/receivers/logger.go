package receivers

import (
	"context"
	"fmt"
	"log"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/conductor"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MessageLogger appends bus messages to a rotating log file, one line
// per event. The payload is logged verbatim, so a REQ line carries the
// full request event JSON an operator would otherwise poll for.
type MessageLogger struct {
	// MessageLogger receives forge.Message via Rec
	Rec chan forge.Message
	// and logs them via Log
	Log *log.Logger
}

// Implements forge.MessageSubscriber
func (l MessageLogger) GetChan() chan forge.Message {
	return l.Rec
}

// Implements conductor.Service
func (l MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			case <-stop:
				close(l.Rec)
				close(stopped)
				return
			case msg := <-l.Rec:
				l.Log.Printf("%s:%s (%s): %s\n",
					msg.EventType.Type(),
					msg.EventType,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(path string) MessageLogger {
	return MessageLogger{
		make(chan forge.Message, 1000),
		log.New(&lumberjack.Logger{
			Filename: path,
			Compress: true,
		}, "", log.Ltime|log.Lmicroseconds),
	}
}

// Reads config and sets up any configured loggers
func SetupLoggers(cond *conductor.Conductor, bus forge.MessageBus, conf forge.Config) {
	for name, c := range conf.Loggers {
		l := NewMessageLogger(c.Path)
		cond.Service(fmt.Sprintf("Logger %s", c.Path), l)
		bus.Register(l, matchTypes(fmt.Sprintf("Logger %s", name), c.Types)...)
	}
}
