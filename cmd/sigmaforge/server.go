package main

import (
	"log"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/conductor"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
	"github.com/sigmanauts/sigmaforge/pkg/node"
	"github.com/sigmanauts/sigmaforge/pkg/protocols"
	"github.com/sigmanauts/sigmaforge/pkg/receivers"
	"github.com/sigmanauts/sigmaforge/pkg/services"
	"github.com/sigmanauts/sigmaforge/pkg/store"
	"github.com/sigmanauts/sigmaforge/pkg/webapi"
)

func Server(conf forge.Config) {
	network, err := ergo.ParseNetwork(conf.SigmaForge.Network)
	if err != nil {
		log.Fatalf("[!] %v", err)
	}

	cond := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := forge.NewMessageBus()
	cond.Service("MessageBus", bus)

	// Set up all configured receivers
	receivers.SetUpReceivers(cond, bus, conf)

	// Set up the Store
	var db forge.Store
	switch conf.Store.DBDriver {
	case "postgres":
		db, err = store.NewPostgresStore(conf.Store.DBFile)
	default:
		db, err = store.NewSQLiteStore(conf.Store.DBFile)
	}
	if err != nil {
		log.Fatalf("[!] store: %v", err)
	}
	defer db.Close()

	// Node REST client, plus the ZMQ block feed when configured
	client := node.NewRestClient(conf)
	var emitter forge.NodeEmitter
	if conf.Node.ZMQ != "" {
		zr, err := node.NewBlockReceiver(bus, conf)
		if err != nil {
			log.Fatalf("[!] zmq: %v", err)
		}
		cond.Service("ZMQ Listener", zr)
		emitter = zr
	}

	// Register the protocol adapters
	reg := forge.NewAdapterRegistry()
	if err := protocols.RegisterAll(reg, network); err != nil {
		log.Fatalf("[!] protocols: %v", err)
	}

	orch, err := forge.NewOrchestrator(conf, db, client, bus, reg)
	if err != nil {
		log.Fatalf("[!] orchestrator: %v", err)
	}

	// Requests stranded in submitting by a previous run are failed
	// before anything new is accepted.
	if n, err := orch.RecoverInterrupted(); err != nil {
		log.Fatalf("[!] recovery: %v", err)
	} else if n > 0 {
		log.Printf("[-] recovered %d interrupted requests", n)
	}

	// Start internal services
	services.StartServices(cond, conf, bus, orch, client, emitter)

	// Start the Web API
	api, err := webapi.NewWebAPI(conf, orch)
	if err != nil {
		log.Fatalf("[!] webapi: %v", err)
	}
	cond.Service("Web API", api)

	<-cond.Start()
}
