package main

import (
	"sync-relay/config"
	"sync-relay/grpc"
	"sync-relay/nats"
	"sync-relay/server"

	log "github.com/sirupsen/logrus"
)

func main() {
	conf := config.Init()

	events := nats.Connect(conf.NatsURL)
	defer events.Close()

	health, err := grpc.StartHealth(conf.GRPCPort)
	if err != nil {
		log.WithError(err).Fatal("Failed to start health service")
	}

	if err := server.Start(conf, events, health); err != nil {
		log.WithError(err).Fatal("Relay stopped")
	}
}
