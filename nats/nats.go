package nats

import (
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	PlayerSubjectPrefix = "relay.players."
	ChatSubject         = "relay.chat"
)

// Publisher forwards relay events to NATS. A nil or unconnected Publisher
// drops everything, so callers never need to check configuration.
type Publisher struct {
	conn *nats.Conn
}

func Connect(natsUrl string) *Publisher {
	if natsUrl == "" {
		// No NATS server configured, do nothing.
		log.Info("No nats server configured")
		return &Publisher{}
	}

	c, err := nats.Connect(natsUrl, nats.Name("sync-relay"), nats.MaxReconnects(-1))
	if err != nil {
		log.WithError(err).Error("Failed to connect to nats")
		return &Publisher{}
	}

	log.Info("Connected to nats at ", natsUrl)
	return &Publisher{conn: c}
}

func (p *Publisher) Connected() bool {
	return p != nil && p.conn != nil
}

func (p *Publisher) Publish(subject string, data []byte) {
	if !p.Connected() {
		return
	}

	err := p.conn.Publish(subject, data)
	if err != nil {
		log.WithError(err).WithField("subject", subject).Error("Failed to publish message")
	}
}

func (p *Publisher) PublishJSON(subject string, v any) {
	if !p.Connected() {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("Failed to marshal event")
		return
	}
	p.Publish(subject, data)
}

func PlayerSubject(id int) string {
	return PlayerSubjectPrefix + strconv.Itoa(id)
}

func (p *Publisher) Close() {
	if !p.Connected() {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.WithError(err).Warn("Failed to drain nats connection")
	}
}
