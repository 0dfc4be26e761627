// Package nats adapts a NATS connection to the service.MessageBus port
// used for durable task enqueueing.
package nats

import "github.com/nats-io/nats.go"

type Bus struct {
	nc *nats.Conn
}

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) Publish(topic string, data []byte) error {
	return b.nc.Publish(topic, data)
}
