package replication

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
)

// Packet is one delivery to one observer.
type Packet struct {
	Observer  Observer
	Seq       uint64
	Kind      journal.Kind
	Bootstrap bool
	Command   command.Command
}

// Sink receives packets for one observer.
type Sink interface {
	Deliver(p Packet) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(p Packet) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(p Packet) error { return f(p) }

type wirePacket struct {
	Observer  Observer         `json:"observer"`
	Seq       uint64           `json:"seq"`
	Kind      journal.Kind     `json:"kind,omitempty"`
	Bootstrap bool             `json:"bootstrap,omitempty"`
	Command   command.Envelope `json:"command"`
}

// MarshalPacket encodes p for transport.
func MarshalPacket(registry *command.Registry, p Packet) ([]byte, error) {
	env, err := registry.Encode(p.Command)
	if err != nil {
		return nil, fmt.Errorf("encode packet %d: %w", p.Seq, err)
	}
	return json.Marshal(wirePacket{
		Observer:  p.Observer,
		Seq:       p.Seq,
		Kind:      p.Kind,
		Bootstrap: p.Bootstrap,
		Command:   env,
	})
}

// UnmarshalPacket decodes a packet produced by MarshalPacket.
func UnmarshalPacket(registry *command.Registry, data []byte) (Packet, error) {
	var wire wirePacket
	if err := json.Unmarshal(data, &wire); err != nil {
		return Packet{}, fmt.Errorf("decode packet: %w", err)
	}
	cmd, err := registry.Decode(wire.Command)
	if err != nil {
		return Packet{}, fmt.Errorf("decode packet %d: %w", wire.Seq, err)
	}
	return Packet{
		Observer:  wire.Observer,
		Seq:       wire.Seq,
		Kind:      wire.Kind,
		Bootstrap: wire.Bootstrap,
		Command:   cmd,
	}, nil
}
