// Package chat implements the room/client model and message
// distributor: the core fan-out fabric of the chat server.
package chat

import "encoding/json"

// ServerSender is the sentinel "from" value used for server-originated
// envelopes that have no originating client (e.g. presence events
// emitted by the distributor itself rather than relayed on a client's
// behalf).
const ServerSender = "server"

// Envelope is the wire JSON object exchanged over a room WebSocket.
// Server-assigned fields (ID, From, Timestamp) are always overwritten
// before an Envelope leaves the server, regardless of what a client
// supplied when decoding an inbound frame.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Seq       *json.Number    `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// inboundEnvelope mirrors Envelope's JSON shape for decoding untrusted
// client frames, where Seq and Data must be validated before use.
type inboundEnvelope struct {
	Type        string          `json:"type"`
	To          string          `json:"to"`
	Seq         json.Number     `json:"seq"`
	Data        json.RawMessage `json:"data"`
	ExcludeSelf bool            `json:"exclude_self"`
}

// Inbound is a validated, decoded client frame.
type Inbound struct {
	Type        string
	To          string
	Seq         *json.Number
	Data        json.RawMessage
	ExcludeSelf bool
}

// decodeError reports why an inbound frame was rejected: not a JSON
// object, a missing type, or a non-numeric seq.
type decodeError struct{ reason string }

func (e *decodeError) Error() string { return e.reason }

// DecodeInbound parses raw bytes as a frame coming from a client. Per
// spec, frames that are not JSON objects, whose type is absent, or
// whose seq is present but non-numeric are rejected. Any client-supplied
// id/from is ignored entirely -- it is never part of inboundEnvelope.
func DecodeInbound(raw []byte) (*Inbound, error) {
	var in inboundEnvelope
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &decodeError{"not a JSON object"}
	}
	if in.Type == "" {
		return nil, &decodeError{"missing type"}
	}
	var seq *json.Number
	if in.Seq != "" {
		if _, err := in.Seq.Float64(); err != nil {
			return nil, &decodeError{"non-numeric seq"}
		}
		seq = &in.Seq
	}
	return &Inbound{
		Type:        in.Type,
		To:          in.To,
		Seq:         seq,
		Data:        in.Data,
		ExcludeSelf: in.ExcludeSelf,
	}, nil
}

// Marshal serializes env to JSON bytes, the form placed on send queues.
func (env Envelope) Marshal() ([]byte, error) {
	return json.Marshal(env)
}
