// Package command is the typed operation set accepted by config and group
// instances.
//
// Every operation is one struct implementing Command. Commands travel as
// JSON envelopes carrying a kind discriminator and a request id, and are
// applied to an instance with Dispatch.
package command

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/roach88/swarmsync/internal/engine"
)

// Command is one operation. The set is closed: only types in this package
// implement it.
type Command interface {
	Kind() string
	command()
}

// Envelope is the wire form of a command.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type parser func(payload []byte) (Command, error)

var registry = map[string]parser{}

func register[T Command]() {
	var zero T
	kind := zero.Kind()
	if _, dup := registry[kind]; dup {
		panic("command: duplicate kind " + kind)
	}
	registry[kind] = func(payload []byte) (Command, error) {
		var c T
		payload = bytes.TrimSpace(payload)
		if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
			return c, nil
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, engine.NewInvalidInputError("parse command", "%s: %v", kind, err)
		}
		return c, nil
	}
}

// Kinds lists every registered command kind in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse builds the command named kind from its JSON payload. Unknown
// payload fields are rejected. An empty payload yields the zero command.
func Parse(kind string, payload []byte) (Command, error) {
	p, ok := registry[kind]
	if !ok {
		return nil, engine.NewInvalidInputError("parse command", "unknown kind %q", kind)
	}
	return p(payload)
}

// Encode wraps cmd in an envelope with a fresh time-ordered request id.
func Encode(cmd Command) ([]byte, uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, uuid.Nil, errors.Wrap(err, "request id")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, uuid.Nil, errors.Wrapf(err, "encode %s", cmd.Kind())
	}
	data, err := json.Marshal(Envelope{ID: id, Kind: cmd.Kind(), Payload: payload})
	if err != nil {
		return nil, uuid.Nil, errors.Wrapf(err, "encode %s", cmd.Kind())
	}
	return data, id, nil
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (Command, uuid.UUID, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, uuid.Nil, engine.NewInvalidInputError("decode command", "%v", err)
	}
	if env.Kind == "" {
		return nil, uuid.Nil, engine.NewInvalidInputError("decode command", "missing kind")
	}
	cmd, err := Parse(env.Kind, env.Payload)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return cmd, env.ID, nil
}
