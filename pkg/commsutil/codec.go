package commsutil

import (
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode payload: %w", codecLogPrefix, err)
	}
	return data, nil
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s - failed to decode payload: %w", codecLogPrefix, err)
	}
	return nil
}

// Reply encodes v and responds to msg. Messages without a reply subject are ignored.
func Reply(msg *comms.Msg, v any) error {
	if msg.Reply == "" {
		return nil
	}
	data, err := EncodePayload(v)
	if err != nil {
		return err
	}
	if err := msg.Respond(data); err != nil {
		return fmt.Errorf("%s - failed to respond: %w", codecLogPrefix, err)
	}
	return nil
}
