package p2p

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements grpc/encoding.Codec over plain JSON so PushRequest/
// PushResponse can travel as gRPC messages without a generated protobuf
// binding — the wire body is already protocol.TrxRecord's canonical JSON
// envelope, so reusing protobuf here would just mean encoding JSON inside
// protobuf bytes for no benefit.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("p2p: marshal gossip message: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("p2p: unmarshal gossip message: %w", err)
	}
	return nil
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
