package draft

import (
	"encoding/json"
	"fmt"
)

// jsonCodec lets Connect carry plain Go structs as JSON. It replaces the
// default protobuf JSON codec, which only accepts generated messages.
type jsonCodec struct{}

// JSONCodec returns the codec shared by the draft handlers and their clients.
func JSONCodec() jsonCodec {
	return jsonCodec{}
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
