package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Messages cross the socket as google.protobuf.Struct. toStruct and
// fromStruct map them to the Go types above through their JSON tags.
// Struct numbers are float64, so integers that can exceed 2^53 (chat.db
// ROWIDs) are tagged ",string". Event payloads are display-only and are
// passed through as-is.

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// payloadMap flattens an arbitrary event payload into a JSON object. Scalar
// payloads are wrapped under "value".
func payloadMap(p any) map[string]any {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil {
		return m
	}
	var v any
	_ = json.Unmarshal(data, &v)
	return map[string]any{"value": v}
}
