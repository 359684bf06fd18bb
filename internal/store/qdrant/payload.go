package qdrant

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// encodePayload builds the point payload for a record. Metadata is first
// normalised through JSON so any marshalable value is accepted and numbers
// are stored the same way regardless of their Go type.
func encodePayload(id string, metadata map[string]any) (map[string]*qdrant.Value, error) {
	meta := map[string]any{}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, &vecerr.SerializationError{ID: id, Err: err}
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, &vecerr.SerializationError{ID: id, Err: err}
		}
	}
	payload, err := qdrant.TryValueMap(map[string]any{
		payloadIDKey:       id,
		payloadMetadataKey: meta,
	})
	if err != nil {
		return nil, &vecerr.SerializationError{ID: id, Err: err}
	}
	return payload, nil
}

// decodePayload extracts the record id and metadata from a point payload.
func decodePayload(payload map[string]*qdrant.Value) (string, map[string]any, error) {
	idVal, ok := payload[payloadIDKey]
	if !ok {
		return "", nil, &vecerr.SerializationError{Err: errors.New("point payload has no record id")}
	}
	id := idVal.GetStringValue()
	raw, ok := payload[payloadMetadataKey]
	if !ok {
		return id, nil, nil
	}
	if _, null := raw.GetKind().(*qdrant.Value_NullValue); null {
		return id, nil, nil
	}
	decoded := valueToAny(raw)
	meta, ok := decoded.(map[string]any)
	if !ok {
		return id, nil, &vecerr.SerializationError{ID: id, Err: fmt.Errorf("metadata payload is %T, not an object", decoded)}
	}
	return id, meta, nil
}

// valueToAny converts a payload value into the shapes encoding/json
// produces: numbers become float64.
func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		fields := k.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for name, f := range fields {
			m[name] = valueToAny(f)
		}
		return m
	case *qdrant.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make([]any, len(values))
		for i, el := range values {
			out[i] = valueToAny(el)
		}
		return out
	}
	return nil
}

// vectorOf returns the dense vector of a point. Older servers fill the
// deprecated Data field instead of Dense.
func vectorOf(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if d := out.GetDense(); d != nil {
		return d.GetData()
	}
	return out.GetData() //nolint:staticcheck // fallback for servers before 1.12
}

func recordFromPoint(p *qdrant.RetrievedPoint) (store.Record, error) {
	id, meta, err := decodePayload(p.GetPayload())
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{ID: id, Vector: vectorOf(p.GetVectors()), Metadata: meta}, nil
}

func pointFromRecord(rec store.Record) (*qdrant.PointStruct, error) {
	payload, err := encodePayload(rec.ID, rec.Metadata)
	if err != nil {
		return nil, err
	}
	return &qdrant.PointStruct{
		Id:      pointID(rec.ID),
		Vectors: qdrant.NewVectorsDense(rec.Vector),
		Payload: payload,
	}, nil
}
