package nt4

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// valueFrame is the decoded form of a binary NT4 frame: a MsgPack array of
// exactly four elements `[id, timestamp_micros, type_tag, value]`.
type valueFrame struct {
	ID        int32
	Timestamp uint32
	TypeTag   uint8
	Value     any
}

// encodeValueFrame builds the wire bytes for one outbound value frame.
// id is a topic id (pubuid cast to signed) or -1 for the time channel.
func encodeValueFrame(id int32, timestamp uint32, typeTag uint8, value any) ([]byte, error) {
	elems := []any{id, timestamp, typeTag, value}
	data, err := msgpack.Marshal(elems)
	if err != nil {
		return nil, fmt.Errorf("encode value frame: %w", err)
	}
	return data, nil
}

// decodeValueFrame parses an inbound binary frame. A payload that is not a
// MsgPack array fails to decode and is reported as a decode failure; an
// array that isn't exactly four elements, or whose id, timestamp or type
// tag is not an integer, is reported as a protocol violation.
func decodeValueFrame(data []byte) (valueFrame, error) {
	var elems []any
	if err := msgpack.Unmarshal(data, &elems); err != nil {
		return valueFrame{}, newError(KindDecodeFailure, "decode_value_frame", err)
	}
	if len(elems) != 4 {
		return valueFrame{}, newError(KindProtocolViolation, "decode_value_frame",
			fmt.Errorf("expected 4-element array, got %d", len(elems)))
	}

	id, ok := asInt64(elems[0])
	if !ok {
		return valueFrame{}, newError(KindProtocolViolation, "decode_value_frame", fmt.Errorf("id is not an integer"))
	}
	ts, ok := asUint64(elems[1])
	if !ok {
		return valueFrame{}, newError(KindProtocolViolation, "decode_value_frame", fmt.Errorf("timestamp is not an integer"))
	}
	tag, ok := asUint64(elems[2])
	if !ok {
		return valueFrame{}, newError(KindProtocolViolation, "decode_value_frame", fmt.Errorf("type tag is not an integer"))
	}

	return valueFrame{
		ID:        int32(id),
		Timestamp: uint32(ts),
		TypeTag:   uint8(tag),
		Value:     elems[3],
	}, nil
}

// asInt64 normalizes the handful of concrete numeric types
// vmihailenco/msgpack decodes generic integers into.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint:
		return int64(n), true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	i, ok := asInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}
