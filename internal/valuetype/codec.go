package valuetype

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a ValueAndType for storage in an oplog payload.
func Encode(vt ValueAndType) ([]byte, error) {
	b, err := msgpack.Marshal(vt)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

// Decode deserializes a ValueAndType previously produced by Encode.
func Decode(data []byte) (ValueAndType, error) {
	var vt ValueAndType
	if err := msgpack.Unmarshal(data, &vt); err != nil {
		return ValueAndType{}, fmt.Errorf("decode value: %w", err)
	}
	return vt, nil
}

// EncodeMany serializes a slice of ValueAndType, used for function
// arguments and results that carry more than one value.
func EncodeMany(vts []ValueAndType) ([]byte, error) {
	b, err := msgpack.Marshal(vts)
	if err != nil {
		return nil, fmt.Errorf("encode values: %w", err)
	}
	return b, nil
}

// DecodeMany deserializes a slice previously produced by EncodeMany.
func DecodeMany(data []byte) ([]ValueAndType, error) {
	var vts []ValueAndType
	if err := msgpack.Unmarshal(data, &vts); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return vts, nil
}
