package jsonvalue

import (
	"bytes"
	"encoding/json"
)

// Marshal renders v as canonical JSON: object keys in insertion order,
// numbers without trailing zeros (delegated to encoding/json's own float
// formatting), strings escaped per JSON.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
		return nil
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Number:
		return encodeLeaf(buf, v.n)
	case String:
		return encodeLeaf(buf, v.s)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.arr.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		for i, key := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeLeaf(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, v.obj.vals[i]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		buf.WriteString("null")
		return nil
	}
}

// encodeLeaf marshals a scalar Go value via encoding/json, which already
// produces trailing-zero-free numbers and correctly escaped strings.
func encodeLeaf(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
