package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values for the per-key stores.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name identifies the codec in configuration and logs.
	Name() string
}

// JSONCodec encodes values as JSON. It is the default codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// MsgpackCodec encodes values as msgpack, which is more compact for binary payloads.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgpackCodec) Name() string                       { return "msgpack" }

// CodecByName returns the codec registered under name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown value codec %q", name)
	}
}

// ErrInvalidKey is returned for keys that cannot be serialized without loss.
var ErrInvalidKey = errors.New("cache key cannot be serialized losslessly")

// KeyBytes returns the canonical serialization of a key.
// Keys always use JSON regardless of the value codec: struct fields keep
// declaration order and map keys are sorted, so equal keys encode identically.
// JSON replaces invalid UTF-8 with U+FFFD, so keys holding such strings are
// rejected with ErrInvalidKey rather than collapsed onto another key.
func KeyBytes[K any](key K) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	b, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cache key '%v': %w", key, err)
	}
	return b, nil
}

// validateKey reports ErrInvalidKey if any string reachable from key is not valid UTF-8.
func validateKey(key any) error {
	if !validUTF8(reflect.ValueOf(key), 0) {
		return fmt.Errorf("%w: %+q contains invalid UTF-8", ErrInvalidKey, fmt.Sprint(key))
	}
	return nil
}

// maxKeyDepth bounds the walk over self-referencing keys; json.Marshal rejects those anyway.
const maxKeyDepth = 64

func validUTF8(v reflect.Value, depth int) bool {
	if depth > maxKeyDepth {
		return true
	}
	switch v.Kind() {
	case reflect.String:
		return utf8.ValidString(v.String())
	case reflect.Pointer, reflect.Interface:
		return v.IsNil() || validUTF8(v.Elem(), depth+1)
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			f := t.Field(i)
			// Embedded structs promote their exported fields even when unexported.
			if (f.IsExported() || f.Anonymous) && !validUTF8(v.Field(i), depth+1) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		// []byte is base64 encoded, which is lossless.
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		for i := range v.Len() {
			if !validUTF8(v.Index(i), depth+1) {
				return false
			}
		}
		return true
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !validUTF8(iter.Key(), depth+1) || !validUTF8(iter.Value(), depth+1) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
