package sekaicrypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// ValueKind classifies a decoded OrderedValue.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// OrderedValue is a JSON-like value decoded from MessagePack that preserves
// map key insertion order at every level. Integer map keys are rendered as
// decimal strings; binary and extension payloads are rendered as base64
// strings; non-finite floats are rejected during decode.
type OrderedValue struct {
	Kind   ValueKind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	Array  []*OrderedValue
	Object *orderedmap.OrderedMap[string, *OrderedValue]
}

// MarshalJSON renders the value as JSON, preserving object key order.
func (v *OrderedValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.Bool {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case KindFloat:
		return []byte(strconv.FormatFloat(v.Float, 'g', -1, 64)), nil
	case KindString:
		return marshalJSONString(v.Str), nil
	case KindArray:
		out := []byte{'['}
		for i, e := range v.Array {
			if i > 0 {
				out = append(out, ',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return append(out, ']'), nil
	case KindObject:
		return v.Object.MarshalJSON()
	default:
		return nil, fmt.Errorf("sekaicrypto: unknown value kind %d", v.Kind)
	}
}

func marshalJSONString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// ---- order-preserving decode via msgpack.Decoder's low-level API ----
//
// msgpack.Unmarshal's generic interface{} path collapses every map to an
// unordered Go map, and errors out on any extension id without a registered
// CustomDecoder (every extension here is opaque to us — we only want its raw
// bytes). Decoder's low-level primitives (PeekCode, DecodeMapLen,
// DecodeArrayLen, DecodeString, DecodeBytes, DecodeExtHeader, and the typed
// scalar Decode* methods) do the actual wire parsing; this file only adds the
// code-byte classification and the order-preserving map/array assembly the
// library's generic path doesn't do for us.

func decodeOrdered(data []byte) (*OrderedValue, error) {
	br := bytes.NewReader(data)
	dec := msgpack.NewDecoder(br)
	return decodeOrderedValue(dec, br)
}

func intVal(i int64) *OrderedValue { return &OrderedValue{Kind: KindInt, Int: i} }

func floatVal(f float64) (*OrderedValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, apperror.New(apperror.KindCryptoError, "invalid float")
	}
	return &OrderedValue{Kind: KindFloat, Float: f}, nil
}

func strVal(s string) *OrderedValue { return &OrderedValue{Kind: KindString, Str: s} }

func wrapDecodeErr(err error) error {
	return apperror.New(apperror.KindCryptoError, "msgpack: %v", err)
}

// decodeOrderedValue decodes a single value at the decoder's current
// position. dec and br must be the decoder and the exact *bytes.Reader it
// was constructed from — decodeOrderedExt reads extension payload bytes
// directly off br, which stays in sync with dec only because bytes.Reader
// already satisfies msgpack's internal Reader interface and so is used
// as-is, with no extra bufio look-ahead in front of it.
func decodeOrderedValue(dec *msgpack.Decoder, br *bytes.Reader) (*OrderedValue, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, wrapDecodeErr(err)
	}
	c := byte(code)

	switch {
	case c <= 0x7f, c >= 0xe0, c >= 0xcc && c <= 0xce, c >= 0xd0 && c <= 0xd3:
		// posfixint, negfixint, uint8/16/32, int8/16/32/64 all fit in int64
		n, err := dec.DecodeInt64()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return intVal(n), nil
	case c == 0xcf: // uint64, may exceed math.MaxInt64
		n, err := dec.DecodeUint64()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		if n > math.MaxInt64 {
			return strVal(strconv.FormatUint(n, 10)), nil
		}
		return intVal(int64(n)), nil
	case c&0xf0 == 0x80, c == 0xde, c == 0xdf: // fixmap, map16, map32
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return decodeOrderedMap(dec, br, n)
	case c&0xf0 == 0x90, c == 0xdc, c == 0xdd: // fixarray, array16, array32
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return decodeOrderedArray(dec, br, n)
	case c&0xe0 == 0xa0, c == 0xd9, c == 0xda, c == 0xdb: // fixstr, str8/16/32
		s, err := dec.DecodeString()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return strVal(s), nil
	case c == 0xc4, c == 0xc5, c == 0xc6: // bin8/16/32
		b, err := dec.DecodeBytes()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return strVal(base64.StdEncoding.EncodeToString(b)), nil
	case c == 0xc7, c == 0xc8, c == 0xc9, // ext8/16/32
		c >= 0xd4 && c <= 0xd8: // fixext 1/2/4/8/16
		return decodeOrderedExt(dec, br)
	case c == 0xc0: // nil
		if err := dec.DecodeNil(); err != nil {
			return nil, wrapDecodeErr(err)
		}
		return &OrderedValue{Kind: KindNull}, nil
	case c == 0xc2, c == 0xc3: // false, true
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return &OrderedValue{Kind: KindBool, Bool: b}, nil
	case c == 0xca: // float32
		f, err := dec.DecodeFloat32()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return floatVal(float64(f))
	case c == 0xcb: // float64
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
		return floatVal(f)
	}
	return nil, apperror.New(apperror.KindCryptoError, "msgpack: unknown type code 0x%02x", c)
}

// decodeOrderedExt reads an extension value's header through the decoder,
// then its raw payload straight off br, and renders it as base64 — the
// extension type id isn't surfaced anywhere downstream, so it's discarded.
func decodeOrderedExt(dec *msgpack.Decoder, br *bytes.Reader) (*OrderedValue, error) {
	_, extLen, err := dec.DecodeExtHeader()
	if err != nil {
		return nil, wrapDecodeErr(err)
	}
	buf := make([]byte, extLen)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, wrapDecodeErr(err)
	}
	return strVal(base64.StdEncoding.EncodeToString(buf)), nil
}

func decodeOrderedArray(dec *msgpack.Decoder, br *bytes.Reader, n int) (*OrderedValue, error) {
	arr := make([]*OrderedValue, 0, n)
	for i := 0; i < n; i++ {
		v, err := decodeOrderedValue(dec, br)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return &OrderedValue{Kind: KindArray, Array: arr}, nil
}

func decodeOrderedMap(dec *msgpack.Decoder, br *bytes.Reader, n int) (*OrderedValue, error) {
	om := orderedmap.New[string, *OrderedValue](n)
	for i := 0; i < n; i++ {
		k, err := decodeOrderedValue(dec, br)
		if err != nil {
			return nil, err
		}
		v, err := decodeOrderedValue(dec, br)
		if err != nil {
			return nil, err
		}
		var key string
		switch k.Kind {
		case KindString:
			key = k.Str
		case KindInt:
			key = strconv.FormatInt(k.Int, 10)
		default:
			continue // non-string/int keys are dropped, matching the Rust reference
		}
		om.Set(key, v)
	}
	return &OrderedValue{Kind: KindObject, Object: om}, nil
}
