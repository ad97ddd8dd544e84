package deeppatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"
)

// DocumentCodec encodes the positional document of a single operation:
// field i is stored under the key "i". An encoded document must begin with
// its own total length as a 4-byte little-endian integer, binary patches are
// framed by nothing else.
//
// Fields handed to EncodeDocument hold only document values: nil, Absent,
// bool, numbers, string, time.Time, *regexp.Regexp, []byte, []interface{} &
// map[string]interface{}
type DocumentCodec interface {
	EncodeDocument(fields []interface{}) ([]byte, error)
	DecodeDocument(data []byte) ([]interface{}, error)
}

// lengthPrefix is the size of the document length header
const lengthPrefix = 4

// SerializePatch encodes each operation of p as a document & concatenates
// them. Every document is decoded again and compared to what was encoded,
// operations that don't survive the round trip fail with ErrUnserializable
func SerializePatch(p CompactPatch, codec DocumentCodec) (BinaryPatch, error) {
	if codec == nil {
		return nil, ErrCodecUnavailable
	}

	var out BinaryPatch
	for i, op := range p {
		norm, err := normalizeCompact(i, op)
		if err != nil {
			return nil, err
		}
		fields, err := opFields(norm)
		if err != nil {
			return nil, fmt.Errorf("%w: op %d: %s", ErrUnserializable, i, err)
		}

		data, err := codec.EncodeDocument(fields)
		if err != nil {
			if errors.Is(err, ErrCodecUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: op %d: %s", ErrUnserializable, i, err)
		}
		if len(data) < lengthPrefix || int(binary.LittleEndian.Uint32(data)) != len(data) {
			return nil, fmt.Errorf("%w: op %d: codec produced a document without a length header", ErrUnserializable, i)
		}

		decoded, err := codec.DecodeDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%w: op %d: %s", ErrUnserializable, i, err)
		}
		if !Equal(fields, decoded) {
			return nil, fmt.Errorf("%w: op %d %s changes when decoded", ErrUnserializable, i, norm)
		}
		out = append(out, data...)
	}
	return out, nil
}

// DeserializePatch reads a concatenation of length-prefixed documents back
// into tuple form. Malformed framing or undecodable documents fail with
// ErrInvalidPatch, decoded documents that aren't valid operations with an
// *InvalidOperationError
func DeserializePatch(data []byte, codec DocumentCodec) (CompactPatch, error) {
	raw, err := decodeDocuments(data, codec)
	if err != nil {
		return nil, err
	}
	for i, op := range raw {
		if raw[i], err = normalizeCompact(i, op); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// decodeDocuments splits data into documents & decodes each one as a tuple,
// without validating the result
func decodeDocuments(data []byte, codec DocumentCodec) (CompactPatch, error) {
	if codec == nil {
		return nil, ErrCodecUnavailable
	}

	p := CompactPatch{}
	for off := 0; off < len(data); {
		rest := data[off:]
		if len(rest) < lengthPrefix {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrInvalidPatch, len(rest), off)
		}
		l := int(binary.LittleEndian.Uint32(rest))
		if l <= lengthPrefix || l > len(rest) {
			return nil, fmt.Errorf("%w: document length %d at offset %d exceeds remaining %d bytes", ErrInvalidPatch, l, off, len(rest))
		}

		fields, err := codec.DecodeDocument(rest[:l])
		if err != nil {
			if errors.Is(err, ErrCodecUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: document at offset %d: %s", ErrInvalidPatch, off, err)
		}
		p = append(p, CompactOp(fields))
		off += l
	}
	return p, nil
}

// opFields lays out a normalized operation as document fields, pointers in
// their textual form
func opFields(op CompactOp) ([]interface{}, error) {
	fields := make([]interface{}, len(op))
	fields[0] = string(op.Type())
	for i := 1; i < len(op); i++ {
		switch x := op[i].(type) {
		case Pointer:
			fields[i] = x.String()
		default:
			v, err := documentValue(x)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
	}
	return fields, nil
}

// documentValue converts v to the codec-neutral document form. structs become
// maps of their fields, sets become arrays, boxed values are dereferenced.
// funcs, symbols, complex numbers, channels & cyclic values have no
// document form
func documentValue(v interface{}) (interface{}, error) {
	return (&docConverter{}).convert(v)
}

type docConverter struct {
	stack []identity
}

var pointerType = reflect.TypeOf(Pointer{})

func (c *docConverter) convert(v interface{}) (interface{}, error) {
	kind, rv := classify(v)
	switch kind {
	case KindAbsent:
		return Absent, nil
	case KindNull:
		return nil, nil
	case KindBool:
		return rv.Bool(), nil
	case KindNumber:
		return baseNumber(rv), nil
	case KindString:
		return rv.String(), nil
	case KindError:
		return v.(error).Error(), nil
	case KindDate:
		return v.(time.Time), nil
	case KindPattern:
		return v, nil
	case KindBytes:
		return append([]byte{}, rv.Bytes()...), nil
	case KindSymbol, KindFunc, KindComplex, KindOther:
		return nil, fmt.Errorf("%s values have no document form", kind)
	}

	if kind == KindObject && structOf(rv).Type() == pointerType {
		return structOf(rv).Interface().(Pointer).String(), nil
	}

	if id, ok := identityOf(rv); ok {
		for _, seen := range c.stack {
			if seen == id {
				return nil, fmt.Errorf("cyclic value")
			}
		}
		c.stack = append(c.stack, id)
		defer func() { c.stack = c.stack[:len(c.stack)-1] }()
	}

	switch kind {
	case KindBoxed:
		return c.convert(rv.Elem().Interface())
	case KindBuffer:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			for i := range b {
				b[i] = byte(rv.Index(i).Uint())
			}
			return b, nil
		}
		return c.elements(rv)
	case KindFixedArray, KindArray:
		return c.elements(rv)
	case KindSet:
		keys := sortedKeys(rv)
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			el, err := c.convert(interfaceOf(k))
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	case KindMap:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			el, err := c.convert(interfaceOf(iter.Value()))
			if err != nil {
				return nil, err
			}
			out[keyToken(iter.Key())] = el
		}
		return out, nil
	case KindObject:
		sv := structOf(rv)
		fs := fieldsOf(sv.Type())
		out := make(map[string]interface{}, len(fs))
		for _, f := range fs {
			el, err := c.convert(interfaceOf(sv.Field(f.index)))
			if err != nil {
				return nil, err
			}
			out[f.name] = el
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s values have no document form", kind)
}

func (c *docConverter) elements(rv reflect.Value) (interface{}, error) {
	out := make([]interface{}, rv.Len())
	for i := range out {
		el, err := c.convert(interfaceOf(rv.Index(i)))
		if err != nil {
			return nil, err
		}
		out[i] = el
	}
	return out, nil
}

// baseNumber strips named numeric types down to their predeclared type
func baseNumber(rv reflect.Value) interface{} {
	switch rv.Kind() {
	case reflect.Int:
		return int(rv.Int())
	case reflect.Int8:
		return int8(rv.Int())
	case reflect.Int16:
		return int16(rv.Int())
	case reflect.Int32:
		return int32(rv.Int())
	case reflect.Int64:
		return rv.Int()
	case reflect.Uint:
		return uint(rv.Uint())
	case reflect.Uint8:
		return uint8(rv.Uint())
	case reflect.Uint16:
		return uint16(rv.Uint())
	case reflect.Uint32:
		return uint32(rv.Uint())
	case reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32:
		return float32(rv.Float())
	default:
		return rv.Float()
	}
}

// compile restores a decoded pattern
func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("decoding pattern: %w", err)
	}
	return re, nil
}
