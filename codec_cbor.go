package deeppatch

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

const (
	// tag registered for regular expressions in RFC 8949
	cborTagRegexp = 35
	// private-use tag marking the Absent sentinel
	cborTagAbsent = 0x6465_6570
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	encOpts.TimeTag = cbor.EncTagRequired

	var err error
	if cborEnc, err = encOpts.EncMode(); err != nil {
		panic(err)
	}
	decOpts := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}{}),
	}
	if cborDec, err = decOpts.DecMode(); err != nil {
		panic(err)
	}
}

// CBORCodec encodes operation documents as deterministic CBOR maps keyed by
// position. CBOR items don't carry their length, so each document is prefixed
// with a 4-byte little-endian total length
type CBORCodec struct{}

// EncodeDocument implements the DocumentCodec interface
func (CBORCodec) EncodeDocument(fields []interface{}) ([]byte, error) {
	doc := make(map[string]interface{}, len(fields))
	for i, f := range fields {
		doc[strconv.Itoa(i)] = toCBOR(f)
	}
	body, err := cborEnc.Marshal(doc)
	if err != nil {
		return nil, err
	}

	data := make([]byte, lengthPrefix, lengthPrefix+len(body))
	binary.LittleEndian.PutUint32(data, uint32(lengthPrefix+len(body)))
	return append(data, body...), nil
}

// DecodeDocument implements the DocumentCodec interface
func (CBORCodec) DecodeDocument(data []byte) ([]interface{}, error) {
	if len(data) < lengthPrefix || int(binary.LittleEndian.Uint32(data)) != len(data) {
		return nil, fmt.Errorf("document length header doesn't match %d bytes", len(data))
	}
	var doc map[string]interface{}
	if err := cborDec.Unmarshal(data[lengthPrefix:], &doc); err != nil {
		return nil, err
	}

	fields := make([]interface{}, len(doc))
	for i := range fields {
		v, ok := doc[strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("missing key %q", strconv.Itoa(i))
		}
		f, err := fromCBOR(v)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = f
	}
	return fields, nil
}

func toCBOR(v interface{}) interface{} {
	switch x := v.(type) {
	case absent:
		return cbor.Tag{Number: cborTagAbsent, Content: nil}
	case *regexp.Regexp:
		return cbor.Tag{Number: cborTagRegexp, Content: x.String()}
	case []interface{}:
		arr := make([]interface{}, len(x))
		for i, el := range x {
			arr[i] = toCBOR(el)
		}
		return arr
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, el := range x {
			m[k] = toCBOR(el)
		}
		return m
	}
	return v
}

func fromCBOR(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case cbor.Tag:
		switch x.Number {
		case cborTagAbsent:
			return Absent, nil
		case cborTagRegexp:
			s, ok := x.Content.(string)
			if !ok {
				return nil, fmt.Errorf("pattern tag holds %T, not a string", x.Content)
			}
			return compile(s)
		}
		return nil, fmt.Errorf("unsupported tag %d", x.Number)
	case []interface{}:
		arr := make([]interface{}, len(x))
		for i, el := range x {
			f, err := fromCBOR(el)
			if err != nil {
				return nil, err
			}
			arr[i] = f
		}
		return arr, nil
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, el := range x {
			f, err := fromCBOR(el)
			if err != nil {
				return nil, err
			}
			m[k] = f
		}
		return m, nil
	}
	return v, nil
}
