package deeppatch

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BSONCodec is the default document codec. BSON documents carry their length
// as the first 4 bytes, so encoded operations frame themselves. Absent is
// stored as the BSON undefined value, patterns as BSON regular expressions
type BSONCodec struct{}

// EncodeDocument implements the DocumentCodec interface
func (BSONCodec) EncodeDocument(fields []interface{}) ([]byte, error) {
	doc := make(bson.D, len(fields))
	for i, f := range fields {
		v, err := toBSON(f)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		doc[i] = bson.E{Key: strconv.Itoa(i), Value: v}
	}
	return bson.Marshal(doc)
}

// DecodeDocument implements the DocumentCodec interface. document keys must
// run "0", "1", ... in order
func (BSONCodec) DecodeDocument(data []byte) ([]interface{}, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	fields := make([]interface{}, len(doc))
	for i, e := range doc {
		if e.Key != strconv.Itoa(i) {
			return nil, fmt.Errorf("expected key %q at position %d, got %q", strconv.Itoa(i), i, e.Key)
		}
		v, err := fromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = v
	}
	return fields, nil
}

func toBSON(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case absent:
		return primitive.Undefined{}, nil
	case *regexp.Regexp:
		return primitive.Regex{Pattern: x.String()}, nil
	case uint:
		return uintToBSON(uint64(x))
	case uint64:
		return uintToBSON(x)
	case []interface{}:
		arr := make(bson.A, len(x))
		for i, el := range x {
			v, err := toBSON(el)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := make(bson.D, len(keys))
		for i, k := range keys {
			v, err := toBSON(x[k])
			if err != nil {
				return nil, err
			}
			doc[i] = bson.E{Key: k, Value: v}
		}
		return doc, nil
	}
	return v, nil
}

func uintToBSON(u uint64) (interface{}, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%d overflows a BSON int64", u)
	}
	return int64(u), nil
}

func fromBSON(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case primitive.Undefined:
		return Absent, nil
	case primitive.Null:
		return nil, nil
	case primitive.Regex:
		return compile(x.Pattern)
	case primitive.DateTime:
		return x.Time(), nil
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0), nil
	case primitive.Binary:
		return x.Data, nil
	case primitive.A:
		arr := make([]interface{}, len(x))
		for i, el := range x {
			v, err := fromBSON(el)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case primitive.D:
		m := make(map[string]interface{}, len(x))
		for _, e := range x {
			v, err := fromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			m[e.Key] = v
		}
		return m, nil
	case primitive.M:
		m := make(map[string]interface{}, len(x))
		for k, el := range x {
			v, err := fromBSON(el)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	}
	return v, nil
}
