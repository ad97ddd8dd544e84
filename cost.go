package deeppatch

import (
	"math"
	"reflect"
	"regexp"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json writes patches & prices values. HTML characters stay unescaped so
// move operations read as ">"
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// jsonable converts v into a tree encoding/json semantics can write. values
// JSON can't represent become null, sets become arrays, and map keys become
// tokens. references revisited while converting become null
func jsonable(v interface{}) interface{} {
	return (&jsonConverter{}).convert(v)
}

type jsonMarshaler interface {
	MarshalJSON() ([]byte, error)
}

type jsonConverter struct {
	stack []identity
}

func (c *jsonConverter) convert(v interface{}) interface{} {
	if m, ok := v.(jsonMarshaler); ok && !isNilReference(v) {
		return m
	}

	kind, rv := classify(v)
	switch kind {
	case KindAbsent, KindNull, KindSymbol, KindFunc, KindComplex, KindOther:
		return nil
	case KindBool:
		return rv.Bool()
	case KindString:
		return rv.String()
	case KindNumber:
		if f, isFloat := floatOf(rv); isFloat && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil
		}
		return v
	case KindError:
		return v.(error).Error()
	case KindDate:
		return v.(time.Time)
	case KindPattern:
		return v.(*regexp.Regexp).String()
	case KindBytes:
		return rv.Bytes()
	}

	if id, ok := identityOf(rv); ok {
		for _, seen := range c.stack {
			if seen == id {
				return nil
			}
		}
		c.stack = append(c.stack, id)
		defer func() { c.stack = c.stack[:len(c.stack)-1] }()
	}

	switch kind {
	case KindBoxed:
		return c.convert(rv.Elem().Interface())
	case KindBuffer, KindFixedArray, KindArray:
		if kind == KindArray && rv.IsNil() {
			return []interface{}{}
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = c.convert(interfaceOf(rv.Index(i)))
		}
		return out
	case KindSet:
		keys := sortedKeys(rv)
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			out[i] = c.convert(interfaceOf(k))
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyToken(iter.Key())] = c.convert(interfaceOf(iter.Value()))
		}
		return out
	case KindObject:
		sv := structOf(rv)
		fs := fieldsOf(sv.Type())
		out := make(map[string]interface{}, len(fs))
		for _, f := range fs {
			out[f.name] = c.convert(interfaceOf(sv.Field(f.index)))
		}
		return out
	}
	return nil
}

func isNilReference(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// sortedKeys returns map keys ordered by their token form
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return keyToken(keys[i]) < keyToken(keys[j])
	})
	return keys
}

// marshalValue encodes v as JSON, yielding null for anything that fails
func marshalValue(v interface{}) []byte {
	data, err := json.Marshal(jsonable(v))
	if err != nil {
		return []byte("null")
	}
	return data
}

// costModel prices operations by their encoded byte length. The binary
// encoding is priced as compact: its documents carry the same fields
type costModel struct {
	verbose bool
	// encoded length of pointer strings, by array index
	paths map[int]int
	base  Pointer
}

func newCostModel(enc Encoding, base Pointer) *costModel {
	return &costModel{verbose: enc == EncodingVerbose, paths: map[int]int{}, base: base}
}

// pathLen is the encoded length of base extended by index i. negative i
// prices the base pointer itself
func (c *costModel) pathLen(i int) int {
	if l, ok := c.paths[i]; ok {
		return l
	}
	p := c.base
	if i >= 0 {
		p = p.ExtendIndex(i)
	}
	data, _ := json.Marshal(p.String())
	c.paths[i] = len(data)
	return len(data)
}

// op returns the encoded length of an operation, given the encoded length of
// its path and of its second field: a value, or a from pointer. second < 0
// means the operation has no second field
func (c *costModel) op(t OpType, path, second int) int {
	if c.verbose {
		// {"op":"add","path":P,"value":V}
		n := len(`{"op":`) + len(t.Name()) + 2 + len(`,"path":`) + path + len(`}`)
		switch {
		case t.hasFrom():
			n += len(`,"from":`) + second
		case second >= 0:
			n += len(`,"value":`) + second
		}
		return n
	}
	// ["+",P,V]
	n := len(`["+",`) + path + len(`]`)
	if second >= 0 {
		n += 1 + second
	}
	return n
}
