package deeppatch

import (
	"math"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Kind defines all of the shapes of value in our universe, or the types of
// data we will encounter while comparing, cloning & diffing
type Kind uint8

const (
	// KindOther is anything not listed below: channels, unsafe pointers.
	// compared by identity, cloned as-is
	KindOther Kind = iota
	// KindAbsent is the Absent sentinel
	KindAbsent
	// KindNull is an untyped nil, or any nil pointer, func or channel
	KindNull
	KindBool
	// KindNumber covers every integer & float kind, compared by numeric value
	KindNumber
	KindComplex
	KindString
	// KindSymbol is a *Symbol, compared by identity
	KindSymbol
	// KindFunc is a non-nil func, compared by code pointer
	KindFunc
	// KindBoxed is a pointer to anything that is not a struct
	KindBoxed
	// KindError is any non-nil value implementing error, compared by message
	KindError
	// KindDate is a time.Time
	KindDate
	// KindPattern is a *regexp.Regexp, compared by source text
	KindPattern
	// KindBuffer is a Go array of a numeric element type, eg. [16]byte
	KindBuffer
	// KindBytes is a byte slice
	KindBytes
	// KindFixedArray is a Go array of a non-numeric element type
	KindFixedArray
	// KindArray is any slice that is not a byte slice
	KindArray
	// KindSet is a map with an empty struct value type
	KindSet
	// KindMap is any other map
	KindMap
	// KindObject is a struct or a pointer to a struct. keys are exported
	// fields, named by their json tag if present
	KindObject
)

var kindNames = [...]string{
	KindOther:      "other",
	KindAbsent:     "absent",
	KindNull:       "null",
	KindBool:       "bool",
	KindNumber:     "number",
	KindComplex:    "complex",
	KindString:     "string",
	KindSymbol:     "symbol",
	KindFunc:       "func",
	KindBoxed:      "boxed",
	KindError:      "error",
	KindDate:       "date",
	KindPattern:    "pattern",
	KindBuffer:     "buffer",
	KindBytes:      "bytes",
	KindFixedArray: "fixedArray",
	KindArray:      "array",
	KindSet:        "set",
	KindMap:        "map",
	KindObject:     "object",
}

// String implements the stringer interface
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsPrimitive reports whether values of this kind are compared & cloned as
// plain values
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindBool, KindNumber, KindComplex, KindString, KindSymbol, KindFunc, KindError:
		return true
	}
	return false
}

// IsWrapper reports whether values of this kind wrap a single primitive or a
// fixed run of bytes
func (k Kind) IsWrapper() bool {
	switch k {
	case KindBoxed, KindDate, KindPattern, KindBuffer, KindBytes, KindFixedArray:
		return true
	}
	return false
}

type absent struct{}

func (absent) String() string { return "<absent>" }

// MarshalJSON encodes absent values as null
func (absent) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Absent marks a missing value. It is distinct from nil, which is an explicit
// null. Pointer.Get returns Absent for paths that don't resolve
var Absent interface{} = absent{}

// IsAbsent reports whether v is the Absent sentinel
func IsAbsent(v interface{}) bool {
	_, ok := v.(absent)
	return ok
}

// Symbol is a unique token, equal only to itself
type Symbol struct {
	desc string
}

// NewSymbol creates a new unique symbol
func NewSymbol(description string) *Symbol {
	return &Symbol{desc: description}
}

// Description returns the label this symbol was created with
func (s *Symbol) Description() string { return s.desc }

func (s *Symbol) String() string { return "Symbol(" + s.desc + ")" }

// Equaler is implemented by values with their own notion of equality
type Equaler interface {
	Equal(other interface{}) bool
}

// AsymmetricMatcher is implemented by matchers that accept a range of values,
// checked from either side of an equality comparison
type AsymmetricMatcher interface {
	AsymmetricMatch(other interface{}) bool
}

// Cloner is implemented by values that know how to copy themselves
type Cloner interface {
	Clone() interface{}
}

// Differ is implemented by values that produce their own patch against an
// output value, rooted at ptr
type Differ interface {
	Diff(output interface{}, ptr Pointer) (Patch, error)
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	emptyType = reflect.TypeOf(struct{}{})
)

// KindOf returns the kind of v
func KindOf(v interface{}) Kind {
	k, _ := classify(v)
	return k
}

// node is a value paired with its kind & reflected form, classified once per
// visit
type node struct {
	v    interface{}
	kind Kind
	rv   reflect.Value
}

func nodeOf(v interface{}) node {
	k, rv := classify(v)
	return node{v: v, kind: k, rv: rv}
}

// classify returns the kind of v alongside its reflected value. the reflected
// value is invalid for absent & null
func classify(v interface{}) (Kind, reflect.Value) {
	switch x := v.(type) {
	case nil:
		return KindNull, reflect.Value{}
	case absent:
		return KindAbsent, reflect.Value{}
	case *Symbol:
		if x == nil {
			return KindNull, reflect.Value{}
		}
		return KindSymbol, reflect.ValueOf(v)
	case *regexp.Regexp:
		if x == nil {
			return KindNull, reflect.Value{}
		}
		return KindPattern, reflect.ValueOf(v)
	case time.Time:
		return KindDate, reflect.ValueOf(v)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			return KindNull, reflect.Value{}
		}
	}

	if rv.Type().Implements(errorType) {
		return KindError, rv
	}

	switch rv.Kind() {
	case reflect.Bool:
		return KindBool, rv
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return KindNumber, rv
	case reflect.Complex64, reflect.Complex128:
		return KindComplex, rv
	case reflect.String:
		return KindString, rv
	case reflect.Func:
		return KindFunc, rv
	case reflect.Ptr:
		if rv.Elem().Kind() == reflect.Struct && rv.Type().Elem() != timeType {
			return KindObject, rv
		}
		return KindBoxed, rv
	case reflect.Array:
		if isNumericKind(rv.Type().Elem().Kind()) {
			return KindBuffer, rv
		}
		return KindFixedArray, rv
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return KindBytes, rv
		}
		return KindArray, rv
	case reflect.Map:
		if rv.Type().Elem() == emptyType {
			return KindSet, rv
		}
		return KindMap, rv
	case reflect.Struct:
		return KindObject, rv
	}
	return KindOther, rv
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// numberEqual compares two numeric values across widths. NaN equals NaN, and
// negative zero is distinct from positive zero
func numberEqual(a, b reflect.Value) bool {
	af, aIsFloat := floatOf(a)
	bf, bIsFloat := floatOf(b)
	if aIsFloat || bIsFloat {
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		if af == 0 && bf == 0 {
			return math.Signbit(af) == math.Signbit(bf)
		}
		if aIsFloat && bIsFloat {
			return af == bf
		}
		// a float equals an integer only when it holds that integer exactly
		if aIsFloat {
			return af == bf && integerEqualsFloat(b, af)
		}
		return af == bf && integerEqualsFloat(a, bf)
	}

	switch {
	case isSigned(a) && isSigned(b):
		return a.Int() == b.Int()
	case !isSigned(a) && !isSigned(b):
		return a.Uint() == b.Uint()
	case isSigned(a):
		return a.Int() >= 0 && uint64(a.Int()) == b.Uint()
	default:
		return b.Int() >= 0 && uint64(b.Int()) == a.Uint()
	}
}

func floatOf(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), false
	default:
		return float64(rv.Uint()), false
	}
}

func isSigned(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func integerEqualsFloat(i reflect.Value, f float64) bool {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return false
	}
	if isSigned(i) {
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return false
		}
		return int64(f) == i.Int()
	}
	if f < 0 || f >= math.MaxUint64 {
		return false
	}
	return uint64(f) == i.Uint()
}

// identity keys a reference value for cycle detection. slices include their
// length since two slices may share a backing array
type identity struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// identityOf returns the identity of a reference value. ok is false for plain
// values & nil references, which can't form cycles
func identityOf(rv reflect.Value) (id identity, ok bool) {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map:
		if rv.IsNil() {
			return id, false
		}
		return identity{ptr: rv.Pointer(), typ: rv.Type()}, true
	case reflect.Slice:
		if rv.Pointer() == 0 {
			return id, false
		}
		return identity{ptr: rv.Pointer(), len: rv.Len(), typ: rv.Type()}, true
	}
	return id, false
}

type field struct {
	name  string
	index int
}

var fieldCache sync.Map // map[reflect.Type][]field

// fieldsOf lists the exported fields of a struct type, in declaration order
func fieldsOf(t reflect.Type) []field {
	if fs, ok := fieldCache.Load(t); ok {
		return fs.([]field)
	}

	var fs []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			if n := strings.Split(tag, ",")[0]; n != "" {
				name = n
			}
		}
		fs = append(fs, field{name: name, index: i})
	}

	fieldCache.Store(t, fs)
	return fs
}

// fieldByName finds the index of the struct field a token names
func fieldByName(t reflect.Type, name string) (int, bool) {
	for _, f := range fieldsOf(t) {
		if f.name == name {
			return f.index, true
		}
	}
	return -1, false
}

// structOf dereferences pointers to structs
func structOf(rv reflect.Value) reflect.Value {
	if rv.Kind() == reflect.Ptr {
		return rv.Elem()
	}
	return rv
}

// interfaceOf returns a reflected value as an interface, mapping invalid
// values to nil
func interfaceOf(rv reflect.Value) interface{} {
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
