package deeppatch

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// AppendToken addresses the position just past the last element of an array
const AppendToken = "-"

// Pointer addresses a location within a tree of values as a sequence of
// tokens. The textual form conforms to the IETF JSON-pointer specification,
// outlined in RFC 6901: https://tools.ietf.org/html/rfc6901
//
// Pointers are immutable. The zero value addresses the root
type Pointer struct {
	tokens []string
}

// NewPointer creates a pointer from unescaped tokens
func NewPointer(tokens ...string) Pointer {
	if len(tokens) == 0 {
		return Pointer{}
	}
	return Pointer{tokens: append([]string(nil), tokens...)}
}

// ParsePointer parses the textual form of a pointer. the empty string is the
// root pointer, any other pointer must start with "/"
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if s[0] != '/' {
		return Pointer{}, fmt.Errorf("%w: %q must start with '/'", ErrInvalidPointer, s)
	}
	parts := strings.Split(s[1:], "/")
	for i, part := range parts {
		parts[i] = unescapeToken(part)
	}
	return Pointer{tokens: parts}, nil
}

// MustParsePointer is ParsePointer that panics on error, for use with
// constant paths
func MustParsePointer(s string) Pointer {
	p, err := ParsePointer(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PointerFrom coerces a Pointer, *Pointer, textual path, byte-encoded path or
// token slice into a Pointer
func PointerFrom(v interface{}) (Pointer, error) {
	switch x := v.(type) {
	case Pointer:
		return x, nil
	case *Pointer:
		if x == nil {
			return Pointer{}, fmt.Errorf("%w: nil pointer", ErrInvalidPointer)
		}
		return *x, nil
	case string:
		return ParsePointer(x)
	case []byte:
		return ParsePointer(string(x))
	case []string:
		return NewPointer(x...), nil
	default:
		return Pointer{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidPointer, v)
	}
}

func escapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

func unescapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	return strings.ReplaceAll(tok, "~0", "~")
}

// Extend returns a new pointer with token appended
func (p Pointer) Extend(token string) Pointer {
	tokens := make([]string, len(p.tokens)+1)
	copy(tokens, p.tokens)
	tokens[len(p.tokens)] = token
	return Pointer{tokens: tokens}
}

// ExtendIndex appends an array index. negative indexes extend with the
// append token
func (p Pointer) ExtendIndex(i int) Pointer {
	if i < 0 {
		return p.Extend(AppendToken)
	}
	return p.Extend(strconv.Itoa(i))
}

// Tokens returns a copy of the unescaped tokens
func (p Pointer) Tokens() []string {
	return append([]string(nil), p.tokens...)
}

// Len is the number of tokens
func (p Pointer) Len() int { return len(p.tokens) }

// IsRoot is true for the empty pointer
func (p Pointer) IsRoot() bool { return len(p.tokens) == 0 }

// Leaf returns the last token, "" for the root
func (p Pointer) Leaf() string {
	if len(p.tokens) == 0 {
		return ""
	}
	return p.tokens[len(p.tokens)-1]
}

// Parent drops the last token. the parent of the root is the root
func (p Pointer) Parent() Pointer {
	if len(p.tokens) == 0 {
		return p
	}
	return Pointer{tokens: p.tokens[:len(p.tokens)-1:len(p.tokens)-1]}
}

func (p Pointer) prefix(n int) Pointer {
	return Pointer{tokens: p.tokens[:n:n]}
}

// String returns the escaped textual form
func (p Pointer) String() string {
	if len(p.tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range p.tokens {
		b.WriteByte('/')
		b.WriteString(escapeToken(tok))
	}
	return b.String()
}

// Bytes returns the textual form as bytes
func (p Pointer) Bytes() []byte { return []byte(p.String()) }

// Equal compares token sequences. other may be anything PointerFrom accepts
func (p Pointer) Equal(other interface{}) bool {
	o, err := PointerFrom(other)
	if err != nil {
		return false
	}
	if len(o.tokens) != len(p.tokens) {
		return false
	}
	for i, tok := range p.tokens {
		if o.tokens[i] != tok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the pointer as a JSON string
func (p Pointer) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a pointer from a JSON string
func (p *Pointer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPointer, err)
	}
	parsed, err := ParsePointer(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (p Pointer) MarshalText() ([]byte, error) { return p.Bytes(), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Pointer) UnmarshalText(text []byte) error {
	parsed, err := ParsePointer(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Get resolves the pointer against root, returning Absent if any step along
// the path is missing
func (p Pointer) Get(root interface{}) interface{} {
	cur := root
	for _, tok := range p.tokens {
		cur = child(cur, tok)
		if IsAbsent(cur) {
			return Absent
		}
	}
	return cur
}

// Has reports whether the pointer resolves against root
func (p Pointer) Has(root interface{}) bool {
	return !IsAbsent(p.Get(root))
}

// Set replaces the value at the addressed location, returning the new root.
// Setting the root pointer replaces the whole tree. Maps, slices and pointers
// to structs along the path are modified in place, always use the returned
// root
func (p Pointer) Set(root, value interface{}) (interface{}, error) {
	if p.IsRoot() {
		return value, nil
	}
	return p.update(root, 0, func(container interface{}, tok string, at Pointer) (interface{}, error) {
		return setChild(container, tok, value, at)
	})
}

// Push is Set, except array targets get an insertion that shifts subsequent
// elements rather than an overwrite. The append token appends
func (p Pointer) Push(root, value interface{}) (interface{}, error) {
	if p.IsRoot() {
		return value, nil
	}
	return p.update(root, 0, func(container interface{}, tok string, at Pointer) (interface{}, error) {
		return insertChild(container, tok, value, at)
	})
}

// Delete removes the addressed entry. array elements are removed, shifting
// subsequent elements, the append token removes the last element. struct
// fields are reset to their zero value. Deleting the root yields Absent
func (p Pointer) Delete(root interface{}) (interface{}, error) {
	if p.IsRoot() {
		return Absent, nil
	}
	return p.update(root, 0, deleteChild)
}

type leafFunc func(container interface{}, tok string, at Pointer) (interface{}, error)

// update walks to the parent of the addressed location, applies leaf, then
// stores each updated child back into its parent on the way out
func (p Pointer) update(cur interface{}, depth int, leaf leafFunc) (interface{}, error) {
	at := p.prefix(depth + 1)
	tok := p.tokens[depth]
	if depth == len(p.tokens)-1 {
		return leaf(cur, tok, at)
	}

	next := child(cur, tok)
	if IsAbsent(next) {
		return nil, missingTarget(at, "no value to descend into")
	}
	updated, err := p.update(next, depth+1, leaf)
	if err != nil {
		return nil, err
	}
	return setChild(cur, tok, updated, at)
}

// child reads one step down the tree
func child(container interface{}, tok string) interface{} {
	kind, rv := classify(container)
	switch kind {
	case KindArray, KindBytes, KindBuffer, KindFixedArray:
		i, ok := index(tok)
		if !ok || i >= rv.Len() {
			return Absent
		}
		return interfaceOf(rv.Index(i))
	case KindMap, KindSet:
		key, ok := findMapKey(rv, tok)
		if !ok {
			return Absent
		}
		if kind == KindSet {
			return interfaceOf(key)
		}
		return interfaceOf(rv.MapIndex(key))
	case KindObject:
		sv := structOf(rv)
		i, ok := fieldByName(sv.Type(), tok)
		if !ok {
			return Absent
		}
		return interfaceOf(sv.Field(i))
	case KindBoxed:
		return child(rv.Elem().Interface(), tok)
	}
	return Absent
}

func setChild(container interface{}, tok string, value interface{}, at Pointer) (interface{}, error) {
	kind, rv := classify(container)
	switch kind {
	case KindArray, KindBytes:
		elem, err := convertValue(value, rv.Type().Elem(), at)
		if err != nil {
			return nil, err
		}
		if tok == AppendToken {
			return reflect.Append(rv, elem).Interface(), nil
		}
		i, ok := index(tok)
		if !ok || i >= rv.Len() {
			return nil, missingTarget(at, "index out of range for length %d", rv.Len())
		}
		rv.Index(i).Set(elem)
		return container, nil
	case KindBuffer, KindFixedArray:
		i, ok := index(tok)
		if !ok || i >= rv.Len() {
			return nil, missingTarget(at, "index out of range for length %d", rv.Len())
		}
		elem, err := convertValue(value, rv.Type().Elem(), at)
		if err != nil {
			return nil, err
		}
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		cp.Index(i).Set(elem)
		return cp.Interface(), nil
	case KindMap, KindSet:
		key, ok := findMapKey(rv, tok)
		if !ok {
			if key, ok = mapKey(rv.Type().Key(), tok); !ok {
				return nil, incompatible(at, "token is not a valid %s key", rv.Type().Key())
			}
		}
		elem := reflect.Zero(rv.Type().Elem())
		if kind == KindMap {
			var err error
			if elem, err = convertValue(value, rv.Type().Elem(), at); err != nil {
				return nil, err
			}
		}
		if rv.IsNil() {
			rv = reflect.MakeMap(rv.Type())
		}
		rv.SetMapIndex(key, elem)
		return rv.Interface(), nil
	case KindObject:
		sv := structOf(rv)
		i, ok := fieldByName(sv.Type(), tok)
		if !ok {
			return nil, missingTarget(at, "%s has no field %q", sv.Type(), tok)
		}
		fv, err := convertValue(value, sv.Type().Field(i).Type, at)
		if err != nil {
			return nil, err
		}
		if rv.Kind() == reflect.Ptr {
			sv.Field(i).Set(fv)
			return container, nil
		}
		cp := reflect.New(sv.Type()).Elem()
		cp.Set(sv)
		cp.Field(i).Set(fv)
		return cp.Interface(), nil
	case KindBoxed:
		return boxed(rv, tok, value, at, setChild)
	}
	return nil, missingTarget(at, "cannot address into %s", kind)
}

func insertChild(container interface{}, tok string, value interface{}, at Pointer) (interface{}, error) {
	kind, rv := classify(container)
	switch kind {
	case KindArray, KindBytes:
		elem, err := convertValue(value, rv.Type().Elem(), at)
		if err != nil {
			return nil, err
		}
		l := rv.Len()
		i := l
		if tok != AppendToken {
			var ok bool
			if i, ok = index(tok); !ok || i > l {
				return nil, missingTarget(at, "index out of range for length %d", l)
			}
		}
		// build a fresh slice, reflect.Append on a sub-slice would overwrite
		// elements of the original backing array
		out := reflect.MakeSlice(rv.Type(), 0, l+1)
		out = reflect.AppendSlice(out, rv.Slice(0, i))
		out = reflect.Append(out, elem)
		out = reflect.AppendSlice(out, rv.Slice(i, l))
		return out.Interface(), nil
	case KindBuffer, KindFixedArray:
		return nil, incompatible(at, "cannot insert into fixed length %s", rv.Type())
	case KindBoxed:
		return boxed(rv, tok, value, at, insertChild)
	}
	return setChild(container, tok, value, at)
}

func deleteChild(container interface{}, tok string, at Pointer) (interface{}, error) {
	kind, rv := classify(container)
	switch kind {
	case KindArray, KindBytes:
		l := rv.Len()
		i := l - 1
		if tok != AppendToken {
			var ok bool
			if i, ok = index(tok); !ok {
				i = l
			}
		}
		if i < 0 || i >= l {
			return nil, missingTarget(at, "index out of range for length %d", l)
		}
		out := reflect.MakeSlice(rv.Type(), 0, l-1)
		out = reflect.AppendSlice(out, rv.Slice(0, i))
		out = reflect.AppendSlice(out, rv.Slice(i+1, l))
		return out.Interface(), nil
	case KindBuffer, KindFixedArray:
		return nil, incompatible(at, "cannot remove from fixed length %s", rv.Type())
	case KindMap, KindSet:
		key, ok := findMapKey(rv, tok)
		if !ok {
			return nil, missingTarget(at, "no such key")
		}
		rv.SetMapIndex(key, reflect.Value{})
		return container, nil
	case KindObject:
		sv := structOf(rv)
		i, ok := fieldByName(sv.Type(), tok)
		if !ok {
			return nil, missingTarget(at, "%s has no field %q", sv.Type(), tok)
		}
		zero := reflect.Zero(sv.Type().Field(i).Type)
		if rv.Kind() == reflect.Ptr {
			sv.Field(i).Set(zero)
			return container, nil
		}
		cp := reflect.New(sv.Type()).Elem()
		cp.Set(sv)
		cp.Field(i).Set(zero)
		return cp.Interface(), nil
	case KindBoxed:
		updated, err := deleteChild(rv.Elem().Interface(), tok, at)
		if err != nil {
			return nil, err
		}
		return storeBoxed(rv, updated, at)
	}
	return nil, missingTarget(at, "cannot address into %s", kind)
}

// boxed applies a child mutation to the value a pointer points at
func boxed(rv reflect.Value, tok string, value interface{}, at Pointer, fn func(interface{}, string, interface{}, Pointer) (interface{}, error)) (interface{}, error) {
	updated, err := fn(rv.Elem().Interface(), tok, value, at)
	if err != nil {
		return nil, err
	}
	return storeBoxed(rv, updated, at)
}

func storeBoxed(rv reflect.Value, updated interface{}, at Pointer) (interface{}, error) {
	ev, err := convertValue(updated, rv.Type().Elem(), at)
	if err != nil {
		return nil, err
	}
	rv.Elem().Set(ev)
	return rv.Interface(), nil
}

// index parses an array index token. leading zeros are not allowed
func index(tok string) (int, bool) {
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(tok)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// keyToken renders a map key as a pointer token
func keyToken(key reflect.Value) string {
	k := interfaceOf(key)
	if s, ok := k.(string); ok {
		return s
	}
	if key.Kind() == reflect.String {
		return key.String()
	}
	return fmt.Sprint(k)
}

// findMapKey locates the existing key a token names
func findMapKey(rv reflect.Value, tok string) (reflect.Value, bool) {
	if rv.IsNil() {
		return reflect.Value{}, false
	}
	if key, ok := mapKey(rv.Type().Key(), tok); ok && rv.MapIndex(key).IsValid() {
		return key, true
	}
	iter := rv.MapRange()
	for iter.Next() {
		if keyToken(iter.Key()) == tok {
			return iter.Key(), true
		}
	}
	return reflect.Value{}, false
}

// mapKey converts a token to a key of type t
func mapKey(t reflect.Type, tok string) (reflect.Value, bool) {
	key := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		key.SetString(tok)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(tok, 10, t.Bits())
		if err != nil {
			return key, false
		}
		key.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(tok, 10, t.Bits())
		if err != nil {
			return key, false
		}
		key.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(tok, t.Bits())
		if err != nil {
			return key, false
		}
		key.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(tok)
		if err != nil {
			return key, false
		}
		key.SetBool(b)
	case reflect.Interface:
		if !reflect.TypeOf(tok).Implements(t) {
			return key, false
		}
		key.Set(reflect.ValueOf(tok))
	default:
		return key, false
	}
	return key, true
}

// convertValue prepares v for storage in a slot of type t. JSON-shaped values
// are converted into typed slices, maps and structs where they fit
func convertValue(v interface{}, t reflect.Type, at Pointer) (reflect.Value, error) {
	if IsAbsent(v) {
		if t.Kind() == reflect.Interface && reflect.TypeOf(v).Implements(t) {
			return reflect.ValueOf(v), nil
		}
		return reflect.Zero(t), nil
	}
	if v == nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, incompatible(at, "cannot store null in %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch {
	case isNumericKind(rv.Kind()) && isNumericKind(t.Kind()):
		cv := rv.Convert(t)
		if !numberEqual(rv, cv) {
			return reflect.Value{}, incompatible(at, "%v overflows %s", v, t)
		}
		return cv, nil
	case rv.Kind() == reflect.String && t.Kind() == reflect.String,
		rv.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return rv.Convert(t), nil
	case rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := convertValue(interfaceOf(rv.Index(i)), t.Elem(), at.ExtendIndex(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			tok := keyToken(iter.Key())
			key, ok := mapKey(t.Key(), tok)
			if !ok {
				return reflect.Value{}, incompatible(at, "%q is not a valid %s key", tok, t.Key())
			}
			ev, err := convertValue(interfaceOf(iter.Value()), t.Elem(), at.Extend(tok))
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(key, ev)
		}
		return out, nil
	case rv.Kind() == reflect.Map && (t.Kind() == reflect.Struct || (t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct)):
		st := t
		if t.Kind() == reflect.Ptr {
			st = t.Elem()
		}
		out := reflect.New(st)
		iter := rv.MapRange()
		for iter.Next() {
			tok := keyToken(iter.Key())
			i, ok := fieldByName(st, tok)
			if !ok {
				return reflect.Value{}, incompatible(at, "%s has no field %q", st, tok)
			}
			fv, err := convertValue(interfaceOf(iter.Value()), st.Field(i).Type, at.Extend(tok))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Elem().Field(i).Set(fv)
		}
		if t.Kind() == reflect.Ptr {
			return out, nil
		}
		return out.Elem(), nil
	case t.Kind() == reflect.Ptr && rv.Type().AssignableTo(t.Elem()):
		out := reflect.New(t.Elem())
		out.Elem().Set(rv)
		return out, nil
	}

	return reflect.Value{}, incompatible(at, "cannot store %T in %s", v, t)
}
