package deeppatch

import (
	"bytes"
	"reflect"
	"regexp"
	"time"
)

// Equal reports whether a and b are structurally equal. Comparison runs an
// ordered chain of handlers, each of which may decline in favour of the next:
// custom capabilities (Equaler, AsymmetricMatcher), primitives, wrappers,
// arrays, sets, maps, then objects. Values no handler claims are unequal.
//
// Equal is safe on cyclic values
func Equal(a, b interface{}, opts ...Option) bool {
	return newEquality(newConfig(opts)).equal(a, b)
}

// equality holds the per-call state of a deep comparison
type equality struct {
	cfg *Config
	// identities of the references currently being compared, paired by index
	aSeen, bSeen []identity
}

func newEquality(cfg *Config) *equality {
	return &equality{cfg: cfg}
}

// eqHandler compares a & b, returning ok = false to decline
type eqHandler func(e *equality, a, b node) (equal, ok bool)

var eqHandlers []eqHandler

func init() {
	eqHandlers = []eqHandler{
		(*equality).eqCustom,
		(*equality).eqPrimitive,
		(*equality).eqWrapper,
		(*equality).eqArray,
		(*equality).eqSet,
		(*equality).eqMap,
		(*equality).eqObject,
	}
}

func (e *equality) equal(a, b interface{}) bool {
	an, bn := nodeOf(a), nodeOf(b)
	if sameReference(an, bn) {
		return true
	}

	if eq, ok := eqNullable(an, bn); ok {
		return eq
	}

	if e.cfg.Equal != nil {
		if eq, ok := e.cfg.Equal(a, b); ok {
			return eq
		}
	}

	for _, h := range eqHandlers {
		if eq, ok := h(e, an, bn); ok {
			return eq
		}
	}
	return false
}

// sameReference is true when a & b are the same reference
func sameReference(a, b node) bool {
	if a.kind != b.kind {
		return false
	}
	ida, aok := identityOf(a.rv)
	idb, bok := identityOf(b.rv)
	return aok && bok && ida == idb
}

// eqNullable settles any comparison involving Absent or null
func eqNullable(a, b node) (equal, ok bool) {
	aNullish := a.kind == KindAbsent || a.kind == KindNull
	bNullish := b.kind == KindAbsent || b.kind == KindNull
	if !aNullish && !bNullish {
		return false, false
	}
	return a.kind == b.kind, true
}

func (e *equality) eqCustom(a, b node) (bool, bool) {
	if eq, ok := a.v.(Equaler); ok {
		return eq.Equal(b.v), true
	}

	am, aok := a.v.(AsymmetricMatcher)
	if aok && am.AsymmetricMatch(b.v) {
		return true, true
	}
	bm, bok := b.v.(AsymmetricMatcher)
	if bok && bm.AsymmetricMatch(a.v) {
		return true, true
	}
	return false, aok || bok
}

func (e *equality) eqPrimitive(a, b node) (bool, bool) {
	if !a.kind.IsPrimitive() && !b.kind.IsPrimitive() {
		return false, false
	}
	if a.kind != b.kind {
		return false, true
	}

	switch a.kind {
	case KindBool:
		return a.rv.Bool() == b.rv.Bool(), true
	case KindNumber:
		return numberEqual(a.rv, b.rv), true
	case KindComplex:
		return a.rv.Complex() == b.rv.Complex(), true
	case KindString:
		return a.rv.String() == b.rv.String(), true
	case KindSymbol:
		return a.v == b.v, true
	case KindFunc:
		return a.rv.Type() == b.rv.Type() && a.rv.Pointer() == b.rv.Pointer(), true
	case KindError:
		return a.v.(error).Error() == b.v.(error).Error(), true
	}
	return false, true
}

func (e *equality) eqWrapper(a, b node) (bool, bool) {
	if !a.kind.IsWrapper() && !b.kind.IsWrapper() {
		return false, false
	}
	if a.kind != b.kind {
		return false, true
	}

	switch a.kind {
	case KindBoxed:
		return e.guard(a, b, func() bool {
			return e.equal(a.rv.Elem().Interface(), b.rv.Elem().Interface())
		}), true
	case KindDate:
		return a.v.(time.Time).Equal(b.v.(time.Time)), true
	case KindPattern:
		return a.v.(*regexp.Regexp).String() == b.v.(*regexp.Regexp).String(), true
	case KindBytes:
		return bytes.Equal(a.rv.Bytes(), b.rv.Bytes()), true
	case KindBuffer:
		if a.rv.Len() != b.rv.Len() {
			return false, true
		}
		for i := 0; i < a.rv.Len(); i++ {
			if !numberEqual(a.rv.Index(i), b.rv.Index(i)) {
				return false, true
			}
		}
		return true, true
	case KindFixedArray:
		if a.rv.Len() != b.rv.Len() {
			return false, true
		}
		for i := 0; i < a.rv.Len(); i++ {
			if !e.equal(interfaceOf(a.rv.Index(i)), interfaceOf(b.rv.Index(i))) {
				return false, true
			}
		}
		return true, true
	}
	return false, true
}

func (e *equality) eqArray(a, b node) (bool, bool) {
	if a.kind != KindArray && b.kind != KindArray {
		return false, false
	}
	if a.kind != b.kind || a.rv.Len() != b.rv.Len() {
		return false, true
	}

	return e.guard(a, b, func() bool {
		for i := 0; i < a.rv.Len(); i++ {
			if !e.equal(interfaceOf(a.rv.Index(i)), interfaceOf(b.rv.Index(i))) {
				return false
			}
		}
		return true
	}), true
}

// eqSet matches every member of a with some equal member of b. this is not a
// true multiset matching
func (e *equality) eqSet(a, b node) (bool, bool) {
	if a.kind != KindSet && b.kind != KindSet {
		return false, false
	}
	if a.kind != b.kind || a.rv.Len() != b.rv.Len() {
		return false, true
	}

	sameKeys := a.rv.Type().Key() == b.rv.Type().Key()
	iter := a.rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		if sameKeys && b.rv.MapIndex(k).IsValid() {
			continue
		}
		if !e.hasEqualKey(b.rv, interfaceOf(k)) {
			return false, true
		}
	}
	return true, true
}

func (e *equality) hasEqualKey(set reflect.Value, v interface{}) bool {
	iter := set.MapRange()
	for iter.Next() {
		if e.equal(v, interfaceOf(iter.Key())) {
			return true
		}
	}
	return false
}

func (e *equality) eqMap(a, b node) (bool, bool) {
	if a.kind != KindMap && b.kind != KindMap {
		return false, false
	}
	if a.kind != b.kind || a.rv.Len() != b.rv.Len() {
		return false, true
	}

	return e.guard(a, b, func() bool {
		iter := a.rv.MapRange()
		for iter.Next() {
			bv := mapValue(b.rv, iter.Key())
			if !e.equal(interfaceOf(iter.Value()), bv) {
				return false
			}
		}
		return true
	}), true
}

// mapValue looks up the entry in m matching key, converting between key types
// through their token form. returns Absent when there is no such entry
func mapValue(m, key reflect.Value) interface{} {
	if m.Type().Key() == key.Type() {
		if v := m.MapIndex(key); v.IsValid() {
			return interfaceOf(v)
		}
		return Absent
	}
	if k, ok := findMapKey(m, keyToken(key)); ok {
		return interfaceOf(m.MapIndex(k))
	}
	return Absent
}

// eqObject compares exported fields of structs sharing one concrete type.
// differently typed objects are declined
func (e *equality) eqObject(a, b node) (bool, bool) {
	if a.kind != KindObject || b.kind != KindObject || a.rv.Type() != b.rv.Type() {
		return false, false
	}

	return e.guard(a, b, func() bool {
		as, bs := structOf(a.rv), structOf(b.rv)
		for _, f := range fieldsOf(as.Type()) {
			if !e.equal(interfaceOf(as.Field(f.index)), interfaceOf(bs.Field(f.index))) {
				return false
			}
		}
		return true
	}), true
}

// guard runs fn with a & b on the seen stack. revisiting a reference already
// on the stack ends the recursion: the pair is equal only if both sides
// loop back to the same position
func (e *equality) guard(a, b node, fn func() bool) bool {
	ida, aok := identityOf(a.rv)
	idb, bok := identityOf(b.rv)
	if !aok || !bok {
		return fn()
	}

	for i := len(e.aSeen) - 1; i >= 0; i-- {
		if e.aSeen[i] == ida {
			return e.bSeen[i] == idb
		}
		if e.bSeen[i] == idb {
			return false
		}
	}

	e.aSeen = append(e.aSeen, ida)
	e.bSeen = append(e.bSeen, idb)
	defer func() {
		e.aSeen = e.aSeen[:len(e.aSeen)-1]
		e.bSeen = e.bSeen[:len(e.bSeen)-1]
	}()
	return fn()
}
