package deeppatch

import (
	"reflect"
)

// Clone returns an independent deep copy of v. References shared within v
// stay shared in the copy, and cycles are reproduced rather than followed
// forever. Primitives, funcs, errors, dates, patterns and unrecognized kinds
// are returned as-is
func Clone(v interface{}, opts ...Option) interface{} {
	return newCloner(newConfig(opts)).clone(v)
}

// cloner holds the per-call state of a deep copy
type cloner struct {
	cfg *Config
	// source reference identity to the copy created for it
	refs map[identity]reflect.Value
}

func newCloner(cfg *Config) *cloner {
	return &cloner{cfg: cfg, refs: map[identity]reflect.Value{}}
}

// cloneHandler copies n, returning ok = false to decline
type cloneHandler func(c *cloner, n node) (clone interface{}, ok bool)

var cloneHandlers []cloneHandler

func init() {
	cloneHandlers = []cloneHandler{
		(*cloner).clonePrimitive,
		(*cloner).cloneWrapper,
		(*cloner).cloneArray,
		(*cloner).cloneCustom,
		(*cloner).cloneSet,
		(*cloner).cloneMap,
		(*cloner).cloneObject,
	}
}

func (c *cloner) clone(v interface{}) interface{} {
	if c.cfg.Clone != nil {
		if cp, ok := c.cfg.Clone(v); ok {
			return cp
		}
	}

	n := nodeOf(v)
	for _, h := range cloneHandlers {
		if cp, ok := h(c, n); ok {
			return cp
		}
	}
	return v
}

func (c *cloner) clonePrimitive(n node) (interface{}, bool) {
	switch n.kind {
	case KindAbsent, KindNull, KindOther:
		return n.v, true
	}
	return n.v, n.kind.IsPrimitive()
}

func (c *cloner) cloneCustom(n node) (interface{}, bool) {
	if cl, ok := n.v.(Cloner); ok {
		return cl.Clone(), true
	}
	return nil, false
}

func (c *cloner) cloneWrapper(n node) (interface{}, bool) {
	switch n.kind {
	case KindDate, KindPattern, KindBuffer:
		// immutable, or already copied by value
		return n.v, true
	case KindBoxed:
		if cp, ok := c.seen(n.rv); ok {
			return cp, true
		}
		cp := reflect.New(n.rv.Type().Elem())
		c.remember(n.rv, cp)
		assign(cp.Elem(), c.clone(n.rv.Elem().Interface()), n.rv.Elem())
		return cp.Interface(), true
	case KindBytes:
		if n.rv.IsNil() {
			return n.v, true
		}
		if cp, ok := c.seen(n.rv); ok {
			return cp, true
		}
		cp := reflect.MakeSlice(n.rv.Type(), n.rv.Len(), n.rv.Len())
		reflect.Copy(cp, n.rv)
		c.remember(n.rv, cp)
		return cp.Interface(), true
	case KindFixedArray:
		cp := reflect.New(n.rv.Type()).Elem()
		for i := 0; i < n.rv.Len(); i++ {
			assign(cp.Index(i), c.clone(interfaceOf(n.rv.Index(i))), n.rv.Index(i))
		}
		return cp.Interface(), true
	}
	return nil, false
}

func (c *cloner) cloneArray(n node) (interface{}, bool) {
	if n.kind != KindArray {
		return nil, false
	}
	if n.rv.IsNil() {
		return n.v, true
	}
	if cp, ok := c.seen(n.rv); ok {
		return cp, true
	}

	cp := reflect.MakeSlice(n.rv.Type(), n.rv.Len(), n.rv.Len())
	c.remember(n.rv, cp)
	for i := 0; i < n.rv.Len(); i++ {
		el := n.rv.Index(i)
		assign(cp.Index(i), c.clone(interfaceOf(el)), el)
	}
	return cp.Interface(), true
}

// cloneSet copies set membership. members are comparable keys and are kept
// as-is
func (c *cloner) cloneSet(n node) (interface{}, bool) {
	if n.kind != KindSet {
		return nil, false
	}
	if n.rv.IsNil() {
		return n.v, true
	}
	if cp, ok := c.seen(n.rv); ok {
		return cp, true
	}

	cp := reflect.MakeMapWithSize(n.rv.Type(), n.rv.Len())
	c.remember(n.rv, cp)
	iter := n.rv.MapRange()
	for iter.Next() {
		cp.SetMapIndex(iter.Key(), iter.Value())
	}
	return cp.Interface(), true
}

func (c *cloner) cloneMap(n node) (interface{}, bool) {
	if n.kind != KindMap {
		return nil, false
	}
	if n.rv.IsNil() {
		return n.v, true
	}
	if cp, ok := c.seen(n.rv); ok {
		return cp, true
	}

	cp := reflect.MakeMapWithSize(n.rv.Type(), n.rv.Len())
	c.remember(n.rv, cp)
	et := n.rv.Type().Elem()
	iter := n.rv.MapRange()
	for iter.Next() {
		ev := reflect.New(et).Elem()
		assign(ev, c.clone(interfaceOf(iter.Value())), iter.Value())
		cp.SetMapIndex(iter.Key(), ev)
	}
	return cp.Interface(), true
}

// cloneObject copies a struct, deep copying its exported fields. unexported
// fields are copied shallowly
func (c *cloner) cloneObject(n node) (interface{}, bool) {
	if n.kind != KindObject {
		return nil, false
	}

	if n.rv.Kind() == reflect.Ptr {
		if cp, ok := c.seen(n.rv); ok {
			return cp, true
		}
		cp := reflect.New(n.rv.Type().Elem())
		c.remember(n.rv, cp)
		cp.Elem().Set(n.rv.Elem())
		c.cloneFields(cp.Elem())
		return cp.Interface(), true
	}

	cp := reflect.New(n.rv.Type()).Elem()
	cp.Set(n.rv)
	c.cloneFields(cp)
	return cp.Interface(), true
}

func (c *cloner) cloneFields(sv reflect.Value) {
	for _, f := range fieldsOf(sv.Type()) {
		fv := sv.Field(f.index)
		assign(fv, c.clone(interfaceOf(fv)), fv)
	}
}

func (c *cloner) seen(rv reflect.Value) (interface{}, bool) {
	id, ok := identityOf(rv)
	if !ok {
		return nil, false
	}
	cp, ok := c.refs[id]
	if !ok {
		return nil, false
	}
	return cp.Interface(), true
}

func (c *cloner) remember(src, cp reflect.Value) {
	if id, ok := identityOf(src); ok {
		c.refs[id] = cp
	}
}

// assign stores a cloned value in dst. clones that can't be stored, which can
// only come from user hooks, fall back to the original value
func assign(dst reflect.Value, cloned interface{}, orig reflect.Value) {
	if cloned == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return
	}
	cv := reflect.ValueOf(cloned)
	if cv.Type().AssignableTo(dst.Type()) {
		dst.Set(cv)
		return
	}
	if orig.Kind() == reflect.Interface {
		orig = orig.Elem()
	}
	if orig.IsValid() {
		dst.Set(orig)
	}
}
