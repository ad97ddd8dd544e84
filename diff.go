package deeppatch

import (
	"fmt"
)

// Diff computes a compact patch that transforms input into output. The
// patch is built to be small in bytes rather than in operation count: where
// a whole replacement encodes shorter than a run of edits, the replacement
// wins. Values embedded in operations are clones, later changes to output
// don't leak into the patch.
//
// Diff(a, a) is always empty, including for self-referential values
func Diff(input, output interface{}, opts ...Option) (CompactPatch, error) {
	return DiffAt(input, output, Pointer{}, opts...)
}

// DiffAt is Diff with every operation path rooted at ptr
func DiffAt(input, output interface{}, ptr Pointer, opts ...Option) (CompactPatch, error) {
	cfg := newConfig(opts)
	pricing := EncodingCompact
	if cfg.encodingSet {
		pricing = cfg.Encoding
	}
	patch, err := newDiff(cfg, pricing).diff(input, output, ptr)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		patch = CompactPatch{}
	}
	if cfg.Stats != nil {
		cfg.Stats.measure(input, output, patch)
	}
	cfg.Logger.Debug("diff", "path", ptr.String(), "ops", len(patch))
	return patch, nil
}

// Create diffs input against output, returning the patch in the configured
// encoding (verbose unless set with OptionEncoding). Create returns a nil
// patch when there are no changes
func Create(input, output interface{}, opts ...Option) (Patch, error) {
	cfg := newConfig(opts)
	patch, err := newDiff(cfg, cfg.Encoding).diff(input, output, Pointer{})
	if err != nil {
		return nil, err
	}
	if cfg.Stats != nil {
		cfg.Stats.measure(input, output, patch)
	}
	if len(patch) == 0 {
		return nil, nil
	}
	return transform(patch, cfg.Encoding, cfg)
}

// diff is the per-call state of a diff. inputSeen & outputSeen are the
// references being diffed on the current recursion path
type diff struct {
	cfg *Config
	eq  *equality
	// encoding array edits are priced in
	pricing Encoding

	inputSeen, outputSeen []identity
}

func newDiff(cfg *Config, pricing Encoding) *diff {
	return &diff{cfg: cfg, eq: newEquality(cfg), pricing: pricing}
}

// diffHandler diffs in against out at ptr, returning ok = false to decline
type diffHandler func(d *diff, in, out node, ptr Pointer) (patch CompactPatch, ok bool, err error)

var diffHandlers []diffHandler

func init() {
	diffHandlers = []diffHandler{
		(*diff).diffDiffer,
		(*diff).diffCustom,
		(*diff).diffPrimitive,
		(*diff).diffWrapper,
		(*diff).diffArray,
		(*diff).diffSet,
		(*diff).diffMap,
		(*diff).diffObject,
	}
}

func (d *diff) diff(input, output interface{}, ptr Pointer) (CompactPatch, error) {
	if d.eq.equal(input, output) {
		return nil, nil
	}

	in, out := nodeOf(input), nodeOf(output)
	if patch, ok := d.diffNullable(in, out, ptr); ok {
		return patch, nil
	}

	if d.cfg.Diff != nil {
		if p, ok := d.cfg.Diff(input, output, ptr); ok {
			return d.adopt(p)
		}
	}

	for _, h := range diffHandlers {
		patch, ok, err := h(d, in, out, ptr)
		if err != nil {
			return nil, err
		}
		if ok {
			return patch, nil
		}
	}
	return d.replace(ptr, output), nil
}

// adopt takes a patch produced outside the engine, converting it to compact
// form & cloning its values
func (d *diff) adopt(p Patch) (CompactPatch, error) {
	compact, err := toCompact(p, d.cfg)
	if err != nil {
		return nil, err
	}
	for i, op := range compact {
		if op.Type().hasValue() {
			compact[i] = CompactOp{op[0], op[1], d.clone(op[2])}
		}
	}
	return compact, nil
}

func (d *diff) clone(v interface{}) interface{} {
	return newCloner(d.cfg).clone(v)
}

func (d *diff) replace(ptr Pointer, output interface{}) CompactPatch {
	return CompactPatch{ReplaceOp(ptr, d.clone(output))}
}

// diffNullable settles any diff where one side is Absent or null
func (d *diff) diffNullable(in, out node, ptr Pointer) (CompactPatch, bool) {
	inNullish := in.kind == KindAbsent || in.kind == KindNull
	outNullish := out.kind == KindAbsent || out.kind == KindNull
	switch {
	case !inNullish && !outNullish:
		return nil, false
	case in.kind == KindAbsent:
		return CompactPatch{AddOp(ptr, d.clone(out.v))}, true
	case out.kind == KindAbsent:
		return CompactPatch{RemoveOp(ptr)}, true
	}
	return d.replace(ptr, out.v), true
}

// diffDiffer defers to inputs that implement Differ
func (d *diff) diffDiffer(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	df, ok := in.v.(Differ)
	if !ok {
		return nil, false, nil
	}
	p, err := df.Diff(out.v, ptr)
	if err != nil {
		return nil, true, fmt.Errorf("diffing %T at %q: %w", in.v, ptr.String(), err)
	}
	patch, err := d.adopt(p)
	return patch, true, err
}

// diffCustom replaces values that define their own equality, as their
// structure is opaque
func (d *diff) diffCustom(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	eq, ok := d.eq.eqCustom(in, out)
	if !ok {
		return nil, false, nil
	}
	if eq {
		return nil, true, nil
	}
	return d.replace(ptr, out.v), true, nil
}

func (d *diff) diffPrimitive(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	eq, ok := d.eq.eqPrimitive(in, out)
	if !ok {
		return nil, false, nil
	}
	if eq {
		return nil, true, nil
	}
	return d.replace(ptr, out.v), true, nil
}

func (d *diff) diffWrapper(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	eq, ok := d.eq.eqWrapper(in, out)
	if !ok {
		return nil, false, nil
	}
	if eq {
		return nil, true, nil
	}
	return d.replace(ptr, out.v), true, nil
}

// diffSet always replaces a changed set whole: set members have no stable
// position a path could address
func (d *diff) diffSet(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	eq, ok := d.eq.eqSet(in, out)
	if !ok {
		return nil, false, nil
	}
	if eq {
		return nil, true, nil
	}
	return d.replace(ptr, out.v), true, nil
}

// diffMap diffs maps key by key. keys are visited in token order, input keys
// first, then keys only output holds
func (d *diff) diffMap(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	if in.kind != KindMap && out.kind != KindMap {
		return nil, false, nil
	}
	if in.kind != out.kind {
		return d.replace(ptr, out.v), true, nil
	}

	patch, err := d.guard(in, out, ptr, func() (CompactPatch, error) {
		var patch CompactPatch
		for _, k := range sortedKeys(in.rv) {
			ops, err := d.diff(interfaceOf(in.rv.MapIndex(k)), mapValue(out.rv, k), ptr.Extend(keyToken(k)))
			if err != nil {
				return nil, err
			}
			patch = append(patch, ops...)
		}
		for _, k := range sortedKeys(out.rv) {
			if !IsAbsent(mapValue(in.rv, k)) {
				continue
			}
			ops, err := d.diff(Absent, interfaceOf(out.rv.MapIndex(k)), ptr.Extend(keyToken(k)))
			if err != nil {
				return nil, err
			}
			patch = append(patch, ops...)
		}
		return patch, nil
	})
	return patch, true, err
}

// diffObject diffs structs of one type field by field, in declaration order.
// differently typed objects are declined, falling through to a replacement
func (d *diff) diffObject(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	if in.kind != KindObject || out.kind != KindObject || in.rv.Type() != out.rv.Type() {
		return nil, false, nil
	}

	patch, err := d.guard(in, out, ptr, func() (CompactPatch, error) {
		var patch CompactPatch
		is, ot := structOf(in.rv), structOf(out.rv)
		for _, f := range fieldsOf(is.Type()) {
			ops, err := d.diff(interfaceOf(is.Field(f.index)), interfaceOf(ot.Field(f.index)), ptr.Extend(f.name))
			if err != nil {
				return nil, err
			}
			patch = append(patch, ops...)
		}
		return patch, nil
	})
	return patch, true, err
}

// guard runs fn with in & out on the seen stacks. meeting a reference that is
// already being diffed on this path stops the descent with a replacement
func (d *diff) guard(in, out node, ptr Pointer, fn func() (CompactPatch, error)) (CompactPatch, error) {
	inID, inOK := identityOf(in.rv)
	outID, outOK := identityOf(out.rv)
	for i := range d.inputSeen {
		if (inOK && d.inputSeen[i] == inID) || (outOK && d.outputSeen[i] == outID) {
			return d.replace(ptr, out.v), nil
		}
	}

	d.inputSeen = append(d.inputSeen, inID)
	d.outputSeen = append(d.outputSeen, outID)
	defer func() {
		d.inputSeen = d.inputSeen[:len(d.inputSeen)-1]
		d.outputSeen = d.outputSeen[:len(d.outputSeen)-1]
	}()
	return fn()
}
