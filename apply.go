package deeppatch

import (
	"fmt"
)

// Apply runs patch against a deep copy of target & returns the result.
// target is never modified: a failing operation aborts the whole patch and
// only the copy is left half-patched. The patch may be in any encoding, it
// is validated in full before the first operation runs.
//
// Maps, slices & pointers to structs within the copy are updated in place
// where possible, but adding or replacing at the root swaps the value
// entirely. Always use the returned value.
//
// An operation with an unrecognized discriminator fails validation like any
// other malformed operation, rejecting the patch with ErrInvalidOperation.
// Pass OptionSkipUnknownOps to treat such operations as no-ops instead
func Apply(target interface{}, patch Patch, opts ...Option) (interface{}, error) {
	cfg := newConfig(opts)
	a := &applier{cfg: cfg, eq: newEquality(cfg)}

	doc := a.clone(target)
	if patch == nil {
		return doc, nil
	}

	ops, err := a.operations(patch)
	if err != nil {
		return nil, err
	}

	for i, op := range ops {
		cfg.Logger.Debug("apply", "index", i, "op", op)
		if doc, err = a.apply(doc, op); err != nil {
			return nil, fmt.Errorf("op %d %s: %w", i, op, err)
		}
	}
	return doc, nil
}

// applier holds the per-call state of Apply
type applier struct {
	cfg *Config
	eq  *equality
}

func (a *applier) clone(v interface{}) interface{} {
	return newCloner(a.cfg).clone(v)
}

// operations normalizes patch to compact form, dropping unrecognized
// operations first when configured to skip them
func (a *applier) operations(patch Patch) (CompactPatch, error) {
	if !a.cfg.SkipUnknownOps {
		return toCompact(patch, a.cfg)
	}

	switch x := patch.(type) {
	case VerbosePatch:
		known := make(VerbosePatch, 0, len(x))
		for i, op := range x {
			if _, ok := OpTypeFromName(op.Op); !ok {
				a.cfg.Logger.Debug("skipping unknown operation", "index", i, "op", op.Op)
				continue
			}
			known = append(known, op)
		}
		return toCompact(known, a.cfg)
	case BinaryPatch:
		raw, err := decodeDocuments(x, a.cfg.Codec)
		if err != nil {
			return nil, err
		}
		patch = raw
	}

	if x, ok := patch.(CompactPatch); ok {
		known := make(CompactPatch, 0, len(x))
		for i, op := range x {
			if !op.Type().Valid() {
				a.cfg.Logger.Debug("skipping unknown operation", "index", i, "op", op)
				continue
			}
			known = append(known, op)
		}
		patch = known
	}
	return toCompact(patch, a.cfg)
}

func (a *applier) apply(doc interface{}, op CompactOp) (interface{}, error) {
	switch op.Type() {
	case OpAdd:
		return op.Path().Push(doc, a.clone(op.Value()))
	case OpRemove:
		return op.Path().Delete(doc)
	case OpReplace:
		return op.Path().Set(doc, a.clone(op.Value()))
	case OpMove:
		from := op.From()
		v := from.Get(doc)
		if IsAbsent(v) {
			return nil, missingTarget(from, "nothing to move")
		}
		doc, err := from.Delete(doc)
		if err != nil {
			return nil, err
		}
		return op.Path().Push(doc, a.clone(v))
	case OpCopy:
		from := op.From()
		v := from.Get(doc)
		if IsAbsent(v) {
			return nil, missingTarget(from, "nothing to copy")
		}
		return op.Path().Push(doc, a.clone(v))
	case OpTest:
		actual := op.Path().Get(doc)
		if !a.eq.equal(actual, op.Value()) {
			return nil, &TestError{Path: op.Path(), Actual: actual, Expected: op.Value()}
		}
		return doc, nil
	}
	return doc, nil
}
