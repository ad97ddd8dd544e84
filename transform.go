package deeppatch

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// ToCompact converts a patch in any encoding to tuple form. Every operation
// is validated, the first malformed one fails the conversion with an
// *InvalidOperationError
func ToCompact(p Patch, opts ...Option) (CompactPatch, error) {
	return toCompact(p, newConfig(opts))
}

// ToVerbose converts a patch in any encoding to keyed record form
func ToVerbose(p Patch, opts ...Option) (VerbosePatch, error) {
	return toVerbose(p, newConfig(opts))
}

// ToBinary converts a patch in any encoding to the length-framed binary
// encoding, using the configured document codec
func ToBinary(p Patch, opts ...Option) (BinaryPatch, error) {
	return toBinary(p, newConfig(opts))
}

// Transform converts p to the given encoding
func Transform(p Patch, enc Encoding, opts ...Option) (Patch, error) {
	return transform(p, enc, newConfig(opts))
}

func transform(p Patch, enc Encoding, cfg *Config) (Patch, error) {
	switch enc {
	case EncodingCompact:
		return toCompact(p, cfg)
	case EncodingVerbose:
		return toVerbose(p, cfg)
	case EncodingBinary:
		return toBinary(p, cfg)
	}
	return nil, fmt.Errorf("unknown encoding %s", enc)
}

func toCompact(p Patch, cfg *Config) (CompactPatch, error) {
	switch x := p.(type) {
	case nil:
		return nil, nil
	case CompactPatch:
		out := make(CompactPatch, len(x))
		for i, op := range x {
			norm, err := normalizeCompact(i, op)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case VerbosePatch:
		out := make(CompactPatch, len(x))
		for i, op := range x {
			norm, err := verboseToCompact(i, op)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case BinaryPatch:
		return DeserializePatch(x, cfg.Codec)
	}
	return nil, fmt.Errorf("%w: unsupported patch type %T", ErrInvalidPatch, p)
}

func toVerbose(p Patch, cfg *Config) (VerbosePatch, error) {
	if p == nil {
		return nil, nil
	}
	compact, err := toCompact(p, cfg)
	if err != nil {
		return nil, err
	}
	out := make(VerbosePatch, len(compact))
	for i, op := range compact {
		out[i] = compactToVerbose(op)
	}
	return out, nil
}

func toBinary(p Patch, cfg *Config) (BinaryPatch, error) {
	if b, ok := p.(BinaryPatch); ok {
		return b, nil
	}
	compact, err := toCompact(p, cfg)
	if err != nil {
		return nil, err
	}
	return SerializePatch(compact, cfg.Codec)
}

// normalizeCompact validates a tuple & returns it with parsed pointers and
// any trailing elements dropped
func normalizeCompact(i int, op CompactOp) (CompactOp, error) {
	if len(op) == 0 {
		return nil, invalidOp(i, op, "empty operation")
	}
	t := op.Type()
	if !t.Valid() {
		return nil, invalidOp(i, op, "unknown operation %s", display(op[0]))
	}

	min := 3
	if t == OpRemove {
		min = 2
	}
	if len(op) < min {
		return nil, invalidOp(i, op, "%s needs %d elements, got %d", t.Name(), min, len(op))
	}

	path, err := PointerFrom(op[1])
	if err != nil {
		return nil, invalidOp(i, op, "%s", err)
	}
	switch {
	case t.hasFrom():
		to, err := PointerFrom(op[2])
		if err != nil {
			return nil, invalidOp(i, op, "%s", err)
		}
		return CompactOp{t, path, to}, nil
	case t == OpRemove:
		return CompactOp{t, path}, nil
	default:
		return CompactOp{t, path, op[2]}, nil
	}
}

func verboseToCompact(i int, op VerboseOp) (CompactOp, error) {
	t, ok := OpTypeFromName(op.Op)
	if !ok {
		return nil, invalidOp(i, op.Op, "unknown operation %q", op.Op)
	}
	switch {
	case t.hasFrom():
		return CompactOp{t, op.From, op.Path}, nil
	case t == OpRemove:
		return CompactOp{t, op.Path}, nil
	}
	if IsAbsent(op.Value) {
		return nil, invalidOp(i, op.Op, "%s at %q is missing a value", op.Op, op.Path.String())
	}
	return CompactOp{t, op.Path, op.Value}, nil
}

func compactToVerbose(op CompactOp) VerboseOp {
	return VerboseOp{
		Op:    op.Type().Name(),
		Path:  op.Path(),
		From:  op.From(),
		Value: op.Value(),
	}
}

// ParsePatchJSON reads a JSON document holding a patch. An array of tuples
// yields a CompactPatch, an array of records a VerbosePatch. Arrays mixing
// the two are read as compact
func ParsePatchJSON(data []byte) (Patch, error) {
	var elems []jsoniter.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPatch, err)
	}

	verbose := true
	for _, raw := range elems {
		if t := jsoniter.Get(raw).ValueType(); t != jsoniter.ObjectValue {
			verbose = false
			break
		}
	}

	if verbose && len(elems) > 0 {
		p := make(VerbosePatch, len(elems))
		for i, raw := range elems {
			if err := p[i].UnmarshalJSON(raw); err != nil {
				if ie, ok := err.(*InvalidOperationError); ok {
					ie.Index = i
				}
				return nil, err
			}
		}
		return p, nil
	}

	p := make(CompactPatch, len(elems))
	for i, raw := range elems {
		switch jsoniter.Get(raw).ValueType() {
		case jsoniter.ArrayValue:
			var op CompactOp
			if err := json.Unmarshal(raw, &op); err != nil {
				return nil, invalidOp(i, string(raw), "%s", err)
			}
			p[i] = op
		case jsoniter.ObjectValue:
			var vop VerboseOp
			if err := vop.UnmarshalJSON(raw); err != nil {
				return nil, err
			}
			op, err := verboseToCompact(i, vop)
			if err != nil {
				return nil, err
			}
			p[i] = op
		default:
			return nil, invalidOp(i, string(raw), "operation must be an array or object")
		}
	}
	return p, nil
}
