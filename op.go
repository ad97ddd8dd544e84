package deeppatch

import (
	"bytes"
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

// OpType is the single-character discriminator of an operation in the
// compact encoding
type OpType string

const (
	// OpAdd inserts a value into an array or sets an object member
	OpAdd = OpType("+")
	// OpRemove deletes the value at a path
	OpRemove = OpType("-")
	// OpReplace overwrites the value at a path
	OpReplace = OpType("~")
	// OpMove is the succession of a removal & insertion of the same value
	OpMove = OpType(">")
	// OpCopy inserts a copy of the value at one path at another
	OpCopy = OpType("^")
	// OpTest asserts the value at a path
	OpTest = OpType("?")
)

var opNames = map[OpType]string{
	OpAdd:     "add",
	OpRemove:  "remove",
	OpReplace: "replace",
	OpMove:    "move",
	OpCopy:    "copy",
	OpTest:    "test",
}

// Name returns the verbose operation name, "" for unknown types
func (t OpType) Name() string { return opNames[t] }

// Valid reports whether t is a known discriminator
func (t OpType) Valid() bool {
	_, ok := opNames[t]
	return ok
}

// OpTypeFromName maps a verbose operation name to its discriminator
func OpTypeFromName(name string) (OpType, bool) {
	for t, n := range opNames {
		if n == name {
			return t, true
		}
	}
	return "", false
}

// hasFrom is true for operations addressing a source & a destination
func (t OpType) hasFrom() bool { return t == OpMove || t == OpCopy }

// hasValue is true for operations carrying a value
func (t OpType) hasValue() bool { return t == OpAdd || t == OpReplace || t == OpTest }

// Encoding identifies one of the three interchangeable patch encodings
type Encoding uint8

const (
	// EncodingCompact is the tuple form: ["+", "/a", 1]
	EncodingCompact Encoding = iota
	// EncodingVerbose is the keyed record form: {"op": "add", "path": "/a", "value": 1}
	EncodingVerbose
	// EncodingBinary is a concatenation of length-prefixed documents
	EncodingBinary
)

// String implements the stringer interface
func (e Encoding) String() string {
	switch e {
	case EncodingCompact:
		return "compact"
	case EncodingVerbose:
		return "verbose"
	case EncodingBinary:
		return "binary"
	}
	return fmt.Sprintf("Encoding(%d)", uint8(e))
}

// ParseEncoding reads an encoding name
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "compact":
		return EncodingCompact, nil
	case "verbose":
		return EncodingVerbose, nil
	case "binary":
		return EncodingBinary, nil
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}

// Patch is an ordered sequence of operations in one of the three encodings:
// VerbosePatch, CompactPatch or BinaryPatch
type Patch interface {
	Encoding() Encoding
	Len() int
}

// CompactOp is an operation in tuple form. element 0 is the OpType, followed
// by path & value, or by from & path for moves & copies. Trailing elements
// beyond those are ignored
type CompactOp []interface{}

// AddOp creates an add operation
func AddOp(path Pointer, value interface{}) CompactOp { return CompactOp{OpAdd, path, value} }

// RemoveOp creates a remove operation
func RemoveOp(path Pointer) CompactOp { return CompactOp{OpRemove, path} }

// ReplaceOp creates a replace operation
func ReplaceOp(path Pointer, value interface{}) CompactOp {
	return CompactOp{OpReplace, path, value}
}

// MoveOp creates a move operation
func MoveOp(from, path Pointer) CompactOp { return CompactOp{OpMove, from, path} }

// CopyOp creates a copy operation
func CopyOp(from, path Pointer) CompactOp { return CompactOp{OpCopy, from, path} }

// TestOp creates a test operation
func TestOp(path Pointer, value interface{}) CompactOp { return CompactOp{OpTest, path, value} }

// Type returns the discriminator, "" when missing or malformed
func (op CompactOp) Type() OpType {
	if len(op) == 0 {
		return ""
	}
	switch t := op[0].(type) {
	case OpType:
		return t
	case string:
		return OpType(t)
	}
	return ""
}

// Path returns the destination pointer
func (op CompactOp) Path() Pointer {
	i := 1
	if op.Type().hasFrom() {
		i = 2
	}
	return op.pointerAt(i)
}

// From returns the source pointer of a move or copy
func (op CompactOp) From() Pointer {
	if !op.Type().hasFrom() {
		return Pointer{}
	}
	return op.pointerAt(1)
}

// Value returns the value of an add, replace or test, Absent for other types
func (op CompactOp) Value() interface{} {
	if !op.Type().hasValue() || len(op) < 3 {
		return Absent
	}
	return op[2]
}

func (op CompactOp) pointerAt(i int) Pointer {
	if i >= len(op) {
		return Pointer{}
	}
	p, _ := PointerFrom(op[i])
	return p
}

func (op CompactOp) String() string {
	switch t := op.Type(); {
	case t.hasFrom():
		return fmt.Sprintf("[%s %q %q]", t, op.From().String(), op.Path().String())
	case t.hasValue():
		return fmt.Sprintf("[%s %q %s]", t, op.Path().String(), display(op.Value()))
	default:
		return fmt.Sprintf("[%s %q]", t, op.Path().String())
	}
}

// LogValue implements slog.LogValuer, deferring rendering until a record is
// handled
func (op CompactOp) LogValue() slog.Value {
	return slog.StringValue(op.String())
}

// CompactPatch is a patch in tuple form
type CompactPatch []CompactOp

// Encoding implements the Patch interface
func (CompactPatch) Encoding() Encoding { return EncodingCompact }

// Len implements the Patch interface
func (p CompactPatch) Len() int { return len(p) }

// VerboseOp is an operation in keyed record form, as written in RFC 6902.
// Value is Absent for operations that carry none
type VerboseOp struct {
	Op    string      `json:"op"`
	Path  Pointer     `json:"path"`
	From  Pointer     `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// MarshalJSON writes op, path, from & value, omitting fields the operation
// doesn't use
func (op VerboseOp) MarshalJSON() ([]byte, error) {
	t, _ := OpTypeFromName(op.Op)
	rec := verboseRecord{Op: op.Op, Path: op.Path.String()}
	if t.hasFrom() {
		from := op.From.String()
		rec.From = &from
	}
	if !IsAbsent(op.Value) && !t.hasFrom() && t != OpRemove {
		v, err := json.Marshal(jsonable(op.Value))
		if err != nil {
			return nil, err
		}
		rec.Value = v
	}
	return json.Marshal(rec)
}

type verboseRecord struct {
	Op    string              `json:"op"`
	Path  string              `json:"path"`
	From  *string             `json:"from,omitempty"`
	Value jsoniter.RawMessage `json:"value,omitempty"`
}

// UnmarshalJSON reads a keyed record. a missing value is decoded as Absent.
// Known operations missing a path, or a from for moves & copies, are
// rejected
func (op *VerboseOp) UnmarshalJSON(data []byte) error {
	rec, err := readRecord(data)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOperation, err)
	}

	*op = VerboseOp{Value: Absent}
	if raw, ok := rec["op"]; ok {
		if err := json.Unmarshal(raw, &op.Op); err != nil {
			return invalidOp(-1, string(data), "op must be a string")
		}
	}

	t, known := OpTypeFromName(op.Op)
	raw, ok := rec["path"]
	if !ok && known {
		return invalidOp(-1, string(data), "missing path")
	}
	if ok {
		if err := op.Path.UnmarshalJSON(raw); err != nil {
			return invalidOp(-1, string(data), "path: %s", err)
		}
	}
	if raw, ok := rec["from"]; ok {
		if err := op.From.UnmarshalJSON(raw); err != nil {
			return invalidOp(-1, string(data), "from: %s", err)
		}
	} else if t.hasFrom() {
		return invalidOp(-1, string(data), "missing from")
	}
	if raw, ok := rec["value"]; ok {
		if bytes.Equal(raw, []byte("null")) {
			op.Value = nil
			return nil
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalidOp(-1, string(data), "value: %s", err)
		}
		op.Value = v
	}
	return nil
}

// readRecord splits a JSON object into the raw text of each member. a
// member holding null keeps its literal text, so present-but-null is told
// apart from missing
func readRecord(data []byte) (map[string][]byte, error) {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("operation must be an object")
	}
	rec := map[string][]byte{}
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		rec[key] = bytes.TrimSpace(it.SkipAndReturnBytes())
		return it.Error == nil
	})
	if iter.Error != nil {
		return nil, iter.Error
	}
	return rec, nil
}

// VerbosePatch is a patch in keyed record form
type VerbosePatch []VerboseOp

// Encoding implements the Patch interface
func (VerbosePatch) Encoding() Encoding { return EncodingVerbose }

// Len implements the Patch interface
func (p VerbosePatch) Len() int { return len(p) }

// BinaryPatch is a concatenation of length-prefixed encoded compact ops
type BinaryPatch []byte

// Encoding implements the Patch interface
func (BinaryPatch) Encoding() Encoding { return EncodingBinary }

// Len implements the Patch interface, returning the byte length
func (p BinaryPatch) Len() int { return len(p) }
