// Package deeppatch computes, represents & applies structural patches between
// two tree-shaped Go values, following the JSON Patch (RFC 6902) and JSON
// Pointer (RFC 6901) models.
//
// Values aren't limited to the types created by unmarshaling JSON. deeppatch
// operates on go values of any shape, classified by Kind:
//   map[string]interface{}, []interface{}, structs & pointers to them
//   maps of any key type, sets (map[K]struct{}), arrays & byte slices
//   string, numbers of every width, bool, nil
//   time.Time, *regexp.Regexp, errors, funcs & *Symbol
// numbers compare by value across widths, so documents decoded from different
// formats, for example JSON & BSON, can be compared with one another.
//
// Diff produces the operations that turn one value into another. Objects
// and maps are diffed key by key, arrays with an edit distance search that
// prices each candidate operation by its encoded size, preferring a single
// replacement wherever that is smaller.
//
// Patches come in three interchangeable encodings:
//   VerbosePatch   {"op": "add", "path": "/a", "value": 1}
//   CompactPatch   ["+", "/a", 1]
//   BinaryPatch    length-prefixed documents, BSON by default
// Apply accepts any of them, and runs the patch against a deep copy of its
// target, leaving the original untouched.
//
// Values can take part in comparison, copying & diffing by implementing
// Equaler, AsymmetricMatcher, Cloner or Differ. Hooks set with OptionEqual,
// OptionClone & OptionDiff run before any built-in handling
package deeppatch
