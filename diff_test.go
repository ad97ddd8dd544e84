package deeppatch

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestCase struct {
	description string       // description of what test is checking
	src, dst    string       // express test cases as json strings
	expect      CompactPatch // expected output
}

func RunTestCases(t *testing.T, cases []TestCase, opts ...Option) {
	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			var src, before, dst interface{}
			mustUnmarshal(t, c.src, &src)
			mustUnmarshal(t, c.src, &before)
			mustUnmarshal(t, c.dst, &dst)

			diff, err := Diff(src, dst, opts...)
			if err != nil {
				t.Fatalf("Diff error: %s", err)
			}

			if diffDiff := cmp.Diff(c.expect, diff); diffDiff != "" {
				t.Errorf("diff script response mismatch (-want +got):\n%s", diffDiff)
			}

			result, err := Apply(src, diff)
			if err != nil {
				t.Fatalf("error patching source: %s", err)
			}

			if diff := cmp.Diff(dst, result); diff != "" {
				srcData, _ := json.Marshal(src)
				dstData, _ := json.Marshal(dst)
				t.Errorf("patched result mismatch:\nsrc  : %s\ndst  : %s\ndiff (-want, +got):\n%s\n", string(srcData), string(dstData), diff)
			}
			if diff := cmp.Diff(before, src); diff != "" {
				t.Errorf("source was modified (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBasicDiffing(t *testing.T) {
	cases := []TestCase{
		{
			"scalar change array",
			`[[0,1,2]]`,
			`[[0,1,3]]`,
			CompactPatch{
				ReplaceOp(MustParsePointer("/0"), []interface{}{float64(0), float64(1), float64(3)}),
			},
		},
		{
			"scalar change object",
			`{"a":[0,1,2],"b":true}`,
			`{"a":[0,1,3],"b":true}`,
			CompactPatch{
				ReplaceOp(MustParsePointer("/a/2"), float64(3)),
			},
		},
		{
			"insert into array",
			`[[1]]`,
			`[[1],[2]]`,
			CompactPatch{
				AddOp(MustParsePointer("/1"), []interface{}{float64(2)}),
			},
		},
		{
			"insert into object",
			`{"a":[1]}`,
			`{"a":[1],"b":[2]}`,
			CompactPatch{
				AddOp(MustParsePointer("/b"), []interface{}{float64(2)}),
			},
		},
		{
			"delete from array",
			`[[1],[2],[3]]`,
			`[[1],[3]]`,
			CompactPatch{
				RemoveOp(MustParsePointer("/1")),
			},
		},
		{
			"delete from object",
			`{"a":[false],"b":[2],"c":[3]}`,
			`{"a":[false],"c":[3]}`,
			CompactPatch{
				RemoveOp(MustParsePointer("/b")),
			},
		},
		{
			"key change case",
			`{"a":[1],"b":[2],"c":[3]}`,
			`{"A":[1],"b":[2],"c":[3]}`,
			CompactPatch{
				RemoveOp(MustParsePointer("/a")),
				AddOp(MustParsePointer("/A"), []interface{}{float64(1)}),
			},
		},
		{
			"diff object and array children",
			`{"a":[0,1,2], "b": true }`,
			`{"a":{"foo": [0,1,2] }, "b": false }`,
			CompactPatch{
				ReplaceOp(MustParsePointer("/a"), map[string]interface{}{"foo": []interface{}{float64(0), float64(1), float64(2)}}),
				ReplaceOp(MustParsePointer("/b"), false),
			},
		},
		{
			"object-to-array root",
			`[ [1,2,3], [4,5,6], [7,8,9] ]`,
			`{ "foo": [1,2,3], "baz": { "bat": [false]}}`,
			CompactPatch{
				ReplaceOp(Pointer{}, map[string]interface{}{
					"foo": []interface{}{float64(1), float64(2), float64(3)},
					"baz": map[string]interface{}{"bat": []interface{}{false}},
				}),
			},
		},
		{
			"nested object change",
			`{"a":{"b":1}}`,
			`{"a":{"b":2,"c":3}}`,
			CompactPatch{
				ReplaceOp(MustParsePointer("/a/b"), float64(2)),
				AddOp(MustParsePointer("/a/c"), float64(3)),
			},
		},
		{
			"null to value",
			`{"a":null,"b":1}`,
			`{"a":1,"b":null}`,
			CompactPatch{
				ReplaceOp(MustParsePointer("/a"), float64(1)),
				ReplaceOp(MustParsePointer("/b"), nil),
			},
		},
		{
			"escaped keys",
			`{"a/b":1,"m~n":2}`,
			`{"a/b":3,"m~n":4}`,
			CompactPatch{
				ReplaceOp(NewPointer("a/b"), float64(3)),
				ReplaceOp(NewPointer("m~n"), float64(4)),
			},
		},
		{
			"equal documents",
			`{"a":[1,{"b":null}]}`,
			`{"a":[1,{"b":null}]}`,
			CompactPatch{},
		},
	}

	RunTestCases(t, cases)
}

func TestInsertGeneralizing(t *testing.T) {
	cases := []TestCase{
		{
			"grouping object insertion",
			`[{"a":"a", "b":"b"},{"c":"c"}]`,
			`[{"a":"a", "b":"b"},{"c":"c","d":{"this":"is","a":"big","insertion":{"object":5,"nesting":[true]}}}]`,
			CompactPatch{
				ReplaceOp(MustParsePointer("/1"), map[string]interface{}{
					"c": "c",
					"d": map[string]interface{}{
						"this": "is",
						"a":    "big",
						"insertion": map[string]interface{}{
							"object":  float64(5),
							"nesting": []interface{}{true},
						},
					},
				}),
			},
		},
	}

	RunTestCases(t, cases)
}

func TestDiffIntData(t *testing.T) {
	leftData := []interface{}{
		[]interface{}{int64(1), int64(2), int64(3)},
		[]interface{}{int64(4), int64(5), int64(6)},
		[]interface{}{int64(7), int64(8), int64(9)},
	}
	rightData := []interface{}{
		[]interface{}{int64(1), int64(2), int64(3)},
		[]interface{}{int64(4), int64(0), int64(6)},
		[]interface{}{int64(10), int64(8), int64(9)},
	}

	diff, err := Diff(leftData, rightData)
	if err != nil {
		t.Fatalf("Diff error: %s", err)
	}

	// two element replacements encode longer than one replacement of the
	// whole array
	expect := CompactPatch{ReplaceOp(Pointer{}, rightData)}
	if diffDiff := cmp.Diff(expect, diff); diffDiff != "" {
		t.Errorf("patch mismatch. (-want +got):\n%s", diffDiff)
	}
}

func TestDiffStats(t *testing.T) {
	leftData := map[string]interface{}{
		"a": "apple",
		"b": []interface{}{
			[]interface{}{"one", "two", "three"},
			[]interface{}{"four", "five", "six"},
		},
	}
	rightData := map[string]interface{}{
		"a": "apple",
		"b": []interface{}{},
	}

	stat := &Stats{}
	diff, err := Diff(leftData, rightData, OptionSetStats(stat))
	if err != nil {
		t.Fatalf("Diff error: %s", err)
	}

	expect := CompactPatch{ReplaceOp(MustParsePointer("/b"), []interface{}{})}
	if diffDiff := cmp.Diff(expect, diff); diffDiff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diffDiff)
	}

	expectStat := &Stats{
		Left:        11,
		Right:       3,
		LeftWeight:  63,
		RightWeight: 20,
		Updates:     1,
	}
	if diff := cmp.Diff(expectStat, stat); diff != "" {
		t.Errorf("result mismatch. (-want +got):\n%s", diff)
	}
}

var (
	funcA = func() {}
	funcB = func() {}
)

func TestDifference(t *testing.T) {
	objA := map[string]interface{}{"some_key": "some_val"}
	objB := map[string]interface{}{"some_other_key": "some_other_val"}
	symA, symAClone, symB := NewSymbol("a"), NewSymbol("a"), NewSymbol("b")

	recA := map[string]interface{}{}
	recA["some_key"] = recA
	recB := map[string]interface{}{}
	recB["some_other_key"] = recB

	root := Pointer{}
	cases := []struct {
		description string
		a, b        interface{}
		expect      CompactPatch
	}{
		{"absent to null", Absent, nil, CompactPatch{AddOp(root, nil)}},
		{"null to absent", nil, Absent, CompactPatch{RemoveOp(root)}},
		{"bool", true, false, CompactPatch{ReplaceOp(root, false)}},
		{"int", 1, 2, CompactPatch{ReplaceOp(root, 2)}},
		{"negate", 1, -1, CompactPatch{ReplaceOp(root, -1)}},
		{"infinity", math.Inf(1), math.Inf(-1), CompactPatch{ReplaceOp(root, math.Inf(-1))}},
		{"signed zero", math.Copysign(0, -1), 0.0, CompactPatch{ReplaceOp(root, 0.0)}},
		{"empty string", "", "a", CompactPatch{ReplaceOp(root, "a")}},
		{"string", "a", "b", CompactPatch{ReplaceOp(root, "b")}},
		{"func", funcA, funcB, CompactPatch{ReplaceOp(root, funcB)}},
		{"member", map[string]interface{}{"a": "a"}, map[string]interface{}{"a": "b"}, CompactPatch{ReplaceOp(MustParsePointer("/a"), "b")}},
		{"member kind", map[string]interface{}{"a": "a"}, map[string]interface{}{"a": map[string]interface{}{"b": "c"}},
			CompactPatch{ReplaceOp(MustParsePointer("/a"), map[string]interface{}{"b": "c"})}},
		{"nested member", map[string]interface{}{"a": map[string]interface{}{"b": "c"}}, map[string]interface{}{"a": map[string]interface{}{"b": "d"}},
			CompactPatch{ReplaceOp(MustParsePointer("/a/b"), "d")}},
		{"swap members", map[string]interface{}{"a": "a", "b": "b"}, map[string]interface{}{"a": "b", "b": "a"},
			CompactPatch{ReplaceOp(MustParsePointer("/a"), "b"), ReplaceOp(MustParsePointer("/b"), "a")}},
		{"add member", map[string]interface{}{}, map[string]interface{}{"a": "b"}, CompactPatch{AddOp(MustParsePointer("/a"), "b")}},
		{"symbol clone", symA, symAClone, CompactPatch{ReplaceOp(root, symAClone)}},
		{"symbol", symA, symB, CompactPatch{ReplaceOp(root, symB)}},
		{"append", []interface{}{1}, []interface{}{1, 2}, CompactPatch{AddOp(MustParsePointer("/1"), 2)}},
		{"replace element", []interface{}{objA, 2, 3}, []interface{}{objB, 2, 3}, CompactPatch{ReplaceOp(MustParsePointer("/0"), objB)}},
		{"reorder", []interface{}{1, 2, 3}, []interface{}{2, 1, 3}, CompactPatch{ReplaceOp(root, []interface{}{2, 1, 3})}},
		{"copy element", []interface{}{objA}, []interface{}{objA, objA}, CompactPatch{CopyOp(MustParsePointer("/0"), MustParsePointer("/1"))}},
		{"date", time.Unix(0, 0), time.Unix(0, int64(time.Millisecond)), CompactPatch{ReplaceOp(root, time.Unix(0, int64(time.Millisecond)))}},
		{"error", errors.New("some error"), errors.New("some other error"), CompactPatch{ReplaceOp(root, errors.New("some other error"))}},
		{"boxed", boxInt(1), boxInt(2), CompactPatch{ReplaceOp(root, boxInt(2))}},
		{"pattern", regexp.MustCompile("a"), regexp.MustCompile("b"), CompactPatch{ReplaceOp(root, regexp.MustCompile("b"))}},
		{"bytes", []byte{1, 2, 3}, []byte{3, 2, 1}, CompactPatch{ReplaceOp(root, []byte{3, 2, 1})}},
		{"uint16 buffer", [3]uint16{1, 2, 3}, [3]uint16{3, 2, 1}, CompactPatch{ReplaceOp(root, [3]uint16{3, 2, 1})}},
		{"float32 buffer", [3]float32{1, 2, 3}, [3]float32{3, 2, 1}, CompactPatch{ReplaceOp(root, [3]float32{3, 2, 1})}},
		{"set", map[int]struct{}{1: {}, 2: {}, 3: {}}, map[int]struct{}{1: {}, 2: {}}, CompactPatch{ReplaceOp(root, map[int]struct{}{1: {}, 2: {}})}},
		{"map", map[int]string{1: "a", 2: "b"}, map[int]string{1: "a", 2: "c"}, CompactPatch{ReplaceOp(MustParsePointer("/2"), "c")}},
		{"recursive", map[string]interface{}{"rec": recA}, map[string]interface{}{"rec": recB},
			CompactPatch{RemoveOp(MustParsePointer("/rec/some_key")), AddOp(MustParsePointer("/rec/some_other_key"), recB)}},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			got, err := Diff(c.a, c.b)
			require.NoError(t, err)
			if !Equal(c.expect, got) {
				t.Errorf("patch mismatch.\nwant: %v\ngot:  %v", c.expect, got)
			}
		})
	}
}

func boxInt(i int) *int { return &i }

func TestDiffEqualValues(t *testing.T) {
	self := map[string]interface{}{"a": []interface{}{1}}
	self["self"] = self
	list := []interface{}{1, nil}
	list[1] = list

	values := []interface{}{
		nil, Absent, true, 1, math.NaN(), "a", funcA, NewSymbol("a"),
		time.Unix(1, 0), regexp.MustCompile("a+"), []byte("a"), [2]int{1, 2},
		map[string]struct{}{"a": {}}, map[string]interface{}{"a": 1},
		struct{ A, B int }{1, 2}, self, list,
	}
	for i, v := range values {
		p, err := Diff(v, v)
		require.NoError(t, err)
		assert.Empty(t, p, "value %d", i)
		assert.NotNil(t, p)
	}
}

type diffRecord struct {
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
	Count int      `json:"-"`
}

func TestDiffStructs(t *testing.T) {
	a := diffRecord{Name: "a", Tags: []string{"x"}, Count: 1}
	b := diffRecord{Name: "b", Tags: []string{"x", "y"}, Count: 2}

	got, err := Diff(a, b)
	require.NoError(t, err)

	expect := CompactPatch{
		ReplaceOp(MustParsePointer("/name"), "b"),
		AddOp(MustParsePointer("/tags/1"), "y"),
	}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}

	res, err := Apply(a, got)
	require.NoError(t, err)
	// fields hidden from pointers are carried unchanged
	assert.Equal(t, diffRecord{Name: "b", Tags: []string{"x", "y"}, Count: 1}, res)

	// structs of different types are replaced
	got, err = Diff(a, struct{ Name string }{"a"})
	require.NoError(t, err)
	assert.True(t, Equal(CompactPatch{ReplaceOp(Pointer{}, struct{ Name string }{"a"})}, got))
}

func TestDiffPricing(t *testing.T) {
	a := []interface{}{"a", "b", "c", "d"}
	b := []interface{}{"x", "a", "b", "c", "d", "a"}

	// Diff returns compact operations & prices them that way
	got, err := Diff(a, b)
	require.NoError(t, err)
	expect := CompactPatch{
		AddOp(MustParsePointer("/0"), "x"),
		AddOp(MustParsePointer("/5"), "a"),
	}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}

	// two verbose adds encode longer than one verbose replacement
	got, err = Diff(a, b, OptionEncoding(EncodingVerbose))
	require.NoError(t, err)
	if diff := cmp.Diff(CompactPatch{ReplaceOp(Pointer{}, b)}, got); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}

	// Create prices in its default verbose output encoding
	created, err := Create(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Len())
}

func TestDiffAt(t *testing.T) {
	got, err := DiffAt([]interface{}{1}, []interface{}{1, 2}, MustParsePointer("/root/list"))
	require.NoError(t, err)
	expect := CompactPatch{AddOp(MustParsePointer("/root/list/1"), 2)}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffDetachesValues(t *testing.T) {
	out := map[string]interface{}{"a": []interface{}{1}}
	p, err := Diff(map[string]interface{}{}, out)
	require.NoError(t, err)

	out["a"].([]interface{})[0] = 2
	assert.Equal(t, []interface{}{1}, p[0].Value())
}

func TestDiffOptionEqual(t *testing.T) {
	foldCase := OptionEqual(func(a, b interface{}) (bool, bool) {
		as, aok := a.(string)
		bs, bok := b.(string)
		if !aok || !bok {
			return false, false
		}
		return strings.EqualFold(as, bs), true
	})

	p, err := Diff(map[string]interface{}{"a": "X"}, map[string]interface{}{"a": "x"}, foldCase)
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestDiffOptionDiff(t *testing.T) {
	hook := OptionDiff(func(input, output interface{}, ptr Pointer) (Patch, bool) {
		if ptr.String() != "/a" {
			return nil, false
		}
		return VerbosePatch{{Op: "replace", Path: ptr, Value: "hooked"}}, true
	})

	got, err := Diff(map[string]interface{}{"a": 1, "b": 1}, map[string]interface{}{"a": 2, "b": 2}, hook)
	require.NoError(t, err)
	expect := CompactPatch{
		ReplaceOp(MustParsePointer("/a"), "hooked"),
		ReplaceOp(MustParsePointer("/b"), 2),
	}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}
}

type counter struct {
	N int
}

// Diff always reports the change as an increment test followed by a replace
func (c counter) Diff(output interface{}, ptr Pointer) (Patch, error) {
	o, ok := output.(counter)
	if !ok {
		return nil, errors.New("not a counter")
	}
	return CompactPatch{
		TestOp(ptr.Extend("N"), c.N),
		ReplaceOp(ptr.Extend("N"), o.N),
	}, nil
}

func TestDiffDiffer(t *testing.T) {
	got, err := Diff(counter{1}, counter{2})
	require.NoError(t, err)
	expect := CompactPatch{
		TestOp(MustParsePointer("/N"), 1),
		ReplaceOp(MustParsePointer("/N"), 2),
	}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}

	_, err = Diff(counter{1}, "two")
	assert.Error(t, err)
}

func TestCreate(t *testing.T) {
	a := map[string]interface{}{"foo": "bar"}
	b := map[string]interface{}{"foo": "bar", "baz": "qux"}

	p, err := Create(a, b)
	require.NoError(t, err)
	expect := VerbosePatch{{Op: "add", Path: MustParsePointer("/baz"), From: Pointer{}, Value: "qux"}}
	if diff := cmp.Diff(expect, p); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}

	res, err := Apply(a, p)
	require.NoError(t, err)
	assert.Equal(t, b, res)
	assert.Equal(t, map[string]interface{}{"foo": "bar"}, a)

	compact, err := Create(a, b, OptionEncoding(EncodingCompact))
	require.NoError(t, err)
	assert.Equal(t, EncodingCompact, compact.Encoding())

	bin, err := Create(a, b, OptionEncoding(EncodingBinary))
	require.NoError(t, err)
	assert.Equal(t, BinaryPatch(mustDecodeBase64(t, "JQAAAAIwAAIAAAArAAIxAAUAAAAvYmF6AAIyAAQAAABxdXgAAA==")), bin)

	none, err := Create(a, a)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDiffApplyRoundTrip(t *testing.T) {
	values := []interface{}{
		nil,
		1,
		"a",
		[]interface{}{},
		[]interface{}{1, 2, 3},
		[]interface{}{3, 2, 1},
		[]interface{}{1, 1, 1, 1},
		[]interface{}{map[string]interface{}{"a": 1}, 2, map[string]interface{}{"a": 1}},
		[]interface{}{"a", "b", "c", "d", "e", "f", "g", "h"},
		[]interface{}{"a", "c", "d", "x", "e", "f", "h", "a"},
		map[string]interface{}{"a": []interface{}{1, 2}, "b": map[string]interface{}{"c": nil}},
		map[string]interface{}{"a": []interface{}{2}, "b": map[string]interface{}{"d": true}},
	}
	for i, a := range values {
		for j, b := range values {
			for _, enc := range []Encoding{EncodingVerbose, EncodingCompact} {
				p, err := Diff(a, b, OptionEncoding(enc))
				require.NoError(t, err)
				got, err := Apply(a, p)
				require.NoError(t, err, "%d -> %d %s: %v", i, j, enc, p)
				if !Equal(b, got) {
					t.Errorf("%d -> %d %s: patch %v produced %v, want %v", i, j, enc, p, got, b)
				}
			}
		}
	}
}
