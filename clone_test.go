package deeppatch

import (
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone(t *testing.T) {
	x := 3
	cases := []struct {
		description string
		v           interface{}
	}{
		{"null", nil},
		{"absent", Absent},
		{"number", 1.5},
		{"string", "a"},
		{"nested", map[string]interface{}{"a": []interface{}{1, map[string]interface{}{"b": nil}}}},
		{"bytes", []byte("abc")},
		{"boxed", &x},
		{"buffer", [3]int{1, 2, 3}},
		{"fixed array", [2][]int{{1}, {2}}},
		{"set", map[string]struct{}{"a": {}}},
		{"typed map", map[int][]string{1: {"a"}}},
		{"struct", equalRecord{Name: "a", Items: []int{1, 2}, skip: 4}},
		{"struct pointer", &equalRecord{Name: "a", Items: []int{1, 2}}},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			cp := Clone(c.v)
			assert.True(t, Equal(c.v, cp), "clone differs: %v", cp)
			if c.v != nil && !IsAbsent(c.v) {
				assert.Equal(t, reflect.TypeOf(c.v), reflect.TypeOf(cp))
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := map[string]interface{}{
		"list": []interface{}{1, 2},
		"obj":  map[string]interface{}{"k": "v"},
		"rec":  &equalRecord{Items: []int{1}},
		"raw":  []byte("abc"),
		"set":  map[int]struct{}{1: {}},
	}
	cp := Clone(orig).(map[string]interface{})

	cp["list"].([]interface{})[0] = "changed"
	cp["obj"].(map[string]interface{})["k"] = "changed"
	cp["rec"].(*equalRecord).Items[0] = 9
	cp["raw"].([]byte)[0] = 'z'
	cp["set"].(map[int]struct{})[2] = struct{}{}
	cp["new"] = true

	assert.Equal(t, []interface{}{1, 2}, orig["list"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, orig["obj"])
	assert.Equal(t, []int{1}, orig["rec"].(*equalRecord).Items)
	assert.Equal(t, []byte("abc"), orig["raw"])
	assert.Len(t, orig["set"], 1)
	assert.Len(t, orig, 5)
}

func TestCloneKeepsUnexportedFields(t *testing.T) {
	cp := Clone(equalRecord{Name: "a", skip: 7}).(equalRecord)
	assert.Equal(t, 7, cp.skip)
}

func TestCloneSharedReferences(t *testing.T) {
	shared := []interface{}{1}
	v := map[string]interface{}{"a": shared, "b": shared}
	cp := Clone(v).(map[string]interface{})

	a, b := reflect.ValueOf(cp["a"]), reflect.ValueOf(cp["b"])
	assert.Equal(t, a.Pointer(), b.Pointer(), "shared reference split in two")
	assert.NotEqual(t, reflect.ValueOf(shared).Pointer(), a.Pointer())
}

func TestCloneCycles(t *testing.T) {
	self := map[string]interface{}{"v": 1}
	self["self"] = self
	cp := Clone(self).(map[string]interface{})
	inner := cp["self"].(map[string]interface{})
	assert.Equal(t, reflect.ValueOf(cp).Pointer(), reflect.ValueOf(inner).Pointer())
	assert.NotEqual(t, reflect.ValueOf(self).Pointer(), reflect.ValueOf(cp).Pointer())

	type node struct {
		Next *node
		N    int
	}
	ring := &node{N: 1}
	ring.Next = &node{N: 2, Next: ring}
	rc := Clone(ring).(*node)
	require.NotSame(t, ring, rc)
	assert.Same(t, rc, rc.Next.Next)
	assert.Equal(t, 2, rc.Next.N)
}

func TestCloneImmutables(t *testing.T) {
	re := regexp.MustCompile("a")
	err := errors.New("e")
	sym := NewSymbol("s")
	ch := make(chan int)

	assert.Same(t, re, Clone(re))
	assert.Equal(t, err, Clone(err))
	assert.Same(t, sym, Clone(sym))
	assert.Equal(t, ch, Clone(ch))
	assert.Equal(t, reflect.ValueOf(funcA).Pointer(), reflect.ValueOf(Clone(funcA)).Pointer())

	var nilSlice []int
	assert.Nil(t, Clone(nilSlice))
}

// frozen shares its data between copies
type frozen struct {
	Data []int
}

func (f frozen) Clone() interface{} { return f }

func TestCloneCloner(t *testing.T) {
	f := frozen{Data: []int{1}}
	cp := Clone(map[string]interface{}{"f": f}).(map[string]interface{})
	cp["f"].(frozen).Data[0] = 2
	assert.Equal(t, 2, f.Data[0])
}

// stamped replaces its contents when cloned on its own
type stamped []int

func (s stamped) Clone() interface{} { return stamped{-1} }

func TestCloneClonerSlice(t *testing.T) {
	// slices are copied element-wise before Cloner is consulted
	s := stamped{1, 2}
	cp := Clone(s).(stamped)
	assert.Equal(t, stamped{1, 2}, cp)
	cp[0] = 9
	assert.Equal(t, 1, s[0])
}

func TestCloneOption(t *testing.T) {
	upper := OptionClone(func(v interface{}) (interface{}, bool) {
		if s, ok := v.(string); ok {
			return s + "!", true
		}
		return nil, false
	})

	got := Clone([]interface{}{"a", 1, map[string]interface{}{"b": "c"}}, upper)
	assert.Equal(t, []interface{}{"a!", 1, map[string]interface{}{"b": "c!"}}, got)

	// clones that don't fit a typed slot fall back to the original
	bad := OptionClone(func(v interface{}) (interface{}, bool) {
		if _, ok := v.(int); ok {
			return "nope", true
		}
		return nil, false
	})
	assert.Equal(t, []int{1, 2}, Clone([]int{1, 2}, bad))
}
