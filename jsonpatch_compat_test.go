package deeppatch

import (
	"testing"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/stretchr/testify/require"
)

var compatDocuments = []string{
	`{}`,
	`[]`,
	`null`,
	`{"a":100,"foo":[1,2,3],"bar":false,"baz":{"a":{"b":4,"c":false},"e":null,"g":"apples"}}`,
	`{"a":99,"foo":[1,2,3],"bar":false,"baz":{"a":{"b":5,"c":false},"e":"dogecoin","f":false}}`,
	`{"a":99,"foo":[3,2,1,0],"baz":[{"a":1},{"a":1},{"a":2}]}`,
	`[{"a":1},{"a":1},{"a":1},"x"]`,
	`[[1,2],[1,2,3],[]]`,
	`{"a~b":{"c/d":[true,false]},"":"empty"}`,
	`"string"`,
}

// patches created here must be readable & applicable by an independent
// JSON Patch implementation
func TestCreateJSONPatchCompat(t *testing.T) {
	for i, left := range compatDocuments {
		for j, right := range compatDocuments {
			var l, r interface{}
			require.NoError(t, json.Unmarshal([]byte(left), &l))
			require.NoError(t, json.Unmarshal([]byte(right), &r))

			patch, err := Create(l, r)
			require.NoError(t, err)
			if patch == nil {
				require.True(t, Equal(l, r), "no patch for unequal documents %d, %d", i, j)
				continue
			}
			data, err := json.Marshal(patch)
			require.NoError(t, err)

			decoded, err := jsonpatch.DecodePatch(data)
			require.NoError(t, err, "%s", data)
			out, err := decoded.Apply([]byte(left))
			if err != nil {
				// whole document replacements aren't supported by every
				// implementation
				if p, ok := patch.(VerbosePatch); ok && len(p) == 1 && p[0].Path.IsRoot() {
					continue
				}
				t.Fatalf("documents %d -> %d: applying %s: %s", i, j, data, err)
			}

			var got interface{}
			require.NoError(t, json.Unmarshal(out, &got))
			if !Equal(r, got) {
				t.Errorf("documents %d -> %d: patch %s\nexpected: %s\ngot:      %s", i, j, data, right, out)
			}
		}
	}
}

// patches written for other implementations apply with the same result
func TestApplyJSONPatchCompat(t *testing.T) {
	cases := []struct {
		doc, patch string
	}{
		{`{"foo":"bar"}`, `[{"op":"add","path":"/baz","value":"qux"}]`},
		{`{"foo":["bar","baz"]}`, `[{"op":"add","path":"/foo/1","value":"qux"}]`},
		{`{"foo":["bar","baz"]}`, `[{"op":"add","path":"/foo/-","value":"qux"}]`},
		{`{"baz":"qux","foo":"bar"}`, `[{"op":"remove","path":"/baz"}]`},
		{`{"foo":{"bar":"baz","waldo":"fred"},"qux":{"corge":"grault"}}`, `[{"op":"move","from":"/foo/waldo","path":"/qux/thud"}]`},
		{`{"foo":["all","grass","cows","eat"]}`, `[{"op":"move","from":"/foo/1","path":"/foo/3"}]`},
		{`{"foo":[1,2]}`, `[{"op":"copy","from":"/foo/0","path":"/foo/-"},{"op":"test","path":"/foo/2","value":1}]`},
		{`{"a/b":{"m~n":1}}`, `[{"op":"replace","path":"/a~1b/m~0n","value":[null]}]`},
	}

	for _, c := range cases {
		t.Run(c.patch, func(t *testing.T) {
			decoded, err := jsonpatch.DecodePatch([]byte(c.patch))
			require.NoError(t, err)
			expectJSON, err := decoded.Apply([]byte(c.doc))
			require.NoError(t, err)
			var expect interface{}
			require.NoError(t, json.Unmarshal(expectJSON, &expect))

			var doc interface{}
			require.NoError(t, json.Unmarshal([]byte(c.doc), &doc))
			patch, err := ParsePatchJSON([]byte(c.patch))
			require.NoError(t, err)
			got, err := Apply(doc, patch)
			require.NoError(t, err)

			if !Equal(expect, got) {
				t.Errorf("result mismatch.\nwant: %s\ngot:  %v", expectJSON, got)
			}
		})
	}
}
