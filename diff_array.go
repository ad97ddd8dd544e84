package deeppatch

import (
	"math"
	"reflect"
)

// arrayStep is the edit that reached a cell of the edit table
type arrayStep uint8

const (
	stepNone arrayStep = iota
	stepKeep
	stepAdd
	stepRemove
	stepReplace
	stepCopy
	// stepReplaceAll replaces the whole array with a prefix of the output
	stepReplaceAll
)

type arrayCell struct {
	cost int
	step arrayStep
}

func (d *diff) diffArray(in, out node, ptr Pointer) (CompactPatch, bool, error) {
	if in.kind != KindArray && out.kind != KindArray {
		return nil, false, nil
	}
	if in.kind != out.kind {
		return d.replace(ptr, out.v), true, nil
	}

	patch, err := d.guard(in, out, ptr, func() (CompactPatch, error) {
		return d.editArray(in.rv, out.rv, out.v, ptr), nil
	})
	return patch, true, err
}

// editArray finds the cheapest edit script from a to b, where an edit costs
// the encoded length of its operation. table[i][j] is the least cost of
// turning a[:i] into b[:j], filled bottom-up. At each cell, edits are tried
// in the order keep, add, remove, replace, copy, replace-all & the first
// strictly cheaper candidate wins.
//
// The script is read back from table[m][n]. Removals & replacements are
// emitted first in input order, then additions & copies in output order, so
// every index is valid at the moment its operation runs
func (d *diff) editArray(a, b reflect.Value, output interface{}, ptr Pointer) CompactPatch {
	m, n := a.Len(), b.Len()
	as, bs := elementsOf(a), elementsOf(b)
	cost := newCostModel(d.pricing, ptr)

	// encoded length of each output element & of each output prefix as an
	// array literal
	vlen := make([]int, n)
	prefix := make([]int, n)
	sum := 2
	for j, v := range bs {
		vlen[j] = len(marshalValue(v))
		sum += vlen[j]
		if j > 0 {
			sum++
		}
		prefix[j] = sum
	}

	eqs := make([]int8, m*n)
	equalAt := func(i, j int) bool {
		k := i*n + j
		if eqs[k] == 0 {
			eqs[k] = -1
			if d.eq.equal(as[i], bs[j]) {
				eqs[k] = 1
			}
		}
		return eqs[k] == 1
	}

	table := make([][]arrayCell, m+1)
	for i := range table {
		table[i] = make([]arrayCell, n+1)
		for j := range table[i] {
			table[i][j].cost = math.MaxInt
		}
	}
	table[0][0].cost = 0
	relax := func(i, j, c int, step arrayStep) {
		if c < table[i][j].cost {
			table[i][j] = arrayCell{cost: c, step: step}
		}
	}

	for i := 0; i <= m; i++ {
		for j := 0; j <= n; j++ {
			cur := table[i][j].cost
			if cur == math.MaxInt {
				continue
			}
			if i < m && j < n && equalAt(i, j) {
				relax(i+1, j+1, cur, stepKeep)
			}
			if j < n {
				relax(i, j+1, cur+cost.op(OpAdd, cost.pathLen(i), vlen[j]), stepAdd)
			}
			if i < m {
				relax(i+1, j, cur+cost.op(OpRemove, cost.pathLen(i), -1), stepRemove)
			}
			if i < m && j < n {
				relax(i+1, j+1, cur+cost.op(OpReplace, cost.pathLen(i), vlen[j]), stepReplace)
			}
			if j < n {
				for k := 0; k < i; k++ {
					if equalAt(k, j) {
						relax(i, j+1, cur+cost.op(OpCopy, cost.pathLen(j), cost.pathLen(k)), stepCopy)
					}
				}
			}
			if i < m && j < n {
				relax(i+1, j+1, cost.op(OpReplace, cost.pathLen(-1), prefix[j]), stepReplaceAll)
			}
		}
	}

	// the table can't reach a replacement of the whole array when either side
	// is empty
	whole := 2
	if n > 0 {
		whole = prefix[n-1]
	}
	if cost.op(OpReplace, cost.pathLen(-1), whole) < table[m][n].cost {
		return d.replace(ptr, output)
	}

	removed := make([]bool, m)
	replacedBy := make([]int, m)
	for i := range replacedBy {
		replacedBy[i] = -1
	}
	inserted := make([]arrayStep, n)

	for i, j := m, n; i > 0 || j > 0; {
		switch table[i][j].step {
		case stepKeep:
			i--
			j--
		case stepReplace:
			replacedBy[i-1] = j - 1
			i--
			j--
		case stepRemove:
			removed[i-1] = true
			i--
		case stepAdd, stepCopy:
			inserted[j-1] = table[i][j].step
			j--
		default:
			// a replace-all on the path supersedes every other edit
			return d.replace(ptr, output)
		}
	}

	var patch CompactPatch
	shift := 0
	for i := 0; i < m; i++ {
		switch {
		case removed[i]:
			patch = append(patch, RemoveOp(ptr.ExtendIndex(i-shift)))
			shift++
		case replacedBy[i] >= 0:
			patch = append(patch, ReplaceOp(ptr.ExtendIndex(i-shift), d.clone(bs[replacedBy[i]])))
		}
	}

	for j, step := range inserted {
		switch step {
		case stepCopy:
			if q := d.copySource(bs, j); q >= 0 {
				patch = append(patch, CopyOp(ptr.ExtendIndex(q), ptr.ExtendIndex(j)))
				continue
			}
			patch = append(patch, AddOp(ptr.ExtendIndex(j), d.clone(bs[j])))
		case stepAdd:
			patch = append(patch, AddOp(ptr.ExtendIndex(j), d.clone(bs[j])))
		}
	}
	return patch
}

// copySource finds an earlier output position holding a value equal to
// bs[j]. when additions replay in output order, positions before j already
// hold their final values
func (d *diff) copySource(bs []interface{}, j int) int {
	for q := 0; q < j; q++ {
		if d.eq.equal(bs[q], bs[j]) {
			return q
		}
	}
	return -1
}

func elementsOf(rv reflect.Value) []interface{} {
	els := make([]interface{}, rv.Len())
	for i := range els {
		els[i] = interfaceOf(rv.Index(i))
	}
	return els
}
