package deeppatch

// Stats holds statistical metadata about a diff
type Stats struct {
	Left  int `json:"leftNodes"`  // count of nodes in the left tree
	Right int `json:"rightNodes"` // count of nodes in the right tree

	LeftWeight  int `json:"leftWeight"`  // byte-ish count of left tree
	RightWeight int `json:"rightWeight"` // byte-ish count of right tree

	Inserts int `json:"inserts,omitempty"` // number of add operations
	Updates int `json:"updates,omitempty"` // number of replace operations
	Deletes int `json:"deletes,omitempty"` // number of remove operations
	Moves   int `json:"moves,omitempty"`   // number of move operations
	Copies  int `json:"copies,omitempty"`  // number of copy operations
	Tests   int `json:"tests,omitempty"`   // number of test operations
}

// NodeChange returns a count of the shift between left & right trees
func (s Stats) NodeChange() int {
	return s.Right - s.Left
}

// PctWeightChange returns a value from -1.0 to max(float64) representing the size shift
// between left & right trees
func (s Stats) PctWeightChange() float64 {
	if s.RightWeight == 0 {
		return 0
	}
	return float64(s.LeftWeight) / float64(s.RightWeight)
}

// Ops returns the total count of operations
func (s Stats) Ops() int {
	return s.Inserts + s.Updates + s.Deletes + s.Moves + s.Copies + s.Tests
}

// PatchStats counts the operations of a patch by type. Node counts & weights
// are left at zero, they need the trees a patch was made from
func PatchStats(p Patch, opts ...Option) (*Stats, error) {
	compact, err := ToCompact(p, opts...)
	if err != nil {
		return nil, err
	}
	st := &Stats{}
	st.count(compact)
	return st, nil
}

// measure fills in stats for a diff of left into right
func (s *Stats) measure(left, right interface{}, patch CompactPatch) {
	*s = Stats{
		Left:        countNodes(left),
		Right:       countNodes(right),
		LeftWeight:  len(marshalValue(left)),
		RightWeight: len(marshalValue(right)),
	}
	s.count(patch)
}

func (s *Stats) count(patch CompactPatch) {
	for _, op := range patch {
		switch op.Type() {
		case OpAdd:
			s.Inserts++
		case OpReplace:
			s.Updates++
		case OpRemove:
			s.Deletes++
		case OpMove:
			s.Moves++
		case OpCopy:
			s.Copies++
		case OpTest:
			s.Tests++
		}
	}
}

// countNodes counts every value in a tree, the root included. references
// revisited along one path are counted once
func countNodes(v interface{}) int {
	return (&nodeCounter{}).count(v)
}

type nodeCounter struct {
	stack []identity
}

func (c *nodeCounter) count(v interface{}) int {
	kind, rv := classify(v)
	if kind == KindAbsent {
		return 0
	}

	if id, ok := identityOf(rv); ok {
		for _, seen := range c.stack {
			if seen == id {
				return 1
			}
		}
		c.stack = append(c.stack, id)
		defer func() { c.stack = c.stack[:len(c.stack)-1] }()
	}

	n := 1
	switch kind {
	case KindBoxed:
		return c.count(rv.Elem().Interface())
	case KindArray, KindFixedArray:
		for i := 0; i < rv.Len(); i++ {
			n += c.count(interfaceOf(rv.Index(i)))
		}
	case KindSet:
		n += rv.Len()
	case KindMap:
		iter := rv.MapRange()
		for iter.Next() {
			n += c.count(interfaceOf(iter.Value()))
		}
	case KindObject:
		sv := structOf(rv)
		for _, f := range fieldsOf(sv.Type()) {
			n += c.count(interfaceOf(sv.Field(f.index)))
		}
	}
	return n
}
