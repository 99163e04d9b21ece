package tree

import (
	"math"
	"math/bits"
	"sort"
	"strings"
)

// Bipartition is one side of an edge split, given as sorted leaf names.
// The side which does not contain the alphabetically first leaf is
// used, so every edge has a single representation regardless of
// rooting.
type Bipartition []string

func (b Bipartition) String() string {
	return "{" + strings.Join(b, ",") + "}"
}

type bitset []uint64

func (b bitset) set(i int) {
	b[i/64] |= 1 << uint(i%64)
}

func (b bitset) has(i int) bool {
	return b[i/64]&(1<<uint(i%64)) != 0
}

func (b bitset) count() (n int) {
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return
}

func (b bitset) key() string {
	var sb strings.Builder
	for _, w := range b {
		for i := 0; i < 8; i++ {
			sb.WriteByte(byte(w >> uint(8*i)))
		}
	}
	return sb.String()
}

type split struct {
	set    bitset
	length float64
}

// splits returns canonical splits of all edges keyed by their bitset.
// The two edges at a degree-two root describe the same split and their
// lengths are summed.
func (tree *Tree) splits() (names []string, res map[string]*split) {
	names = tree.LeafNames()
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	n := len(names)
	words := (n + 63) / 64
	below := make([]bitset, tree.NNodes())
	res = make(map[string]*split)
	for _, node := range tree.PostOrder() {
		b := make(bitset, words)
		if node.IsTerminal() {
			b.set(index[node.Name])
		}
		for _, child := range node.childNodes {
			for i, w := range below[child.Id] {
				b[i] |= w
			}
		}
		below[node.Id] = b
		if node.IsRoot() {
			continue
		}
		c := b
		if b.has(0) {
			c = make(bitset, words)
			for i := range c {
				c[i] = ^b[i]
			}
			if r := n % 64; r != 0 {
				c[words-1] &= (1 << uint(r)) - 1
			}
		}
		if c.count() == 0 {
			continue
		}
		k := c.key()
		if s, ok := res[k]; ok {
			s.length += node.BranchLength
		} else {
			res[k] = &split{set: c, length: node.BranchLength}
		}
	}
	return
}

func nonTrivial(s *split, n int) bool {
	c := s.set.count()
	return c >= 2 && c <= n-2
}

// Bipartitions returns the non-trivial splits of the tree in a
// deterministic order.
func (tree *Tree) Bipartitions() []Bipartition {
	names, splits := tree.splits()
	var res []Bipartition
	for _, s := range splits {
		if !nonTrivial(s, len(names)) {
			continue
		}
		var b Bipartition
		for i, name := range names {
			if s.set.has(i) {
				b = append(b, name)
			}
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].String() < res[j].String()
	})
	return res
}

// SplitLengths maps every split (including leaf edges) to its branch
// length. Keys are Bipartition strings.
func (tree *Tree) SplitLengths() map[string]float64 {
	names, splits := tree.splits()
	res := make(map[string]float64, len(splits))
	for _, s := range splits {
		var b Bipartition
		for i, name := range names {
			if s.set.has(i) {
				b = append(b, name)
			}
		}
		res[b.String()] = s.length
	}
	return res
}

func sameLeaves(a, b *Tree) bool {
	la, lb := a.LeafNames(), b.LeafNames()
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i] != lb[i] {
			return false
		}
	}
	return true
}

// EqualTopology returns true if both trees have the same leaves and the
// same non-trivial splits. Rooting is ignored.
func EqualTopology(a, b *Tree) bool {
	if !sameLeaves(a, b) {
		return false
	}
	ba, bb := a.Bipartitions(), b.Bipartitions()
	if len(ba) != len(bb) {
		return false
	}
	for i := range ba {
		if ba[i].String() != bb[i].String() {
			return false
		}
	}
	return true
}

// Equal returns true if trees have the same unrooted topology and every
// split length differs by at most tol.
func Equal(a, b *Tree, tol float64) bool {
	if !EqualTopology(a, b) {
		return false
	}
	la, lb := a.SplitLengths(), b.SplitLengths()
	for k, v := range la {
		if math.Abs(v-lb[k]) > tol {
			return false
		}
	}
	for k, v := range lb {
		if _, ok := la[k]; !ok && math.Abs(v) > tol {
			return false
		}
	}
	return true
}
