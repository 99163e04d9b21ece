package tree

import (
	"errors"
	"testing"
)

func TestNewickRoundTrip(tst *testing.T) {
	for _, s := range []string{
		"((a:1,b:2)x:3,c:1):0;",
		"(a:0.1,b:0.25,(c:1e-08,d:3)95:0.5):0;",
		"a:0;",
	} {
		t, err := ParseNewickString(s)
		if err != nil {
			tst.Fatal("Error parsing tree", s, err)
		}
		if t.Newick() != s {
			tst.Error("Round trip failed, expected", s, "got", t.Newick())
		}
		for i, node := range t.Nodes() {
			if node.Id != i {
				tst.Error("Ids are not contiguous in", s)
			}
		}
	}
}

func TestParseErrors(tst *testing.T) {
	for _, s := range []string{
		"",
		"(a,b",
		"(a,(b,c);",
		"(a,a);",
		"(a,);",
		"(a:x,b);",
		"(a,b)c);",
	} {
		if _, err := ParseNewickString(s); err == nil {
			tst.Errorf("Parsing %q should fail", s)
		}
	}
}

func TestRestrictComposition(tst *testing.T) {
	for _, s := range []string{tree1, tree4} {
		t, err := ParseNewickString(s)
		if err != nil {
			tst.Fatal("Error parsing tree", err)
		}
		leaves := t.LeafNames()
		s1 := leaves[1:]
		s2 := leaves[2 : len(leaves)-1]

		t1, err := t.Restrict(s1...)
		if err != nil {
			tst.Fatal("Error restricting", err)
		}
		t12, err := t1.Restrict(s2...)
		if err != nil {
			tst.Fatal("Error restricting", err)
		}
		t2, err := t.Restrict(s2...)
		if err != nil {
			tst.Fatal("Error restricting", err)
		}
		if t12.NLeaves() != len(s2) {
			tst.Error("Wrong number of leaves:", t12)
		}
		if !Equal(t12, t2, 1e-9) {
			tst.Error("Restrictions do not compose:", t12, t2)
		}
		if t.NLeaves() != len(leaves) {
			tst.Error("Original tree was modified")
		}
	}
}

func TestRestrictUnrooted(tst *testing.T) {
	t, err := ParseNewickString(tree4)
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	r, err := t.Restrict("a", "b", "c")
	if err != nil {
		tst.Fatal("Error restricting", err)
	}
	if r.IsRooted() || len(r.ChildNodes()) != 3 {
		tst.Error("Expected an unrooted three-leaf star, got", r)
	}
	if r.String() != "(a:2.000000,b:1.000000,c:2.000000):0.000000;" {
		tst.Error("Wrong restricted tree:", r)
	}

	p, err := t.Prune("d", "e", "f")
	if err != nil {
		tst.Fatal("Error pruning", err)
	}
	if !Equal(p, r, 1e-12) {
		tst.Error("Prune and Restrict disagree:", p, r)
	}

	_, err = t.Restrict("a", "zzz")
	var uerr *UnknownTaxonError
	if !errors.As(err, &uerr) || uerr.Taxon != "zzz" {
		tst.Error("Expected unknown taxon error, got", err)
	}
	_, err = t.Restrict()
	var derr *DegenerateInputError
	if !errors.As(err, &derr) {
		tst.Error("Expected degenerate input error, got", err)
	}
}

func TestCollapseShorter(tst *testing.T) {
	t, err := ParseNewickString("((a:1,b:1):0.0001,(c:1,d:1):1,e:1);")
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	c := t.CollapseShorter(0.001)
	if len(c.ChildNodes()) != 4 {
		tst.Error("Expected four root children, got", c)
	}
	bp := c.Bipartitions()
	if len(bp) != 1 || bp[0].String() != "{c,d}" {
		tst.Error("Wrong bipartitions:", bp)
	}
	if len(t.Bipartitions()) != 2 {
		tst.Error("Original tree was modified")
	}
}

func TestLadderize(tst *testing.T) {
	t, err := ParseNewickString("(a:1,(b:1,(c:1,d:1):1):1,e:1);")
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	l := t.Ladderize()
	if l.Newick() != "(((c:1,d:1):1,b:1):1,a:1,e:1):0;" {
		tst.Error("Wrong ladderized tree:", l.Newick())
	}
	if !Equal(t, l, 0) {
		tst.Error("Ladderizing changed the tree")
	}
}

func TestBipartitions(tst *testing.T) {
	t, err := ParseNewickString(tree4)
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	bp := t.Bipartitions()
	expected := []string{"{b,c,d,e}", "{c,d,e}", "{d,e}"}
	if len(bp) != len(expected) {
		tst.Fatal("Wrong bipartitions:", bp)
	}
	for i := range bp {
		if bp[i].String() != expected[i] {
			tst.Error("Expected", expected[i], "got", bp[i])
		}
	}

	o, err := ParseNewickString("((d:1,e:1):1,(c:1,(b:1,(a:1,f:1):1):1):1);")
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if !EqualTopology(t, o) {
		tst.Error("Same unrooted topology is not recognized")
	}
	o2, err := ParseNewickString("((d:1,c:1):1,(e:1,(b:1,(a:1,f:1):1):1):1);")
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if EqualTopology(t, o2) {
		tst.Error("Different topologies compare equal")
	}
}

func checkIds(tst *testing.T, t *Tree) {
	nodes := t.Nodes()
	for i, node := range nodes {
		if node == nil || node.Id != i {
			tst.Fatal("Ids are not contiguous:", t.FullString())
		}
	}
}

func TestNNI(tst *testing.T) {
	t, err := ParseNewickString(tree4)
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	moves := t.NNIMoves()
	if len(moves) != 2*(t.NLeaves()-3) {
		tst.Error("Wrong number of NNI moves:", len(moves))
	}
	seen := make(map[string]bool)
	for _, m := range moves {
		n, err := t.NNI(m)
		if err != nil {
			tst.Fatal("Error applying NNI", m, err)
		}
		checkIds(tst, n)
		if n.NNodes() != t.NNodes() {
			tst.Error("NNI changed the number of nodes")
		}
		if EqualTopology(t, n) {
			tst.Error("NNI did not change topology:", m, n)
		}
		key := ""
		for _, b := range n.Bipartitions() {
			key += b.String()
		}
		if seen[key] {
			tst.Error("Duplicate NNI neighbor:", n)
		}
		seen[key] = true
	}
	if _, err := t.NNI(NNIMove{0, 0}); err == nil {
		tst.Error("NNI at the root should fail")
	}
}

func TestSPR(tst *testing.T) {
	t, err := ParseNewickString(tree4)
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	moves := t.SPRMoves()
	if len(moves) == 0 {
		tst.Fatal("No SPR moves")
	}
	for _, m := range moves {
		n, err := t.SPR(m)
		if err != nil {
			tst.Fatal("Error applying SPR", m, err)
		}
		checkIds(tst, n)
		if n.NLeaves() != t.NLeaves() || n.NNodes() != t.NNodes() {
			tst.Error("SPR changed the tree size:", n)
		}
		if EqualTopology(t, n) {
			tst.Error("SPR did not change topology:", m, n)
		}
		if n.TotalLength() != t.TotalLength() {
			tst.Error("SPR changed the tree length:", n)
		}
	}
	if t.Newick() != "(a:1,(b:1,(c:1,(d:1,e:1):1):1):1,f:1):0;" {
		tst.Error("Original tree was modified:", t.Newick())
	}
}

func TestCheckTaxa(tst *testing.T) {
	t, err := ParseNewickString("(a:1,b:1,c:1);")
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if err := t.CheckTaxa([]string{"c", "b", "a"}); err != nil {
		tst.Error("Unexpected error:", err)
	}
	var merr *MismatchError
	if err := t.CheckTaxa([]string{"a", "b"}); !errors.As(err, &merr) || merr.Taxon != "c" {
		tst.Error("Expected mismatch for c, got", err)
	}
	if err := t.CheckTaxa([]string{"a", "b", "c", "d"}); !errors.As(err, &merr) || merr.Taxon != "d" {
		tst.Error("Expected mismatch for d, got", err)
	}
}
