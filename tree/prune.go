package tree

import (
	"fmt"
	"sort"
)

// UnknownTaxonError is returned when a taxon is not in the tree.
type UnknownTaxonError struct {
	Taxon string
}

func (e *UnknownTaxonError) Error() string {
	return fmt.Sprintf("unknown taxon %q", e.Taxon)
}

// DegenerateInputError is returned when an operation would produce or
// needs an impossible tree.
type DegenerateInputError struct {
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return "degenerate input: " + e.Reason
}

// MismatchError reports a disagreement between tree leaves and a taxa
// list.
type MismatchError struct {
	Taxon  string
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("taxon %q: %s", e.Taxon, e.Reason)
}

// CheckTaxa verifies that the leaves of the tree are exactly the given
// taxa.
func (tree *Tree) CheckTaxa(taxa []string) error {
	want := make(map[string]bool, len(taxa))
	for _, name := range taxa {
		want[name] = true
	}
	seen := make(map[string]bool, len(taxa))
	for _, leaf := range tree.Leaves() {
		if seen[leaf.Name] {
			return &MismatchError{Taxon: leaf.Name, Reason: "duplicate leaf"}
		}
		seen[leaf.Name] = true
		if !want[leaf.Name] {
			return &MismatchError{Taxon: leaf.Name, Reason: "leaf is not in the matrix"}
		}
	}
	for _, name := range taxa {
		if !seen[name] {
			return &MismatchError{Taxon: name, Reason: "taxon is missing from the tree"}
		}
	}
	return nil
}

// Restrict returns a copy of the tree induced by the given leaves.
// Internal nodes left with a single child are removed and their branch
// lengths are added to the child. Unrooted trees stay unrooted.
func (tree *Tree) Restrict(keep ...string) (*Tree, error) {
	if len(keep) == 0 {
		return nil, &DegenerateInputError{Reason: "no taxa left"}
	}
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		if _, ok := tree.Leaf(name); !ok {
			return nil, &UnknownTaxonError{Taxon: name}
		}
		keepSet[name] = true
	}

	t := tree.Copy()
	var rebuild func(*Node) *Node
	rebuild = func(node *Node) *Node {
		if node.IsTerminal() {
			if keepSet[node.Name] {
				return node
			}
			return nil
		}
		children := node.childNodes
		node.childNodes = nil
		for _, child := range children {
			if c := rebuild(child); c != nil {
				node.AddChild(c)
			}
		}
		switch len(node.childNodes) {
		case 0:
			return nil
		case 1:
			child := node.childNodes[0]
			child.BranchLength += node.BranchLength
			return child
		}
		return node
	}

	root := rebuild(t.Node)
	root.Parent = nil
	root.BranchLength = 0
	t.Node = root
	t.Score = nil
	if !tree.rooted {
		t.rooted = false
		if len(root.childNodes) == 2 {
			for _, child := range root.childNodes {
				if !child.IsTerminal() {
					t.rooted = true
					t.Reindex()
					if _, err := t.Unroot(); err != nil {
						return nil, err
					}
					break
				}
			}
		}
	} else {
		t.rooted = len(root.childNodes) == 2
	}
	t.Reindex()
	return t, nil
}

// Prune returns a copy of the tree without the given leaves.
func (tree *Tree) Prune(remove ...string) (*Tree, error) {
	drop := make(map[string]bool, len(remove))
	for _, name := range remove {
		if _, ok := tree.Leaf(name); !ok {
			return nil, &UnknownTaxonError{Taxon: name}
		}
		drop[name] = true
	}
	var keep []string
	for _, leaf := range tree.Leaves() {
		if !drop[leaf.Name] {
			keep = append(keep, leaf.Name)
		}
	}
	return tree.Restrict(keep...)
}

// CollapseShorter returns a copy of the tree where internal edges not
// longer than min are contracted. The result may be multifurcating.
func (tree *Tree) CollapseShorter(min float64) *Tree {
	t := tree.Copy()
	var collapse func(*Node)
	collapse = func(node *Node) {
		children := node.childNodes
		node.childNodes = make([]*Node, 0, len(children))
		for _, child := range children {
			collapse(child)
			if !child.IsTerminal() && child.BranchLength <= min {
				for _, gc := range child.childNodes {
					node.AddChild(gc)
				}
			} else {
				node.AddChild(child)
			}
		}
	}
	collapse(t.Node)
	if t.rooted && len(t.Node.childNodes) != 2 {
		t.rooted = false
	}
	t.Reindex()
	return t
}

// Ladderize returns a copy of the tree where children are sorted by
// decreasing number of leaves.
func (tree *Tree) Ladderize() *Tree {
	t := tree.Copy()
	size := make([]int, t.NNodes())
	for _, node := range t.PostOrder() {
		if node.IsTerminal() {
			size[node.Id] = 1
			continue
		}
		for _, child := range node.childNodes {
			size[node.Id] += size[child.Id]
		}
		sort.SliceStable(node.childNodes, func(i, j int) bool {
			return size[node.childNodes[i].Id] > size[node.childNodes[j].Id]
		})
	}
	t.Reindex()
	return t
}
