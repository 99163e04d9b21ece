package tree

import (
	"errors"
	"fmt"
)

// Unroot converts a rooted tree into an unrooted one in place. The
// first internal child of the root is removed, its children take its
// place, and its branch length is added to the other root child. The
// id of that other child is returned; Root with this id restores the
// original topology.
func (tree *Tree) Unroot() (int, error) {
	root := tree.Node
	if len(root.childNodes) != 2 {
		return 0, errors.New("tree is not rooted")
	}
	var inner, other *Node
	for _, child := range root.childNodes {
		if inner == nil && !child.IsTerminal() {
			inner = child
		} else {
			other = child
		}
	}
	if inner == nil {
		return 0, &DegenerateInputError{Reason: "cannot unroot a tree with two leaves"}
	}

	pos := root.removeChild(inner)
	children := make([]*Node, 0, len(root.childNodes)+len(inner.childNodes))
	children = append(children, root.childNodes[:pos]...)
	for _, child := range inner.childNodes {
		child.Parent = root
		children = append(children, child)
	}
	children = append(children, root.childNodes[pos:]...)
	root.childNodes = children
	other.BranchLength += inner.BranchLength

	tree.rooted = false
	tree.Reindex()
	return other.Id, nil
}

// Root places the root on the branch above the node with the given id,
// splitting the branch length in half. The tree is modified in place.
func (tree *Tree) Root(id int) error {
	if tree.rooted {
		return errors.New("tree is already rooted")
	}
	if id < 0 || id >= tree.NNodes() {
		return fmt.Errorf("no node with id %d", id)
	}
	node := tree.Nodes()[id]
	if node.IsRoot() {
		return errors.New("cannot root above the root node")
	}
	if !node.Parent.IsRoot() {
		tree.rerootAt(node.Parent)
	}

	root := tree.Node
	if len(root.childNodes) < 3 {
		return &DegenerateInputError{Reason: "root must have at least three children"}
	}
	inner := NewNode(nil, 0)
	children := make([]*Node, 0, 2)
	for _, child := range root.childNodes {
		if child == node {
			children = append(children, node)
			continue
		}
		if inner.IsTerminal() {
			children = append(children, inner)
		}
		inner.AddChild(child)
	}
	inner.Parent = root
	root.childNodes = children
	inner.BranchLength = node.BranchLength / 2
	node.BranchLength -= inner.BranchLength

	tree.rooted = true
	tree.Reindex()
	return nil
}

// rerootAt makes an internal node the root by reversing the edges on
// the path to the old root. A degree-two old root is spliced out.
func (tree *Tree) rerootAt(v *Node) {
	if v.IsRoot() {
		return
	}
	var path []*Node
	for n := v; n != nil; n = n.Parent {
		path = append(path, n)
	}
	lengths := make([]float64, len(path)-1)
	for i := range lengths {
		lengths[i] = path[i].BranchLength
	}
	for i := 0; i < len(path)-1; i++ {
		path[i+1].removeChild(path[i])
	}
	for i := 0; i < len(path)-1; i++ {
		path[i].AddChild(path[i+1])
		path[i+1].BranchLength = lengths[i]
	}
	v.Parent = nil
	v.BranchLength = 0

	old := path[len(path)-1]
	if len(old.childNodes) == 1 {
		child := old.childNodes[0]
		child.BranchLength += old.BranchLength
		old.Parent.replaceChild(old, child)
	}

	tree.Node = v
	tree.rooted = false
	tree.Reindex()
}

// Reroot returns a copy of the tree with the root moved next to the
// outgroup leaf. With resolveRoot the outgroup edge is split by a new
// degree-two root; otherwise the root is the parent of the outgroup
// and the tree is unrooted.
func (tree *Tree) Reroot(outgroup string, resolveRoot bool) (*Tree, error) {
	if _, ok := tree.Leaf(outgroup); !ok {
		return nil, &UnknownTaxonError{Taxon: outgroup}
	}
	if tree.NLeaves() < 3 {
		return nil, &DegenerateInputError{Reason: "rerooting needs at least three leaves"}
	}
	t := tree.Copy()
	if t.rooted {
		if _, err := t.Unroot(); err != nil {
			return nil, err
		}
	}
	leaf, _ := t.Leaf(outgroup)
	t.rerootAt(leaf.Parent)

	// Put the outgroup first.
	root := t.Node
	root.removeChild(leaf)
	root.childNodes = append([]*Node{leaf}, root.childNodes...)
	t.Reindex()

	if resolveRoot {
		if err := t.Root(leaf.Id); err != nil {
			return nil, err
		}
	}
	return t, nil
}
