package tree

import (
	"fmt"
)

// NNIMove is a nearest-neighbor interchange across the edge above
// Node: its Child-th child is swapped with the first sibling of Node.
type NNIMove struct {
	Node, Child int
}

// SPRMove prunes the subtree above Prune and regrafts it onto the
// edge above Target.
type SPRMove struct {
	Prune, Target int
}

func firstSibling(node *Node) *Node {
	for _, s := range node.Parent.childNodes {
		if s != node {
			return s
		}
	}
	return nil
}

// NNIMoves lists all interchanges for internal edges of the tree.
func (tree *Tree) NNIMoves() (moves []NNIMove) {
	for _, node := range tree.Nodes() {
		if node.IsRoot() || node.IsTerminal() {
			continue
		}
		if firstSibling(node) == nil {
			continue
		}
		for i := range node.childNodes {
			moves = append(moves, NNIMove{node.Id, i})
			// Swapping any child of a bifurcation gives the two
			// distinct neighbors; more are only possible for
			// multifurcations.
			if len(node.childNodes) == 2 && i == 1 {
				break
			}
		}
	}
	return
}

// NNI returns a copy of the tree with the interchange applied. Node ids
// are preserved.
func (tree *Tree) NNI(m NNIMove) (*Tree, error) {
	if m.Node < 0 || m.Node >= tree.NNodes() {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("nni: no node with id %d", m.Node)}
	}
	t := tree.Copy()
	node := t.Nodes()[m.Node]
	if node.IsRoot() || node.IsTerminal() {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("nni: node %d is not an internal edge", m.Node)}
	}
	if m.Child < 0 || m.Child >= len(node.childNodes) {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("nni: node %d has no child %d", m.Node, m.Child)}
	}
	sibling := firstSibling(node)
	if sibling == nil {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("nni: node %d has no sibling", m.Node)}
	}
	child := node.childNodes[m.Child]
	parent := node.Parent
	parent.replaceChild(sibling, child)
	node.childNodes[m.Child] = sibling
	sibling.Parent = node
	t.ClearCache()
	t.Score = nil
	return t, nil
}

// validSPR tells if a prune/regraft pair changes the tree.
func validSPR(u, w *Node) bool {
	if u.IsRoot() || w.IsRoot() || u == w {
		return false
	}
	p := u.Parent
	if w == p || u.IsAncestorOf(w) {
		return false
	}
	if p.IsRoot() {
		// A rooted tree would lose its root.
		if len(p.childNodes) < 3 {
			return false
		}
		// The two remaining root edges become a single edge.
		if len(p.childNodes) == 3 && w.Parent == p {
			return false
		}
		return true
	}
	if w.Parent == p && len(p.childNodes) == 2 {
		return false
	}
	return true
}

// SPRMoves lists all subtree prune and regraft moves which change the
// tree.
func (tree *Tree) SPRMoves() (moves []SPRMove) {
	nodes := tree.Nodes()
	for _, u := range nodes {
		for _, w := range nodes {
			if validSPR(u, w) {
				moves = append(moves, SPRMove{u.Id, w.Id})
			}
		}
	}
	return
}

// SPR returns a copy of the tree with the move applied. The regrafted
// edge is split in half. A node left with a single child by the prune
// is spliced out and reused for the new attachment point so that node
// ids stay contiguous; at an unrooted root, an internal child is merged
// into the root instead.
func (tree *Tree) SPR(m SPRMove) (*Tree, error) {
	n := tree.NNodes()
	if m.Prune < 0 || m.Prune >= n || m.Target < 0 || m.Target >= n {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("spr: bad node ids %d, %d", m.Prune, m.Target)}
	}
	t := tree.Copy()
	nodes := t.Nodes()
	u, w := nodes[m.Prune], nodes[m.Target]
	if !validSPR(u, w) {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("spr: invalid move %d -> %d", m.Prune, m.Target)}
	}
	p := u.Parent
	p.removeChild(u)
	var joint *Node
	switch {
	case p.IsRoot() && len(p.childNodes) == 2:
		var inner, other *Node
		for _, child := range p.childNodes {
			if inner == nil && !child.IsTerminal() {
				inner = child
			} else {
				other = child
			}
		}
		pos := p.removeChild(inner)
		children := make([]*Node, 0, len(p.childNodes)+len(inner.childNodes))
		children = append(children, p.childNodes[:pos]...)
		for _, child := range inner.childNodes {
			child.Parent = p
			children = append(children, child)
		}
		children = append(children, p.childNodes[pos:]...)
		p.childNodes = children
		other.BranchLength += inner.BranchLength
		joint = inner
	case !p.IsRoot() && len(p.childNodes) == 1:
		child := p.childNodes[0]
		child.BranchLength += p.BranchLength
		p.Parent.replaceChild(p, child)
		joint = p
	default:
		joint = NewNode(nil, n)
	}
	joint.childNodes = nil
	joint.Name = ""

	q := w.Parent
	q.replaceChild(w, joint)
	joint.AddChild(w)
	joint.AddChild(u)
	joint.BranchLength = w.BranchLength / 2
	w.BranchLength -= joint.BranchLength

	t.ClearCache()
	t.Score = nil
	return t, nil
}
