// Package tree implements phylogenetic trees: Newick input and output,
// rooting, pruning, bipartition comparison and the rearrangement moves
// used by tree searches.
//
// Node ids are contiguous (0..NNodes()-1) and index Nodes(). Per-node
// working arrays of the scoring engines are indexed by node id.
// Operations which change the topology return a new tree unless their
// documentation says otherwise.
package tree

import (
	"fmt"
	"sort"
	"strings"
)

// ScoreKind tells which engine produced a tree score.
type ScoreKind int

// Score kinds.
const (
	// Distance is the total tree length of a distance tree.
	Distance ScoreKind = iota
	// Parsimony is the minimum number of state changes.
	Parsimony
	// LogLikelihood is the log-likelihood of the tree and model.
	LogLikelihood
)

func (k ScoreKind) String() string {
	switch k {
	case Distance:
		return "length"
	case Parsimony:
		return "parsimony"
	case LogLikelihood:
		return "lnL"
	}
	return fmt.Sprintf("ScoreKind(%d)", int(k))
}

// Score is a record attached to a tree by the engine which produced
// it. It must not be modified once attached.
type Score struct {
	Kind  ScoreKind
	Value float64
	// Parameters are model parameter values (likelihood only).
	Parameters map[string]float64
}

// Tree is a phylogenetic tree. Unrooted trees have a root node of
// degree three or more; rooted trees have a root of degree two.
type Tree struct {
	*Node
	rooted bool
	// Score is an optional score of the tree.
	Score *Score

	nNodes    int
	nodes     []*Node
	nodeOrder []*Node
}

// New creates a tree from a root node and renumbers the nodes. The
// tree is rooted if the root has exactly two children.
func New(root *Node) *Tree {
	tree := &Tree{Node: root, rooted: len(root.childNodes) == 2}
	tree.Reindex()
	return tree
}

// ClearCache forgets cached node lists. It must be called after
// modifying the tree structure in place.
func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.nodeOrder = nil
}

// Reindex assigns node ids in pre-order starting from zero at the
// root.
func (tree *Tree) Reindex() {
	id := 0
	var walk func(*Node)
	walk = func(node *Node) {
		node.Id = id
		id++
		for _, child := range node.childNodes {
			walk(child)
		}
	}
	tree.Node.Parent = nil
	walk(tree.Node)
	tree.ClearCache()
}

// IsRooted returns true for rooted trees.
func (tree *Tree) IsRooted() bool {
	return tree.rooted
}

func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// Nodes returns all nodes indexed by node id.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.Id] = node
		}
	}
	return tree.nodes
}

func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(n *Node) bool {
		return n.IsTerminal()
	})
}

func (tree *Tree) NonTerminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return !node.IsTerminal()
	})
}

// Leaves returns the leaves in pre-order.
func (tree *Tree) Leaves() (leaves []*Node) {
	for node := range tree.Terminals() {
		leaves = append(leaves, node)
	}
	return
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// LeafNames returns sorted leaf names.
func (tree *Tree) LeafNames() []string {
	leaves := tree.Leaves()
	names := make([]string, len(leaves))
	for i, leaf := range leaves {
		names[i] = leaf.Name
	}
	sort.Strings(names)
	return names
}

// Leaf returns a leaf by its name.
func (tree *Tree) Leaf(name string) (*Node, bool) {
	for node := range tree.Terminals() {
		if node.Name == name {
			return node, true
		}
	}
	return nil, false
}

// Edges returns all non-root nodes; each stands for the edge above it.
func (tree *Tree) Edges() (edges []*Node) {
	for _, node := range tree.Nodes() {
		if !node.IsRoot() {
			edges = append(edges, node)
		}
	}
	return
}

// TotalLength returns the sum of all branch lengths.
func (tree *Tree) TotalLength() (l float64) {
	for _, node := range tree.Edges() {
		l += node.BranchLength
	}
	return
}

func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// Copy creates independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	nNodes := tree.NNodes()
	newTree = &Tree{
		rooted: tree.rooted,
		Score:  tree.Score,
		nNodes: nNodes,
		nodes:  make([]*Node, nNodes),
	}

	// Create node list.
	for i, node := range tree.Nodes() {
		if i != node.Id {
			panic("node id mismatch")
		}
		newTree.nodes[i] = node.Copy()
	}

	// Rewire node/parent connections.
	for i, node := range tree.Nodes() {
		newNode := newTree.nodes[i]
		for _, child := range node.childNodes {
			newNode.AddChild(newTree.nodes[child.Id])
		}
	}

	newTree.Node = newTree.nodes[tree.Node.Id]

	return
}

// NodeOrder returns internal nodes in post-order, i.e. every node comes
// after all of its children and the root is the last one.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		for _, node := range tree.PostOrder() {
			if !node.IsTerminal() {
				tree.nodeOrder = append(tree.nodeOrder, node)
			}
		}
	}
	return tree.nodeOrder
}

// PostOrder returns all nodes in post-order.
func (tree *Tree) PostOrder() []*Node {
	res := make([]*Node, 0, tree.NNodes())
	type frame struct {
		node *Node
		next int
	}
	stack := []frame{{tree.Node, 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.childNodes) {
			child := top.node.childNodes[top.next]
			top.next++
			stack = append(stack, frame{child, 0})
			continue
		}
		res = append(res, top.node)
		stack = stack[:len(stack)-1]
	}
	return res
}

type Node struct {
	Name         string
	BranchLength float64
	Parent       *Node
	childNodes   []*Node
	Id           int
}

func NewNode(parent *Node, nodeId int) (node *Node) {
	node = &Node{Parent: parent, Id: nodeId}
	return
}

// Copy creates copy of node with empty parent and children.
func (node *Node) Copy() *Node {
	return &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		Id:           node.Id,
	}
}

func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

// replaceChild puts newChild in place of oldChild keeping the order.
func (node *Node) replaceChild(oldChild, newChild *Node) {
	for i, child := range node.childNodes {
		if child == oldChild {
			node.childNodes[i] = newChild
			newChild.Parent = node
			return
		}
	}
	panic("replaceChild: not a child")
}

// removeChild removes a child and returns its former position.
func (node *Node) removeChild(child *Node) int {
	for i, c := range node.childNodes {
		if c == child {
			node.childNodes = append(node.childNodes[:i], node.childNodes[i+1:]...)
			return i
		}
	}
	panic("removeChild: not a child")
}

func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v", node.Id, node.BranchLength)
	s += ">"
	return
}

func (node *Node) FullString() string {
	return strings.TrimSpace(node.prefixString(""))
}

func (node *Node) prefixString(prefix string) (s string) {
	s = prefix + node.LongString() + "\n"
	for _, node := range node.childNodes {
		s += node.prefixString(prefix + "    ")
	}
	return
}

func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

// NSubLeaves returns the number of leaves in the subtree.
func (node *Node) NSubLeaves() (size int) {
	if node.IsTerminal() {
		return 1
	}
	for _, node := range node.childNodes {
		size += node.NSubLeaves()
	}
	return
}

// IsAncestorOf returns true if other is in the subtree of node
// (including node itself).
func (node *Node) IsAncestorOf(other *Node) bool {
	for n := other; n != nil; n = n.Parent {
		if n == node {
			return true
		}
	}
	return false
}

func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}
