package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type parserMode int

const (
	normal parserMode = iota
	length
)

func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc which splits Newick input into
// special characters and words.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick reads a single tree in Newick format. Leaves must be
// named and leaf names must be unique. Internal node labels are kept as
// node names. A root with exactly two children makes a rooted tree.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Split(NewickSplit)

	nodeId := 0
	var root, node *Node
	mode := normal
	done := false

	for !done && scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			if node == nil {
				if root != nil {
					return nil, errors.New("newick: text after the end of the tree")
				}
				root = NewNode(nil, nodeId)
				nodeId++
				node = root
			} else if !node.IsTerminal() || node.Name != "" {
				return nil, errors.New("newick: unexpected bracket")
			}
			// The current node becomes internal; start its first child.
			subNode := NewNode(nil, nodeId)
			nodeId++
			node.AddChild(subNode)
			node = subNode

		case ",":
			if node == nil || node.Parent == nil {
				return nil, errors.New("newick: top level comma mismatch")
			}
			subNode := NewNode(nil, nodeId)
			nodeId++
			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node == nil || node.Parent == nil {
				return nil, errors.New("newick: brackets mismatch")
			}
			node = node.Parent
		case ":":
			if node == nil {
				return nil, errors.New("newick: branch length outside of a node")
			}
			mode = length
		case ";":
			if node != root {
				return nil, errors.New("newick: unbalanced brackets")
			}
			done = true
		default:
			if node == nil {
				if root != nil {
					return nil, errors.New("newick: text after the end of the tree")
				}
				// A single-leaf tree.
				root = NewNode(nil, nodeId)
				nodeId++
				node = root
			}
			switch mode {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, fmt.Errorf("newick: bad branch length: %v", err)
				}
				node.BranchLength = l
				mode = normal
			default:
				node.Name = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("newick: empty input")
	}
	if node != root {
		return nil, errors.New("newick: unbalanced brackets")
	}

	tree = &Tree{Node: root, rooted: len(root.childNodes) == 2}
	seen := make(map[string]bool)
	for leaf := range tree.Terminals() {
		if leaf.Name == "" {
			return nil, errors.New("newick: unnamed leaf")
		}
		if seen[leaf.Name] {
			return nil, fmt.Errorf("newick: duplicate leaf %q", leaf.Name)
		}
		seen[leaf.Name] = true
	}
	return tree, nil
}

// ParseNewickString parses a tree from a string.
func ParseNewickString(s string) (*Tree, error) {
	return ParseNewick(strings.NewReader(s))
}

// String returns the subtree in Newick format with six decimal digits.
func (node *Node) String() string {
	var sb strings.Builder
	node.format(&sb, func(l float64) string {
		return strconv.FormatFloat(l, 'f', 6, 64)
	})
	if node.IsRoot() {
		sb.WriteByte(';')
	}
	return sb.String()
}

// Newick returns the subtree in Newick format with branch lengths at
// full precision, suitable for exact round trips.
func (node *Node) Newick() string {
	var sb strings.Builder
	node.format(&sb, func(l float64) string {
		return strconv.FormatFloat(l, 'g', -1, 64)
	})
	if node.IsRoot() {
		sb.WriteByte(';')
	}
	return sb.String()
}

func (node *Node) format(sb *strings.Builder, fl func(float64) string) {
	if !node.IsTerminal() {
		sb.WriteByte('(')
		for i, child := range node.childNodes {
			if i > 0 {
				sb.WriteByte(',')
			}
			child.format(sb, fl)
		}
		sb.WriteByte(')')
	}
	sb.WriteString(node.Name)
	sb.WriteByte(':')
	sb.WriteString(fl(node.BranchLength))
}
