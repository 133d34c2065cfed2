// Package tree provides a rooted phylogenetic tree for gene-family
// analysis. Every branch carries a length and an optional rate-class
// label (newick "#n" suffix).
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

type mode int

const (
	normal mode = iota
	length
	class
)

// Tree is a rooted tree. It embeds the root node and caches node
// arrays and the post-order traversal.
type Tree struct {
	*Node
	nNodes    int
	nodes     []*Node
	nodeOrder []*Node
	maxBrLen  float64
}

// NNodes returns the total number of nodes.
func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// Nodes returns all the nodes indexed by node id.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.ID] = node
		}
	}
	return tree.nodes
}

// Terminals returns a channel with all the leaf nodes.
func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return node.IsTerminal()
	})
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// Walker returns a channel with nodes matching a filter, in preorder.
func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// NodeOrder returns internal nodes so that every node comes after all
// of its children; the root is the last element. This is the order a
// pruning pass over the tree must follow.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		computed := make(map[*Node]bool, tree.NNodes())
		awaiting := make(chan *Node, tree.NNodes()*2)
		for node := range tree.Terminals() {
			computed[node] = true
			awaiting <- node.Parent
		}

		for node := range awaiting {
			if node == nil {
				break
			}
			if computed[node] {
				continue
			}
			allComputed := true
			for _, childNode := range node.ChildNodes() {
				if !computed[childNode] {
					allComputed = false
					break
				}
			}
			if !allComputed {
				awaiting <- node
			} else {
				tree.nodeOrder = append(tree.nodeOrder, node)
				computed[node] = true
				awaiting <- node.Parent
			}
		}
	}
	return tree.nodeOrder
}

// MaxBranchLength returns the largest branch length in the tree. The
// product of a rate and this length bounds the validity of the
// birth-death transition probabilities.
func (tree *Tree) MaxBranchLength() float64 {
	if tree.maxBrLen == 0 {
		for node := range tree.Walker(nil) {
			if !node.IsRoot() && node.BranchLength > tree.maxBrLen {
				tree.maxBrLen = node.BranchLength
			}
		}
	}
	return tree.maxBrLen
}

// Node is a single node of a tree.
type Node struct {
	Name         string
	BranchLength float64
	Parent       *Node
	childNodes   []*Node
	// ID is a unique dense node id (preorder).
	ID int
	// LeafID is a dense id of a leaf; undefined for internal nodes.
	LeafID int
	// Class is the rate class of the branch leading to the node;
	// zero means unassigned (treated as class 1).
	Class int
}

// NewNode creates a new node with a given parent and id.
func NewNode(parent *Node, nodeID int) (node *Node) {
	node = &Node{Parent: parent, ID: nodeID}
	return
}

// AddChild appends a child node.
func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

// ChildNodes returns the children of the node.
func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

// Walk sends the node and all descendants matching the filter to a
// channel.
func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

// NSubNodes returns the number of nodes in the subtree, including the
// node itself.
func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

// IsRoot returns true for the root node.
func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

// IsTerminal returns true for a leaf.
func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

func (node *Node) String() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f", node.Name, node.BranchLength)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.String()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	if node.IsRoot() {
		s += ");"
	} else {
		s += fmt.Sprintf("):%0.6f", node.BranchLength)
	}
	return s
}

// ClassString returns the newick representation with rate-class
// labels.
func (node *Node) ClassString() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f#%d", node.Name, node.BranchLength, node.Class)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.ClassString()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	if node.IsRoot() {
		s += ");"
	} else {
		s += fmt.Sprintf("):%0.6f#%d", node.BranchLength, node.Class)
	}
	return s
}

// FamilyString returns the newick representation annotated with leaf
// family sizes and per-branch rates: every leaf is printed as
// name_size, and every branch length is replaced by the rate of the
// branch's class. Counts are indexed by LeafID, rates by rate class.
func (node *Node) FamilyString(counts []int, rates []float64) (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s_%d:%g", node.Name, counts[node.LeafID], classRate(node, rates))
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.FamilyString(counts, rates)
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	if node.IsRoot() {
		s += ");"
	} else {
		s += fmt.Sprintf("):%g", classRate(node, rates))
	}
	return s
}

func classRate(node *Node, rates []float64) float64 {
	class := node.Class
	if class < 1 {
		class = 1
	}
	if class > len(rates) {
		return 0
	}
	return rates[class-1]
}

// LongString returns a debug representation of a node.
func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("ID=%v, BranchLength=%v", node.ID, node.BranchLength)
	if node.IsTerminal() {
		s += fmt.Sprintf(", LeafID=%v", node.LeafID)
	}
	if node.Class != 0 {
		s += fmt.Sprintf(", Class=%v", node.Class)
	}
	s += ">"
	return
}

// FullString returns a debug representation of the subtree.
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

func isSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', '#', ';', ',':
		return true
	}
	return false
}

// newickSplit is a bufio.SplitFunc for newick tokens.
func newickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if isSpecial(r) {
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
		if unicode.IsSpace(r) || isSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// A final, non-empty, non-terminated word.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick parses a newick tree. Branch lengths follow ':', rate
// classes follow '#'. The tree stays rooted.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(newickSplit)

	nodeID := 0
	leafID := 0

	node := NewNode(nil, nodeID)
	tree = &Tree{Node: node}
	nodeID++

	md := normal

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeID)
			nodeID++
			if node != nil {
				node.AddChild(subNode)
			}
			node = subNode

		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeID)
			nodeID++

			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case "#":
			md = class
		case ":":
			md = length
		case ";":
			return
		default:
			switch md {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				if l < 0 {
					return nil, fmt.Errorf("negative branch length %v", l)
				}
				node.BranchLength = l
				md = normal
			case class:
				cl, err := strconv.ParseInt(text, 0, 0)
				if err != nil {
					return nil, err
				}
				node.Class = int(cl)
				md = normal
			default:
				node.LeafID = leafID
				leafID++
				node.Name = text
			}
		}
	}

	return
}

// ParseNewickString parses a newick tree from a string.
func ParseNewickString(s string) (*Tree, error) {
	return ParseNewick(strings.NewReader(s))
}
