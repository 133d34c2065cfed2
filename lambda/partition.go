// Package lambda estimates birth-death rate parameters: it defines the
// rate partition and the flat parameter vector, the posterior objective
// function, and the search drivers (global, clustered, per-family and
// grid evaluation) with the multi-run convergence loop.
package lambda

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/op/go-logging"

	"github.com/bucongfan/CAFE/tree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("lambda")

// ParsePartition reads a rate partition in newick form, with a
// positive rate-class index in every branch-length slot, and copies
// the classes onto the matching branches of t. Nodes are matched by
// their descendant leaf names, so the partition tree may list children
// in a different order. Returns the number of rate classes.
func ParsePartition(s string, t *tree.Tree) (int, error) {
	st, err := tree.ParseNewickString(s)
	if err != nil {
		return 0, fmt.Errorf("bad rate partition %q: %v", s, err)
	}
	if st.NLeaves() != t.NLeaves() {
		return 0, fmt.Errorf("rate partition has %d leaves, the tree has %d", st.NLeaves(), t.NLeaves())
	}

	bySig := make(map[string]*tree.Node, t.NNodes())
	for node := range t.Walker(nil) {
		bySig[signature(node)] = node
	}

	for node := range st.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		target, ok := bySig[signature(node)]
		if !ok {
			return 0, fmt.Errorf("rate partition branch <%s> has no matching branch in the tree", signature(node))
		}
		cl := node.BranchLength
		if cl < 1 || cl != math.Trunc(cl) {
			return 0, fmt.Errorf("rate partition branch <%s>: rate class must be a positive integer, got %v", signature(node), cl)
		}
		target.Class = int(cl)
	}
	return NumClasses(t)
}

// UniformPartition assigns every branch to a single rate class.
func UniformPartition(t *tree.Tree) int {
	for node := range t.Walker(nil) {
		if !node.IsRoot() {
			node.Class = 1
		}
	}
	return 1
}

// NumClasses validates the rate classes of the tree branches and
// returns their number. Classes must cover 1..N with no gaps; an
// unassigned branch counts as class one.
func NumClasses(t *tree.Tree) (int, error) {
	seen := make(map[int]bool)
	n := 0
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		class := node.Class
		if class < 1 {
			class = 1
		}
		seen[class] = true
		if class > n {
			n = class
		}
	}
	for class := 1; class <= n; class++ {
		if !seen[class] {
			return 0, fmt.Errorf("rate classes are not contiguous: class %d of %d is unused", class, n)
		}
	}
	return n, nil
}

// signature identifies a node by its sorted descendant leaf names.
func signature(node *tree.Node) string {
	if node.IsTerminal() {
		return node.Name
	}
	var names []string
	ch := make(chan *tree.Node, node.NSubNodes())
	node.Walk(ch, func(n *tree.Node) bool {
		return n.IsTerminal()
	})
	close(ch)
	for leaf := range ch {
		names = append(names, leaf.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
