package tree

import (
	"testing"
)

const nwk = "((human:6#1,chimp:6#1):81#2,mouse:87#2);"

func TestParseNewick(tst *testing.T) {
	t, err := ParseNewickString(nwk)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if t.NNodes() != 5 {
		tst.Error("Expected 5 nodes, got", t.NNodes())
	}
	if t.NLeaves() != 3 {
		tst.Error("Expected 3 leaves, got", t.NLeaves())
	}
	names := make(map[string]int)
	for node := range t.Terminals() {
		names[node.Name] = node.LeafID
	}
	if len(names) != 3 {
		tst.Error("Expected 3 leaf names, got", names)
	}
	if names["human"] != 0 || names["chimp"] != 1 || names["mouse"] != 2 {
		tst.Error("Unexpected leaf ids:", names)
	}
}

func TestClasses(tst *testing.T) {
	t, err := ParseNewickString(nwk)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		want := 2
		if node.Name == "human" || node.Name == "chimp" {
			want = 1
		}
		if node.IsTerminal() && node.Class != want {
			tst.Error("Node", node.Name, "expected class", want, "got", node.Class)
		}
	}
}

func TestNodeOrder(tst *testing.T) {
	t, err := ParseNewickString(nwk)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	order := t.NodeOrder()
	if len(order) != 2 {
		tst.Fatal("Expected 2 internal nodes in order, got", len(order))
	}
	if !order[len(order)-1].IsRoot() {
		tst.Error("Root must come last in node order")
	}
	seen := make(map[*Node]bool)
	for _, node := range order {
		for _, child := range node.ChildNodes() {
			if !child.IsTerminal() && !seen[child] {
				tst.Error("Child visited after parent:", child.LongString())
			}
		}
		seen[node] = true
	}
}

func TestMaxBranchLength(tst *testing.T) {
	t, err := ParseNewickString(nwk)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if t.MaxBranchLength() != 87 {
		tst.Error("Expected max branch length 87, got", t.MaxBranchLength())
	}
}

func TestFamilyString(tst *testing.T) {
	t, err := ParseNewickString("(a:1,b:1);")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	s := t.FamilyString([]int{3, 5}, []float64{0.25})
	expected := "(a_3:0.25,b_5:0.25);"
	if s != expected {
		tst.Errorf("Expected %q, got %q", expected, s)
	}
}

func TestParseErrors(tst *testing.T) {
	for _, bad := range []string{
		"(a:1,b:1));",
		"a:1,b:1;",
		"(a:-1,b:1);",
		"(a:x,b:1);",
	} {
		if _, err := ParseNewickString(bad); err == nil {
			tst.Errorf("Expected error parsing %q", bad)
		}
	}
}
