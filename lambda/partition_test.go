package lambda

import (
	"testing"

	"github.com/op/go-logging"

	"github.com/bucongfan/CAFE/tree"
)

func init() {
	logging.SetLevel(logging.WARNING, "lambda")
	logging.SetLevel(logging.WARNING, "likelihood")
	logging.SetLevel(logging.WARNING, "optimize")
}

func TestParsePartition(tst *testing.T) {
	t, err := tree.ParseNewickString("((a:0.5,b:0.5):0.5,c:1);")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	n, err := ParsePartition("((b:2,a:1):2,c:1);", t)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if n != 2 {
		tst.Error("Expected 2 rate classes, got", n)
	}
	classes := make(map[string]int)
	for node := range t.Walker(nil) {
		if !node.IsRoot() {
			classes[signature(node)] = node.Class
		}
	}
	want := map[string]int{"a": 1, "b": 2, "a,b": 2, "c": 1}
	for sig, class := range want {
		if classes[sig] != class {
			tst.Error("Branch", sig, ": expected class", class, "got", classes[sig])
		}
	}
}

func TestParsePartitionErrors(tst *testing.T) {
	t, err := tree.ParseNewickString("((a:0.5,b:0.5):0.5,c:1);")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for _, s := range []string{
		"((a:1,b:3):3,c:1);",   // gap in class numbering
		"((a:1,d:2):2,c:1);",   // unknown leaf
		"((a:1.5,b:2):2,c:1);", // fractional class
		"(a:1,b:1);",           // wrong leaf count
	} {
		if _, err := ParsePartition(s, t); err == nil {
			tst.Error("Expected error for", s)
		}
	}
}

func TestUniformPartition(tst *testing.T) {
	t, err := tree.ParseNewickString("((a:0.5#2,b:0.5):0.5,c:1);")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if n := UniformPartition(t); n != 1 {
		tst.Error("Expected 1 class, got", n)
	}
	for node := range t.Walker(nil) {
		if !node.IsRoot() && node.Class != 1 {
			tst.Error("Branch", node.LongString(), "not in class 1")
		}
	}
}

func TestNumClassesFromTree(tst *testing.T) {
	t, err := tree.ParseNewickString("((a:0.5#1,b:0.5#2):0.5#2,c:1);")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// The unlabelled branch counts as class one.
	n, err := NumClasses(t)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if n != 2 {
		tst.Error("Expected 2 classes, got", n)
	}
}
