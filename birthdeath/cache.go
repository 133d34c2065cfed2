package birthdeath

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/bucongfan/CAFE/tree"
)

// Cache holds transition-probability matrices for every branch of a
// tree under one parameter vector. A cache is built once per candidate
// vector, read concurrently during one likelihood pass, and released
// before the next candidate is evaluated. Branches sharing a length
// and rate share one matrix.
type Cache struct {
	maxSize  int
	matrices []*Matrix
}

type matrixKey struct {
	branchLength float64
	lambda       float64
	mu           float64
}

// Rebuild computes the cache for a tree and per-class rates. Rates are
// indexed by rate class minus one; an unassigned class counts as class
// one. When mus is nil the death rate equals the birth rate. The
// returned cache is immutable.
func Rebuild(t *tree.Tree, rates, mus []float64, maxSize int) (*Cache, error) {
	cache := &Cache{
		maxSize:  maxSize,
		matrices: make([]*Matrix, t.NNodes()),
	}

	keys := make(map[matrixKey][]int)
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		class := node.Class
		if class < 1 {
			class = 1
		}
		if class > len(rates) {
			return nil, fmt.Errorf("branch %d has rate class %d, only %d rates given", node.ID, class, len(rates))
		}
		key := matrixKey{
			branchLength: node.BranchLength,
			lambda:       rates[class-1],
			mu:           rates[class-1],
		}
		if mus != nil {
			key.mu = mus[class-1]
		}
		keys[key] = append(keys[key], node.ID)
	}

	tasks := make(chan matrixKey, len(keys))
	results := make(map[matrixKey]*Matrix, len(keys))
	var mutex sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < runtime.GOMAXPROCS(0); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range tasks {
				m := NewMatrix(maxSize, key.branchLength, key.lambda, key.mu)
				mutex.Lock()
				results[key] = m
				mutex.Unlock()
			}
		}()
	}
	for key := range keys {
		tasks <- key
	}
	close(tasks)
	wg.Wait()

	for key, ids := range keys {
		for _, id := range ids {
			cache.matrices[id] = results[key]
		}
	}
	return cache, nil
}

// MaxSize returns the largest family size tracked by the cache.
func (c *Cache) MaxSize() int {
	return c.maxSize
}

// Prob returns the transition probability over the branch leading to
// node, from parent size s to child size c.
func (c *Cache) Prob(node *tree.Node, s, child int) float64 {
	return c.matrices[node.ID].Get(s, child)
}

// Release drops the cached matrices. The cache must not be read after
// release; the next candidate vector needs a fresh Rebuild.
func (c *Cache) Release() {
	c.matrices = nil
}
