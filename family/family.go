// Package family stores gene-family size data: per-species counts for
// every family, duplicate references between families with identical
// count vectors, and the family-size ranges tracked by the likelihood
// computation.
package family

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bucongfan/CAFE/tree"
)

// SizeMax is the number of slots in the root-size prior window.
const SizeMax = 1000

// Family is a single gene family: its identifier, description and
// per-species size counts. Counts are ordered by the tree leaf ids
// after AlignTo.
type Family struct {
	ID   string
	Desc string
	// Counts holds the observed family size per species.
	Counts []int
	// Ref is the index of an earlier family with an identical
	// count vector, or -1 when the family is canonical. Duplicate
	// families copy the canonical result instead of recomputing.
	Ref int
	// BestRoot is the root-size index with the maximum likelihood,
	// -1 when unset.
	BestRoot int
	// Lambda holds per-family fitted rates after a per-family
	// search.
	Lambda []float64
}

// MaxCount returns the largest count of the family.
func (f *Family) MaxCount() (m int) {
	for _, c := range f.Counts {
		if c > m {
			m = c
		}
	}
	return
}

// Table is a loaded family table.
type Table struct {
	Species  []string
	Families []*Family
	// MaxSize is the largest observed family size.
	MaxSize int
}

// ParseTable reads a tab-separated family table. The header line has
// two leading columns (description and family id) followed by species
// names; every following line has the corresponding values.
func ParseTable(rd io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty family table")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	if len(header) < 3 {
		return nil, fmt.Errorf("family table header needs a description, an id and at least one species, got %d columns", len(header))
	}
	table := &Table{Species: header[2:]}

	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("family table line %d: expected %d columns, got %d", line, len(header), len(fields))
		}
		fam := &Family{
			Desc:     fields[0],
			ID:       fields[1],
			Counts:   make([]int, len(fields)-2),
			Ref:      -1,
			BestRoot: -1,
		}
		for i, field := range fields[2:] {
			c, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("family table line %d: bad count %q: %v", line, field, err)
			}
			if c < 0 {
				return nil, fmt.Errorf("family table line %d: negative count %d", line, c)
			}
			fam.Counts[i] = c
			if c > table.MaxSize {
				table.MaxSize = c
			}
		}
		table.Families = append(table.Families, fam)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	table.resolveRefs()
	return table, nil
}

// resolveRefs marks families with identical count vectors as
// duplicates of the first occurrence.
func (t *Table) resolveRefs() {
	seen := make(map[string]int, len(t.Families))
	for i, fam := range t.Families {
		key := countsKey(fam.Counts)
		if first, ok := seen[key]; ok {
			fam.Ref = first
		} else {
			seen[key] = i
			fam.Ref = -1
		}
	}
}

func countsKey(counts []int) string {
	var b strings.Builder
	for _, c := range counts {
		b.WriteString(strconv.Itoa(c))
		b.WriteByte(',')
	}
	return b.String()
}

// AlignTo reorders species columns so that counts are indexed by the
// tree leaf ids. Every tree leaf must have a matching column.
func (t *Table) AlignTo(tr *tree.Tree) error {
	if tr.NLeaves() != len(t.Species) {
		return fmt.Errorf("tree has %d leaves, family table has %d species", tr.NLeaves(), len(t.Species))
	}
	col := make(map[string]int, len(t.Species))
	for i, sp := range t.Species {
		col[sp] = i
	}
	perm := make([]int, len(t.Species))
	newSpecies := make([]string, len(t.Species))
	for node := range tr.Terminals() {
		i, ok := col[node.Name]
		if !ok {
			return fmt.Errorf("no family counts for the leaf <%s>", node.Name)
		}
		perm[node.LeafID] = i
		newSpecies[node.LeafID] = node.Name
	}
	for _, fam := range t.Families {
		counts := make([]int, len(fam.Counts))
		for leafID, i := range perm {
			counts[leafID] = fam.Counts[i]
		}
		fam.Counts = counts
	}
	t.Species = newSpecies
	return nil
}

// LeafSizes collects every observed leaf count minus one across all
// families and species. Zero counts are excluded: the root size is
// constrained to at least one.
func (t *Table) LeafSizes() []int {
	var sizes []int
	for _, fam := range t.Families {
		for _, c := range fam.Counts {
			if c > 0 {
				sizes = append(sizes, c-1)
			}
		}
	}
	return sizes
}

// ClearBestRoots marks the best-supported root size of every family
// as unset.
func (t *Table) ClearBestRoots() {
	for _, fam := range t.Families {
		fam.BestRoot = -1
	}
}

// SizeRange bounds the family sizes tracked during a likelihood pass:
// internal and leaf sizes span [Min, Max], candidate root sizes span
// [RootMin, RootMax].
type SizeRange struct {
	Min, Max         int
	RootMin, RootMax int
}

// NewSizeRange builds the range for a given largest observed size.
func NewSizeRange(maxSize int) SizeRange {
	return SizeRange{
		Min:     0,
		Max:     maxInt(60, int(math.Ceil(float64(maxSize)*1.25))),
		RootMin: 1,
		RootMax: maxInt(30, int(math.Ceil(float64(maxSize)*1.25))),
	}
}

// FamilyRange narrows the range to a single family.
func FamilyRange(fam *Family) SizeRange {
	return NewSizeRange(fam.MaxCount())
}

// NRoots returns the number of candidate root sizes.
func (r SizeRange) NRoots() int {
	return r.RootMax - r.RootMin + 1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
