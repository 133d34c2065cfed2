package lambda

import (
	"fmt"
	"io"

	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/tree"
)

// WriteReport writes the per-family rate report: one line per family
// with its id and the tree annotated with observed sizes and fitted
// rates. Lines for families with a rate at or near the instability
// boundary are prefixed with "@@ ".
func WriteReport(w io.Writer, t *tree.Tree, fams *family.Table) error {
	maxBr := t.MaxBranchLength()
	for _, fam := range fams.Families {
		prefix := ""
		if NearBoundary(fam.Lambda, maxBr) {
			prefix = "@@ "
		}
		_, err := fmt.Fprintf(w, "%s%s\t%s\n", prefix, fam.ID, t.FamilyString(fam.Counts, fam.Lambda))
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteHTML writes the companion table report: one row per family with
// the id and description, one with the annotated tree.
func WriteHTML(w io.Writer, t *tree.Tree, fams *family.Table, name string) error {
	if _, err := fmt.Fprint(w, "<html>\n<body>\n<table border=1>\n"); err != nil {
		return err
	}
	for i, fam := range fams.Families {
		desc := fam.Desc
		if desc == "" {
			desc = "NONE"
		}
		_, err := fmt.Fprintf(w, "<tr><td rowspan=2><a href=pdf/%s-%d.pdf>%s</a></td><td>%s</td></tr>\n",
			name, i+1, fam.ID, desc)
		if err != nil {
			return err
		}
		if _, err = fmt.Fprintf(w, "<tr><td>%s</td></tr>\n", t.FamilyString(fam.Counts, fam.Lambda)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "</table>\n</body>\n</html>\n")
	return err
}
