package lambda

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// worstScore marks a grid point as numerically degenerate.
const worstScore = -1e300

// Range is one rate dimension of a grid evaluation.
type Range struct {
	Start, Step, End float64
}

// ParseRange parses "start:step:end"; a bare number is a single point.
func ParseRange(s string) (Range, error) {
	fields := strings.Split(s, ":")
	var r Range
	switch len(fields) {
	case 1:
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %v", s, err)
		}
		r.Start, r.End = x, x
		return r, nil
	case 3:
		var err error
		if r.Start, err = strconv.ParseFloat(fields[0], 64); err != nil {
			return r, fmt.Errorf("bad range %q: %v", s, err)
		}
		if r.Step, err = strconv.ParseFloat(fields[1], 64); err != nil {
			return r, fmt.Errorf("bad range %q: %v", s, err)
		}
		if r.End, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return r, fmt.Errorf("bad range %q: %v", s, err)
		}
		if r.Step <= 0 && r.End != r.Start {
			return r, fmt.Errorf("bad range %q: step must be positive", s)
		}
		return r, nil
	}
	return r, fmt.Errorf("bad range %q: want start:step:end", s)
}

// Size returns the number of grid points of the dimension.
func (r Range) Size() int {
	if r.Step == 0 || r.End == r.Start {
		return 1
	}
	return 1 + int(math.RoundToEven((r.End-r.Start)/r.Step))
}

// EvalGrid evaluates the posterior score at every point of the
// Cartesian grid, without optimization, and writes one tab-separated
// line per point: the rate values in dimension order followed by the
// score. The last dimension varies fastest. A point whose score is
// numerically worst clears every family's best root marker; the score
// itself is still recorded.
func (s *Searcher) EvalGrid(ranges []Range, w io.Writer) error {
	if len(ranges) != s.Layout.NumParams() {
		return fmt.Errorf("%d ranges given, the model needs %d", len(ranges), s.Layout.NumParams())
	}
	for i, r := range ranges {
		log.Noticef("%d'st Distribution: %f : %f : %f", i+1, r.Start, r.Step, r.End)
	}

	sizes := make([]int, len(ranges))
	total := 1
	for i, r := range ranges {
		sizes[i] = r.Size()
		total *= sizes[i]
	}

	point := make([]float64, len(ranges))
	for p := 0; p < total; p++ {
		rem := p
		for d := len(ranges) - 1; d >= 0; d-- {
			point[d] = ranges[d].Start + float64(rem%sizes[d])*ranges[d].Step
			rem /= sizes[d]
		}
		score := s.Evaluate(point)
		if score < worstScore {
			s.Fams.ClearBestRoots()
		}
		fields := make([]string, len(point)+1)
		for d, x := range point {
			fields[d] = strconv.FormatFloat(x, 'f', 6, 64)
		}
		fields[len(point)] = strconv.FormatFloat(score, 'f', 6, 64)
		if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}
