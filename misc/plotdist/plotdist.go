// plotdist creates a plot of the posterior score over a rate range,
// from the tab-separated output of a grid evaluation.
package main

import (
	"bufio"
	"flag"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	in := flag.String("in", "", "grid evaluation output file")
	out := flag.String("out", "dist.png", "plot file")
	dim := flag.Int("dim", 0, "rate dimension to plot on the x axis")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}
	f, err := os.Open(*in)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var pts plotter.XYs
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 || *dim >= len(fields)-1 {
			continue
		}
		x, err := strconv.ParseFloat(fields[*dim], 64)
		if err != nil {
			panic(err)
		}
		y, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil || math.IsInf(y, 0) || math.IsNaN(y) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		panic(err)
	}

	p := plot.New()
	p.X.Label.Text = "lambda"
	p.Y.Label.Text = "score"

	if err := plotutil.AddLinePoints(p, "score", pts); err != nil {
		panic(err)
	}

	if err := p.Save(4*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
