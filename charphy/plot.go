package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotTrajectory saves a line plot of scores by iteration. The image
// format is chosen by the file extension.
func plotTrajectory(fn, title, label string, scores []float64) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = label

	pts := make(plotter.XYs, len(scores))
	for i, v := range scores {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	if err := plotutil.AddLinePoints(p, label, pts); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, fn)
}
