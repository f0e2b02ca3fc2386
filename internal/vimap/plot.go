package vimap

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// TrajectoryPlotFileName is the name of the top-down trajectory plot written
// next to a saved map.
const TrajectoryPlotFileName = "trajectory.png"

// WriteTrajectoryPlot renders a top-down (x/y) view of the trajectory with
// landmarks scattered behind it and saves it into the given folder. A map
// with no vertices produces no plot and no error.
func WriteTrajectoryPlot(fm *FullMap, folder string) error {
	if len(fm.Vertices) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "Trajectory (top-down)"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	if len(fm.Landmarks) > 0 {
		lmPts := make(plotter.XYs, 0, len(fm.Landmarks))
		for _, lm := range fm.Landmarks {
			lmPts = append(lmPts, plotter.XY{X: lm.X, Y: lm.Y})
		}
		scatter, err := plotter.NewScatter(lmPts)
		if err != nil {
			return fmt.Errorf("failed to build landmark scatter: %w", err)
		}
		scatter.GlyphStyle.Radius = vg.Points(1)
		p.Add(scatter)
		p.Legend.Add("landmarks", scatter)
	}

	trajPts := make(plotter.XYs, 0, len(fm.Vertices))
	for _, v := range fm.Vertices {
		trajPts = append(trajPts, plotter.XY{X: v.X, Y: v.Y})
	}
	line, err := plotter.NewLine(trajPts)
	if err != nil {
		return fmt.Errorf("failed to build trajectory line: %w", err)
	}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("trajectory", line)
	p.Legend.Top = true

	out := filepath.Join(folder, TrajectoryPlotFileName)
	if err := p.Save(8*vg.Inch, 8*vg.Inch, out); err != nil {
		return fmt.Errorf("failed to save trajectory plot: %w", err)
	}
	return nil
}
