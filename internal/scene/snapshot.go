package scene

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// SnapshotSize is the edge length of the rendered snapshot.
const SnapshotSize = 6 * vg.Inch

var (
	cameraColor = color.RGBA{R: 70, G: 110, B: 200, A: 255}
	anchorColor = color.RGBA{R: 220, G: 80, B: 40, A: 255}
)

// Snapshot renders the current scene as a top-down view of the X/Z plane:
// the recorded camera path as a line and every anchor's displayed position
// as a marker.
func (g *Graph) Snapshot(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	track := g.CameraTrack()
	anchors := g.Anchors()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scene (%d anchors)", len(anchors))
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "z (m)"
	p.Add(plotter.NewGrid())

	if len(track) > 0 {
		pts := make(plotter.XYs, len(track))
		for i, v := range track {
			pts[i] = plotter.XY{X: v.X, Y: v.Z}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("camera track: %w", err)
		}
		line.Color = cameraColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("camera", line)
	}

	if len(anchors) > 0 {
		pts := make(plotter.XYs, len(anchors))
		for i, a := range anchors {
			pts[i] = plotter.XY{X: a.Pose.Translation.X, Y: a.Pose.Translation.Z}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("anchors: %w", err)
		}
		scatter.GlyphStyle.Color = anchorColor
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("anchor", scatter)
	}

	p.Legend.Top = true

	c := vgimg.New(SnapshotSize, SnapshotSize)
	p.Draw(draw.New(c))
	return c.Image(), nil
}
