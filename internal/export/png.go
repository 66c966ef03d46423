/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"reportcanvas/internal/catalog"
	"reportcanvas/internal/layout"
	"reportcanvas/internal/properties"
	"reportcanvas/internal/storage"
	"reportcanvas/internal/textlayout"
)

// PNGOptions controls PNG export behavior.
// Scale multiplies the canvas pixel size (774 wide); zero means 1.
type PNGOptions struct {
	Scale float64
	Pages []int
}

var (
	pngBackground = color.RGBA{255, 255, 255, 255}
	pngStroke     = color.RGBA{60, 60, 60, 255}
	pngInvalid    = color.RGBA{200, 0, 0, 255}
	pngInvalidBg  = color.RGBA{255, 220, 220, 255}
)

// ExportPNG writes one PNG per report page named page-<n>.png into outDir and
// returns the written paths. A relative outDir is placed under exports.
func ExportPNG(ph *storage.ProjectHandle, cat catalog.Catalog, outDir string, opt PNGOptions) ([]string, error) {
	if ph == nil {
		return nil, fmt.Errorf("project handle is nil")
	}
	scale := opt.Scale
	if scale <= 0 {
		scale = 1
	}
	grid := layout.DefaultGrid
	gw, gh := gridSize(grid)
	pixW := int(math.Round(gw * scale))
	pixH := int(math.Round(gh * scale))

	if !filepath.IsAbs(outDir) {
		outDir = storage.ExportPath(ph, outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	props := properties.New(ph.Project.Info, ph.Project.GlobalVars)

	var written []string
	for _, pidx := range pageIndexes(len(ph.Project.Pages), opt.Pages) {
		if pidx < 0 || pidx >= len(ph.Project.Pages) {
			continue
		}
		img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: pngBackground}, image.Point{}, draw.Src)

		for _, box := range pageCells(ph.Project.Pages[pidx], cat, props) {
			b := grid.ToBounds(box.Rect)
			x0 := int(math.Round(b.X * scale))
			y0 := int(math.Round(b.Y * scale))
			x1 := int(math.Round((b.X+b.Width)*scale)) - 1
			y1 := int(math.Round((b.Y+b.Height)*scale)) - 1
			stroke := pngStroke
			if box.Invalid {
				fillRect(img, x0, y0, x1, y1, pngInvalidBg)
				stroke = pngInvalid
			}
			strokeRect(img, x0, y0, x1, y1, stroke)
			textW := x1 - x0 - 8
			drawLabel(img, x0+4, y0+14, textlayout.Fit(labelFace, box.Title, textW), stroke, x1)
			lh := textlayout.LineHeight(labelFace) + 1
			room := (y1 - 2 - (y0 + 28)) / lh
			if room >= 0 {
				ly := y0 + 28
				for _, line := range textlayout.Block(labelFace, box.Lines, textW, room+1) {
					drawLabel(img, x0+4, ly, line, pngStroke, x1)
					ly += lh
				}
			}
		}

		name := filepath.Join(outDir, fmt.Sprintf("page-%d.png", pidx+1))
		f, err := os.Create(name)
		if err != nil {
			return written, fmt.Errorf("create png: %w", err)
		}
		if err := png.Encode(f, img); err != nil {
			_ = f.Close()
			return written, fmt.Errorf("encode png: %w", err)
		}
		if err := f.Close(); err != nil {
			return written, fmt.Errorf("close png: %w", err)
		}
		written = append(written, name)
	}
	return written, nil
}

var labelFace = basicfont.Face7x13

// drawLabel draws s with labelFace, clipped at maxX.
func drawLabel(img *image.RGBA, x, y int, s string, c color.Color, maxX int) {
	clip := img.SubImage(image.Rect(0, 0, maxX, img.Bounds().Dy())).(*image.RGBA)
	d := &font.Drawer{
		Dst:  clip,
		Src:  image.NewUniform(c),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for x := x0; x <= x1; x++ {
		setPix(img, x, y0, c)
		setPix(img, x, y1, c)
	}
	for y := y0; y <= y1; y++ {
		setPix(img, x0, y, c)
		setPix(img, x1, y, c)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	r := image.Rect(x0, y0, x1+1, y1+1).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func setPix(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
