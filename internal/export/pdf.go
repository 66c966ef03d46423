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
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"reportcanvas/internal/catalog"
	"reportcanvas/internal/layout"
	"reportcanvas/internal/properties"
	"reportcanvas/internal/storage"
)

// RGB is an 8-bit colour.
type RGB struct{ R, G, B uint8 }

// PDFOptions controls PDF export behavior. Units are points.
// The grid is scaled to fit the A4 page inside Margin.
type PDFOptions struct {
	Margin      float64
	IncludeGrid bool
	CellStroke  RGB
	InvalidFill RGB
	Pages       []int // if empty, export all pages
}

const (
	a4W = 595.28
	a4H = 841.89
)

// ExportPDF writes every report page to a single A4 PDF at outPath.
// Relative paths are placed under the project's exports folder.
func ExportPDF(ph *storage.ProjectHandle, cat catalog.Catalog, outPath string, opt PDFOptions) error {
	if ph == nil {
		return fmt.Errorf("project handle is nil")
	}
	if opt.Margin <= 0 {
		opt.Margin = 36
	}
	if opt.InvalidFill == (RGB{}) {
		opt.InvalidFill = RGB{R: 255, G: 220, B: 220}
	}
	proj := ph.Project
	props := properties.New(proj.Info, proj.GlobalVars)
	grid := layout.DefaultGrid
	gw, gh := gridSize(grid)
	scale := (a4W - 2*opt.Margin) / gw
	if s := (a4H - 2*opt.Margin) / gh; s < scale {
		scale = s
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(proj.Name, true)
	pdf.SetAuthor("reportcanvas", false)
	pdf.SetFont("Helvetica", "", 9)

	for _, pidx := range pageIndexes(len(proj.Pages), opt.Pages) {
		if pidx < 0 || pidx >= len(proj.Pages) {
			continue
		}
		pdf.AddPage()
		ox, oy := opt.Margin, opt.Margin
		if opt.IncludeGrid {
			pdf.SetDrawColor(220, 220, 220)
			pdf.SetLineWidth(0.2)
			cw := grid.ColWidth() * scale
			for c := 0; c <= grid.Cols; c++ {
				pdf.Line(ox+float64(c)*cw, oy, ox+float64(c)*cw, oy+gh*scale)
			}
			for r := 0; r <= grid.MaxRows; r++ {
				y := oy + float64(r)*grid.RowHeight*scale
				pdf.Line(ox, y, ox+gw*scale, y)
			}
		}
		for _, box := range pageCells(proj.Pages[pidx], cat, props) {
			b := grid.ToBounds(box.Rect)
			x, y := ox+b.X*scale, oy+b.Y*scale
			w, h := b.Width*scale, b.Height*scale
			pdf.SetLineWidth(0.8)
			if box.Invalid {
				pdf.SetDrawColor(200, 0, 0)
				pdf.SetFillColor(int(opt.InvalidFill.R), int(opt.InvalidFill.G), int(opt.InvalidFill.B))
				pdf.Rect(x, y, w, h, "FD")
				pdf.SetTextColor(200, 0, 0)
			} else {
				pdf.SetDrawColor(int(opt.CellStroke.R), int(opt.CellStroke.G), int(opt.CellStroke.B))
				pdf.Rect(x, y, w, h, "D")
				pdf.SetTextColor(0, 0, 0)
			}
			pdf.SetFont("Helvetica", "B", 9)
			pdf.Text(x+3, y+11, box.Title)
			pdf.SetFont("Helvetica", "", 8)
			ly := y + 22
			for _, line := range box.Lines {
				if ly > y+h-3 {
					break
				}
				pdf.Text(x+3, ly, line)
				ly += 10
			}
		}
		pdf.SetTextColor(120, 120, 120)
		pdf.SetFont("Helvetica", "", 8)
		pdf.Text(opt.Margin, a4H-opt.Margin/2, fmt.Sprintf("%s - page %d of %d", proj.Name, pidx+1, len(proj.Pages)))
	}

	if !filepath.IsAbs(outPath) {
		outPath = storage.ExportPath(ph, outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
