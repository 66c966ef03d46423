/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"reportcanvas/internal/catalog"
	"reportcanvas/internal/export"
	"reportcanvas/internal/storage"
)

func exportCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the report as PDF or PNG",
	}
	var pages []int

	var grid bool
	pdf := &cobra.Command{
		Use:   "pdf <dir> [out.pdf]",
		Short: "Write all pages to one A4 PDF",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, cat, err := exportInputs(g, args[0])
			if err != nil {
				return err
			}
			out := "report.pdf"
			if len(args) == 2 {
				out = args[1]
			}
			opt := export.PDFOptions{IncludeGrid: grid, Pages: zeroBased(pages)}
			if err := export.ExportPDF(ph, cat, out, opt); err != nil {
				return err
			}
			if !filepath.IsAbs(out) {
				out = storage.ExportPath(ph, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", out)
			return nil
		},
	}
	pdf.Flags().BoolVar(&grid, "grid", false, "draw grid lines")

	var scale float64
	png := &cobra.Command{
		Use:   "png <dir> [outdir]",
		Short: "Write one PNG per page",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, cat, err := exportInputs(g, args[0])
			if err != nil {
				return err
			}
			out := "png"
			if len(args) == 2 {
				out = args[1]
			}
			files, err := export.ExportPNG(ph, cat, out, export.PNGOptions{Scale: scale, Pages: zeroBased(pages)})
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), "Wrote", f)
			}
			return nil
		},
	}
	png.Flags().Float64Var(&scale, "scale", 1, "pixel scale of the 774px canvas")

	cmd.PersistentFlags().IntSliceVar(&pages, "pages", nil, "one-based pages to export (default all)")
	cmd.AddCommand(pdf, png)
	return cmd
}

func exportInputs(g *globalFlags, dir string) (*storage.ProjectHandle, catalog.Catalog, error) {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return nil, nil, err
	}
	ph, err := storage.Open(abs(dir))
	if err != nil {
		return nil, nil, err
	}
	openProject = ph
	cat, err := openCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}
	return ph, cat, nil
}

func zeroBased(pages []int) []int {
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p > 0 {
			out = append(out, p-1)
		}
	}
	return out
}
