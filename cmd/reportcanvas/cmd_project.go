/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"reportcanvas/internal/domain"
	applog "reportcanvas/internal/log"
	"reportcanvas/internal/render"
	"reportcanvas/internal/storage"
)

func initCmd() *cobra.Command {
	var template bool
	cmd := &cobra.Command{
		Use:   "init <dir> <name>",
		Short: "Create a new report project with one empty page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, name := abs(args[0]), args[1]
			applog.WithComponent("cli").Info("init project", slog.String("root", root), slog.String("name", name))
			p := domain.Project{
				Name:     name,
				Template: template,
				Info:     domain.ProjectInfo{Name: name},
				Pages:    []domain.Page{{}},
			}
			ph, err := storage.InitProject(root, p)
			if err != nil {
				return err
			}
			openProject = ph
			db, err := storage.InitOrOpenIndex(root)
			if err != nil {
				return fmt.Errorf("create index: %w", err)
			}
			_ = db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Created project at", root)
			return nil
		},
	}
	cmd.Flags().BoolVar(&template, "template", false, "mark the project as a report template")
	return cmd
}

func infoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dir>",
		Short: "Print a summary of the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			ph, err := storage.Open(abs(args[0]))
			if err != nil {
				return err
			}
			openProject = ph
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := ph.Project
			fmt.Fprintf(out, "Project: %s\n", p.Name)
			if ph.Recovered {
				fmt.Fprintln(out, "Recovered: opened from the latest backup")
			}
			if p.Template {
				fmt.Fprintln(out, "Template: yes")
			}
			if p.Readonly {
				fmt.Fprintln(out, "Read-only: yes")
			}
			fmt.Fprintf(out, "Pages: %d\n", len(p.Pages))
			for i, pg := range p.Pages {
				fmt.Fprintf(out, "  page %d: %d widgets\n", i+1, len(pg.Layouts))
				for _, l := range pg.Layouts {
					label := render.InvalidLabel
					if wi := pg.FindWidget(l.Key); wi >= 0 {
						if def, ok := cat.Get(pg.ReportWidgets[wi].WidgetGID); ok {
							label = def.Name
						} else {
							label += " (" + pg.ReportWidgets[wi].WidgetGID + ")"
						}
					}
					fmt.Fprintf(out, "    %-16s %2d,%-2d %2dx%-2d %s\n", l.Key, l.X, l.Y, l.W, l.H, label)
				}
			}
			if len(p.GlobalVars) > 0 {
				fmt.Fprintln(out, "Global variables:")
				for _, v := range p.GlobalVars {
					fmt.Fprintf(out, "  %s = %s\n", v.Key, v.Value)
				}
			}
			fmt.Fprintln(out, "Root:", ph.Root)
			return nil
		},
	}
}

func validateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check the manifest against the schema and the widget catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			root := abs(args[0])
			data, err := os.ReadFile(filepath.Join(root, storage.ManifestFileName))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := storage.Validate(data); err != nil {
				var se *storage.SchemaError
				if errors.As(err, &se) {
					for _, p := range se.Problems {
						fmt.Fprintln(out, "schema:", p)
					}
				}
				return err
			}
			ph, err := storage.Open(root)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			invalid := 0
			for i, pg := range ph.Project.Pages {
				for _, l := range pg.Layouts {
					wi := pg.FindWidget(l.Key)
					switch {
					case wi < 0:
						fmt.Fprintf(out, "page %d: %s has no widget item\n", i+1, l.Key)
						invalid++
					default:
						if _, ok := cat.Get(pg.ReportWidgets[wi].WidgetGID); !ok {
							fmt.Fprintf(out, "page %d: %s references unknown widget %s\n", i+1, l.Key, pg.ReportWidgets[wi].WidgetGID)
							invalid++
						}
					}
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d invalid widgets", invalid)
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}

func readonlyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "readonly <dir> on|off",
		Short:     "Lock the report against edits, or unlock it",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var on bool
			switch args[1] {
			case "on":
				on = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			ctx := cmd.Context()
			if err := w.page(ctx, 1); err != nil {
				return err
			}
			if err := w.canvas.SetReadonly(ctx, on); err != nil {
				return err
			}
			if err := w.commit(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Read-only: %s\n", args[1])
			return nil
		},
	}
}
