/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"reportcanvas/internal/domain"
)

func widgetCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Place, edit and remove widgets on a page",
	}
	cmd.AddCommand(widgetPlaceCmd(g), widgetRemoveCmd(g), widgetSetCmd(g), widgetStyleCmd(g), widgetMoveCmd(g))
	return cmd
}

// onWidget opens dir, loads the page and selects key before running fn.
func onWidget(ctx context.Context, g *globalFlags, dir string, number int, key string, fn func(w *workspace) error) error {
	w, err := openWorkspace(g, dir)
	if err != nil {
		return err
	}
	defer w.close()
	if err := w.page(ctx, number); err != nil {
		return err
	}
	if _, err := w.canvas.Select(key); err != nil {
		return err
	}
	if err := fn(w); err != nil {
		return err
	}
	return w.commit(ctx, w.canvas.Current())
}

func widgetPlaceCmd(g *globalFlags) *cobra.Command {
	var number int
	var at domain.Rect
	cmd := &cobra.Command{
		Use:   "place <dir> <gid>",
		Short: "Place a new widget from the catalog at a grid position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			def, ok := w.cat.Get(args[1])
			if !ok {
				return fmt.Errorf("widget %s is not in the catalog", args[1])
			}
			ctx := cmd.Context()
			if err := w.page(ctx, number); err != nil {
				return err
			}
			item, err := w.canvas.Drop(ctx, def, at)
			if err != nil {
				return err
			}
			if err := w.commit(ctx, w.canvas.Current()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Placed %s as %s on page %d\n", def.Name, item.Key, w.canvas.Current()+1)
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number")
	cmd.Flags().IntVar(&at.X, "x", 0, "grid column")
	cmd.Flags().IntVar(&at.Y, "y", 0, "grid row")
	cmd.Flags().IntVar(&at.W, "w", 0, "width in columns (0 uses the widget minimum)")
	cmd.Flags().IntVar(&at.H, "h", 0, "height in rows (0 uses the widget minimum)")
	return cmd
}

func widgetRemoveCmd(g *globalFlags) *cobra.Command {
	var number int
	cmd := &cobra.Command{
		Use:   "remove <dir> <key>",
		Short: "Remove a widget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := onWidget(cmd.Context(), g, args[0], number, args[1], func(w *workspace) error {
				return w.canvas.DeleteSelected()
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed", args[1])
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number")
	return cmd
}

func widgetSetCmd(g *globalFlags) *cobra.Command {
	var number int
	cmd := &cobra.Command{
		Use:   "set <dir> <key> <property> <value>",
		Short: "Bind a widget property to a value, variable key or ${key} template",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var shown string
			err := onWidget(cmd.Context(), g, args[0], number, args[1], func(w *workspace) error {
				if err := w.canvas.SetProperty(args[2], args[3]); err != nil {
					return err
				}
				shown = w.sess.Properties().Resolve(args[3])
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %q (shows %q)\n", args[1], args[2], args[3], shown)
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number")
	return cmd
}

func widgetStyleCmd(g *globalFlags) *cobra.Command {
	var number int
	var justify, align string
	cmd := &cobra.Command{
		Use:   "style <dir> <key>",
		Short: "Set the horizontal and vertical alignment of a widget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if justify == "" && align == "" {
				return fmt.Errorf("nothing to change: pass --justify or --align")
			}
			return onWidget(cmd.Context(), g, args[0], number, args[1], func(w *workspace) error {
				if justify != "" {
					if err := w.canvas.SetVisualStyle("justifyContent", justify); err != nil {
						return err
					}
				}
				if align != "" {
					return w.canvas.SetVisualStyle("alignItems", align)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number")
	cmd.Flags().StringVar(&justify, "justify", "", "left, center or right")
	cmd.Flags().StringVar(&align, "align", "", "top, center or bottom")
	return cmd
}

func widgetMoveCmd(g *globalFlags) *cobra.Command {
	var number int
	var to domain.Rect
	cmd := &cobra.Command{
		Use:   "move <dir> <key>",
		Short: "Move or resize a widget within its size constraints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[1]
			var placed domain.LayoutItem
			err := onWidget(cmd.Context(), g, args[0], number, key, func(w *workspace) error {
				pg, err := w.sess.Pages.Page(w.canvas.Current())
				if err != nil {
					return err
				}
				li := pg.Layouts[pg.FindLayout(key)]
				moved := li
				moved.X, moved.Y = to.X, to.Y
				if cmd.Flags().Changed("w") {
					moved.W = to.W
				}
				if cmd.Flags().Changed("h") {
					moved.H = to.H
				}
				out, err := w.canvas.ApplyLayout([]domain.LayoutItem{moved}, key)
				if err != nil {
					return err
				}
				for _, it := range out {
					if it.Key == key {
						placed = it
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %d,%d size %dx%d\n", key, placed.X, placed.Y, placed.W, placed.H)
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number")
	cmd.Flags().IntVar(&to.X, "x", 0, "grid column")
	cmd.Flags().IntVar(&to.Y, "y", 0, "grid row")
	cmd.Flags().IntVar(&to.W, "w", 0, "width in columns")
	cmd.Flags().IntVar(&to.H, "h", 0, "height in rows")
	return cmd
}

func varsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Manage global variables and project info fields used by bindings",
	}
	list := &cobra.Command{
		Use:   "list <dir>",
		Short: "List every key a property can be bound to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			for _, v := range w.sess.Properties().Combined() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", v.Key, v.Value)
			}
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set <dir> <key> <value>",
		Short: "Set a global variable",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			vars := w.sess.GlobalVars()
			found := false
			for i := range vars {
				if vars[i].Key == args[1] {
					vars[i].Value = args[2]
					found = true
				}
			}
			if !found {
				vars = append(vars, domain.GlobalVariable{Key: args[1], Value: args[2]})
			}
			w.canvas.SetGlobals(vars)
			return w.commit(cmd.Context())
		},
	}
	unset := &cobra.Command{
		Use:   "unset <dir> <key>",
		Short: "Remove a global variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			var vars []domain.GlobalVariable
			for _, v := range w.sess.GlobalVars() {
				if v.Key != args[1] {
					vars = append(vars, v)
				}
			}
			w.canvas.SetGlobals(vars)
			return w.commit(cmd.Context())
		},
	}
	cmd.AddCommand(list, set, unset)
	return cmd
}
