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

	"github.com/spf13/cobra"
)

func pageCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Add, remove and reorder report pages",
	}
	cmd.AddCommand(pageAddCmd(g), pageRemoveCmd(g), pageMoveCmd(g))
	return cmd
}

func pageAddCmd(g *globalFlags) *cobra.Command {
	var at int
	cmd := &cobra.Command{
		Use:   "add <dir>",
		Short: "Append an empty page, or insert it before page --at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			ctx := cmd.Context()
			if err := w.page(ctx, 1); err != nil {
				return err
			}
			idx, err := w.canvas.AddPage(ctx, at-1)
			if err != nil {
				return err
			}
			if err := w.commit(ctx, idx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added page %d of %d\n", idx+1, w.sess.Pages.Len())
			return nil
		},
	}
	cmd.Flags().IntVar(&at, "at", 0, "one-based position of the new page (0 appends)")
	return cmd
}

func pageRemoveCmd(g *globalFlags) *cobra.Command {
	var number int
	cmd := &cobra.Command{
		Use:   "remove <dir>",
		Short: "Delete a page and its widgets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			ctx := cmd.Context()
			if err := w.page(ctx, number); err != nil {
				return err
			}
			if err := w.canvas.DeletePage(ctx); err != nil {
				return err
			}
			if err := w.commit(ctx, w.canvas.Current()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed page %d, %d pages left\n", number, w.sess.Pages.Len())
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number")
	return cmd
}

func pageMoveCmd(g *globalFlags) *cobra.Command {
	var number, target int
	cmd := &cobra.Command{
		Use:   "move <dir>",
		Short: "Move a page behind the page chosen with --after",
		Long: `Move page --page so that it follows page --after, as the move dialog does.
Choosing the page itself leaves the order unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(g, args[0])
			if err != nil {
				return err
			}
			defer w.close()
			ctx := cmd.Context()
			if err := w.page(ctx, number); err != nil {
				return err
			}
			if target < 1 || target > w.sess.Pages.Len() {
				return fmt.Errorf("--after %d is outside the report", target)
			}
			if err := w.canvas.MovePage(ctx, target-1); err != nil {
				return err
			}
			if err := w.commit(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d is now page %d\n", number, w.canvas.Current()+1)
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "page", "p", 1, "one-based page number to move")
	cmd.Flags().IntVar(&target, "after", 1, "one-based page to move behind")
	return cmd
}
