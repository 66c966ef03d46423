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
	"time"

	"github.com/spf13/cobra"

	"reportcanvas/internal/storage"
)

func historyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and restore saved page snapshots",
	}
	var number, limit, keep, back int

	list := &cobra.Command{
		Use:   "list <dir>",
		Short: "List snapshots of a page, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := storage.Open(abs(args[0]))
			if err != nil {
				return err
			}
			snaps, err := storage.ListSnapshots(cmd.Context(), ph, number-1, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintf(out, "No snapshots for page %d\n", number)
				return nil
			}
			for i, s := range snaps {
				pg, err := s.Page()
				if err != nil {
					fmt.Fprintf(out, "%3d  %s  unreadable: %v\n", i, s.TS.Local().Format(time.DateTime), err)
					continue
				}
				fmt.Fprintf(out, "%3d  %s  %d widgets\n", i, s.TS.Local().Format(time.DateTime), len(pg.Layouts))
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of snapshots")

	restore := &cobra.Command{
		Use:   "restore <dir>",
		Short: "Replace a page with one of its snapshots",
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
			idx := w.canvas.Current()
			snaps, err := storage.ListSnapshots(ctx, w.ph, idx, back+1)
			if err != nil {
				return err
			}
			if back >= len(snaps) {
				return fmt.Errorf("page %d has only %d snapshots", number, len(snaps))
			}
			pg, err := snaps[back].Page()
			if err != nil {
				return err
			}
			if err := w.canvas.RestorePage(ctx, pg); err != nil {
				return fmt.Errorf("restore page %d: %w", number, err)
			}
			if err := w.commit(ctx, idx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored page %d from %s\n", number, snaps[back].TS.Local().Format(time.DateTime))
			return nil
		},
	}
	restore.Flags().IntVar(&back, "back", 1, "how many snapshots to go back (0 is the latest)")

	prune := &cobra.Command{
		Use:   "prune <dir>",
		Short: "Keep only the newest snapshots of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := storage.Open(abs(args[0]))
			if err != nil {
				return err
			}
			n, err := storage.PruneOldSnapshots(cmd.Context(), ph, number-1, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d snapshots\n", n)
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 20, "snapshots to keep")

	cmd.PersistentFlags().IntVarP(&number, "page", "p", 1, "one-based page number")
	cmd.AddCommand(list, restore, prune)
	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the project's widget usage index",
	}
	rebuild := &cobra.Command{
		Use:   "rebuild <dir>",
		Short: "Check the index and rebuild it when it is damaged (--force always rebuilds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := storage.Open(abs(args[0]))
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			if force {
				if err := storage.RebuildIndex(cmd.Context(), ph.Root, ph.Project); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Index rebuilt")
				return nil
			}
			rebuilt, err := storage.DetectAndRebuildIndex(cmd.Context(), ph.Root, ph.Project)
			if err != nil {
				return err
			}
			if rebuilt {
				fmt.Fprintln(cmd.OutOrStdout(), "Index was damaged and has been rebuilt")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Index OK")
			}
			return nil
		},
	}
	rebuild.Flags().Bool("force", false, "rebuild even when the index looks healthy")

	usage := &cobra.Command{
		Use:   "usage <dir> [gid]",
		Short: "Show where widgets are placed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gid := ""
			if len(args) == 2 {
				gid = args[1]
			}
			uses, err := storage.WidgetUsage(cmd.Context(), abs(args[0]), gid)
			if err != nil {
				return err
			}
			for _, u := range uses {
				fmt.Fprintf(cmd.OutOrStdout(), "page %d  %-16s %s\n", u.Page+1, u.Key, u.GID)
			}
			return nil
		},
	}
	cmd.AddCommand(rebuild, usage)
	return cmd
}
