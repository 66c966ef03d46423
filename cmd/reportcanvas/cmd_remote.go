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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reportcanvas/internal/backend"
	"reportcanvas/internal/config"
	"reportcanvas/internal/domain"
	"reportcanvas/internal/storage"
)

func remoteCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Share projects through the Postgres project repository",
		Long: `Push and pull report projects to the repository configured as repository.dsn
(or RCV_DATABASE_URL). A project is identified by a stable id derived from its directory,
or by --id.`,
	}
	var id string
	resolveID := func(root string) (uuid.UUID, error) {
		if id == "" {
			return backend.StableID(root), nil
		}
		return uuid.Parse(id)
	}

	push := &cobra.Command{
		Use:   "push <dir>",
		Short: "Upload the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := storage.Open(abs(args[0]))
			if err != nil {
				return err
			}
			pid, err := resolveID(ph.Root)
			if err != nil {
				return err
			}
			return withRepository(cmd.Context(), func(r *backend.Repository) error {
				v, err := r.SaveProject(cmd.Context(), pid, ph.Project)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s as %s version %d\n", ph.Project.Name, pid, v)
				return nil
			})
		},
	}
	pull := &cobra.Command{
		Use:   "pull <dir>",
		Short: "Replace the local manifest with the stored project (a backup is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := abs(args[0])
			pid, err := resolveID(root)
			if err != nil {
				return err
			}
			return withRepository(cmd.Context(), func(r *backend.Repository) error {
				p, v, err := r.LoadProject(cmd.Context(), pid)
				if err != nil {
					return err
				}
				if _, err := storage.Open(root); err != nil {
					ph, err := storage.InitProject(root, p)
					if err != nil {
						return err
					}
					openProject = ph
					if err := storage.UpdateIndex(cmd.Context(), root, p); err != nil {
						return err
					}
				} else if err := pullInto(cmd.Context(), g, root, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s version %d into %s\n", p.Name, v, root)
				return nil
			})
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(r *backend.Repository) error {
				gid, _ := cmd.Flags().GetString("uses")
				if gid != "" {
					ids, err := r.ProjectsUsing(cmd.Context(), gid)
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
					return nil
				}
				ps, err := r.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				for _, p := range ps {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  v%-3d %s  %s\n", p.StableID, p.Version, p.UpdatedAt.Local().Format(time.DateTime), p.Name)
				}
				return nil
			})
		},
	}
	list.Flags().String("uses", "", "only projects that place this widget GID")

	del := &cobra.Command{
		Use:   "delete <dir>",
		Short: "Remove the stored copy of a project; the local files are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := resolveID(abs(args[0]))
			if err != nil {
				return err
			}
			return withRepository(cmd.Context(), func(r *backend.Repository) error {
				if err := r.DeleteProject(cmd.Context(), pid); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted", pid)
				return nil
			})
		},
	}

	cmd.PersistentFlags().StringVar(&id, "id", "", "stable project id (default derived from the directory)")
	cmd.AddCommand(push, pull, list, del)
	return cmd
}

// pullInto loads p into the existing project at root through the canvas, so
// the open session and the page history follow the pulled pages.
func pullInto(ctx context.Context, g *globalFlags, root string, p domain.Project) error {
	w, err := openWorkspace(g, root)
	if err != nil {
		return err
	}
	defer w.close()
	if err := w.canvas.LoadProject(ctx, p); err != nil {
		return err
	}
	return w.commit(ctx)
}

func withRepository(ctx context.Context, fn func(r *backend.Repository) error) error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Repository.DSN == "" {
		return errors.New("no repository configured: set repository.dsn or " + config.EnvDatabaseURL)
	}
	r, err := backend.Open(ctx, cfg.Repository.DSN)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}
