/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reportcanvas/internal/catalog"
	"reportcanvas/internal/config"
	"reportcanvas/internal/widgetpack"
)

func catalogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the widget catalog",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List widget definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			for _, d := range cat.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-24s min %dx%d max %dx%d props %d\n",
					d.GID, d.Name, d.Size.MinW, d.Size.MinH, d.Size.MaxW, d.Size.MaxH, len(d.Properties))
			}
			return nil
		},
	}
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print descriptor changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := catalogDirFor(g)
			if err != nil {
				return err
			}
			fc, err := catalog.OpenDir(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w, err := fc.Watch(cmd.Context(), func(gid string) {
				if d, ok := fc.Get(gid); ok {
					fmt.Fprintf(out, "updated %s (%s)\n", gid, d.Name)
				} else {
					fmt.Fprintf(out, "removed %s\n", gid)
				}
			})
			if err != nil {
				return err
			}
			defer w.Close()
			fmt.Fprintf(out, "Watching %s with %d widgets\n", fc.Dir(), len(fc.List()))
			<-cmd.Context().Done()
			return nil
		},
	}
	pack := &cobra.Command{
		Use:   "pack <out.zip>",
		Short: "Bundle the catalog's descriptors into a widget pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := catalogDirFor(g)
			if err != nil {
				return err
			}
			m, err := widgetpack.ExportPack(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d widgets into %s\n", len(m.Widgets), args[0])
			return nil
		},
	}
	install := &cobra.Command{
		Use:   "install <pack.zip>",
		Short: "Install the descriptors of a widget pack into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := catalogDirFor(g)
			if err != nil {
				return err
			}
			res, err := widgetpack.InstallPack(dir, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range res.Skipped {
				fmt.Fprintf(out, "skipped %s (exists)\n", f)
			}
			fmt.Fprintf(out, "Installed %d widgets into %s\n", len(res.Installed), dir)
			return nil
		},
	}
	cmd.AddCommand(list, watch, pack, install)
	return cmd
}

func catalogDirFor(g *globalFlags) (string, error) {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return "", err
	}
	if cfg.Catalog.Dir == "" {
		return "", fmt.Errorf("no catalog directory configured: pass --catalog or set %s", config.EnvCatalogDir)
	}
	return cfg.Catalog.Dir, nil
}

func loginCmd() *cobra.Command {
	var token, url string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bundle service token in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Bundle.BaseURL = url
			}
			if token == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("empty token")
			}
			if err := config.Save(cfg, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved bundle service settings to", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token (read from stdin when empty)")
	cmd.Flags().StringVar(&url, "url", "", "bundle service base URL")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the bundle service token from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
			return nil
		},
	}
}

