/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command reportcanvas edits report canvas projects from the terminal: pages,
// widget placement and property bindings, exports, history and the shared
// project repository.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"reportcanvas/internal/config"
	"reportcanvas/internal/crash"
	applog "reportcanvas/internal/log"
	"reportcanvas/internal/storage"
	"reportcanvas/internal/version"
)

// openProject is the project handle of the running command, autosaved on a crash.
var openProject *storage.ProjectHandle

// globalFlags are shared by every subcommand.
type globalFlags struct {
	catalogDir string
	bundleURL  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "reportcanvas",
		Short:         "Design AI Verify report canvases",
		Long:          "Lay out report widgets on paginated grid canvases, bind their properties and export the result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(g.verbose)
		},
	}
	root.PersistentFlags().StringVar(&g.catalogDir, "catalog", "", "widget descriptor directory (overrides config catalog.dir)")
	root.PersistentFlags().StringVar(&g.bundleURL, "bundle-url", "", "widget bundle service base URL (overrides config bundle.base_url)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		versionCmd(),
		initCmd(),
		infoCmd(g),
		validateCmd(g),
		readonlyCmd(g),
		pageCmd(g),
		widgetCmd(g),
		varsCmd(g),
		exportCmd(g),
		historyCmd(g),
		indexCmd(),
		remoteCmd(g),
		catalogCmd(g),
		loginCmd(),
		logoutCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// initLogging applies the user config's logging section; RCV_LOG_* env vars win.
func initLogging(verbose bool) {
	opts := applog.FromEnv()
	if cfg, _, err := config.Load(); err == nil {
		if _, set := config.EnvOverrideFor("logging.level"); !set && cfg.Logging.Level != "" {
			opts.Level = cfg.Logging.Level
		}
		if _, set := config.EnvOverrideFor("logging.format"); !set && cfg.Logging.Format != "" {
			opts.Format = cfg.Logging.Format
		}
		if _, set := config.EnvOverrideFor("logging.file"); !set && cfg.Logging.File != "" {
			opts.File = cfg.Logging.File
		}
		opts.AddSource = opts.AddSource || cfg.Logging.Source
	}
	if verbose {
		opts.Level = "debug"
	}
	applog.Init(opts)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			crash.Handle(openProject, r)
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		applog.WithComponent("cli").Error("command failed", slog.Any("err", err))
	}
	_ = applog.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
