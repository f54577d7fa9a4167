// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// multitree builds a set of inner trees as a single product.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/cobra"
	"zb.256lights.llc/multitree/combo"
	"zombiezen.com/go/bass/sigterm"
	"zombiezen.com/go/log"
)

func main() {
	rootCommand := &cobra.Command{
		Use:                   "multitree [options] [TARGET [...]]",
		Short:                 "multi-tree build orchestrator",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ArbitraryArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	g := defaultGlobalConfig()
	if err := g.mergeFiles(configFiles()); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
	if err := g.mergeEnvironment(); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}

	rootCommand.PersistentFlags().BoolVar(&g.Debug, "debug", g.Debug, "show debugging output")
	rootCommand.PersistentFlags().StringVar(&g.Top, "top", g.Top, "path to the outer tree root `dir`ectory")
	rootCommand.PersistentFlags().StringVar(&g.Combo, "combo", g.Combo, "combo `file` or PRODUCT-VARIANT to build")
	rootCommand.PersistentFlags().StringVar(&g.Variant, "variant", g.Variant, "build `variant`")
	rootCommand.PersistentFlags().StringVar(&g.OutDir, "out-dir", g.OutDir, "output `dir`ectory")
	rootCommand.PersistentFlags().StringVar(&g.SandboxTool, "sandbox", g.SandboxTool, "`path` to the sandboxing engine")
	rootCommand.PersistentFlags().StringVar(&g.EnvFile, "env-file", g.EnvFile, "dotenv `file` of variables to add to every inner tree")
	rootCommand.PersistentFlags().VarP(envFlag(g.Env), "env", "e", "add an environment variable to every inner tree (can be passed multiple times)")
	rootCommand.PersistentFlags().StringVar(&g.MetricsFile, "metrics-file", g.MetricsFile, "write build metrics to `path`")
	rootCommand.PersistentFlags().IntVarP(&g.Jobs, "jobs", "j", g.Jobs, "maximum number of inner trees to process in parallel")

	opts := new(buildOptions)
	rootCommand.Flags().BoolVar(&opts.shell, "shell", false, "run an interactive shell in the outer sandbox instead of building")
	rootCommand.Flags().BoolVar(&opts.writable, "writable", false, "with --shell, mount the source tree read-write")
	rootCommand.Flags().BoolVar(&opts.force, "force", false, "with --shell, run even if standard input is not a terminal")

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(g.Debug)
		return nil
	}
	rootCommand.RunE = func(cmd *cobra.Command, args []string) error {
		opts.targets = args
		return runBuild(cmd.Context(), g, opts)
	}

	rootCommand.AddCommand(
		newLunchCommand(g),
		newListCommand(g),
		newPrintCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), sigterm.Signals()...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(g.Debug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

func newLunchCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "lunch PRODUCT-VARIANT | lunch FILE [VARIANT]",
		Short:                 "choose a combo file",
		Long:                  "lunch prints the chosen combo file and variant on separate lines of standard output.",
		DisableFlagsInUseLine: true,
		Args:                  cobra.RangeArgs(1, 2),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runLunch(cmd.Context(), g, args)
	}
	return c
}

func runLunch(ctx context.Context, g *globalConfig, args []string) error {
	path, variant := combo.Choose(g.Top, args)
	if path == "" {
		return fmt.Errorf("can't find lunch combo file for: %s", strings.Join(args, " "))
	}
	if variant == "" {
		return fmt.Errorf("can't find variant for: %s", strings.Join(args, " "))
	}
	cfg, err := combo.Load(g.Top, path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := fmt.Printf("%s\n%s\n", path, variant); err != nil {
		return err
	}
	return cfg.WriteSummary(os.Stderr, variant)
}

func newListCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "list",
		Short:                 "list lunchable combo files",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		paths := slices.Sorted(combo.Lunchable(g.Top))
		for _, path := range paths {
			if _, err := fmt.Println(path); err != nil {
				return err
			}
		}
		return nil
	}
	return c
}

func newPrintCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "print [FILE]",
		Short:                 "print a combo file with its inherited files merged",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MaximumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		path := g.Combo
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return &combo.Error{
				Kind:    combo.IdentifyError,
				Message: "TARGET_BUILD_COMBO not set. Run lunch before building.",
			}
		}
		cfg, err := combo.Load(g.Top, path)
		if err != nil {
			return err
		}
		data, err := jsonv2.Marshal(cfg.JSON(), jsontext.WithIndent("    "))
		if err != nil {
			return err
		}
		data = append(data, '\n')
		_, err = os.Stdout.Write(data)
		return err
	}
	return c
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "multitree: ", log.StdFlags, nil),
		})
	})
}
