package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"grimm.is/converge/cmd"
	"grimm.is/converge/internal/brand"
	"grimm.is/converge/internal/i18n"
	"grimm.is/converge/internal/render"
)

var printer = i18n.NewCLIPrinter()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &cmd.Options{}

	root := &cobra.Command{
		Use:           brand.BinaryName,
		Short:         brand.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringArrayVarP(&opts.AttributeFiles, "attributes", "a", nil, "Attribute file (HCL, JSON or YAML); repeatable, later files win")
	flags.StringVar(&opts.Root, "root", "/", "Filesystem root the managed paths are relative to; other than / only with --dry-run")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.LogJSON, "log-json", false, "Log as JSON")

	runFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write run metrics to this node-exporter textfile")
		c.Flags().StringVar(&opts.ReportFile, "report", "", "Write the run report to this YAML file")
	}

	convergeCmd := &cobra.Command{
		Use:   "converge",
		Short: "Bring the host to the state the attributes describe",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return cmd.RunConverge(c.Context(), opts)
		},
	}
	runFlags(convergeCmd)
	convergeCmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Report what would change without changing anything")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what converge would change",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.DryRun = true
			return cmd.RunConverge(c.Context(), opts)
		},
	}
	runFlags(planCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Converge, then converge again whenever an attribute file changes",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return cmd.RunWatch(c.Context(), opts)
		},
	}
	runFlags(watchCmd)
	watchCmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Only report what would change")

	renderCmd := &cobra.Command{
		Use:       "render {" + render.ArtifactLocalSettings + "|" + render.ArtifactVirtualHost + "}",
		Short:     "Print a rendered artifact",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{render.ArtifactLocalSettings, render.ArtifactVirtualHost},
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.RunRender(opts, args[0], c.OutOrStdout())
		},
	}

	var overridesOnly bool
	attributesCmd := &cobra.Command{
		Use:   "attributes",
		Short: "Print the effective attribute tree as HCL",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return cmd.RunAttributes(opts, overridesOnly, c.OutOrStdout())
		},
	}
	attributesCmd.Flags().BoolVar(&overridesOnly, "overrides", false, "Only print attributes set by an attribute file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			cmd.RunVersion(c.OutOrStdout())
		},
	}

	root.AddCommand(convergeCmd, planCmd, watchCmd, renderCmd, attributesCmd, versionCmd)
	return root
}
