package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"grimm.is/converge/internal/brand"
	"grimm.is/converge/internal/config"
	"grimm.is/converge/internal/host"
	"grimm.is/converge/internal/i18n"
	"grimm.is/converge/internal/logging"
)

var Printer = i18n.NewCLIPrinter()

// Options are the flags shared by every command.
type Options struct {
	// AttributeFiles are loaded in order; later files win.
	AttributeFiles []string
	// Root relocates every managed path, "/" on a real host.
	Root        string
	DryRun      bool
	MetricsFile string
	ReportFile  string
	LogLevel    string
	LogJSON     bool

	// Host replaces the live host. Tests use an in-memory one.
	Host *host.Host
	// Out receives run reports; stdout when nil.
	Out io.Writer
}

func (o *Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// attributeFiles returns the configured files, or the default attribute
// file when it exists.
func (o *Options) attributeFiles() []string {
	if len(o.AttributeFiles) > 0 {
		return o.AttributeFiles
	}
	if _, err := os.Stat(brand.DefaultAttributesPath()); err == nil {
		return []string{brand.DefaultAttributesPath()}
	}
	return nil
}

// setupLogging installs the default logger from the log flags.
func setupLogging(o *Options) (*logging.Logger, error) {
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.JSON = o.LogJSON
	logger := logging.New(cfg)
	logging.SetDefault(logger)
	return logger, nil
}

// loadTree reads the attribute files into a platform tree and logs load
// warnings.
func loadTree(o *Options, logger *logging.Logger) (*config.Tree, error) {
	log := logger.WithComponent("config")

	overrides := config.Layer{}
	if files := o.attributeFiles(); len(files) > 0 {
		result, err := config.LoadFiles(files...)
		if err != nil {
			return nil, fmt.Errorf("failed to load attributes: %w", err)
		}
		for _, w := range result.Warnings {
			log.Warn(w)
		}
		log.Debug("Loaded attributes", "files", result.Files, "keys", len(result.Layer))
		overrides = result.Layer
	}

	tree, err := config.NewPlatformTree(overrides)
	if err != nil {
		return nil, err
	}
	for _, k := range tree.UnknownOverrides() {
		log.Warn("Attribute has no default; check for a typo", "path", k)
	}
	return tree, nil
}

// hostFor returns the host to converge. Commands, packages and services
// always act on the live system, so a relocated root is only accepted for
// dry runs.
func (o *Options) hostFor(family string) (*host.Host, error) {
	if o.Host != nil {
		return o.Host, nil
	}
	root := o.Root
	if root == "" {
		root = "/"
	}
	if filepath.Clean(root) != "/" && !o.DryRun {
		return nil, fmt.Errorf("--root %s requires --dry-run: commands, packages and services act on the live host", root)
	}
	return host.New(root, family)
}
