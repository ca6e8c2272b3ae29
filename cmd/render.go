package cmd

import (
	"fmt"
	"io"

	"grimm.is/converge/internal/render"
	"grimm.is/converge/internal/settings"
)

// RunRender prints one rendered artifact without touching the host.
func RunRender(o *Options, artifact string, w io.Writer) error {
	logger, err := setupLogging(o)
	if err != nil {
		return err
	}
	tree, err := loadTree(o, logger)
	if err != nil {
		return err
	}
	s, err := settings.Derive(tree)
	if err != nil {
		return fmt.Errorf("invalid attributes: %w", err)
	}

	var out []byte
	switch artifact {
	case render.ArtifactLocalSettings:
		out, err = render.LocalSettings(s)
	case render.ArtifactVirtualHost:
		out, err = render.VirtualHost(s)
	default:
		return fmt.Errorf("unknown artifact %q (want %s or %s)", artifact, render.ArtifactLocalSettings, render.ArtifactVirtualHost)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
