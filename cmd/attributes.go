package cmd

import (
	"io"

	"grimm.is/converge/internal/config"
)

// RunAttributes prints attributes as HCL: the effective tree, or with
// overridesOnly just the keys some attribute file set.
func RunAttributes(o *Options, overridesOnly bool, w io.Writer) error {
	logger, err := setupLogging(o)
	if err != nil {
		return err
	}
	tree, err := loadTree(o, logger)
	if err != nil {
		return err
	}

	layer := tree.Effective()
	if overridesOnly {
		only := config.Layer{}
		for _, k := range layer.Keys() {
			if tree.SourceOf(k) == config.SourceOverride {
				only[k] = layer[k]
			}
		}
		layer = only
	}

	out, err := config.MarshalHCL(layer)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
