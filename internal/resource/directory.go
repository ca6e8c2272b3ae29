package resource

import (
	"context"
	"fmt"

	"grimm.is/converge/internal/host"
)

const defaultDirMode = 0o755

// Directory manages a directory's existence, ownership and mode. Delete is
// recursive.
type Directory struct {
	Common
	Path  string
	Owner string
	Group string
	Mode  uint32
}

func (d *Directory) ID() ID { return ID{Type: TypeDirectory, Name: d.Path} }

func (d *Directory) Allowed() []Action {
	return []Action{ActionCreate, ActionDelete, ActionNothing}
}

func (d *Directory) Plan(_ context.Context, h *host.Host, action Action) (*Plan, error) {
	if action == ActionNothing {
		return unchanged(), nil
	}

	info, err := h.FS.Stat(d.Path)
	if err != nil {
		return nil, err
	}
	if info.Exists && !info.IsDir {
		return nil, fmt.Errorf("%s exists and is not a directory", d.Path)
	}

	switch action {
	case ActionDelete:
		if !info.Exists {
			return unchanged(), nil
		}
		return changed([]string{"delete"}, func(context.Context) error {
			return h.FS.Remove(d.Path)
		}), nil
	case ActionCreate:
	default:
		return nil, fmt.Errorf("unsupported action %s", action)
	}

	mode := d.Mode
	if mode == 0 {
		mode = defaultDirMode
	}

	if !info.Exists {
		return changed([]string{"create"}, func(context.Context) error {
			if err := h.FS.MkdirAll(d.Path, mode); err != nil {
				return err
			}
			return chownIfNeeded(h.FS, d.Path, d.Owner, d.Group)
		}), nil
	}

	meta := metadataChanges(info, d.Owner, d.Group, d.Mode)
	if len(meta.summary) == 0 {
		return unchanged(), nil
	}
	return changed(meta.summary, func(context.Context) error {
		if meta.mode {
			if err := h.FS.Chmod(d.Path, mode); err != nil {
				return err
			}
		}
		return chownIfNeeded(h.FS, d.Path, d.Owner, d.Group)
	}), nil
}
