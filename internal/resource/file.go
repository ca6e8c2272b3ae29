package resource

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/converge/internal/host"
)

const defaultFileMode = 0o644

// File manages a regular file's content, ownership and mode.
type File struct {
	Common
	Path string
	// Content is the desired content. When nil, Generate is called, at most
	// once, only if the content is actually needed.
	Content  []byte
	Generate func() ([]byte, error)
	// Owner, Group and Mode are left alone when zero.
	Owner string
	Group string
	Mode  uint32
	// Sensitive files are never diffed into logs or reports.
	Sensitive bool

	generated []byte
}

func (f *File) ID() ID { return ID{Type: TypeFile, Name: f.Path} }

func (f *File) Allowed() []Action {
	return []Action{ActionCreate, ActionCreateIfMissing, ActionDelete, ActionNothing}
}

func (f *File) content() ([]byte, error) {
	if f.Content != nil {
		return f.Content, nil
	}
	if f.Generate == nil {
		return []byte{}, nil
	}
	if f.generated == nil {
		b, err := f.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}
		f.generated = b
	}
	return f.generated, nil
}

func (f *File) Plan(_ context.Context, h *host.Host, action Action) (*Plan, error) {
	if action == ActionNothing {
		return unchanged(), nil
	}

	info, err := h.FS.Stat(f.Path)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return nil, fmt.Errorf("%s is a directory", f.Path)
	}

	switch action {
	case ActionDelete:
		if !info.Exists {
			return unchanged(), nil
		}
		return changed([]string{"delete"}, func(context.Context) error {
			return h.FS.Remove(f.Path)
		}), nil
	case ActionCreate, ActionCreateIfMissing:
		return f.planCreate(h, info, action)
	}
	return nil, fmt.Errorf("unsupported action %s", action)
}

func (f *File) planCreate(h *host.Host, info host.FileInfo, action Action) (*Plan, error) {
	var (
		summary   []string
		write     []byte
		needWrite bool
		current   []byte
	)

	switch {
	case !info.Exists:
		want, err := f.content()
		if err != nil {
			return nil, err
		}
		summary = append(summary, "create")
		write, needWrite = want, true
	case action == ActionCreate:
		want, err := f.content()
		if err != nil {
			return nil, err
		}
		current, err = h.FS.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		if !bytes.Equal(current, want) {
			summary = append(summary, "update content")
			write, needWrite = want, true
		}
	}

	meta := metadataChanges(info, f.Owner, f.Group, f.Mode)
	if info.Exists {
		summary = append(summary, meta.summary...)
	}
	if !needWrite && len(meta.summary) == 0 {
		return unchanged(), nil
	}

	mode := f.Mode
	if mode == 0 {
		mode = defaultFileMode
		if info.Exists {
			mode = info.Mode
		}
	}

	plan := changed(summary, func(context.Context) error {
		if needWrite {
			if err := h.FS.WriteFile(f.Path, write, mode); err != nil {
				return err
			}
		} else if meta.mode {
			if err := h.FS.Chmod(f.Path, mode); err != nil {
				return err
			}
		}
		return chownIfNeeded(h.FS, f.Path, f.Owner, f.Group)
	})
	if needWrite && !f.Sensitive {
		plan.Diff = unifiedDiff(f.Path, current, write)
	}
	return plan, nil
}

type metaDiff struct {
	summary []string
	mode    bool
}

// metadataChanges compares observed ownership and mode with the wanted
// values. Empty owner or group and a zero mode are not managed.
func metadataChanges(info host.FileInfo, owner, group string, mode uint32) metaDiff {
	var d metaDiff
	if !info.Exists {
		d.mode = mode != 0
		return d
	}
	if mode != 0 && info.Mode != mode {
		d.mode = true
		d.summary = append(d.summary, fmt.Sprintf("mode %04o -> %04o", info.Mode, mode))
	}
	if owner != "" && info.Owner != owner {
		d.summary = append(d.summary, fmt.Sprintf("owner %s -> %s", info.Owner, owner))
	}
	if group != "" && info.Group != group {
		d.summary = append(d.summary, fmt.Sprintf("group %s -> %s", info.Group, group))
	}
	return d
}

// chownIfNeeded sets ownership when it differs. An empty owner or group
// keeps the current one.
func chownIfNeeded(fs host.Filesystem, path, owner, group string) error {
	if owner == "" && group == "" {
		return nil
	}
	info, err := fs.Stat(path)
	if err != nil {
		return err
	}
	if owner == "" {
		owner = info.Owner
	}
	if group == "" {
		group = info.Group
	}
	if info.Owner == owner && info.Group == group {
		return nil
	}
	return fs.Chown(path, owner, group)
}

func unifiedDiff(path string, from, to []byte) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(from)),
		B:        difflib.SplitLines(string(to)),
		FromFile: path + " (current)",
		ToFile:   path + " (desired)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
