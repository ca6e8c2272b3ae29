package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// FileInfo is the observed state of a path. A missing path is reported
// with Exists false and no error.
type FileInfo struct {
	Exists bool
	IsDir  bool
	// Mode holds unix permission bits including setuid, setgid and sticky.
	Mode  uint32
	Owner string
	Group string
}

// Filesystem is the part of the host the file and directory resources touch.
// Modes are unix-encoded (02770, not os.ModeSetgid|0770).
type Filesystem interface {
	Stat(path string) (FileInfo, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, mode uint32) error
	MkdirAll(path string, mode uint32) error
	Remove(path string) error
	Chmod(path string, mode uint32) error
	Chown(path, owner, group string) error
}

// attrStore holds what billy does not model: exact mode bits and ownership.
type attrStore interface {
	stat(path string, fi os.FileInfo) (mode uint32, owner, group string, err error)
	chmod(path string, mode uint32) error
	chown(path, owner, group string) error
	forget(path string)
}

// billyFS implements Filesystem over a go-billy filesystem.
type billyFS struct {
	fs    billy.Filesystem
	attrs attrStore
	// atomic writes go through a temp file and rename.
	atomic bool
}

func (b *billyFS) Stat(path string) (FileInfo, error) {
	fi, err := b.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return FileInfo{}, nil
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}

	mode, owner, group, err := b.attrs.stat(path, fi)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{
		Exists: true,
		IsDir:  fi.IsDir(),
		Mode:   mode,
		Owner:  owner,
		Group:  group,
	}, nil
}

func (b *billyFS) ReadFile(path string) ([]byte, error) {
	return util.ReadFile(b.fs, path)
}

func (b *billyFS) WriteFile(path string, data []byte, mode uint32) error {
	dir := filepath.Dir(path)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}

	if !b.atomic {
		if err := util.WriteFile(b.fs, path, data, FileMode(mode)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return b.attrs.chmod(path, mode)
	}

	tmp, err := b.fs.TempFile(dir, "."+filepath.Base(path)+".")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := b.attrs.chmod(tmpName, mode); err != nil {
		b.fs.Remove(tmpName)
		return err
	}
	if err := b.fs.Rename(tmpName, path); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates missing parents 0755; mode applies to path only.
func (b *billyFS) MkdirAll(path string, mode uint32) error {
	if parent := filepath.Dir(filepath.Clean(path)); parent != "/" && parent != "." {
		if err := b.fs.MkdirAll(parent, FileMode(0o755)); err != nil {
			return fmt.Errorf("mkdir %s: %w", parent, err)
		}
	}
	if err := b.fs.MkdirAll(path, FileMode(mode)); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return b.attrs.chmod(path, mode)
}

func (b *billyFS) Remove(path string) error {
	if _, err := b.fs.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := util.RemoveAll(b.fs, path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	b.attrs.forget(path)
	return nil
}

func (b *billyFS) Chmod(path string, mode uint32) error {
	return b.attrs.chmod(path, mode)
}

func (b *billyFS) Chown(path, owner, group string) error {
	return b.attrs.chown(path, owner, group)
}

// FileMode converts unix mode bits to an os.FileMode.
func FileMode(m uint32) os.FileMode {
	fm := os.FileMode(m & 0o777)
	if m&0o4000 != 0 {
		fm |= os.ModeSetuid
	}
	if m&0o2000 != 0 {
		fm |= os.ModeSetgid
	}
	if m&0o1000 != 0 {
		fm |= os.ModeSticky
	}
	return fm
}

// UnixMode converts the permission part of an os.FileMode to unix mode bits.
func UnixMode(fm os.FileMode) uint32 {
	m := uint32(fm.Perm())
	if fm&os.ModeSetuid != 0 {
		m |= 0o4000
	}
	if fm&os.ModeSetgid != 0 {
		m |= 0o2000
	}
	if fm&os.ModeSticky != 0 {
		m |= 0o1000
	}
	return m
}
