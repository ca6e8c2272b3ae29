package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/memfs"
)

type memAttr struct {
	mode  uint32
	owner string
	group string
}

// memAttrs tracks ownership and exact modes for an in-memory filesystem.
// Paths never chowned report root:root.
type memAttrs struct {
	mu    sync.Mutex
	attrs map[string]*memAttr
}

func (m *memAttrs) get(path string, fi os.FileInfo) *memAttr {
	path = filepath.Clean(path)
	a, ok := m.attrs[path]
	if !ok {
		a = &memAttr{owner: "root", group: "root"}
		if fi != nil {
			a.mode = UnixMode(fi.Mode())
		}
		m.attrs[path] = a
	}
	return a
}

func (m *memAttrs) stat(path string, fi os.FileInfo) (uint32, string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(path, fi)
	return a.mode, a.owner, a.group, nil
}

func (m *memAttrs) chmod(path string, mode uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(path, nil).mode = mode & 0o7777
	return nil
}

func (m *memAttrs) chown(path, owner, group string) error {
	if owner == "" || group == "" {
		return fmt.Errorf("chown %s: owner and group are required", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(path, nil)
	a.owner, a.group = owner, group
	return nil
}

func (m *memAttrs) forget(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	for p := range m.attrs {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.attrs, p)
		}
	}
}

// NewMemFS returns an empty in-memory Filesystem.
func NewMemFS() Filesystem {
	return &billyFS{
		fs:    memfs.New(),
		attrs: &memAttrs{attrs: map[string]*memAttr{}},
	}
}
