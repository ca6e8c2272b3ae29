//go:build linux

package host

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/go-git/go-billy/v5/osfs"
	"golang.org/x/sys/unix"
)

// diskAttrs reads and writes metadata with raw syscalls, since os.FileMode
// does not round-trip ownership and the billy Change interface has no Stat.
type diskAttrs struct {
	root string
}

func (d *diskAttrs) real(path string) string {
	return filepath.Join(d.root, filepath.Clean("/"+path))
}

func (d *diskAttrs) stat(path string, _ os.FileInfo) (uint32, string, string, error) {
	var st unix.Stat_t
	if err := unix.Stat(d.real(path), &st); err != nil {
		return 0, "", "", err
	}
	return st.Mode & 0o7777, userName(st.Uid), groupName(st.Gid), nil
}

func (d *diskAttrs) chmod(path string, mode uint32) error {
	if err := unix.Chmod(d.real(path), mode&0o7777); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func (d *diskAttrs) chown(path, owner, group string) error {
	uid, err := lookupUID(owner)
	if err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	gid, err := lookupGID(group)
	if err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if err := unix.Chown(d.real(path), uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}

func (d *diskAttrs) forget(string) {}

// NewDiskFS returns a Filesystem rooted at root. Absolute resource paths
// resolve beneath it, so a root other than "/" stages a host image.
func NewDiskFS(root string) Filesystem {
	return &billyFS{
		fs:     osfs.New(root),
		attrs:  &diskAttrs{root: root},
		atomic: true,
	}
}

func userName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return id
}

func groupName(gid uint32) string {
	id := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(id); err == nil {
		return g.Name
	}
	return id
}

func lookupUID(name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Uid)
}

func lookupGID(name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}
