//go:build !linux

package host

import (
	"errors"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
)

var errUnsupported = errors.New("ownership and mode management is only supported on linux")

type diskAttrs struct{}

func (diskAttrs) stat(_ string, fi os.FileInfo) (uint32, string, string, error) {
	return UnixMode(fi.Mode()), "", "", nil
}

func (diskAttrs) chmod(string, uint32) error         { return errUnsupported }
func (diskAttrs) chown(string, string, string) error { return errUnsupported }
func (diskAttrs) forget(string)                      {}

// NewDiskFS returns a Filesystem rooted at root. Reads work everywhere;
// mode and ownership changes require linux.
func NewDiskFS(root string) Filesystem {
	return &billyFS{fs: osfs.New(root), attrs: diskAttrs{}, atomic: true}
}
