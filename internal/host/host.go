// Package host is the observed side of convergence: the filesystem,
// external commands, OS packages and services that resources inspect and
// change. Every piece is an interface so runs can be exercised against an
// in-memory host.
package host

// Host bundles the collaborators resources act on.
type Host struct {
	FS       Filesystem
	Commands CommandRunner
	Packages PackageManager
	Services ServiceManager
}

// New returns a Host for the running machine. root relocates the
// filesystem; packages and services always act on the live system.
func New(root, family string) (*Host, error) {
	pm, err := NewPackageManager(family, DefaultCommandRunner)
	if err != nil {
		return nil, err
	}
	return &Host{
		FS:       NewDiskFS(root),
		Commands: DefaultCommandRunner,
		Packages: pm,
		Services: NewSystemd(DefaultCommandRunner),
	}, nil
}
