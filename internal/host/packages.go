package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// PackageManager queries and changes installed OS packages.
type PackageManager interface {
	// Installed returns the installed version, or "" when not installed.
	Installed(ctx context.Context, name string) (string, error)
	// Candidate returns the version an install or upgrade would select.
	Candidate(ctx context.Context, name string) (string, error)
	// Residual reports whether a removed package left configuration behind.
	Residual(ctx context.Context, name string) (bool, error)
	Install(ctx context.Context, name string) error
	Upgrade(ctx context.Context, name string) error
	Purge(ctx context.Context, name string) error
}

// NewPackageManager returns the package manager for a platform family.
func NewPackageManager(family string, r CommandRunner) (PackageManager, error) {
	switch family {
	case "debian":
		return &Apt{runner: r}, nil
	case "rhel":
		return &Yum{runner: r}, nil
	}
	return nil, fmt.Errorf("no package manager for platform family %q", family)
}

var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// Apt drives dpkg and apt-get.
type Apt struct {
	runner CommandRunner
}

func (a *Apt) Installed(ctx context.Context, name string) (string, error) {
	status, version, err := a.status(ctx, name)
	if err != nil || !strings.HasSuffix(status, " installed") {
		return "", err
	}
	return version, nil
}

// Residual is true in dpkg's config-files state: removed but not purged.
func (a *Apt) Residual(ctx context.Context, name string) (bool, error) {
	status, _, err := a.status(ctx, name)
	if err != nil {
		return false, err
	}
	return strings.HasSuffix(status, " config-files"), nil
}

func (a *Apt) status(ctx context.Context, name string) (status, version string, err error) {
	out, err := a.runner.Output(ctx, Command{
		Argv: []string{"dpkg-query", "-W", "-f=${Status}\t${Version}", name},
	})
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		// dpkg-query exits 1 for packages it has never seen.
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	status, version, _ = strings.Cut(strings.TrimSpace(string(out)), "\t")
	return status, version, nil
}

func (a *Apt) Candidate(ctx context.Context, name string) (string, error) {
	out, err := a.runner.Output(ctx, Command{Argv: []string{"apt-cache", "policy", name}})
	if err != nil {
		return "", err
	}
	v := scanField(out, "Candidate:")
	if v == "(none)" {
		return "", fmt.Errorf("package %s has no installation candidate", name)
	}
	return v, nil
}

func (a *Apt) Install(ctx context.Context, name string) error {
	return a.runner.Run(ctx, Command{
		Argv: []string{"apt-get", "-q", "-y", "-o", "Dpkg::Options::=--force-confold", "install", name},
		Env:  aptEnv,
	})
}

func (a *Apt) Upgrade(ctx context.Context, name string) error {
	return a.runner.Run(ctx, Command{
		Argv: []string{"apt-get", "-q", "-y", "-o", "Dpkg::Options::=--force-confold", "install", "--only-upgrade", name},
		Env:  aptEnv,
	})
}

func (a *Apt) Purge(ctx context.Context, name string) error {
	return a.runner.Run(ctx, Command{
		Argv: []string{"apt-get", "-q", "-y", "purge", name},
		Env:  aptEnv,
	})
}

// Yum drives rpm and yum.
type Yum struct {
	runner CommandRunner
}

func (y *Yum) Installed(ctx context.Context, name string) (string, error) {
	out, err := y.runner.Output(ctx, Command{
		Argv: []string{"rpm", "-q", "--qf", "%{VERSION}-%{RELEASE}", name},
	})
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (y *Yum) Candidate(ctx context.Context, name string) (string, error) {
	out, err := y.runner.Output(ctx, Command{
		Argv: []string{"repoquery", "--latest-limit=1", "--qf", "%{VERSION}-%{RELEASE}", name},
	})
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", fmt.Errorf("package %s has no installation candidate", name)
	}
	return v, nil
}

func (y *Yum) Install(ctx context.Context, name string) error {
	return y.runner.Run(ctx, Command{Argv: []string{"yum", "-q", "-y", "install", name}})
}

func (y *Yum) Upgrade(ctx context.Context, name string) error {
	return y.runner.Run(ctx, Command{Argv: []string{"yum", "-q", "-y", "upgrade", name}})
}

// Residual is always false: rpm has no removed-but-configured state.
func (y *Yum) Residual(context.Context, string) (bool, error) {
	return false, nil
}

// Purge removes the package; rpm keeps no configuration to purge separately.
func (y *Yum) Purge(ctx context.Context, name string) error {
	return y.runner.Run(ctx, Command{Argv: []string{"yum", "-q", "-y", "remove", name}})
}

// scanField returns the first value following key on a line of out.
func scanField(out []byte, key string) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, key); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
