package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/converge/internal/host"
	"grimm.is/converge/internal/notify"
)

func newHost() (*host.Host, *host.FuncRunner) {
	runner := &host.FuncRunner{}
	return host.NewMemHost(runner, map[string]string{"apache2": "2.4.58", "lessc": "1.7"}), runner
}

func planApply(t *testing.T, h *host.Host, r Resource) *Plan {
	t.Helper()
	ctx := context.Background()
	p, err := r.Plan(ctx, h, DeclaredAction(r))
	require.NoError(t, err)
	require.NoError(t, p.Apply(ctx))
	return p
}

func TestParseID(t *testing.T) {
	id, err := ParseID("file[/etc/a.conf]")
	require.NoError(t, err)
	assert.Equal(t, ID{Type: TypeFile, Name: "/etc/a.conf"}, id)
	assert.Equal(t, "file[/etc/a.conf]", id.String())

	for _, bad := range []string{"", "file", "[x]", "file[]", "file[x"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFile_CreateThenConverged(t *testing.T) {
	h, _ := newHost()
	f := &File{Path: "/etc/app/settings.py", Content: []byte("A = 1\n"), Owner: "root", Group: "root", Mode: 0o644}

	p := planApply(t, h, f)
	assert.True(t, p.Changed)
	assert.Equal(t, []string{"create"}, p.Summary)
	assert.Contains(t, p.Diff, "+A = 1")

	data, err := h.FS.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "A = 1\n", string(data))
	info, err := h.FS.Stat(f.Path)
	require.NoError(t, err)
	assert.Equal(t, uint32(0o644), info.Mode)

	p = planApply(t, h, f)
	assert.False(t, p.Changed)
}

func TestFile_ContentUpdate(t *testing.T) {
	h, _ := newHost()
	require.NoError(t, h.FS.WriteFile("/etc/a", []byte("old\n"), 0o644))

	f := &File{Path: "/etc/a", Content: []byte("new\n")}
	p := planApply(t, h, f)
	assert.True(t, p.Changed)
	assert.Equal(t, []string{"update content"}, p.Summary)
	assert.Contains(t, p.Diff, "-old")
	assert.Contains(t, p.Diff, "+new")

	info, _ := h.FS.Stat("/etc/a")
	assert.Equal(t, uint32(0o644), info.Mode, "unmanaged mode is kept")
}

func TestFile_ModeOnlyChangeCounts(t *testing.T) {
	h, _ := newHost()
	require.NoError(t, h.FS.WriteFile("/k", []byte("x"), 0o644))

	f := &File{Path: "/k", Content: []byte("x"), Mode: 0o600}
	p := planApply(t, h, f)
	assert.True(t, p.Changed)
	assert.Equal(t, []string{"mode 0644 -> 0600"}, p.Summary)

	info, _ := h.FS.Stat("/k")
	assert.Equal(t, uint32(0o600), info.Mode)
}

func TestFile_OwnershipChange(t *testing.T) {
	h, _ := newHost()
	require.NoError(t, h.FS.WriteFile("/k", []byte("x"), 0o640))

	f := &File{Path: "/k", Content: []byte("x"), Group: "ssl-cert"}
	p := planApply(t, h, f)
	assert.Equal(t, []string{"group root -> ssl-cert"}, p.Summary)

	info, _ := h.FS.Stat("/k")
	assert.Equal(t, "root", info.Owner)
	assert.Equal(t, "ssl-cert", info.Group)
}

func TestFile_CreateIfMissingLeavesContent(t *testing.T) {
	h, _ := newHost()
	require.NoError(t, h.FS.WriteFile("/secret", []byte("mine"), 0o600))

	calls := 0
	f := &File{
		Path:     "/secret",
		Generate: func() ([]byte, error) { calls++; return []byte("generated"), nil },
		Mode:     0o600,
	}
	f.Common.Action = ActionCreateIfMissing
	p := planApply(t, h, f)
	assert.False(t, p.Changed)
	assert.Zero(t, calls, "content is not generated for an existing file")

	data, _ := h.FS.ReadFile("/secret")
	assert.Equal(t, "mine", string(data))
}

func TestFile_GenerateOnce(t *testing.T) {
	h, _ := newHost()
	calls := 0
	f := &File{
		Path:      "/secret",
		Generate:  func() ([]byte, error) { calls++; return []byte("k"), nil },
		Sensitive: true,
	}
	p := planApply(t, h, f)
	assert.True(t, p.Changed)
	assert.Empty(t, p.Diff)

	planApply(t, h, f)
	assert.Equal(t, 1, calls)
}

func TestFile_GenerateError(t *testing.T) {
	h, _ := newHost()
	f := &File{Path: "/x", Generate: func() ([]byte, error) { return nil, errors.New("no entropy") }}
	_, err := f.Plan(context.Background(), h, ActionCreate)
	assert.ErrorContains(t, err, "no entropy")
}

func TestFile_Delete(t *testing.T) {
	h, _ := newHost()
	require.NoError(t, h.FS.WriteFile("/etc/httpd/conf.d/dash.conf", []byte("x"), 0o644))

	f := &File{Path: "/etc/httpd/conf.d/dash.conf"}
	f.Common.Action = ActionDelete
	assert.True(t, planApply(t, h, f).Changed)
	assert.False(t, planApply(t, h, f).Changed)

	info, _ := h.FS.Stat(f.Path)
	assert.False(t, info.Exists)
}

func TestFile_PathIsDirectory(t *testing.T) {
	h, _ := newHost()
	require.NoError(t, h.FS.MkdirAll("/d", 0o755))
	_, err := (&File{Path: "/d"}).Plan(context.Background(), h, ActionCreate)
	assert.Error(t, err)
}

func TestDirectory(t *testing.T) {
	h, _ := newHost()
	d := &Directory{Path: "/usr/share/dash/local", Owner: "horizon", Group: "horizon", Mode: 0o2770}

	p := planApply(t, h, d)
	assert.True(t, p.Changed)
	info, _ := h.FS.Stat(d.Path)
	assert.True(t, info.IsDir)
	assert.Equal(t, uint32(0o2770), info.Mode)
	assert.Equal(t, "horizon", info.Owner)
	assert.Equal(t, "horizon", info.Group)

	assert.False(t, planApply(t, h, d).Changed)

	require.NoError(t, h.FS.Chmod(d.Path, 0o755))
	p = planApply(t, h, d)
	assert.Equal(t, []string{"mode 0755 -> 2770"}, p.Summary)
}

func TestDirectory_DefaultModeAndDelete(t *testing.T) {
	h, _ := newHost()
	d := &Directory{Path: "/srv/.blackhole"}
	planApply(t, h, d)
	info, _ := h.FS.Stat(d.Path)
	assert.Equal(t, uint32(0o755), info.Mode)

	require.NoError(t, h.FS.WriteFile("/srv/.blackhole/f", []byte("x"), 0o644))
	d.Common.Action = ActionDelete
	assert.True(t, planApply(t, h, d).Changed)
	info, _ = h.FS.Stat("/srv/.blackhole/f")
	assert.False(t, info.Exists)
}

func TestExecute_Guards(t *testing.T) {
	h, runner := newHost()
	runner.Fn = func(cmd host.Command) ([]byte, error) {
		if cmd.String() == "selinuxenabled" {
			return nil, &host.ExitError{Command: cmd.String(), Code: 1}
		}
		return nil, nil
	}
	ctx := context.Background()

	e := &Execute{Name: "a2enmod ssl", Command: host.Command{Argv: []string{"a2enmod", "ssl"}}, Creates: "/etc/apache2/mods-enabled/ssl.load"}
	p, err := e.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	assert.True(t, p.Changed)
	require.NoError(t, p.Apply(ctx))
	assert.Equal(t, []string{"a2enmod ssl"}, runner.Calls())

	require.NoError(t, h.FS.WriteFile("/etc/apache2/mods-enabled/ssl.load", nil, 0o644))
	p, err = e.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	assert.False(t, p.Changed)
	assert.Contains(t, p.Skipped, "exists")

	runner.Reset()
	restore := &Execute{
		Name:    "restore-selinux-context",
		Command: host.Command{Argv: []string{"restorecon", "-Rv", "/etc/httpd"}},
		OnlyIf:  []host.Command{{Argv: []string{"selinuxenabled"}}},
	}
	p, err = restore.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	assert.Contains(t, p.Skipped, "only_if selinuxenabled")
	require.NoError(t, p.Apply(ctx))
	assert.Equal(t, []string{"selinuxenabled"}, runner.Calls())

	notIf := &Execute{Name: "x", Command: host.Command{Argv: []string{"x"}}, NotIf: []host.Command{{Argv: []string{"true"}}}}
	p, err = notIf.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	assert.Contains(t, p.Skipped, "not_if true")
}

func TestExecute_NothingAndFailure(t *testing.T) {
	h, runner := newHost()
	runner.Fn = func(cmd host.Command) ([]byte, error) {
		return []byte("boom"), &host.ExitError{Command: cmd.String(), Code: 2}
	}
	ctx := context.Background()
	e := &Execute{Name: "syncdb", Command: host.Command{Argv: []string{"python", "manage.py", "syncdb", "--noinput"}}}

	p, err := e.Plan(ctx, h, ActionNothing)
	require.NoError(t, err)
	assert.False(t, p.Changed)
	assert.Empty(t, runner.Calls())

	p, err = e.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	var exit *host.ExitError
	assert.ErrorAs(t, p.Apply(ctx), &exit)
	assert.Equal(t, 2, exit.Code)
}

func TestPackage(t *testing.T) {
	h, _ := newHost()
	pkgs := h.Packages.(*host.MemPackages)
	ctx := context.Background()

	p := &Package{Name: "apache2"}
	plan := planApply(t, h, p)
	assert.Equal(t, []string{"install 2.4.58"}, plan.Summary)
	assert.False(t, planApply(t, h, p).Changed)

	pkgs.SetInstalled("lessc", "1.6")
	up := &Package{Name: "lessc"}
	up.Common.Action = ActionUpgrade
	plan = planApply(t, h, up)
	assert.Equal(t, []string{"upgrade 1.6 -> 1.7"}, plan.Summary)
	assert.False(t, planApply(t, h, up).Changed)

	pkgs.SetInstalled("ubuntu-theme", "1")
	purge := &Package{Name: "ubuntu-theme"}
	purge.Common.Action = ActionPurge
	assert.True(t, planApply(t, h, purge).Changed)
	assert.False(t, planApply(t, h, purge).Changed)

	pkgs.SetResidual("old-theme")
	leftover := &Package{Name: "old-theme"}
	leftover.Common.Action = ActionPurge
	plan = planApply(t, h, leftover)
	assert.Equal(t, []string{"purge residual configuration"}, plan.Summary)
	assert.False(t, planApply(t, h, leftover).Changed)

	_, err := (&Package{Name: "missing"}).Plan(ctx, h, ActionInstall)
	assert.ErrorContains(t, err, "no installation candidate")

	assert.Equal(t, []string{"install apache2", "upgrade lessc", "purge ubuntu-theme", "purge old-theme"}, pkgs.Calls)
}

func TestService(t *testing.T) {
	h, _ := newHost()
	svcs := h.Services.(*host.MemServices)
	s := &Service{Name: "apache2"}

	assert.True(t, planApply(t, h, s).Changed)
	assert.False(t, planApply(t, h, s).Changed)

	ctx := context.Background()
	for _, a := range []Action{ActionRestart, ActionReload} {
		p, err := s.Plan(ctx, h, a)
		require.NoError(t, err)
		assert.True(t, p.Changed, a)
		require.NoError(t, p.Apply(ctx))
	}

	p, err := s.Plan(ctx, h, ActionStop)
	require.NoError(t, err)
	require.NoError(t, p.Apply(ctx))
	assert.Equal(t, []string{"start apache2", "restart apache2", "reload apache2", "stop apache2"}, svcs.Calls)
}

func TestCollection_AddAndValidate(t *testing.T) {
	c := NewCollection()
	restart := &Service{Name: "apache2"}
	restart.Common.Action = ActionNothing

	f := &File{Path: "/etc/a"}
	f.Notify(restart.ID(), ActionRestart, notify.Delayed)
	f.Notify(ID{Type: TypeExecute, Name: "later"}, ActionRun, notify.Immediate)

	require.NoError(t, c.Add(f))
	require.NoError(t, c.Add(restart))
	require.NoError(t, c.Add(&Execute{Name: "later", Command: host.Command{Argv: []string{"true"}}}))
	require.NoError(t, c.Validate())

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 2, c.Graph().Len())
	got, ok := c.Lookup("service[apache2]")
	require.True(t, ok)
	assert.Same(t, restart, got)
	assert.Equal(t, []ID{f.ID(), restart.ID(), {Type: TypeExecute, Name: "later"}}, ids(c.Resources()))
}

func TestCollection_Errors(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Add(&Directory{Path: "/d"}))

	var dup *DuplicateError
	assert.ErrorAs(t, c.Add(&Directory{Path: "/d"}), &dup)
	assert.Error(t, c.Add(&File{}))

	bad := &Package{Name: "p"}
	bad.Common.Action = ActionRestart
	assert.Error(t, c.Add(bad))

	f := &File{Path: "/f"}
	f.Notify(ID{Type: TypeService, Name: "ghost"}, ActionRestart, notify.Delayed)
	f.Notify(ID{Type: TypeDirectory, Name: "/d"}, ActionRun, notify.Immediate)
	require.NoError(t, c.Add(f))

	err := c.Validate()
	var ne *NotificationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "target is not declared", ne.Reason)
	assert.Contains(t, err.Error(), "does not support action run")
}

func ids(rs []Resource) []ID {
	out := make([]ID, len(rs))
	for i, r := range rs {
		out[i] = r.ID()
	}
	return out
}

func TestExecute_OnlyIfExists(t *testing.T) {
	h, runner := newHost()
	ctx := context.Background()
	e := &Execute{
		Name:         "a2dissite 000-default",
		Command:      host.Command{Argv: []string{"a2dissite", "000-default"}},
		OnlyIfExists: "/etc/apache2/sites-enabled/000-default",
	}

	p, err := e.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	assert.Contains(t, p.Skipped, "does not exist")

	require.NoError(t, h.FS.WriteFile(e.OnlyIfExists, nil, 0o644))
	p, err = e.Plan(ctx, h, ActionRun)
	require.NoError(t, err)
	require.NoError(t, p.Apply(ctx))
	assert.Equal(t, []string{"a2dissite 000-default"}, runner.Calls())
}
