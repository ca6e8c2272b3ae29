// Package dashboard declares the resources that deploy the dashboard
// behind Apache. Declaration is a pure function of the derived settings:
// conditional resources are either present in the collection or absent,
// never present and skipped.
package dashboard

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"

	"grimm.is/converge/internal/clock"
	"grimm.is/converge/internal/config"
	"grimm.is/converge/internal/host"
	"grimm.is/converge/internal/logging"
	"grimm.is/converge/internal/notify"
	"grimm.is/converge/internal/pki"
	"grimm.is/converge/internal/render"
	"grimm.is/converge/internal/resource"
	"grimm.is/converge/internal/settings"
	"grimm.is/converge/internal/validation"
)

const (
	SyncDBName         = "openstack-dashboard syncdb"
	RestoreContextName = "restore-selinux-context"

	secretKeyLength = 64
	secretKeyChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#%^&*(-_=+)"
)

// Options tune declaration.
type Options struct {
	// Clock stamps generated certificates.
	Clock  clock.Clock
	Logger *logging.Logger
}

// Compile derives settings from tree and declares the resource collection.
// The settings are returned alongside for callers that need the platform.
func Compile(tree *config.Tree, opts Options) (*resource.Collection, *settings.Settings, error) {
	s, err := settings.Derive(tree)
	if err != nil {
		return nil, nil, err
	}
	c, err := Declare(s, opts)
	if err != nil {
		return nil, s, err
	}
	return c, s, nil
}

// Declare builds the validated collection for s. Artifacts are rendered
// here so that render errors abort before anything is applied.
func Declare(s *settings.Settings, opts Options) (*resource.Collection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("dashboard")
	}
	for _, w := range s.Warnings {
		logger.Warn(w)
	}

	localSettings, err := render.LocalSettings(s)
	if err != nil {
		return nil, err
	}
	vhost, err := render.VirtualHost(s)
	if err != nil {
		return nil, err
	}

	d := &declarer{s: s, c: resource.NewCollection(), seen: map[resource.ID]bool{}}
	d.apache()
	d.packages()
	d.localSettings(localSettings)
	d.tls(opts.Clock)
	d.secretKey()
	d.add(&resource.Directory{Path: s.BlackholePath(), Owner: "root", Group: "root", Mode: 0o755})
	d.virtualHost(vhost)
	d.sites()
	d.restoreContext()
	d.add(&resource.Directory{Path: s.LocalPath(), Owner: s.HorizonUser, Group: s.HorizonGroup, Mode: 0o2770})

	if d.err != nil {
		return nil, d.err
	}
	if err := d.c.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Declared resources", "count", d.c.Len(), "family", s.Family)
	return d.c, nil
}

type declarer struct {
	s    *settings.Settings
	c    *resource.Collection
	seen map[resource.ID]bool
	err  error
}

func (d *declarer) add(r resource.Resource) {
	if d.err != nil {
		return
	}
	d.err = d.c.Add(r)
}

func (d *declarer) webServer() resource.ID {
	return resource.ID{Type: resource.TypeService, Name: d.s.Apache.Service}
}

func restoreContextID() resource.ID {
	return resource.ID{Type: resource.TypeExecute, Name: RestoreContextName}
}

func syncDBID() resource.ID {
	return resource.ID{Type: resource.TypeExecute, Name: SyncDBName}
}

// SyncDBPendingPath is the marker that holds a migration owed to the
// current local settings until syncdb succeeds.
func SyncDBPendingPath(s *settings.Settings) string {
	return filepath.Join(s.ConfigDir, ".syncdb-pending")
}

// pkg declares a package once; a name listed in two package groups keeps
// its first declaration.
func (d *declarer) pkg(name string, action resource.Action) {
	p := &resource.Package{Name: name}
	if d.seen[p.ID()] {
		return
	}
	d.seen[p.ID()] = true
	p.Action = action
	d.add(p)
}

func (d *declarer) apache() {
	s := d.s
	for _, name := range s.Packages.Apache {
		d.pkg(name, resource.ActionInstall)
	}
	for _, mod := range s.Apache.Modules {
		if mod == "ssl" && !s.UseSSL {
			continue
		}
		e := &resource.Execute{
			Name:    "a2enmod " + mod,
			Command: host.Command{Argv: []string{"a2enmod", mod}},
			Creates: s.Apache.Dir + "/mods-enabled/" + mod + ".load",
		}
		e.Notify(d.webServer(), resource.ActionRestart, notify.Delayed)
		d.add(e)
	}
	d.add(&resource.Service{Name: s.Apache.Service})
}

func (d *declarer) packages() {
	s := d.s
	action := resource.Action(s.Packages.Action)
	if err := validation.ValidateAllowlist(s.Packages.Action, []string{string(resource.ActionInstall), string(resource.ActionUpgrade)}); err != nil {
		d.err = &config.TypeError{Path: "openstack.dashboard.platform.package_action", Want: "install or upgrade", Got: s.Packages.Action}
		return
	}
	for _, name := range s.Packages.Horizon {
		d.pkg(name, action)
	}
	for _, name := range s.Packages.DBClient {
		d.pkg(name, action)
	}
	for _, name := range s.Packages.Purge {
		d.pkg(name, resource.ActionPurge)
	}
}

func (d *declarer) localSettings(content []byte) {
	s := d.s
	f := &resource.File{
		Path:    s.LocalSettingsPath,
		Content: content,
		Owner:   "root",
		Group:   "root",
		Mode:    0o644,
	}
	f.Notify(d.webServer(), resource.ActionRestart, notify.Delayed)
	if !s.MigrationEnabled() {
		d.add(f)
		return
	}

	pending := &resource.File{Path: SyncDBPendingPath(s), Content: []byte{}, Owner: "root", Group: "root", Mode: 0o600}
	pending.Action = resource.ActionNothing
	d.add(pending)
	f.Notify(pending.ID(), resource.ActionCreate, notify.Immediate)
	d.add(f)

	// Guarded by the marker; a failed migration leaves it for the next run.
	e := &resource.Execute{
		Name: SyncDBName,
		Command: host.Command{
			Argv: []string{"python", "manage.py", "syncdb", "--noinput"},
			Dir:  s.DjangoPath,
			Env:  []string{"PYTHONPATH=" + s.ConfigDir + ":" + s.DjangoPath + ":$PYTHONPATH"},
		},
		OnlyIfExists: pending.Path,
	}
	e.Notify(pending.ID(), resource.ActionDelete, notify.Immediate)
	d.add(e)
}

func (d *declarer) tls(clk clock.Clock) {
	s := d.s
	if !s.UseSSL {
		return
	}
	pair := pki.NewSelfSigned(s.ServerHostname, clk)

	cert := &resource.File{Path: s.SSL.CertPath, Owner: "root", Group: "root", Mode: 0o644}
	if s.SSL.CertContent != "" {
		cert.Content = []byte(s.SSL.CertContent)
	} else {
		cert.Action = resource.ActionCreateIfMissing
		cert.Generate = pair.Cert
	}
	cert.Notify(restoreContextID(), resource.ActionRun, notify.Immediate)
	d.add(cert)

	key := &resource.File{Path: s.SSL.KeyPath, Owner: "root", Group: s.SSL.KeyGroup, Mode: 0o640, Sensitive: true}
	if s.SSL.KeyContent != "" {
		key.Content = []byte(s.SSL.KeyContent)
	} else {
		key.Action = resource.ActionCreateIfMissing
		key.Generate = pair.Key
	}
	key.Notify(restoreContextID(), resource.ActionRun, notify.Immediate)
	d.add(key)
}

func (d *declarer) secretKey() {
	s := d.s
	f := &resource.File{
		Path:      s.SecretKey.Path,
		Owner:     s.HorizonUser,
		Group:     s.HorizonGroup,
		Mode:      0o600,
		Sensitive: true,
	}
	switch s.SecretKey.Mode {
	case settings.SecretKeyContent:
		f.Content = []byte(s.SecretKey.Value)
		f.Notify(d.webServer(), resource.ActionRestart, notify.Delayed)
	case settings.SecretKeyPath:
		f.Action = resource.ActionCreateIfMissing
		f.Generate = generateSecretKey
	default:
		return
	}
	d.add(f)
}

func (d *declarer) virtualHost(content []byte) {
	f := &resource.File{
		Path:    d.s.Apache.SiteAvailablePath(),
		Content: content,
		Owner:   "root",
		Group:   "root",
		Mode:    0o644,
	}
	f.Notify(restoreContextID(), resource.ActionRun, notify.Immediate)
	f.Notify(d.webServer(), resource.ActionReload, notify.Delayed)
	d.add(f)

	if d.s.Family == config.FamilyRHEL {
		stale := &resource.File{Path: d.s.Apache.Dir + "/conf.d/openstack-dashboard.conf"}
		stale.Action = resource.ActionDelete
		d.add(stale)
	}
}

func (d *declarer) sites() {
	a := d.s.Apache
	dis := &resource.Execute{
		Name:         "a2dissite " + a.DefaultSite,
		Command:      host.Command{Argv: []string{"a2dissite", a.DefaultSite}},
		OnlyIfExists: a.Dir + "/sites-enabled/" + a.DefaultSite,
	}
	dis.Notify(d.webServer(), resource.ActionReload, notify.Delayed)
	d.add(dis)

	en := &resource.Execute{
		Name:    "a2ensite " + a.SiteName,
		Command: host.Command{Argv: []string{"a2ensite", a.SiteName}},
		Creates: a.Dir + "/sites-enabled/" + a.SiteName,
	}
	en.Notify(d.webServer(), resource.ActionReload, notify.Immediate)
	d.add(en)
}

func (d *declarer) restoreContext() {
	s := d.s
	script := fmt.Sprintf("restorecon -Rv %s /etc/pki; chcon -R -t httpd_sys_content_t %s || :", s.Apache.Dir, s.DjangoPath)
	e := &resource.Execute{
		Name:    RestoreContextName,
		Command: host.Command{Argv: []string{"sh", "-c", script}},
		OnlyIf:  []host.Command{{Argv: []string{"selinuxenabled"}}},
	}
	e.Action = resource.ActionNothing
	d.add(e)
}

func generateSecretKey() ([]byte, error) {
	limit := big.NewInt(int64(len(secretKeyChars)))
	key := make([]byte, secretKeyLength)
	for i := range key {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, fmt.Errorf("generate secret key: %w", err)
		}
		key[i] = secretKeyChars[n.Int64()]
	}
	return key, nil
}
