package settings

import (
	"errors"
	"fmt"

	"grimm.is/converge/internal/config"
)

const (
	dash = "openstack.dashboard."
	db   = "openstack.db.dashboard."
)

var sessionEngines = map[string]string{
	SessionMemcached:     EngineCache,
	SessionSQL:           EngineDB,
	SessionFile:          EngineFile,
	SessionSignedCookies: EngineSignedCookies,
}

// reader collects lookup errors so every malformed attribute is reported at once.
type reader struct {
	tree *config.Tree
	errs []error
}

func (r *reader) fail(err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *reader) str(path string) string {
	v, err := r.tree.String(path)
	r.fail(err)
	return v
}

func (r *reader) boolean(path string) bool {
	v, err := r.tree.Bool(path)
	r.fail(err)
	return v
}

func (r *reader) integer(path string) int {
	v, err := r.tree.Int(path)
	r.fail(err)
	return v
}

func (r *reader) strings(path string) []string {
	v, err := r.tree.Strings(path)
	r.fail(err)
	return v
}

// notFalse is true unless the attribute is explicitly false. nil counts as set.
func (r *reader) notFalse(path string) bool {
	v, err := r.tree.Lookup(path)
	if err != nil {
		r.fail(err)
		return false
	}
	switch b := v.(type) {
	case nil:
		return true
	case bool:
		return b
	}
	r.fail(&config.TypeError{Path: path, Want: "bool", Got: v})
	return false
}

func (r *reader) port(path string, conventional int) Port {
	n := r.integer(path)
	return Port{Number: n, IsDefault: n == conventional}
}

// Derive computes the dashboard settings. Every malformed attribute is
// reported; the returned error joins them and matches config.TypeError or
// config.ConfigurationError with errors.As.
func Derive(tree *config.Tree) (*Settings, error) {
	r := &reader{tree: tree}
	s := &Settings{
		Family: r.str(config.PlatformFamilyKey),

		AllowedHosts: r.strings(dash + "allowed_hosts"),
		Plugins:      r.strings(dash + "plugins"),
		Flags: Flags{
			EnableLB:             r.boolean(dash + "neutron.enable_lb"),
			EnableQuotas:         r.boolean(dash + "neutron.enable_quotas"),
			SimpleIPManagement:   r.boolean(dash + "simple_ip_management"),
			PasswordAutocomplete: r.str(dash + "password_autocomplete"),
		},

		SSLOffload: r.boolean(dash + "ssl_offload"),
		UseSSL:     r.boolean(dash + "use_ssl"),

		ServerHostname: r.str(dash + "server_hostname"),
		HTTPPort:       r.port(dash+"http_port", DefaultHTTPPort),
		HTTPSPort:      r.port(dash+"https_port", DefaultHTTPSPort),

		HorizonUser:  r.str(dash + "horizon_user"),
		HorizonGroup: r.str(dash + "horizon_group"),

		DashPath:          r.str(dash + "dash_path"),
		DjangoPath:        r.str(dash + "django_path"),
		StaticPath:        r.str(dash + "static_path"),
		WSGIPath:          r.str(dash + "wsgi_path"),
		ConfigDir:         r.str(dash + "config_dir"),
		LocalSettingsPath: r.str(dash + "local_settings_path"),

		Debug:               r.boolean(dash + "debug"),
		TimeZone:            r.str(dash + "time_zone"),
		HelpURL:             r.str(dash + "help_url"),
		KeystoneURL:         r.str(dash + "keystone_url"),
		KeystoneDefaultRole: r.str(dash + "keystone_default_role"),

		SSL: SSL{
			CertPath:    r.str(dash + "ssl.cert_path"),
			KeyPath:     r.str(dash + "ssl.key_path"),
			KeyGroup:    r.str(dash + "ssl.key_group"),
			CertContent: r.str(dash + "ssl.cert_content"),
			KeyContent:  r.str(dash + "ssl.key_content"),
		},
		Apache: Apache{
			Dir:         r.str(dash + "apache.dir"),
			SiteName:    r.str(dash + "apache.site_name"),
			DefaultSite: r.str(dash + "apache.default_site"),
			Service:     r.str(dash + "apache.service"),
			LogDir:      r.str(dash + "apache.log_dir"),
			Modules:     r.strings(dash + "apache.modules"),
		},
		Packages: Packages{
			Horizon:  r.strings(dash + "platform.horizon_packages"),
			Apache:   r.strings(dash + "platform.apache_packages"),
			DBClient: r.strings(dash + "platform.db_client_packages"),
			Purge:    r.strings(dash + "platform.purge_packages"),
			Action:   r.str(dash + "platform.package_action"),
		},
		DB: Database{
			ServiceType: r.str(db + "service_type"),
			Host:        r.str(db + "host"),
			Port:        r.integer(db + "port"),
			Name:        r.str(db + "db_name"),
			Username:    r.str(db + "username"),
			Password:    r.str(db + "password"),
			Migrate:     r.notFalse(db + "migrate"),
		},
	}

	if s.UseSSL {
		s.CSRFCookieSecure = r.boolean(dash + "csrf_cookie_secure")
		s.SessionCookieSecure = r.boolean(dash + "session_cookie_secure")
	}

	deriveCache(r, s)
	deriveSession(r, s)
	deriveSecretKey(r, s)

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return s, nil
}

// deriveCache selects memcached when at least one server is configured.
func deriveCache(r *reader, s *Settings) {
	s.MemcachedServers = r.strings("openstack.memcached_servers")
	if len(s.MemcachedServers) == 0 {
		s.CacheBackend = CacheNone
		s.MemcachedServers = nil
		return
	}
	s.CacheBackend = CacheMemcached
}

func deriveSession(r *reader, s *Settings) {
	path := dash + "session_backend"
	s.SessionBackend = r.str(path)

	engine, ok := sessionEngines[s.SessionBackend]
	if !ok {
		r.fail(&config.TypeError{
			Path: path,
			Want: "one of memcached, sql, file, signed_cookies",
			Got:  s.SessionBackend,
		})
		return
	}

	if engine == EngineCache && s.CacheBackend == CacheNone {
		s.Warnings = append(s.Warnings,
			"session_backend is memcached but no memcached servers are configured; using signed_cookies")
		engine = EngineSignedCookies
	}
	s.SessionEngine = engine
}

// deriveSecretKey applies the precedence content, then path, then generate.
func deriveSecretKey(r *reader, s *Settings) {
	content := r.str(dash + "secret_key_content")
	path := r.str(dash + "secret_key_path")

	switch {
	case content != "":
		if path == "" {
			r.fail(fmt.Errorf("attribute %ssecret_key_content is set but %ssecret_key_path is empty", dash, dash))
			return
		}
		s.SecretKey = SecretKey{Mode: SecretKeyContent, Value: content, Path: path}
	case path != "":
		s.SecretKey = SecretKey{Mode: SecretKeyPath, Value: path, Path: path}
	default:
		s.SecretKey = SecretKey{Mode: SecretKeyGenerate}
	}
}
