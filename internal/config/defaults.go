package config

import (
	"fmt"
	"sort"
)

// PlatformFamilyKey selects the default layer.
const PlatformFamilyKey = "platform_family"

const (
	FamilyDebian = "debian"
	FamilyRHEL   = "rhel"
)

const (
	dash = "openstack.dashboard."
	db   = "openstack.db.dashboard."
)

// common holds defaults shared by every platform family.
var common = Layer{
	"openstack.memcached_servers": []any{"127.0.0.1:11211"},

	dash + "session_backend":       "memcached",
	dash + "secret_key_path":       "/var/lib/openstack-dashboard/secret_key",
	dash + "secret_key_content":    nil,
	dash + "allowed_hosts":         []any{"*"},
	dash + "plugins":               []any{},
	dash + "neutron.enable_lb":     false,
	dash + "neutron.enable_quotas": true,
	dash + "simple_ip_management":  false,
	dash + "password_autocomplete": "on",
	dash + "ssl_offload":           false,
	dash + "use_ssl":               true,
	dash + "csrf_cookie_secure":    true,
	dash + "session_cookie_secure": true,
	dash + "http_port":             80,
	dash + "https_port":            443,
	dash + "server_hostname":       nil,
	dash + "debug":                 false,
	dash + "time_zone":             "UTC",
	dash + "help_url":              "http://docs.openstack.org",
	dash + "keystone_url":          "http://127.0.0.1:5000/v2.0",
	dash + "keystone_default_role": "_member_",

	dash + "dash_path":           "/usr/share/openstack-dashboard/openstack_dashboard",
	dash + "django_path":         "/usr/share/openstack-dashboard",
	dash + "static_path":         "/usr/share/openstack-dashboard/static",
	dash + "wsgi_path":           "/usr/share/openstack-dashboard/openstack_dashboard/wsgi/django.wsgi",
	dash + "config_dir":          "/etc/openstack-dashboard",
	dash + "local_settings_path": "/etc/openstack-dashboard/local_settings.py",

	dash + "ssl.cert_path":    "/etc/ssl/certs/horizon.pem",
	dash + "ssl.key_path":     "/etc/ssl/private/horizon.key",
	dash + "ssl.cert_content": nil,
	dash + "ssl.key_content":  nil,

	dash + "apache.site_name":    "openstack-dashboard",
	dash + "apache.default_site": "000-default",
	dash + "apache.modules":      []any{"wsgi", "rewrite", "ssl"},

	dash + "platform.horizon_packages": []any{"lessc", "openstack-dashboard"},
	dash + "platform.package_action":   "upgrade",

	db + "migrate":      true,
	db + "service_type": "mysql",
	db + "host":         "127.0.0.1",
	db + "port":         3306,
	db + "db_name":      "horizon",
	db + "username":     "dash",
	db + "password":     "",
}

var families = map[string]Layer{
	FamilyDebian: {
		PlatformFamilyKey:                    FamilyDebian,
		dash + "horizon_user":                "horizon",
		dash + "horizon_group":               "horizon",
		dash + "ssl.key_group":               "ssl-cert",
		dash + "apache.dir":                  "/etc/apache2",
		dash + "apache.service":              "apache2",
		dash + "apache.log_dir":              "/var/log/apache2",
		dash + "platform.apache_packages":    []any{"apache2", "libapache2-mod-wsgi"},
		dash + "platform.db_client_packages": []any{"python-mysqldb"},
		dash + "platform.purge_packages":     []any{"openstack-dashboard-ubuntu-theme"},
	},
	FamilyRHEL: {
		PlatformFamilyKey:                    FamilyRHEL,
		dash + "horizon_user":                "apache",
		dash + "horizon_group":               "apache",
		dash + "ssl.key_group":               "root",
		dash + "apache.dir":                  "/etc/httpd",
		dash + "apache.service":              "httpd",
		dash + "apache.log_dir":              "/var/log/httpd",
		dash + "platform.apache_packages":    []any{"httpd", "mod_wsgi", "mod_ssl"},
		dash + "platform.db_client_packages": []any{"MySQL-python"},
		dash + "platform.purge_packages":     []any{},
	},
}

// Families lists the supported platform families.
func Families() []string {
	out := make([]string, 0, len(families))
	for f := range families {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Defaults returns the default layer for a platform family.
func Defaults(family string) (Layer, error) {
	fam, ok := families[family]
	if !ok {
		return nil, fmt.Errorf("unsupported platform family %q (supported: %v)", family, Families())
	}
	return common.Merge(fam), nil
}

// NewPlatformTree builds a tree whose default layer is chosen by the
// platform_family override, falling back to debian.
func NewPlatformTree(overrides Layer) (*Tree, error) {
	family := FamilyDebian
	if v, ok := overrides[PlatformFamilyKey]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, &TypeError{Path: PlatformFamilyKey, Want: "string", Got: v}
		}
		family = s
	}
	defaults, err := Defaults(family)
	if err != nil {
		return nil, err
	}
	return NewTree(defaults, overrides)
}
