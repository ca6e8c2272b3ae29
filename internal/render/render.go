// Package render produces the dashboard's text artifacts from derived
// settings: the Django local_settings.py and the Apache virtual host.
//
// Rendering is pure. Identical settings always produce byte-identical
// output, which the runner relies on to detect that nothing changed.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"grimm.is/converge/internal/brand"
	"grimm.is/converge/internal/settings"
	"grimm.is/converge/internal/validation"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Artifact names, used in errors and by the CLI render command.
const (
	ArtifactLocalSettings = "local_settings"
	ArtifactVirtualHost   = "virtualhost"
)

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"pybool":  pyBool,
	"pystr":   pyStr,
	"pysq":    pySQ,
	"pylist":  pyList,
	"pytuple": pyTuple,
}).ParseFS(templateFS, "templates/*.tmpl"))

// baseDashboards are always enabled; plugins are appended in order.
var baseDashboards = []string{"project", "admin", "settings"}

var dbEngines = map[string]string{
	"mysql":      "mysql",
	"postgresql": "postgresql_psycopg2",
	"sqlite":     "sqlite3",
}

// Error reports settings that cannot be rendered.
type Error struct {
	Artifact string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s: %s: %v", e.Artifact, e.Reason, e.Err)
	}
	return fmt.Sprintf("render %s: %s", e.Artifact, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

type localSettingsView struct {
	*settings.Settings
	Banner     string
	Dashboards []string
	DBEngine   string
}

type virtualHostView struct {
	*settings.Settings
	Banner      string
	RedirectURL string
}

// LocalSettings renders local_settings.py.
func LocalSettings(s *settings.Settings) ([]byte, error) {
	fail := func(reason string) error {
		return &Error{Artifact: ArtifactLocalSettings, Reason: reason}
	}

	if s.SessionEngine == "" {
		return nil, fail("session engine is not set")
	}
	if s.CacheBackend == settings.CacheMemcached && len(s.MemcachedServers) == 0 {
		return nil, fail("memcached cache backend without servers")
	}
	if s.SecretKey.Mode != settings.SecretKeyGenerate && s.SecretKey.Path == "" {
		return nil, fail(fmt.Sprintf("secret key mode %s requires a path", s.SecretKey.Mode))
	}
	for _, h := range s.AllowedHosts {
		if strings.TrimSpace(h) == "" {
			return nil, fail("allowed_hosts contains an empty host")
		}
	}

	view := localSettingsView{
		Settings:   s,
		Banner:     brand.BannerTag,
		Dashboards: append(append([]string{}, baseDashboards...), s.Plugins...),
	}
	if s.SessionEngine == settings.EngineDB {
		engine, ok := dbEngines[s.DB.ServiceType]
		if !ok {
			return nil, fail(fmt.Sprintf("unsupported database service_type %q", s.DB.ServiceType))
		}
		if err := validation.ValidatePortNumber(s.DB.Port); err != nil {
			return nil, fail("database " + err.Error())
		}
		view.DBEngine = engine
	}

	return execute(ArtifactLocalSettings, "local_settings.py.tmpl", view)
}

// VirtualHost renders the Apache site definition. Listen and NameVirtualHost
// are only emitted for ports other than the scheme's default.
func VirtualHost(s *settings.Settings) ([]byte, error) {
	fail := func(reason string) error {
		return &Error{Artifact: ArtifactVirtualHost, Reason: reason}
	}

	if err := validation.ValidatePortNumber(s.HTTPPort.Number); err != nil {
		return nil, fail("http " + err.Error())
	}
	if err := validation.ValidateUserName(s.HorizonUser); err != nil {
		return nil, fail("WSGI run-as " + err.Error())
	}
	for _, p := range []struct{ name, value string }{
		{"dash_path", s.DashPath},
		{"static_path", s.StaticPath},
		{"wsgi_path", s.WSGIPath},
		{"apache.log_dir", s.Apache.LogDir},
	} {
		if err := validation.ValidateAbsPath(p.value); err != nil {
			return nil, fail(p.name + ": " + err.Error())
		}
	}

	if s.ServerHostname != "" {
		if err := validation.ValidateHostname(s.ServerHostname); err != nil {
			return nil, fail("server_hostname: " + err.Error())
		}
	}

	view := virtualHostView{Settings: s, Banner: brand.BannerTag}
	if s.UseSSL {
		if err := validation.ValidatePortNumber(s.HTTPSPort.Number); err != nil {
			return nil, fail("https " + err.Error())
		}
		if s.HTTPSPort.Number == s.HTTPPort.Number {
			return nil, fail("http and https share port " + strconv.Itoa(s.HTTPPort.Number))
		}
		if s.SSL.CertPath == "" || s.SSL.KeyPath == "" {
			return nil, fail("use_ssl requires ssl.cert_path and ssl.key_path")
		}
		for _, p := range []string{s.SSL.CertPath, s.SSL.KeyPath} {
			if err := validation.ValidateAbsPath(p); err != nil {
				return nil, fail("ssl " + err.Error())
			}
		}
		view.RedirectURL = "https://%{SERVER_NAME}"
		if !s.HTTPSPort.IsDefault {
			view.RedirectURL += ":" + strconv.Itoa(s.HTTPSPort.Number)
		}
	}

	return execute(ArtifactVirtualHost, "virtualhost.conf.tmpl", view)
}

func execute(artifact, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, &Error{Artifact: artifact, Reason: "template failed", Err: err}
	}
	return buf.Bytes(), nil
}
