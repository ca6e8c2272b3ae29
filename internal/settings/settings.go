// Package settings derives the dashboard's effective settings from an
// attribute tree. Derivation is pure: it reads the tree and returns an
// immutable value, touching neither the filesystem nor any service.
package settings

// CacheBackend names the Django cache backend.
type CacheBackend string

const (
	CacheNone      CacheBackend = "none"
	CacheMemcached CacheBackend = "memcached"
)

// SecretKeyMode says where the application's SECRET_KEY comes from.
type SecretKeyMode string

const (
	// SecretKeyContent: the key is supplied by attribute and written to Path.
	SecretKeyContent SecretKeyMode = "content"
	// SecretKeyPath: the application generates the key into Path on first
	// start, or reads it back on later starts.
	SecretKeyPath SecretKeyMode = "path"
	// SecretKeyGenerate: no file; a fresh key per process.
	SecretKeyGenerate SecretKeyMode = "generate"
)

// Session backend attribute values.
const (
	SessionMemcached     = "memcached"
	SessionSQL           = "sql"
	SessionFile          = "file"
	SessionSignedCookies = "signed_cookies"
)

// Django session engine short names.
const (
	EngineCache         = "cache"
	EngineDB            = "db"
	EngineFile          = "file"
	EngineSignedCookies = "signed_cookies"
)

const (
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// SecretKey is the resolved secret key source.
type SecretKey struct {
	Mode SecretKeyMode
	// Value is the literal key in content mode and the path in path mode.
	Value string
	// Path is the managed key file, empty in generate mode.
	Path string
}

// Port is a listener port and whether it is the scheme's conventional one.
type Port struct {
	Number    int
	IsDefault bool
}

// Flags are the HORIZON_CONFIG feature switches.
type Flags struct {
	EnableLB             bool
	EnableQuotas         bool
	SimpleIPManagement   bool
	PasswordAutocomplete string
}

// Map returns the flags keyed by their HORIZON_CONFIG names.
func (f Flags) Map() map[string]any {
	return map[string]any{
		"enable_lb":             f.EnableLB,
		"enable_quotas":         f.EnableQuotas,
		"simple_ip_management":  f.SimpleIPManagement,
		"password_autocomplete": f.PasswordAutocomplete,
	}
}

type SSL struct {
	CertPath    string
	KeyPath     string
	KeyGroup    string
	CertContent string
	KeyContent  string
}

type Apache struct {
	Dir         string
	SiteName    string
	DefaultSite string
	Service     string
	LogDir      string
	Modules     []string
}

// SiteAvailablePath is where the dashboard virtual host is written.
func (a Apache) SiteAvailablePath() string {
	return a.Dir + "/sites-available/" + a.SiteName
}

type Packages struct {
	Horizon  []string
	Apache   []string
	DBClient []string
	Purge    []string
	Action   string
}

type Database struct {
	ServiceType string
	Host        string
	Port        int
	Name        string
	Username    string
	Password    string
	Migrate     bool
}

// Settings is the derived configuration for one run.
type Settings struct {
	Family string

	CacheBackend     CacheBackend
	MemcachedServers []string

	SessionBackend string
	SessionEngine  string

	SecretKey SecretKey

	AllowedHosts []string
	Plugins      []string
	Flags        Flags

	SSLOffload          bool
	UseSSL              bool
	CSRFCookieSecure    bool
	SessionCookieSecure bool

	ServerHostname string
	HTTPPort       Port
	HTTPSPort      Port

	HorizonUser  string
	HorizonGroup string

	DashPath          string
	DjangoPath        string
	StaticPath        string
	WSGIPath          string
	ConfigDir         string
	LocalSettingsPath string

	Debug               bool
	TimeZone            string
	HelpURL             string
	KeystoneURL         string
	KeystoneDefaultRole string

	SSL      SSL
	Apache   Apache
	Packages Packages
	DB       Database

	// Warnings are non-fatal observations made during derivation.
	Warnings []string
}

// BlackholePath is the placeholder DocumentRoot.
func (s *Settings) BlackholePath() string {
	return s.DashPath + "/.blackhole"
}

// LocalPath is the application's writable local directory.
func (s *Settings) LocalPath() string {
	return s.DashPath + "/local"
}

// MigrationEnabled reports whether the database migration command is declared.
func (s *Settings) MigrationEnabled() bool {
	return s.SessionBackend == SessionSQL && s.DB.Migrate
}
