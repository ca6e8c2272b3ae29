package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"grimm.is/converge/internal/host"
)

func writeAttributes(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func debianPackages() map[string]string {
	return map[string]string{
		"apache2": "2.4", "libapache2-mod-wsgi": "4.9", "lessc": "1.7",
		"openstack-dashboard": "2014.1", "python-mysqldb": "1.2",
	}
}

func TestRunRender(t *testing.T) {
	attrs := writeAttributes(t, "attrs.hcl", `
openstack {
  dashboard {
    http_port = 8080
    use_ssl   = false
  }
}
`)
	o := &Options{AttributeFiles: []string{attrs}, LogLevel: "error"}

	var out bytes.Buffer
	require.NoError(t, RunRender(o, "virtualhost", &out))
	assert.Contains(t, out.String(), "Listen *:8080")
	assert.Contains(t, out.String(), "<VirtualHost *:8080>")

	out.Reset()
	require.NoError(t, RunRender(o, "local_settings", &out))
	assert.Contains(t, out.String(), "SESSION_ENGINE")

	assert.Error(t, RunRender(o, "nginx", &out))
}

func TestRunAttributes(t *testing.T) {
	attrs := writeAttributes(t, "attrs.yaml", "openstack:\n  dashboard:\n    time_zone: Europe/Berlin\n")
	o := &Options{AttributeFiles: []string{attrs}, LogLevel: "error"}

	var out bytes.Buffer
	require.NoError(t, RunAttributes(o, true, &out))
	assert.Contains(t, out.String(), `time_zone = "Europe/Berlin"`)
	assert.NotContains(t, out.String(), "http_port")

	out.Reset()
	require.NoError(t, RunAttributes(o, false, &out))
	assert.Contains(t, out.String(), "http_port")
	assert.Contains(t, out.String(), `platform_family = "debian"`)
}

func TestRunConverge_InvalidAttributes(t *testing.T) {
	attrs := writeAttributes(t, "attrs.json", `{"openstack": {"dashboard": {"allowed_hosts": "*"}}}`)
	o := &Options{AttributeFiles: []string{attrs}, LogLevel: "error", Host: host.NewMemHost(&host.FuncRunner{}, nil)}

	err := RunConverge(context.Background(), o)
	assert.ErrorContains(t, err, "allowed_hosts")
}

func TestRunConverge_DryRunWritesReportAndMetrics(t *testing.T) {
	attrs := writeAttributes(t, "attrs.hcl", `
openstack {
  dashboard {
    use_ssl = false
  }
}
`)
	dir := t.TempDir()
	h := host.NewMemHost(&host.FuncRunner{}, debianPackages())
	var out bytes.Buffer
	o := &Options{
		AttributeFiles: []string{attrs},
		LogLevel:       "error",
		DryRun:         true,
		ReportFile:     filepath.Join(dir, "report.yaml"),
		MetricsFile:    filepath.Join(dir, "converge.prom"),
		Host:           h,
		Out:            &out,
	}

	require.NoError(t, RunConverge(context.Background(), o))
	assert.True(t, strings.HasPrefix(out.String(), "Planned run "))

	info, err := h.FS.Stat("/etc/openstack-dashboard/local_settings.py")
	require.NoError(t, err)
	assert.False(t, info.Exists, "dry run must not write")

	data, err := os.ReadFile(o.ReportFile)
	require.NoError(t, err)
	var report struct {
		DryRun bool `yaml:"dry_run"`
	}
	require.NoError(t, yaml.Unmarshal(data, &report))
	assert.True(t, report.DryRun)

	prom, err := os.ReadFile(o.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "converge_run_success 1")
}

func TestRunWatch_RequiresFiles(t *testing.T) {
	t.Setenv("CONVERGE_CONFIG_DIR", t.TempDir())
	err := RunWatch(context.Background(), &Options{LogLevel: "error"})
	assert.Error(t, err)
}

func TestHostFor_RelocatedRootRequiresDryRun(t *testing.T) {
	root := t.TempDir()

	_, err := (&Options{Root: root}).hostFor("debian")
	assert.ErrorContains(t, err, "requires --dry-run")

	h, err := (&Options{Root: root, DryRun: true}).hostFor("debian")
	require.NoError(t, err)
	assert.NotNil(t, h.FS)

	_, err = (&Options{Root: "/"}).hostFor("debian")
	assert.NoError(t, err)
}

func TestRunConverge_RelocatedRootWithoutDryRun(t *testing.T) {
	attrs := writeAttributes(t, "attrs.hcl", "openstack {\n  dashboard {\n    use_ssl = false\n  }\n}\n")
	err := RunConverge(context.Background(), &Options{AttributeFiles: []string{attrs}, LogLevel: "error", Root: t.TempDir()})
	assert.ErrorContains(t, err, "--root")
}

// lockedBuffer lets the test read output the watch loop is still writing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), "Planned run ")
}

func TestRunWatch_ReconvergesOncePerBurst(t *testing.T) {
	dir := t.TempDir()
	attrs := filepath.Join(dir, "attrs.hcl")
	other := filepath.Join(dir, "notes.txt")
	write := func(path, zone string) {
		content := "openstack {\n  dashboard {\n    use_ssl   = false\n    time_zone = \"" + zone + "\"\n  }\n}\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(attrs, "UTC")

	out := &lockedBuffer{}
	o := &Options{
		AttributeFiles: []string{attrs},
		LogLevel:       "error",
		DryRun:         true,
		Host:           host.NewMemHost(&host.FuncRunner{}, debianPackages()),
		Out:            out,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunWatch(ctx, o) }()

	require.Eventually(t, func() bool { return out.runs() == 1 }, 5*time.Second, 20*time.Millisecond, "initial run")

	// Other files in the watched directory are ignored.
	write(other, "ignored")
	time.Sleep(3 * watchDebounce)
	assert.Equal(t, 1, out.runs())

	// Two writes inside the debounce window give one extra run.
	write(attrs, "Europe/Berlin")
	time.Sleep(watchDebounce / 5)
	write(attrs, "Europe/Paris")
	require.Eventually(t, func() bool { return out.runs() == 2 }, 5*time.Second, 20*time.Millisecond, "run after change")
	time.Sleep(3 * watchDebounce)
	assert.Equal(t, 2, out.runs())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	RunVersion(&out)
	assert.True(t, strings.HasPrefix(out.String(), "converge "))
}

func TestSetupLogging_BadLevel(t *testing.T) {
	_, err := setupLogging(&Options{LogLevel: "loud"})
	assert.Error(t, err)
}
