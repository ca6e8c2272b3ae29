package converge

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"grimm.is/converge/internal/clock"
	"grimm.is/converge/internal/host"
	"grimm.is/converge/internal/logging"
	"grimm.is/converge/internal/metrics"
	"grimm.is/converge/internal/notify"
	"grimm.is/converge/internal/resource"
)

var (
	apache = resource.ID{Type: resource.TypeService, Name: "apache2"}
	syncdb = resource.ID{Type: resource.TypeExecute, Name: "syncdb"}
)

type fixture struct {
	host   *host.Host
	runner *host.FuncRunner
	clock  *clock.MockClock
}

func newFixture() *fixture {
	r := &host.FuncRunner{}
	return &fixture{
		host:   host.NewMemHost(r, nil),
		runner: r,
		clock:  clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) newRunner(opts ...Option) *Runner {
	opts = append([]Option{WithLogger(logging.Discard()), WithClock(f.clock)}, opts...)
	return New(f.host, opts...)
}

func (f *fixture) services() *host.MemServices {
	return f.host.Services.(*host.MemServices)
}

func file(path, content string, notifies ...resource.Notification) *resource.File {
	r := &resource.File{Path: path, Content: []byte(content), Owner: "root", Group: "root", Mode: 0o644}
	r.Notifies = notifies
	return r
}

func execute(name string, action resource.Action, notifies ...resource.Notification) *resource.Execute {
	r := &resource.Execute{Name: name, Command: host.Command{Argv: []string{name}}}
	r.Action = action
	r.Notifies = notifies
	return r
}

func restartLater() resource.Notification {
	return resource.Notification{Target: apache, Action: resource.ActionRestart, Timing: notify.Delayed}
}

func runNow(target resource.ID) resource.Notification {
	return resource.Notification{Target: target, Action: resource.ActionRun, Timing: notify.Immediate}
}

// declare builds the collection fresh, the way each real run does.
func declare(t *testing.T) *resource.Collection {
	t.Helper()
	c := resource.NewCollection()
	require.NoError(t, c.Add(&resource.Service{Name: "apache2"}))
	require.NoError(t, c.Add(file("/etc/dash/local_settings.py", "A = 1\n", restartLater(), runNow(syncdb))))
	require.NoError(t, c.Add(execute("syncdb", resource.ActionNothing)))
	require.NoError(t, c.Add(file("/etc/apache2/sites-available/dash.conf", "<VirtualHost *:80>\n", restartLater())))
	require.NoError(t, c.Add(&resource.Directory{Path: "/usr/share/dash/local", Owner: "horizon", Group: "horizon", Mode: 0o2770}))
	return c
}

func TestRun_OrderAndNotifications(t *testing.T) {
	f := newFixture()
	r := f.newRunner()

	rep, err := r.Run(context.Background(), declare(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"service[apache2]",
		"file[/etc/dash/local_settings.py]",
		"execute[syncdb]", // immediate, before the next declared resource
		"execute[syncdb]", // declared action nothing
		"file[/etc/apache2/sites-available/dash.conf]",
		"directory[/usr/share/dash/local]",
		"service[apache2]", // delayed restart
	}, ids(rep.Resources))

	assert.Equal(t, []string{"execute[syncdb] run", "service[apache2] restart"}, rep.Fired())
	assert.Equal(t, "file[/etc/dash/local_settings.py]", rep.Notifications[1].Source, "delayed fires on behalf of the first source")
	assert.Equal(t, "delayed", rep.Notifications[1].Timing)

	assert.Equal(t, []string{"start apache2", "restart apache2"}, f.services().Calls, "two delayed restarts run once")
	assert.Equal(t, []string{"syncdb"}, f.runner.Calls())

	last := rep.Resources[len(rep.Resources)-1]
	assert.Equal(t, StatusUpdated, last.Status)
	assert.Equal(t, "restart", last.Action)
	assert.Equal(t, "file[/etc/dash/local_settings.py]", last.Via)

	assert.Equal(t, Done, r.State())
	assert.Equal(t, Converged, r.ResourceState(apache))
	assert.Empty(t, rep.Error)
	assert.NotEmpty(t, rep.RunID)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.newRunner().Run(ctx, declare(t))
	require.NoError(t, err)
	assert.Positive(t, first.Changed())

	f.runner.Reset()
	second, err := f.newRunner().Run(ctx, declare(t))
	require.NoError(t, err)
	assert.Zero(t, second.Changed())
	assert.Empty(t, second.Notifications)
	assert.Empty(t, f.runner.Calls())
	for _, res := range second.Resources {
		assert.Equal(t, StatusUpToDate, res.Status, res.ID)
	}
}

func TestRun_UnchangedResourceFiresNothing(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.host.FS.WriteFile("/etc/a", []byte("same"), 0o644))

	c := resource.NewCollection()
	require.NoError(t, c.Add(&resource.Service{Name: "apache2"}))
	require.NoError(t, c.Add(file("/etc/a", "same", restartLater())))

	rep, err := f.newRunner().Run(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, rep.Notifications)
	assert.Equal(t, []string{"start apache2"}, f.services().Calls)
}

func TestRun_ModeOnlyChangeNotifies(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.host.FS.WriteFile("/etc/a", []byte("same"), 0o600))

	c := resource.NewCollection()
	require.NoError(t, c.Add(&resource.Service{Name: "apache2"}))
	require.NoError(t, c.Add(file("/etc/a", "same", restartLater())))

	rep, err := f.newRunner().Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"service[apache2] restart"}, rep.Fired())
}

func TestRun_ImmediateAndDelayedShareOnce(t *testing.T) {
	f := newFixture()
	c := resource.NewCollection()
	restartNow := resource.Notification{Target: apache, Action: resource.ActionRestart, Timing: notify.Immediate}

	require.NoError(t, c.Add(&resource.Service{Name: "apache2"}))
	require.NoError(t, c.Add(file("/a", "a", restartLater())))
	require.NoError(t, c.Add(file("/b", "b", restartNow)))
	require.NoError(t, c.Add(file("/c", "c", restartNow, restartLater())))

	rep, err := f.newRunner().Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"service[apache2] restart"}, rep.Fired())
	assert.Equal(t, "immediate", rep.Notifications[0].Timing)
	assert.Equal(t, []string{"start apache2", "restart apache2"}, f.services().Calls)
}

func TestRun_ChainingIsBoundedByOncePerRun(t *testing.T) {
	f := newFixture()
	one := resource.ID{Type: resource.TypeExecute, Name: "one"}
	two := resource.ID{Type: resource.TypeExecute, Name: "two"}

	c := resource.NewCollection()
	require.NoError(t, c.Add(file("/trigger", "x", runNow(one))))
	require.NoError(t, c.Add(execute("one", resource.ActionNothing, runNow(two))))
	require.NoError(t, c.Add(execute("two", resource.ActionNothing, runNow(one))))

	rep, err := f.newRunner().Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"execute[one] run", "execute[two] run"}, rep.Fired())
	assert.Equal(t, []string{"one", "two"}, f.runner.Calls())
	assert.Equal(t, "execute[one]", rep.Notifications[1].Source)
}

func TestRun_SkippedGuardFiresNothing(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.host.FS.WriteFile("/etc/apache2/mods-enabled/wsgi.load", nil, 0o644))

	enable := execute("a2enmod wsgi", resource.ActionRun, restartLater())
	enable.Creates = "/etc/apache2/mods-enabled/wsgi.load"
	c := resource.NewCollection()
	require.NoError(t, c.Add(&resource.Service{Name: "apache2"}))
	require.NoError(t, c.Add(enable))

	rep, err := f.newRunner().Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, rep.Resources[1].Status)
	assert.Contains(t, rep.Resources[1].Reason, "exists")
	assert.Empty(t, rep.Notifications)
}

func TestRun_AbortsOnFirstFailure(t *testing.T) {
	f := newFixture()
	f.runner.Fn = func(cmd host.Command) ([]byte, error) {
		return nil, &host.ExitError{Command: cmd.String(), Code: 1}
	}

	c := resource.NewCollection()
	require.NoError(t, c.Add(&resource.Service{Name: "apache2"}))
	require.NoError(t, c.Add(file("/first", "1", restartLater())))
	require.NoError(t, c.Add(execute("broken", resource.ActionRun)))
	require.NoError(t, c.Add(file("/never", "2")))

	r := f.newRunner()
	rep, err := r.Run(context.Background(), c)
	require.Error(t, err)

	var aerr *resource.ApplyError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "execute[broken]", aerr.ID.String())
	var exit *host.ExitError
	assert.ErrorAs(t, err, &exit)

	require.NotNil(t, rep)
	assert.Equal(t, StatusFailed, rep.Resources[2].Status)
	assert.Len(t, rep.Resources, 3)
	assert.NotEmpty(t, rep.Error)
	assert.Empty(t, rep.Notifications, "delayed notifications are not drained after a failure")

	first, _ := f.host.FS.Stat("/first")
	assert.True(t, first.Exists, "applied resources stay applied")
	never, _ := f.host.FS.Stat("/never")
	assert.False(t, never.Exists)

	assert.Equal(t, Done, r.State())
	assert.Equal(t, Pending, r.ResourceState(resource.ID{Type: resource.TypeFile, Name: "/never"}))
	assert.Equal(t, Applying, r.ResourceState(resource.ID{Type: resource.TypeExecute, Name: "broken"}))
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture()
	r := f.newRunner(WithDryRun(true))

	rep, err := r.Run(context.Background(), declare(t))
	require.NoError(t, err)
	assert.True(t, rep.DryRun)

	info, _ := f.host.FS.Stat("/etc/dash/local_settings.py")
	assert.False(t, info.Exists)
	assert.Empty(t, f.services().Calls)
	assert.Empty(t, f.runner.Calls())

	assert.Equal(t, []string{"execute[syncdb] run", "service[apache2] restart"}, rep.Fired())
	for _, n := range rep.Notifications {
		assert.True(t, n.DryRun)
	}
	assert.Equal(t, StatusWouldUpdate, rep.Resources[1].Status)
	assert.Contains(t, rep.Resources[1].Diff, "+A = 1")
}

func TestRun_InvalidNotificationFailsBeforeApplying(t *testing.T) {
	f := newFixture()
	c := resource.NewCollection()
	require.NoError(t, c.Add(file("/a", "a", restartLater())))

	rep, err := f.newRunner().Run(context.Background(), c)
	assert.Nil(t, rep)
	var ne *resource.NotificationError
	require.ErrorAs(t, err, &ne)

	info, _ := f.host.FS.Stat("/a")
	assert.False(t, info.Exists)
}

// ctxRunner records whether each command saw a cancelled context and
// cancels the run's context from inside the first one.
type ctxRunner struct {
	cancel context.CancelFunc
	seen   []error
}

func (c *ctxRunner) Run(ctx context.Context, _ host.Command) error {
	c.seen = append(c.seen, ctx.Err())
	c.cancel()
	return nil
}

func (c *ctxRunner) Output(ctx context.Context, cmd host.Command) ([]byte, error) {
	return nil, c.Run(ctx, cmd)
}

func TestRun_CancellationDoesNotInterrupt(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmds := &ctxRunner{cancel: cancel}
	f.host.Commands = cmds

	r := f.newRunner()
	rep, err := r.Run(ctx, declare(t))
	require.NoError(t, err)

	assert.Error(t, ctx.Err(), "context was cancelled during the syncdb action")
	require.Len(t, cmds.seen, 1)
	assert.NoError(t, cmds.seen[0], "actions run with a context that is never cancelled")
	assert.Len(t, rep.Resources, 7, "resources after the cancellation still converge")
	assert.Equal(t, []string{"start apache2", "restart apache2"}, f.services().Calls)
	assert.Equal(t, Converged, r.ResourceState(resource.ID{Type: resource.TypeDirectory, Name: "/usr/share/dash/local"}))

	// An already cancelled context runs to completion as well.
	f2 := newFixture()
	done, stop := context.WithCancel(context.Background())
	stop()
	rep, err = f2.newRunner().Run(done, declare(t))
	require.NoError(t, err)
	assert.Len(t, rep.Resources, 7)
}

func TestRun_Metrics(t *testing.T) {
	f := newFixture()
	m := metrics.New()

	_, err := f.newRunner(WithMetrics(m)).Run(context.Background(), declare(t))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResourcesTotal.WithLabelValues("file", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsFired.WithLabelValues("immediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsFired.WithLabelValues("delayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunSuccess))
}

func TestReport_Output(t *testing.T) {
	f := newFixture()
	rep, err := f.newRunner().Run(context.Background(), declare(t))
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, rep.WriteText(&text))
	assert.Contains(t, text.String(), "Converged run "+rep.RunID)
	assert.Contains(t, text.String(), "updated      file[/etc/dash/local_settings.py] create: create")
	assert.Contains(t, text.String(), "fired delayed service[apache2] restart (from file[/etc/dash/local_settings.py])")

	var out bytes.Buffer
	require.NoError(t, rep.WriteYAML(&out))
	var decoded struct {
		RunID     string `yaml:"run_id"`
		Resources []struct {
			ID     string `yaml:"id"`
			Status string `yaml:"status"`
		} `yaml:"resources"`
		Notifications []FiredNotification `yaml:"notifications"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, rep.RunID, decoded.RunID)
	assert.Len(t, decoded.Resources, len(rep.Resources))
	assert.Equal(t, rep.Notifications, decoded.Notifications)
	assert.NotContains(t, out.String(), "+A = 1", "diffs stay out of the report file")
}

func ids(results []ResourceResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
