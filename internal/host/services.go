package host

import "context"

// ServiceManager controls system services.
type ServiceManager interface {
	Active(ctx context.Context, name string) (bool, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Reload(ctx context.Context, name string) error
}

// Systemd drives services through systemctl.
type Systemd struct {
	runner CommandRunner
}

// NewSystemd returns a ServiceManager backed by systemctl.
func NewSystemd(r CommandRunner) *Systemd {
	return &Systemd{runner: r}
}

// Active reports whether the unit is running. Any non-zero exit from
// is-active means not running.
func (s *Systemd) Active(ctx context.Context, name string) (bool, error) {
	return Succeeds(ctx, s.runner, Command{Argv: []string{"systemctl", "is-active", "--quiet", name}}), nil
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	return s.systemctl(ctx, "start", name)
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.systemctl(ctx, "stop", name)
}

func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.systemctl(ctx, "restart", name)
}

func (s *Systemd) Reload(ctx context.Context, name string) error {
	return s.systemctl(ctx, "reload", name)
}

func (s *Systemd) systemctl(ctx context.Context, verb, name string) error {
	return s.runner.Run(ctx, Command{Argv: []string{"systemctl", verb, name}})
}
