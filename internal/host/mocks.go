package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockCommandRunner is a testify mock of CommandRunner. Expectations match
// on the argv joined with spaces, e.g. m.On("Run", "a2enmod ssl").
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Run(_ context.Context, cmd Command) error {
	return m.Called(cmd.String()).Error(0)
}

func (m *MockCommandRunner) Output(_ context.Context, cmd Command) ([]byte, error) {
	result := m.Called(cmd.String())
	if result.Get(0) == nil {
		return nil, result.Error(1)
	}
	return result.Get(0).([]byte), result.Error(1)
}

// FuncRunner adapts a function to CommandRunner and records every command.
// A nil Fn succeeds with no output.
type FuncRunner struct {
	mu    sync.Mutex
	Fn    func(cmd Command) ([]byte, error)
	calls []string
}

func (f *FuncRunner) call(cmd Command) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd.String())
	fn := f.Fn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(cmd)
}

func (f *FuncRunner) Run(_ context.Context, cmd Command) error {
	_, err := f.call(cmd)
	return err
}

func (f *FuncRunner) Output(_ context.Context, cmd Command) ([]byte, error) {
	return f.call(cmd)
}

// Calls returns the commands run so far.
func (f *FuncRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Reset forgets recorded commands.
func (f *FuncRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// MemPackages is an in-memory PackageManager.
type MemPackages struct {
	mu sync.Mutex
	// Available maps package name to the candidate version.
	Available map[string]string
	installed map[string]string
	residual  map[string]bool
	Calls     []string
}

// NewMemPackages returns a package manager where every name in available
// can be installed at the given version.
func NewMemPackages(available map[string]string) *MemPackages {
	return &MemPackages{Available: available, installed: map[string]string{}, residual: map[string]bool{}}
}

// SetResidual marks name as removed with its configuration left behind.
func (p *MemPackages) SetResidual(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.installed, name)
	p.residual[name] = true
}

func (p *MemPackages) Residual(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.residual[name], nil
}

func (p *MemPackages) SetInstalled(name, version string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.installed[name] = version
}

func (p *MemPackages) Installed(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installed[name], nil
}

func (p *MemPackages) Candidate(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.Available[name]
	if !ok {
		return "", fmt.Errorf("package %s has no installation candidate", name)
	}
	return v, nil
}

func (p *MemPackages) Install(_ context.Context, name string) error {
	return p.set("install", name)
}

func (p *MemPackages) Upgrade(_ context.Context, name string) error {
	return p.set("upgrade", name)
}

func (p *MemPackages) Purge(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, "purge "+name)
	delete(p.installed, name)
	delete(p.residual, name)
	return nil
}

func (p *MemPackages) set(verb, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, verb+" "+name)
	v, ok := p.Available[name]
	if !ok {
		return fmt.Errorf("package %s has no installation candidate", name)
	}
	p.installed[name] = v
	return nil
}

// MemServices is an in-memory ServiceManager.
type MemServices struct {
	mu     sync.Mutex
	active map[string]bool
	Calls  []string
}

func NewMemServices() *MemServices {
	return &MemServices{active: map[string]bool{}}
}

func (s *MemServices) Active(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[name], nil
}

func (s *MemServices) Start(_ context.Context, name string) error {
	return s.record("start", name, true)
}

func (s *MemServices) Stop(_ context.Context, name string) error {
	return s.record("stop", name, false)
}

func (s *MemServices) Restart(_ context.Context, name string) error {
	return s.record("restart", name, true)
}

func (s *MemServices) Reload(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "reload "+name)
	return nil
}

func (s *MemServices) record(verb, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, verb+" "+name)
	s.active[name] = active
	return nil
}

// NewMemHost returns a Host backed entirely by in-memory fakes, with
// commands handled by runner.
func NewMemHost(runner CommandRunner, available map[string]string) *Host {
	return &Host{
		FS:       NewMemFS(),
		Commands: runner,
		Packages: NewMemPackages(available),
		Services: NewMemServices(),
	}
}
