package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command is one external program invocation.
type Command struct {
	Argv []string
	Dir  string
	// Env entries are KEY=VALUE and are added to the process environment.
	// $VAR references are expanded against that environment.
	Env []string
}

func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// CommandRunner abstracts external command execution.
type CommandRunner interface {
	// Run executes the command and fails on a non-zero exit.
	Run(ctx context.Context, cmd Command) error
	// Output executes the command and returns its stdout.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// DefaultCommandRunner is the runner used outside tests.
var DefaultCommandRunner CommandRunner = ExecRunner{}

func (ExecRunner) build(ctx context.Context, c Command) (*exec.Cmd, error) {
	if len(c.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		env := os.Environ()
		for _, kv := range c.Env {
			env = append(env, os.ExpandEnv(kv))
		}
		cmd.Env = env
	}
	return cmd, nil
}

func (r ExecRunner) Run(ctx context.Context, c Command) error {
	cmd, err := r.build(ctx, c)
	if err != nil {
		return err
	}
	out, err := cmd.CombinedOutput()
	return wrapExit(c, out, err)
}

func (r ExecRunner) Output(ctx context.Context, c Command) ([]byte, error) {
	cmd, err := r.build(ctx, c)
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, wrapExit(c, stderr.Bytes(), err)
	}
	return out, nil
}

func wrapExit(c Command, out []byte, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: c.String(), Code: exitErr.ExitCode(), Output: string(out)}
	}
	return fmt.Errorf("command %q failed: %w", c.String(), err)
}

// Succeeds reports whether cmd exits zero. Start failures count as false.
func Succeeds(ctx context.Context, r CommandRunner, cmd Command) bool {
	return r.Run(ctx, cmd) == nil
}
