package resource

import (
	"context"

	"grimm.is/converge/internal/host"
)

// Execute runs a command. Guards make it idempotent: the command is
// skipped when Creates exists, when OnlyIfExists is missing, when any OnlyIf
// command fails, or when any NotIf command succeeds. Guards are evaluated
// in dry runs too.
type Execute struct {
	Common
	Name         string
	Command      host.Command
	Creates      string
	OnlyIfExists string
	OnlyIf       []host.Command
	NotIf        []host.Command
}

func (e *Execute) ID() ID { return ID{Type: TypeExecute, Name: e.Name} }

func (e *Execute) Allowed() []Action {
	return []Action{ActionRun, ActionNothing}
}

func (e *Execute) Plan(ctx context.Context, h *host.Host, action Action) (*Plan, error) {
	if action != ActionRun {
		return unchanged(), nil
	}

	if e.Creates != "" {
		info, err := h.FS.Stat(e.Creates)
		if err != nil {
			return nil, err
		}
		if info.Exists {
			return skipped(e.Creates + " exists"), nil
		}
	}
	if e.OnlyIfExists != "" {
		info, err := h.FS.Stat(e.OnlyIfExists)
		if err != nil {
			return nil, err
		}
		if !info.Exists {
			return skipped(e.OnlyIfExists + " does not exist"), nil
		}
	}
	for _, c := range e.OnlyIf {
		if !host.Succeeds(ctx, h.Commands, c) {
			return skipped("only_if " + c.String() + " failed"), nil
		}
	}
	for _, c := range e.NotIf {
		if host.Succeeds(ctx, h.Commands, c) {
			return skipped("not_if " + c.String() + " succeeded"), nil
		}
	}

	return changed([]string{"run " + e.Command.String()}, func(ctx context.Context) error {
		return h.Commands.Run(ctx, e.Command)
	}), nil
}
