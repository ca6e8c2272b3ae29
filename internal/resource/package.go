package resource

import (
	"context"
	"fmt"

	"grimm.is/converge/internal/host"
)

// Package manages an OS package.
type Package struct {
	Common
	Name string
}

func (p *Package) ID() ID { return ID{Type: TypePackage, Name: p.Name} }

func (p *Package) Allowed() []Action {
	return []Action{ActionInstall, ActionUpgrade, ActionPurge, ActionNothing}
}

func (p *Package) Plan(ctx context.Context, h *host.Host, action Action) (*Plan, error) {
	if action == ActionNothing {
		return unchanged(), nil
	}

	installed, err := h.Packages.Installed(ctx, p.Name)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionPurge:
		if installed == "" {
			residual, err := h.Packages.Residual(ctx, p.Name)
			if err != nil {
				return nil, err
			}
			if !residual {
				return unchanged(), nil
			}
			return changed([]string{"purge residual configuration"}, func(ctx context.Context) error {
				return h.Packages.Purge(ctx, p.Name)
			}), nil
		}
		return changed([]string{"purge " + installed}, func(ctx context.Context) error {
			return h.Packages.Purge(ctx, p.Name)
		}), nil

	case ActionInstall:
		if installed != "" {
			return unchanged(), nil
		}
		candidate, err := h.Packages.Candidate(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		return changed([]string{"install " + candidate}, func(ctx context.Context) error {
			return h.Packages.Install(ctx, p.Name)
		}), nil

	case ActionUpgrade:
		candidate, err := h.Packages.Candidate(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		if installed == candidate {
			return unchanged(), nil
		}
		if installed == "" {
			return changed([]string{"install " + candidate}, func(ctx context.Context) error {
				return h.Packages.Install(ctx, p.Name)
			}), nil
		}
		return changed([]string{fmt.Sprintf("upgrade %s -> %s", installed, candidate)}, func(ctx context.Context) error {
			return h.Packages.Upgrade(ctx, p.Name)
		}), nil
	}
	return nil, fmt.Errorf("unsupported action %s", action)
}
