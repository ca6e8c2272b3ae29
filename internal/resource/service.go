package resource

import (
	"context"
	"fmt"

	"grimm.is/converge/internal/host"
)

// Service manages a system service. Restart and reload always act.
type Service struct {
	Common
	Name string
}

func (s *Service) ID() ID { return ID{Type: TypeService, Name: s.Name} }

func (s *Service) Allowed() []Action {
	return []Action{ActionStart, ActionStop, ActionRestart, ActionReload, ActionNothing}
}

func (s *Service) Plan(ctx context.Context, h *host.Host, action Action) (*Plan, error) {
	svc := h.Services
	switch action {
	case ActionNothing:
		return unchanged(), nil
	case ActionRestart:
		return changed([]string{"restart"}, func(ctx context.Context) error {
			return svc.Restart(ctx, s.Name)
		}), nil
	case ActionReload:
		return changed([]string{"reload"}, func(ctx context.Context) error {
			return svc.Reload(ctx, s.Name)
		}), nil
	}

	active, err := svc.Active(ctx, s.Name)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionStart:
		if active {
			return unchanged(), nil
		}
		return changed([]string{"start"}, func(ctx context.Context) error {
			return svc.Start(ctx, s.Name)
		}), nil
	case ActionStop:
		if !active {
			return unchanged(), nil
		}
		return changed([]string{"stop"}, func(ctx context.Context) error {
			return svc.Stop(ctx, s.Name)
		}), nil
	}
	return nil, fmt.Errorf("unsupported action %s", action)
}
