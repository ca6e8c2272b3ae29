// Package resource declares units of desired host state and knows how to
// observe and reconcile each of them.
//
// A resource never applies itself. Plan observes the host and returns a
// Plan describing what the requested action would change; the runner
// decides whether to Apply it.
package resource

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"grimm.is/converge/internal/host"
	"grimm.is/converge/internal/notify"
)

// Type is the kind of a resource.
type Type string

const (
	TypeFile      Type = "file"
	TypeDirectory Type = "directory"
	TypeExecute   Type = "execute"
	TypePackage   Type = "package"
	TypeService   Type = "service"
)

// Action is what a resource is asked to do.
type Action string

const (
	ActionNothing         Action = "nothing"
	ActionCreate          Action = "create"
	ActionCreateIfMissing Action = "create_if_missing"
	ActionDelete          Action = "delete"
	ActionRun             Action = "run"
	ActionInstall         Action = "install"
	ActionUpgrade         Action = "upgrade"
	ActionPurge           Action = "purge"
	ActionStart           Action = "start"
	ActionStop            Action = "stop"
	ActionRestart         Action = "restart"
	ActionReload          Action = "reload"
)

// ID identifies a resource, rendered as type[name].
type ID struct {
	Type Type
	Name string
}

func (id ID) String() string {
	return string(id.Type) + "[" + id.Name + "]"
}

// ParseID parses the type[name] form.
func ParseID(s string) (ID, error) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") || open == len(s)-2 {
		return ID{}, fmt.Errorf("invalid resource id %q, want type[name]", s)
	}
	return ID{Type: Type(s[:open]), Name: s[open+1 : len(s)-1]}, nil
}

// Notification is an outbound edge declared on a resource.
type Notification struct {
	Target ID
	Action Action
	Timing notify.Timing
}

// Common carries the declaration fields shared by every resource type.
type Common struct {
	// Action defaults to the type's first allowed action.
	Action   Action
	Notifies []Notification
}

func (c *Common) common() *Common { return c }

// Notify appends an outbound notification.
func (c *Common) Notify(target ID, action Action, timing notify.Timing) {
	c.Notifies = append(c.Notifies, Notification{Target: target, Action: action, Timing: timing})
}

// Resource is a declared unit of desired state.
type Resource interface {
	ID() ID
	// Allowed lists the accepted actions; the first is the default.
	Allowed() []Action
	// Plan observes the host and reports what action would change.
	Plan(ctx context.Context, h *host.Host, action Action) (*Plan, error)

	common() *Common
}

// DeclaredAction returns the action a resource runs in declaration order.
func DeclaredAction(r Resource) Action {
	if a := r.common().Action; a != "" {
		return a
	}
	return r.Allowed()[0]
}

// Notifications returns the outbound edges declared on r.
func Notifications(r Resource) []Notification {
	return append([]Notification(nil), r.common().Notifies...)
}

func allows(r Resource, a Action) bool {
	return slices.Contains(r.Allowed(), a)
}

// Plan is the observed difference between desired and actual state.
type Plan struct {
	// Changed is true when applying would alter the host.
	Changed bool
	// Skipped explains why a guarded resource will not act.
	Skipped string
	// Summary lists the individual differences, e.g. "mode 0644 -> 0600".
	Summary []string
	// Diff is a unified diff of file content; empty for sensitive files.
	Diff string

	apply func(ctx context.Context) error
}

func unchanged() *Plan { return &Plan{} }

func skipped(reason string) *Plan { return &Plan{Skipped: reason} }

func changed(summary []string, apply func(ctx context.Context) error) *Plan {
	return &Plan{Changed: true, Summary: summary, apply: apply}
}

// Apply performs the planned change. It is a no-op for unchanged plans.
func (p *Plan) Apply(ctx context.Context) error {
	if !p.Changed || p.apply == nil {
		return nil
	}
	return p.apply(ctx)
}
