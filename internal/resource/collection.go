package resource

import (
	"errors"
	"fmt"

	"grimm.is/converge/internal/notify"
)

// Collection is an ordered, validated set of resources. Declaration order
// is execution order.
type Collection struct {
	order []Resource
	byID  map[ID]Resource
	graph *notify.Graph
}

func NewCollection() *Collection {
	return &Collection{
		byID:  map[ID]Resource{},
		graph: notify.NewGraph(),
	}
}

// Add declares r. Its notifications are registered immediately but their
// targets are only checked by Validate, so a resource may notify one
// declared after it.
func (c *Collection) Add(r Resource) error {
	id := r.ID()
	if id.Name == "" {
		return fmt.Errorf("resource of type %s has an empty name", id.Type)
	}
	if _, dup := c.byID[id]; dup {
		return &DuplicateError{ID: id}
	}
	if a := DeclaredAction(r); !allows(r, a) {
		return fmt.Errorf("%s: action %s not one of %v", id, a, r.Allowed())
	}

	c.order = append(c.order, r)
	c.byID[id] = r
	for _, n := range Notifications(r) {
		c.graph.Add(notify.Edge{
			Source: id.String(),
			Target: n.Target.String(),
			Action: string(n.Action),
			Timing: n.Timing,
		})
	}
	return nil
}

// Validate checks every notification edge. It returns the NotificationErrors
// joined, or nil.
func (c *Collection) Validate() error {
	var errs []error
	for _, e := range c.graph.Edges() {
		src, _ := ParseID(e.Source)
		dst, err := ParseID(e.Target)
		ne := &NotificationError{Source: src, Target: dst, Action: Action(e.Action)}
		switch {
		case err != nil:
			ne.Reason = err.Error()
		case c.byID[dst] == nil:
			ne.Reason = "target is not declared"
		case !allows(c.byID[dst], Action(e.Action)):
			ne.Reason = fmt.Sprintf("target does not support action %s", e.Action)
		case e.Timing != notify.Immediate && e.Timing != notify.Delayed:
			ne.Reason = fmt.Sprintf("unknown timing %q", e.Timing)
		default:
			continue
		}
		errs = append(errs, ne)
	}
	return errors.Join(errs...)
}

// Resources returns the declared resources in order.
func (c *Collection) Resources() []Resource {
	return append([]Resource(nil), c.order...)
}

// Get returns the resource declared with id.
func (c *Collection) Get(id ID) (Resource, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Lookup resolves a type[name] string.
func (c *Collection) Lookup(s string) (Resource, bool) {
	id, err := ParseID(s)
	if err != nil {
		return nil, false
	}
	return c.Get(id)
}

// Graph returns the notification edges.
func (c *Collection) Graph() *notify.Graph {
	return c.graph
}

func (c *Collection) Len() int { return len(c.order) }
