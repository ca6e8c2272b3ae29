// Package converge drives a declared resource collection to its desired
// state.
//
// Resources are processed strictly in declaration order, one at a time.
// Each is planned against the host and applied only when the plan reports a
// change. A change fires the resource's notifications: immediate ones run
// the target action before the next declared resource, delayed ones are
// queued and run once each after the last resource. Any (target, action)
// pair runs at most once per run.
package converge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/converge/internal/clock"
	"grimm.is/converge/internal/host"
	"grimm.is/converge/internal/logging"
	"grimm.is/converge/internal/metrics"
	"grimm.is/converge/internal/notify"
	"grimm.is/converge/internal/resource"
)

// State is the lifecycle of a run.
type State int

const (
	Idle State = iota
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ResourceState is the lifecycle of one resource within a run.
type ResourceState int

const (
	Pending ResourceState = iota
	Applying
	Converged
)

func (s ResourceState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applying:
		return "applying"
	case Converged:
		return "converged"
	}
	return fmt.Sprintf("ResourceState(%d)", int(s))
}

// Runner executes collections against a host. A Runner may be reused for
// successive runs but not concurrently.
type Runner struct {
	host    *host.Host
	logger  *logging.Logger
	clock   clock.Clock
	metrics *metrics.Registry
	dryRun  bool

	mu     sync.Mutex
	state  State
	states map[resource.ID]ResourceState
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithDryRun makes the runner observe and report without changing the
// host. Notifications are reported as would-fire and their targets are not
// planned.
func WithDryRun(dry bool) Option {
	return func(r *Runner) { r.dryRun = dry }
}

// New returns a Runner for h.
func New(h *host.Host, opts ...Option) *Runner {
	r := &Runner{
		host:   h,
		logger: logging.WithComponent("runner"),
		clock:  clock.Real,
		states: map[resource.ID]ResourceState{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State reports the lifecycle state of the current or last run.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ResourceState reports where id is in the current or last run.
func (r *Runner) ResourceState(id resource.ID) ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[id]
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) setResourceState(id resource.ID, s ResourceState) {
	r.mu.Lock()
	r.states[id] = s
	r.mu.Unlock()
}

// run is the state of one invocation of Run.
type run struct {
	*Runner
	coll   *resource.Collection
	queue  *notify.Queue
	report *Report
}

// Run converges c. It validates notifications first, then processes every
// resource and finally the delayed notifications. On the first failure it
// stops and returns the partial report together with the error.
//
// A run is not cancellable: actions and guards see a context detached from
// ctx's cancellation, so every started action runs to completion and the
// run ends only when all resources are processed or one fails.
func (r *Runner) Run(ctx context.Context, c *resource.Collection) (*Report, error) {
	ctx = context.WithoutCancel(ctx)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.state == Running {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is already running")
	}
	r.state = Running
	r.states = make(map[resource.ID]ResourceState, c.Len())
	for _, res := range c.Resources() {
		r.states[res.ID()] = Pending
	}
	r.mu.Unlock()

	state := &run{
		Runner: r,
		coll:   c,
		queue:  notify.NewQueue(),
		report: &Report{
			RunID:   uuid.NewString(),
			DryRun:  r.dryRun,
			Started: r.clock.Now(),
		},
	}
	r.logger.Info("Starting convergence", "run_id", state.report.RunID, "resources", c.Len(), "notifications", c.Graph().Len(), "dry_run", r.dryRun)

	err := state.execute(ctx)
	r.finish(state.report, err)
	return state.report, err
}

func (s *run) execute(ctx context.Context) error {
	for _, res := range s.coll.Resources() {
		if err := s.converge(ctx, res, resource.DeclaredAction(res), ""); err != nil {
			return err
		}
	}

	for {
		t, ok := s.queue.Pop()
		if !ok {
			return nil
		}
		if !s.queue.Claim(t) {
			continue
		}
		if err := s.fire(ctx, t, notify.Delayed, s.report.sourceOf(t)); err != nil {
			return err
		}
	}
}

// converge plans and applies one action on res. via names the resource
// whose notification caused it, empty for declared actions.
func (s *run) converge(ctx context.Context, res resource.Resource, action resource.Action, via string) error {
	id := res.ID()
	s.setResourceState(id, Applying)
	start := s.clock.Now()
	log := s.logger.With("resource", id.String(), "action", string(action))

	result := ResourceResult{
		ID:     id.String(),
		Type:   string(id.Type),
		Action: string(action),
		Via:    via,
	}
	fail := func(err error) error {
		aerr := &resource.ApplyError{ID: id, Action: action, Err: err}
		result.Status = StatusFailed
		result.Error = err.Error()
		result.Duration = s.clock.Since(start)
		s.record(result)
		log.Error("Resource failed", "error", err)
		return aerr
	}

	plan, err := res.Plan(ctx, s.host, action)
	if err != nil {
		return fail(err)
	}
	result.Summary = plan.Summary
	result.Diff = plan.Diff

	switch {
	case plan.Skipped != "":
		result.Status = StatusSkipped
		result.Reason = plan.Skipped
		log.Info("Skipped", "reason", plan.Skipped)
	case !plan.Changed:
		result.Status = StatusUpToDate
		log.Debug("Up to date")
	case s.dryRun:
		result.Status = StatusWouldUpdate
		log.Info("Would update", "changes", plan.Summary)
	default:
		if err := plan.Apply(ctx); err != nil {
			return fail(err)
		}
		result.Status = StatusUpdated
		log.Info("Updated", "changes", plan.Summary)
		if plan.Diff != "" {
			log.Debug("Content diff", "diff", plan.Diff)
		}
	}
	result.Duration = s.clock.Since(start)
	s.record(result)
	s.setResourceState(id, Converged)

	if !plan.Changed {
		return nil
	}
	return s.notifyFrom(ctx, res)
}

// notifyFrom fires or queues every notification declared on a changed
// resource.
func (s *run) notifyFrom(ctx context.Context, res resource.Resource) error {
	source := res.ID().String()
	for _, e := range s.coll.Graph().From(source) {
		t := e.Trigger()
		switch e.Timing {
		case notify.Immediate:
			if !s.queue.Claim(t) {
				s.logger.Debug("Notification already fired this run", "source", source, "target", t.Target, "action", t.Action)
				continue
			}
			if err := s.fire(ctx, t, notify.Immediate, source); err != nil {
				return err
			}
		case notify.Delayed:
			if s.queue.Defer(t) {
				s.report.queued(t, source)
			}
		}
	}
	return nil
}

// fire runs a claimed trigger. In a dry run the target is only reported.
func (s *run) fire(ctx context.Context, t notify.Trigger, timing notify.Timing, source string) error {
	fired := FiredNotification{
		Source: source,
		Target: t.Target,
		Action: t.Action,
		Timing: string(timing),
		DryRun: s.dryRun,
	}
	s.report.Notifications = append(s.report.Notifications, fired)
	if s.metrics != nil {
		s.metrics.RecordNotification(string(timing))
	}

	if s.dryRun {
		s.logger.Info("Would fire notification", "source", source, "target", t.Target, "action", t.Action, "timing", string(timing))
		return nil
	}
	s.logger.Info("Firing notification", "source", source, "target", t.Target, "action", t.Action, "timing", string(timing))

	target, ok := s.coll.Lookup(t.Target)
	if !ok {
		// Validate guarantees declared targets.
		return fmt.Errorf("notification target %s is not declared", t.Target)
	}
	return s.converge(ctx, target, resource.Action(t.Action), source)
}

func (s *run) record(res ResourceResult) {
	s.report.Resources = append(s.report.Resources, res)
	if s.metrics != nil {
		s.metrics.RecordResource(res.Type, string(res.Status))
	}
}

func (r *Runner) finish(rep *Report, err error) {
	rep.Finished = r.clock.Now()
	rep.Duration = rep.Finished.Sub(rep.Started)
	if err != nil {
		rep.Error = err.Error()
	}
	r.setState(Done)

	if r.metrics != nil {
		r.metrics.RecordRun(rep.Finished, rep.Duration, err)
	}

	attrs := []any{
		"run_id", rep.RunID,
		"updated", rep.Changed(),
		"notifications", len(rep.Notifications),
		"duration", rep.Duration.Round(time.Millisecond),
	}
	if err != nil {
		r.logger.Error("Convergence failed", append(attrs, "error", err)...)
		return
	}
	if len(rep.Notifications) > 0 {
		r.logger.Debug("Notifications fired", "fired", rep.Fired())
	}
	r.logger.Info("Convergence complete", attrs...)
}
