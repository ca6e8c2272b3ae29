package converge

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"grimm.is/converge/internal/notify"
)

// Status is the outcome of one resource action.
type Status string

const (
	StatusUpToDate    Status = "up_to_date"
	StatusUpdated     Status = "updated"
	StatusWouldUpdate Status = "would_update"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
)

// ResourceResult records one resource action. A resource that is notified
// appears once for its declared action and once per notified action.
type ResourceResult struct {
	ID       string        `yaml:"id"`
	Type     string        `yaml:"type"`
	Action   string        `yaml:"action"`
	Status   Status        `yaml:"status"`
	Via      string        `yaml:"via,omitempty"`
	Summary  []string      `yaml:"summary,omitempty"`
	Reason   string        `yaml:"reason,omitempty"`
	Error    string        `yaml:"error,omitempty"`
	Duration time.Duration `yaml:"duration"`
	Diff     string        `yaml:"-"`
}

// FiredNotification records a notification that ran, or in a dry run would
// have run.
type FiredNotification struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Action string `yaml:"action"`
	Timing string `yaml:"timing"`
	DryRun bool   `yaml:"dry_run,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	RunID         string              `yaml:"run_id"`
	DryRun        bool                `yaml:"dry_run"`
	Started       time.Time           `yaml:"started"`
	Finished      time.Time           `yaml:"finished"`
	Duration      time.Duration       `yaml:"duration"`
	Resources     []ResourceResult    `yaml:"resources"`
	Notifications []FiredNotification `yaml:"notifications"`
	Error         string              `yaml:"error,omitempty"`

	queuedBy map[notify.Trigger]string
}

func (r *Report) queued(t notify.Trigger, source string) {
	if r.queuedBy == nil {
		r.queuedBy = map[notify.Trigger]string{}
	}
	if _, ok := r.queuedBy[t]; !ok {
		r.queuedBy[t] = source
	}
}

// sourceOf returns the resource that first queued t.
func (r *Report) sourceOf(t notify.Trigger) string {
	return r.queuedBy[t]
}

// Changed counts resource actions that changed, or would change, the host.
func (r *Report) Changed() int {
	n := 0
	for _, res := range r.Resources {
		if res.Status == StatusUpdated || res.Status == StatusWouldUpdate {
			n++
		}
	}
	return n
}

// Updated returns the ids of resources whose declared or notified action
// changed the host, in order.
func (r *Report) Updated() []string {
	var ids []string
	for _, res := range r.Resources {
		if res.Status == StatusUpdated || res.Status == StatusWouldUpdate {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Fired returns the notifications as "target action" strings, in firing
// order.
func (r *Report) Fired() []string {
	out := make([]string, len(r.Notifications))
	for i, n := range r.Notifications {
		out[i] = n.Target + " " + n.Action
	}
	return out
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteText writes a human-readable summary.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	verb := "Converged"
	if r.DryRun {
		verb = "Planned"
	}
	fmt.Fprintf(&b, "%s run %s: %d/%d resource actions changed, %d notifications in %s\n",
		verb, r.RunID, r.Changed(), len(r.Resources), len(r.Notifications), r.Duration.Round(time.Millisecond))

	for _, res := range r.Resources {
		if res.Status == StatusUpToDate {
			continue
		}
		line := fmt.Sprintf("  %-12s %s %s", res.Status, res.ID, res.Action)
		if res.Via != "" {
			line += " (via " + res.Via + ")"
		}
		switch {
		case res.Reason != "":
			line += ": " + res.Reason
		case res.Error != "":
			line += ": " + res.Error
		case len(res.Summary) > 0:
			line += ": " + strings.Join(res.Summary, ", ")
		}
		b.WriteString(line + "\n")
		if res.Diff != "" {
			for _, l := range strings.SplitAfter(strings.TrimRight(res.Diff, "\n"), "\n") {
				b.WriteString("      " + strings.TrimRight(l, "\n") + "\n")
			}
		}
	}
	for _, n := range r.Notifications {
		prefix := "fired"
		if n.DryRun {
			prefix = "would fire"
		}
		fmt.Fprintf(&b, "  %s %s %s %s (from %s)\n", prefix, n.Timing, n.Target, n.Action, n.Source)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", r.Error)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
