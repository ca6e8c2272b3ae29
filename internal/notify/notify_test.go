package notify

import (
	"testing"
)

func TestGraph_FromPreservesOrder(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "file[a]", Target: "service[web]", Action: "restart", Timing: Delayed})
	g.Add(Edge{Source: "file[b]", Target: "service[web]", Action: "reload", Timing: Delayed})
	g.Add(Edge{Source: "file[a]", Target: "execute[sync]", Action: "run", Timing: Immediate})

	edges := g.From("file[a]")
	if len(edges) != 2 {
		t.Fatalf("From(file[a]) returned %d edges, want 2", len(edges))
	}
	if edges[0].Target != "service[web]" || edges[1].Target != "execute[sync]" {
		t.Errorf("From(file[a]) = %v, want registration order", edges)
	}
	if tr := edges[1].Trigger(); tr != (Trigger{Target: "execute[sync]", Action: "run"}) {
		t.Errorf("Trigger() = %v", tr)
	}
	if g.Len() != 3 {
		t.Errorf("Len() = %d", g.Len())
	}
	if len(g.From("nothing")) != 0 {
		t.Error("From(unknown) should be empty")
	}
}

func TestQueue_DelayedDedup(t *testing.T) {
	q := NewQueue()
	restart := Trigger{Target: "service[apache2]", Action: "restart"}
	reload := Trigger{Target: "service[apache2]", Action: "reload"}

	if !q.Defer(restart) {
		t.Fatal("first Defer should queue")
	}
	if !q.Defer(reload) {
		t.Fatal("different action is a different trigger")
	}
	if q.Defer(restart) {
		t.Error("duplicate Defer should be ignored")
	}

	var popped []Trigger
	for tr, ok := q.Pop(); ok; tr, ok = q.Pop() {
		popped = append(popped, tr)
	}
	if len(popped) != 2 || popped[0] != restart || popped[1] != reload {
		t.Errorf("popped %v, want [restart reload] in first-registration order", popped)
	}
}

func TestQueue_OncePerRun(t *testing.T) {
	q := NewQueue()
	run := Trigger{Target: "execute[restore]", Action: "run"}

	if !q.Claim(run) {
		t.Fatal("first Claim should succeed")
	}
	if q.Claim(run) {
		t.Error("second Claim in the same run should fail")
	}
	if q.Defer(run) {
		t.Error("a fired trigger must not be queued again")
	}
	if _, ok := q.Pop(); ok {
		t.Error("nothing should be pending")
	}
}
