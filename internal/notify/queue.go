package notify

// Trigger identifies an action to run on a target.
type Trigger struct {
	Target string
	Action string
}

// Queue is the notification state of a single run. It is not safe for
// concurrent use; a run is single-threaded.
type Queue struct {
	fired   map[Trigger]bool
	queued  map[Trigger]bool
	pending []Trigger
}

func NewQueue() *Queue {
	return &Queue{
		fired:  map[Trigger]bool{},
		queued: map[Trigger]bool{},
	}
}

// Defer queues a delayed trigger. A trigger already queued or already
// fired this run is ignored and Defer reports false.
func (q *Queue) Defer(t Trigger) bool {
	if q.fired[t] || q.queued[t] {
		return false
	}
	q.queued[t] = true
	q.pending = append(q.pending, t)
	return true
}

// Claim marks t as fired. It reports false when t has already fired this
// run, in which case the caller must not run it again.
func (q *Queue) Claim(t Trigger) bool {
	if q.fired[t] {
		return false
	}
	q.fired[t] = true
	return true
}

// Pop removes and returns the oldest queued delayed trigger.
func (q *Queue) Pop() (Trigger, bool) {
	if len(q.pending) == 0 {
		return Trigger{}, false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true
}
