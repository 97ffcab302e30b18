package service

import "github.com/dealpilot/dealpilot/internal/domain/decision"

// decisionRing is a bounded ring buffer of recent decisions, oldest
// overwritten first. It holds the live records so a later MarkExecuted on
// a dispatched decision shows up in history reads. Not safe for concurrent
// use; callers hold the owning service's lock.
type decisionRing struct {
	buf   []*decision.SupervisorDecision
	start int
	count int
}

func newDecisionRing(capacity int) *decisionRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &decisionRing{buf: make([]*decision.SupervisorDecision, capacity)}
}

// push appends a decision, evicting the oldest when full.
func (r *decisionRing) push(d *decision.SupervisorDecision) {
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = d
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// last returns copies of up to n most recent decisions, oldest first.
func (r *decisionRing) last(n int) []decision.SupervisorDecision {
	if n > r.count {
		n = r.count
	}
	out := make([]decision.SupervisorDecision, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, *r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// reset empties the ring.
func (r *decisionRing) reset() {
	r.start = 0
	r.count = 0
	clear(r.buf)
}
