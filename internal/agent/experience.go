package agent

import "upbitquant/internal/model"

// ExperienceLog is a capacity-bounded FIFO of recent transitions.
//
// It exists for replay-style extensions and inspection; the base Q-learning
// update never reads it. When the log is full the oldest transition is
// evicted to make room, so it always holds the most recent Cap() entries in
// arrival order.
type ExperienceLog struct {
	buf   []model.Transition
	head  int // index of the oldest entry
	count int
}

// NewExperienceLog returns an empty log with the given capacity. Capacity
// must be positive; the caller (agent construction) validates it.
func NewExperienceLog(capacity int) *ExperienceLog {
	return &ExperienceLog{buf: make([]model.Transition, capacity)}
}

// Append records a transition, evicting the oldest entry if the log is full.
func (l *ExperienceLog) Append(t model.Transition) {
	if l.count < len(l.buf) {
		l.buf[(l.head+l.count)%len(l.buf)] = t
		l.count++
		return
	}
	// Full: overwrite the oldest slot and advance the head.
	l.buf[l.head] = t
	l.head = (l.head + 1) % len(l.buf)
}

// Transitions returns the retained transitions in arrival order, oldest
// first. The returned slice is a copy.
func (l *ExperienceLog) Transitions() []model.Transition {
	out := make([]model.Transition, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of retained transitions.
func (l *ExperienceLog) Len() int { return l.count }

// Cap returns the log capacity.
func (l *ExperienceLog) Cap() int { return len(l.buf) }

// Clear discards all retained transitions, keeping the capacity.
func (l *ExperienceLog) Clear() {
	l.head = 0
	l.count = 0
}
