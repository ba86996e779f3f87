package frame

import (
	"context"
	"sort"
	"time"
)

// Manual is a deterministic scheduler for tests. Frames fire on Flush and
// intervals fire on Advance; Do runs inline.
type Manual struct {
	now       time.Duration
	nextID    ID
	frames    map[ID]func()
	order     []ID
	intervals map[int]*manualInterval
	nextTimer int
}

type manualInterval struct {
	every time.Duration
	next  time.Duration
	fn    func()
}

// NewManual returns an idle manual scheduler.
func NewManual() *Manual {
	return &Manual{frames: make(map[ID]func()), intervals: make(map[int]*manualInterval)}
}

func (m *Manual) RequestFrame(fn func()) ID {
	m.nextID++
	m.frames[m.nextID] = fn
	m.order = append(m.order, m.nextID)
	return m.nextID
}

func (m *Manual) CancelFrame(id ID) { delete(m.frames, id) }

// PendingFrames returns how many frame callbacks would run on Flush.
func (m *Manual) PendingFrames() int { return len(m.frames) }

// Flush runs the frames that were pending when it was called. Frames
// requested by those callbacks wait for the next Flush.
func (m *Manual) Flush() int {
	order := m.order
	frames := m.frames
	m.order = nil
	m.frames = make(map[ID]func())
	ran := 0
	for _, id := range order {
		if fn, ok := frames[id]; ok {
			fn()
			ran++
		}
	}
	return ran
}

func (m *Manual) Every(d time.Duration, fn func()) func() {
	m.nextTimer++
	id := m.nextTimer
	m.intervals[id] = &manualInterval{every: d, next: m.now + d, fn: fn}
	return func() { delete(m.intervals, id) }
}

// ActiveIntervals returns how many intervals are still registered.
func (m *Manual) ActiveIntervals() int { return len(m.intervals) }

// Advance moves the fake clock forward, firing due intervals in time order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		iv := m.nextDue(target)
		if iv == nil {
			break
		}
		m.now = iv.next
		iv.next += iv.every
		iv.fn()
	}
	m.now = target
}

func (m *Manual) nextDue(limit time.Duration) *manualInterval {
	ids := make([]int, 0, len(m.intervals))
	for id := range m.intervals {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var best *manualInterval
	for _, id := range ids {
		iv := m.intervals[id]
		if iv.every <= 0 || iv.next > limit {
			continue
		}
		if best == nil || iv.next < best.next {
			best = iv
		}
	}
	return best
}

func (m *Manual) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}
