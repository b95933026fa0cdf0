package probe

import (
	"time"

	"github.com/yungbote/academy-backend/internal/progress"
)

// PlayerState mirrors the states reported by the embedded video player.
type PlayerState int

const (
	StateUnstarted PlayerState = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateEnded
	StateCued
)

// Status is the probe's own lifecycle. Once Violated or Ended the probe is
// latched: it emits nothing further until the hosting page reloads it.
type Status int

const (
	StatusActive Status = iota
	StatusViolated
	StatusEnded
)

type ViolationKind string

const (
	ViolationSeek ViolationKind = "seek"
	ViolationRate ViolationKind = "rate"
)

type EventKind int

const (
	EventTick EventKind = iota
	EventViolation
	EventFinalize
)

// Event is what a probe hands to its sync loop: a validated watch-time delta,
// a violation, or the terminal finalize signal.
type Event struct {
	Kind      EventKind
	Delta     float64
	Position  float64
	Violation ViolationKind
	From      float64
	To        float64
	Rate      float64
}

// VideoProbe converts raw player polls into validated watch-time ticks.
// It clamps every delta to real elapsed wall-clock time, flags non-1x
// playback and forward seeks, and suspends while the tab is hidden or the
// player is out of the viewport. One instance per player mount; not safe for
// concurrent use, matching the single-session model it observes.
type VideoProbe struct {
	policy progress.Policy
	now    func() time.Time

	// completedLesson disables guards and ticking for lessons the viewer
	// already finished; replaying them is unrestricted.
	completedLesson bool

	status       Status
	active       bool
	visible      bool
	intersecting bool

	basePos      float64
	baseWall     time.Time
	pausedAnchor float64
	hasAnchor    bool
}

type VideoOption func(*VideoProbe)

// WithClock injects the wall clock. Tests use a fake.
func WithClock(now func() time.Time) VideoOption {
	return func(p *VideoProbe) { p.now = now }
}

// WithCompletedLesson marks the lesson as already completed: no guards, no
// ticks, only the finalize signal still fires.
func WithCompletedLesson() VideoOption {
	return func(p *VideoProbe) { p.completedLesson = true }
}

func NewVideoProbe(policy progress.Policy, resumeFrom float64, opts ...VideoOption) *VideoProbe {
	p := &VideoProbe{
		policy:       policy,
		now:          time.Now,
		visible:      true,
		intersecting: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.active = true
	p.basePos = resumeFrom
	p.baseWall = p.now()
	return p
}

func (p *VideoProbe) Status() Status { return p.status }

// SetVisible gates ticking on tab visibility. Hiding never raises a
// violation; the hidden interval simply does not count.
func (p *VideoProbe) SetVisible(visible bool) { p.visible = visible; p.refreshActive() }

// SetIntersecting gates ticking on the player being inside the viewport.
func (p *VideoProbe) SetIntersecting(intersecting bool) { p.intersecting = intersecting; p.refreshActive() }

func (p *VideoProbe) refreshActive() {
	p.active = p.visible && p.intersecting
}

// Poll is the fixed-interval observation of the player. It returns at most
// one event. Position and rate come straight from the player; the probe
// decides whether any of it counts.
func (p *VideoProbe) Poll(state PlayerState, position, rate float64) (Event, bool) {
	if p.status != StatusActive {
		return Event{}, false
	}

	if !p.active {
		// Re-anchor so the suspended interval is not credited on resume.
		p.basePos = position
		p.baseWall = p.now()
		return Event{}, false
	}

	switch state {
	case StatePaused:
		return p.pollPaused(position)
	case StatePlaying:
		return p.pollPlaying(position, rate)
	case StateEnded:
		return p.finalize(position)
	default:
		// Buffering, cued, unstarted: hold the wall baseline so the stall
		// does not inflate the next delta's clamp window.
		p.baseWall = p.now()
		return Event{}, false
	}
}

// OnStateChange handles the player's own transition callbacks, which is
// where a seek performed while paused becomes observable.
func (p *VideoProbe) OnStateChange(state PlayerState, position, rate float64) (Event, bool) {
	if p.status != StatusActive {
		return Event{}, false
	}

	switch state {
	case StatePaused:
		p.pausedAnchor = position
		p.hasAnchor = true
		p.baseWall = p.now()
		return Event{}, false
	case StatePlaying:
		jump := position - p.basePos
		if !p.completedLesson && jump > p.policy.MaxForwardSkipSec+p.policy.JitterSec {
			return p.violate(ViolationSeek, p.basePos, position, rate)
		}
		p.hasAnchor = false
		p.basePos = position
		p.baseWall = p.now()
		return Event{}, false
	case StateEnded:
		return p.finalize(position)
	default:
		return Event{}, false
	}
}

func (p *VideoProbe) pollPaused(position float64) (Event, bool) {
	if !p.hasAnchor {
		p.pausedAnchor = position
		p.hasAnchor = true
	} else if forward := position - p.pausedAnchor; forward > p.policy.MaxForwardSkipSec+p.policy.JitterSec {
		if !p.completedLesson {
			return p.violate(ViolationSeek, p.pausedAnchor, position, 1)
		}
	}
	// Dragging backwards while paused is a legitimate rewind.
	p.baseWall = p.now()
	return Event{}, false
}

func (p *VideoProbe) pollPlaying(position, rate float64) (Event, bool) {
	p.hasAnchor = false

	if diff := rate - 1; diff > p.policy.RateTolerance || diff < -p.policy.RateTolerance {
		if !p.completedLesson {
			return p.violate(ViolationRate, position, position, rate)
		}
	}

	if p.completedLesson {
		p.basePos = position
		p.baseWall = p.now()
		return Event{}, false
	}

	wall := p.now().Sub(p.baseWall).Seconds()
	delta := position - p.basePos
	if wall < delta {
		// Scrubbing forward cannot report more watched time than real time
		// actually passed.
		delta = wall
	}
	if delta > 0 {
		p.basePos = position
		p.baseWall = p.now()
		return Event{Kind: EventTick, Delta: delta, Position: position}, true
	}
	if position < p.basePos-p.policy.JitterSec {
		// Legitimate rewind, not a violation.
		p.basePos = position
		p.baseWall = p.now()
	}
	return Event{}, false
}

func (p *VideoProbe) finalize(position float64) (Event, bool) {
	p.status = StatusEnded
	return Event{Kind: EventFinalize, Position: position}, true
}

func (p *VideoProbe) violate(kind ViolationKind, from, to, rate float64) (Event, bool) {
	p.status = StatusViolated
	return Event{Kind: EventViolation, Violation: kind, From: from, To: to, Rate: rate, Position: to}, true
}
