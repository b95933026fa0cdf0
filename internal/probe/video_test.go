package probe

import (
	"testing"
	"time"

	"github.com/yungbote/academy-backend/internal/progress"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func newTestProbe(opts ...VideoOption) (*VideoProbe, *fakeClock) {
	clock := newFakeClock()
	opts = append([]VideoOption{WithClock(clock.Now)}, opts...)
	return NewVideoProbe(progress.DefaultPolicy(), 0, opts...), clock
}

func TestVideoProbeTicksWhilePlaying(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePlaying, 1.0, 1.0)
	if !ok || ev.Kind != EventTick {
		t.Fatalf("expected tick, got ok=%v ev=%+v", ok, ev)
	}
	if ev.Delta != 1.0 || ev.Position != 1.0 {
		t.Fatalf("tick delta=%v position=%v, want 1.0/1.0", ev.Delta, ev.Position)
	}

	clock.Advance(time.Second)
	ev, ok = p.Poll(StatePlaying, 2.0, 1.0)
	if !ok || ev.Delta != 1.0 {
		t.Fatalf("second tick: ok=%v ev=%+v", ok, ev)
	}
}

func TestVideoProbeClampsDeltaToWallClock(t *testing.T) {
	p, clock := newTestProbe()

	// Player position leaps 10s but only 1s really passed.
	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePlaying, 10.0, 1.0)
	if !ok || ev.Kind != EventTick {
		t.Fatalf("expected tick, got ok=%v ev=%+v", ok, ev)
	}
	if ev.Delta != 1.0 {
		t.Fatalf("delta=%v, want clamp to 1.0", ev.Delta)
	}
}

func TestVideoProbeRateViolationLatches(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePlaying, 1.0, 1.5)
	if !ok || ev.Kind != EventViolation || ev.Violation != ViolationRate {
		t.Fatalf("expected rate violation, got ok=%v ev=%+v", ok, ev)
	}
	if p.Status() != StatusViolated {
		t.Fatalf("status=%v, want StatusViolated", p.Status())
	}

	// Latched: nothing else comes out, not even a second violation.
	clock.Advance(time.Second)
	if _, ok := p.Poll(StatePlaying, 2.0, 2.0); ok {
		t.Fatal("latched probe emitted an event")
	}
	if _, ok := p.Poll(StateEnded, 2.0, 1.0); ok {
		t.Fatal("latched probe emitted finalize")
	}
}

func TestVideoProbeRateToleranceAllowsJitter(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePlaying, 1.0, 1.005)
	if !ok || ev.Kind != EventTick {
		t.Fatalf("1.005x within tolerance should tick, got ok=%v ev=%+v", ok, ev)
	}
}

func TestVideoProbeSeekOnResumeViolates(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(time.Second)
	if _, ok := p.Poll(StatePlaying, 1.0, 1.0); !ok {
		t.Fatal("expected initial tick")
	}

	// Transition into PLAYING far ahead of the baseline.
	ev, ok := p.OnStateChange(StatePlaying, 20.0, 1.0)
	if !ok || ev.Violation != ViolationSeek {
		t.Fatalf("expected seek violation, got ok=%v ev=%+v", ok, ev)
	}
	if ev.From != 1.0 || ev.To != 20.0 {
		t.Fatalf("violation from=%v to=%v, want 1.0/20.0", ev.From, ev.To)
	}
}

func TestVideoProbeSmallResumeJumpTolerated(t *testing.T) {
	p, _ := newTestProbe()

	// 3s forward is within MaxForwardSkipSec+JitterSec (2+1.25).
	if ev, ok := p.OnStateChange(StatePlaying, 3.0, 1.0); ok {
		t.Fatalf("small jump flagged: %+v", ev)
	}
}

func TestVideoProbePausedDragViolates(t *testing.T) {
	p, clock := newTestProbe()

	if _, ok := p.OnStateChange(StatePaused, 5.0, 1.0); ok {
		t.Fatal("pausing emitted an event")
	}
	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePaused, 12.0, 1.0)
	if !ok || ev.Violation != ViolationSeek {
		t.Fatalf("expected seek violation from paused drag, got ok=%v ev=%+v", ok, ev)
	}
}

func TestVideoProbePausedBackwardDragAllowed(t *testing.T) {
	p, clock := newTestProbe()

	p.OnStateChange(StatePaused, 30.0, 1.0)
	clock.Advance(time.Second)
	if ev, ok := p.Poll(StatePaused, 4.0, 1.0); ok {
		t.Fatalf("backward drag flagged: %+v", ev)
	}
}

func TestVideoProbeRewindIsNotAViolation(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(10 * time.Second)
	if _, ok := p.Poll(StatePlaying, 10.0, 1.0); !ok {
		t.Fatal("expected tick")
	}

	// Jump back; no event, but ticking resumes from the new position.
	clock.Advance(time.Second)
	if ev, ok := p.Poll(StatePlaying, 3.0, 1.0); ok {
		t.Fatalf("rewind emitted event: %+v", ev)
	}
	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePlaying, 4.0, 1.0)
	if !ok || ev.Kind != EventTick || ev.Delta != 1.0 {
		t.Fatalf("post-rewind tick: ok=%v ev=%+v", ok, ev)
	}
}

func TestVideoProbeHiddenIntervalDoesNotCount(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(time.Second)
	if _, ok := p.Poll(StatePlaying, 1.0, 1.0); !ok {
		t.Fatal("expected tick")
	}

	p.SetVisible(false)
	clock.Advance(30 * time.Second)
	if ev, ok := p.Poll(StatePlaying, 31.0, 1.0); ok {
		t.Fatalf("hidden probe emitted event: %+v", ev)
	}

	p.SetVisible(true)
	// Baseline was re-anchored while hidden; only time after resume counts.
	clock.Advance(time.Second)
	ev, ok := p.Poll(StatePlaying, 32.0, 1.0)
	if !ok || ev.Delta != 1.0 {
		t.Fatalf("post-resume tick: ok=%v ev=%+v", ok, ev)
	}
}

func TestVideoProbeNotIntersectingSuspends(t *testing.T) {
	p, clock := newTestProbe()

	p.SetIntersecting(false)
	clock.Advance(5 * time.Second)
	if _, ok := p.Poll(StatePlaying, 5.0, 1.0); ok {
		t.Fatal("out-of-viewport probe ticked")
	}
}

func TestVideoProbeEndedFinalizesOnce(t *testing.T) {
	p, clock := newTestProbe()

	clock.Advance(time.Second)
	ev, ok := p.Poll(StateEnded, 600.0, 1.0)
	if !ok || ev.Kind != EventFinalize || ev.Position != 600.0 {
		t.Fatalf("expected finalize, got ok=%v ev=%+v", ok, ev)
	}
	if p.Status() != StatusEnded {
		t.Fatalf("status=%v, want StatusEnded", p.Status())
	}
	if _, ok := p.Poll(StateEnded, 600.0, 1.0); ok {
		t.Fatal("finalize fired twice")
	}
}

func TestVideoProbeCompletedLessonSkipsGuardsAndTicks(t *testing.T) {
	p, clock := newTestProbe(WithCompletedLesson())

	clock.Advance(time.Second)
	if ev, ok := p.Poll(StatePlaying, 1.0, 2.0); ok {
		t.Fatalf("completed lesson emitted event: %+v", ev)
	}
	if ev, ok := p.OnStateChange(StatePlaying, 500.0, 1.0); ok {
		t.Fatalf("completed lesson flagged seek: %+v", ev)
	}
	// Finalize still signals so the page can refresh its state.
	if ev, ok := p.Poll(StateEnded, 600.0, 1.0); !ok || ev.Kind != EventFinalize {
		t.Fatalf("expected finalize, got ok=%v ev=%+v", ok, ev)
	}
}
