package probe

import (
	"errors"
	"fmt"

	"github.com/yungbote/academy-backend/internal/progress"
)

// ErrPageLocked rejects forward navigation before the current page has
// accumulated its minimum dwell time.
var ErrPageLocked = errors.New("current page has not accumulated its minimum dwell time")

// DocumentProbe tracks a paced reader: one dwell-seconds counter per page,
// ticking only while the document is visible and intersecting. Pages are
// 1-based. Forward navigation is gated page by page; backward navigation is
// always free. When every page has reached the per-page minimum the probe
// emits a single terminal all-pages-complete signal.
type DocumentProbe struct {
	policy     progress.Policy
	totalPages int

	// completedLesson disables gating and dwell accounting for lessons the
	// viewer already finished.
	completedLesson bool

	page    int
	dwell   map[int]float64
	active  bool
	allDone bool
}

type DocumentOption func(*DocumentProbe)

// WithDocumentCompletedLesson opens all navigation and stops dwell tracking.
func WithDocumentCompletedLesson() DocumentOption {
	return func(p *DocumentProbe) { p.completedLesson = true }
}

// WithResumeState hydrates the probe from persisted progress: the page the
// reader was on and how many leading pages already satisfied the minimum.
func WithResumeState(currentPage, completedPages int) DocumentOption {
	return func(p *DocumentProbe) {
		if currentPage > 0 {
			p.page = currentPage
		}
		for n := 1; n <= completedPages; n++ {
			if p.dwell[n] < p.policy.MinSecondsPerPage {
				p.dwell[n] = p.policy.MinSecondsPerPage
			}
		}
	}
}

func NewDocumentProbe(policy progress.Policy, totalPages int, opts ...DocumentOption) *DocumentProbe {
	p := &DocumentProbe{
		policy:     policy,
		totalPages: totalPages,
		page:       1,
		dwell:      map[int]float64{},
		active:     true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.page > totalPages && totalPages > 0 {
		p.page = totalPages
	}
	return p
}

func (p *DocumentProbe) CurrentPage() int { return p.page }
func (p *DocumentProbe) TotalPages() int  { return p.totalPages }

// SetActive combines tab visibility and viewport intersection. While
// inactive, Tick is a no-op.
func (p *DocumentProbe) SetActive(active bool) { p.active = active }

// PageCompleted reports whether a page has met the per-page minimum.
func (p *DocumentProbe) PageCompleted(page int) bool {
	if p.completedLesson {
		return true
	}
	return p.dwell[page] >= p.policy.MinSecondsPerPage
}

// CompletedPages counts pages that individually met the minimum.
func (p *DocumentProbe) CompletedPages() int {
	if p.completedLesson {
		return p.totalPages
	}
	count := 0
	for _, secs := range p.dwell {
		if secs >= p.policy.MinSecondsPerPage {
			count++
		}
	}
	if count > p.totalPages && p.totalPages > 0 {
		count = p.totalPages
	}
	return count
}

// Tick adds dwell seconds to the current page. It returns true exactly once,
// when the last outstanding page reaches the minimum.
func (p *DocumentProbe) Tick(deltaSeconds float64) bool {
	if p.completedLesson || p.allDone || !p.active || deltaSeconds <= 0 {
		return false
	}
	p.dwell[p.page] += deltaSeconds

	if p.totalPages > 0 && p.CompletedPages() >= p.totalPages {
		p.allDone = true
		return true
	}
	return false
}

// CanNavigate reports whether moving to target is allowed right now:
// any visited (<= current) page always, the next page only once the current
// one is complete, anything for an already-completed lesson.
func (p *DocumentProbe) CanNavigate(target int) bool {
	if target < 1 || (p.totalPages > 0 && target > p.totalPages) {
		return false
	}
	if p.completedLesson {
		return true
	}
	if target <= p.page {
		return true
	}
	return target == p.page+1 && p.PageCompleted(p.page)
}

// Navigate moves to target or fails with ErrPageLocked / a range error.
func (p *DocumentProbe) Navigate(target int) error {
	if target < 1 || (p.totalPages > 0 && target > p.totalPages) {
		return fmt.Errorf("page %d out of range 1..%d", target, p.totalPages)
	}
	if !p.CanNavigate(target) {
		return ErrPageLocked
	}
	p.page = target
	return nil
}
