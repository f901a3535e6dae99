package tutorial

import "sync"

// Animator plays a page's animation.
type Animator interface {
	Start(page Page)
}

// Pager tracks the visible tutorial page. A page's animation starts once
// when the page becomes visible and is never restarted by layout passes.
type Pager struct {
	mu       sync.Mutex
	animator Animator
	current  int
	layouts  int
}

func NewPager(animator Animator) *Pager {
	return &Pager{animator: animator, current: -1}
}

// Current returns the visible index, or -1 before the first Show.
func (p *Pager) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Show makes page i visible. Out-of-range indices and the already-visible
// page are ignored. It reports whether the visible page changed.
func (p *Pager) Show(i int) bool {
	if i < 0 || i >= Count() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if i == p.current {
		return false
	}
	p.current = i
	p.animator.Start(pages[i])
	return true
}

// Layout records a layout pass of the visible page. Animations are only
// started by Show, so layout changes never restart them.
func (p *Pager) Layout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.layouts++
}

// Layouts returns how many layout passes have been recorded.
func (p *Pager) Layouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layouts
}

// Next advances one page, stopping at the last.
func (p *Pager) Next() bool {
	next := p.Current() + 1
	if next >= Count() {
		return false
	}
	return p.Show(next)
}

// Prev moves back one page, stopping at the first.
func (p *Pager) Prev() bool {
	prev := p.Current() - 1
	if prev < 0 {
		return false
	}
	return p.Show(prev)
}
