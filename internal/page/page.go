package page

import (
	"sync"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
)

// Page is an in-memory Document. The hub keeps one per connected meeting
// tab and applies the observer's messages to it; tests and replays drive it
// directly.
type Page struct {
	mu       sync.Mutex
	url      string
	regions  []*region
	lastSeen time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewPage returns a page at url with no regions.
func NewPage(url string) *Page {
	return &Page{url: url, lastSeen: time.Now(), done: make(chan struct{})}
}

// Done is closed once the page is gone for good, e.g. its tab closed and
// did not reconnect.
func (p *Page) Done() <-chan struct{} {
	return p.done
}

// Close marks the page gone. It is safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// URL returns the page's current address.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// SetURL records an in-page navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// Current makes a single Page usable as a Source.
func (p *Page) Current() (Document, bool) {
	return p, true
}

// Find returns the first region whose attributes match sel.
func (p *Page) Find(sel Selector) (Region, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.regions {
		if sel.Matches(r.attrs) {
			return r, true
		}
	}
	return nil, false
}

// UpdateRegion replaces the children of the region identified by attrs,
// creating it on first sight, and notifies that region's observers.
func (p *Page) UpdateRegion(attrs map[string]string, children []caption.Node) {
	p.mu.Lock()
	p.lastSeen = time.Now()
	var target *region
	for _, r := range p.regions {
		if sameAttrs(r.attrs, attrs) {
			target = r
			break
		}
	}
	if target == nil {
		target = newRegion(attrs)
		p.regions = append(p.regions, target)
	}
	p.mu.Unlock()

	target.set(children)
}

// RemoveRegion drops the region identified by attrs, e.g. when captions are
// switched off. Observers of the removed region simply stop hearing from it.
func (p *Page) RemoveRegion(attrs map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.regions {
		if sameAttrs(r.attrs, attrs) {
			p.regions = append(p.regions[:i], p.regions[i+1:]...)
			return
		}
	}
}

// Regions returns the attributes of every known region.
func (p *Page) Regions() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]string, 0, len(p.regions))
	for _, r := range p.regions {
		out = append(out, r.attrs)
	}
	return out
}

// LastSeen is the time of the last message applied to the page.
func (p *Page) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

type region struct {
	attrs map[string]string

	mu        sync.Mutex
	children  []caption.Node
	observers map[int]func()
	nextObs   int
}

func newRegion(attrs map[string]string) *region {
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return &region{attrs: cp, observers: make(map[int]func())}
}

func (r *region) Children() []caption.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]caption.Node, len(r.children))
	copy(out, r.children)
	return out
}

func (r *region) Observe(fn func()) func() {
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, id)
			r.mu.Unlock()
		})
	}
}

func (r *region) set(children []caption.Node) {
	r.mu.Lock()
	r.children = make([]caption.Node, len(children))
	copy(r.children, children)
	fns := make([]func(), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	// Called without the lock so observers may read Children.
	for _, fn := range fns {
		fn()
	}
}

func sameAttrs(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
