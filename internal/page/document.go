// Package page models the host meeting page as the capture engine sees it:
// a document holding caption regions whose children mutate over time, fed
// by an observer script running inside the meeting tab.
package page

import (
	"fmt"
	"log/slog"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
)

// DefaultLabels are the aria-labels the meeting UI gives its caption region
// in the locales we know about.
var DefaultLabels = []string{
	"Captions",    // English
	"Legendas",    // Portuguese
	"Subtítulos",  // Spanish
	"Sous-titres", // French
}

// DefaultSelectors is the lookup table built from DefaultLabels.
var DefaultSelectors = SelectorsFor(DefaultLabels)

// Selector is one attribute signature identifying a caption region.
type Selector struct {
	Role      string
	AriaLabel string
}

// SelectorsFor builds region selectors for the given aria-labels, keeping
// their order.
func SelectorsFor(labels []string) []Selector {
	sels := make([]Selector, 0, len(labels))
	for _, l := range labels {
		sels = append(sels, Selector{Role: "region", AriaLabel: l})
	}
	return sels
}

// String renders the selector as the CSS query the observer would run.
func (s Selector) String() string {
	return fmt.Sprintf(`div[role="%s"][aria-label="%s"]`, s.Role, s.AriaLabel)
}

// Matches reports whether an element with attrs satisfies s.
func (s Selector) Matches(attrs map[string]string) bool {
	return attrs["role"] == s.Role && attrs["aria-label"] == s.AriaLabel
}

// Document is a loaded meeting page.
type Document interface {
	URL() string
	Find(sel Selector) (Region, bool)
}

// Region is a caption container. Children returns its direct child elements
// in DOM order; Observe registers fn to be called after every mutation and
// returns a func that unregisters it.
type Region interface {
	Children() []caption.Node
	Observe(fn func()) (cancel func())
}

// Finite is implemented by documents that can go away while recording,
// such as a hub page whose tab closed. Done is closed at that point.
type Finite interface {
	Done() <-chan struct{}
}

// Source hands out the page recording should attach to.
type Source interface {
	Current() (Document, bool)
}

// Locate returns the first region matching selectors, in table order.
func Locate(doc Document, selectors []Selector) (Region, Selector, bool) {
	for _, sel := range selectors {
		if r, ok := doc.Find(sel); ok {
			slog.Debug("Found captions container", "selector", sel.String())
			return r, sel, true
		}
	}
	return nil, Selector{}, false
}
