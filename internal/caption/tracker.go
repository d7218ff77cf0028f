package caption

import "time"

// Pass reports what one reconciliation pass changed.
type Pass struct {
	Added   int
	Updated int
	Pruned  int
	// Changed holds copies of every record added or revised, in the order
	// the pass touched them.
	Changed []Record
}

// Tracker correlates live caption elements with the records they produced.
// It never owns records; the Session does. The index only answers "is this
// element a turn we already know about".
type Tracker struct {
	live   map[string]int // element handle -> index into Session.Records
	nextID int
}

// NewTracker returns an empty tracker whose first record id is 1.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset forgets every tracked element and restarts ids at 1. Call it
// whenever a new session begins.
func (t *Tracker) Reset() {
	t.live = make(map[string]int)
	t.nextID = 1
}

// Live returns the number of elements currently tracked.
func (t *Tracker) Live() int {
	return len(t.live)
}

// Reconcile folds the current children of the caption region into s.
// Children are visited in DOM order. Unknown elements that parse become new
// records appended to s; known elements whose text changed have their text
// and timestamp overwritten; elements no longer present are dropped from the
// index while their records stay in s.
func (t *Tracker) Reconcile(s *Session, children []Node, now time.Time) Pass {
	var p Pass
	present := make(map[string]struct{}, len(children))

	for _, n := range children {
		present[n.Handle] = struct{}{}

		parsed, ok := ParseNode(n.Text)
		if !ok {
			continue
		}

		idx, tracked := t.live[n.Handle]
		if !tracked || idx >= len(s.Records) {
			rec := Record{
				ID:        t.nextID,
				Speaker:   parsed.Speaker,
				Text:      parsed.Text,
				Timestamp: now,
			}
			t.nextID++
			s.Records = append(s.Records, rec)
			s.RecordCount = len(s.Records)
			t.live[n.Handle] = len(s.Records) - 1
			p.Added++
			p.Changed = append(p.Changed, rec)
			continue
		}

		rec := &s.Records[idx]
		if rec.Text == parsed.Text {
			continue
		}
		rec.Text = parsed.Text
		rec.Timestamp = now
		p.Updated++
		p.Changed = append(p.Changed, *rec)
	}

	for handle := range t.live {
		if _, ok := present[handle]; !ok {
			delete(t.live, handle)
			p.Pruned++
		}
	}
	return p
}
