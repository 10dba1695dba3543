package passes

import (
	"fmt"
	"time"

	"github.com/star/sattrack/internal/transform"
)

// EventKind identifies a visibility event.
type EventKind int

const (
	Rise EventKind = iota
	Culminate
	Set
)

func (k EventKind) String() string {
	switch k {
	case Rise:
		return "rise"
	case Culminate:
		return "culminate"
	case Set:
		return "set"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PassEvent is a single threshold crossing or elevation maximum.
type PassEvent struct {
	Kind  EventKind                 `json:"kind"`
	Epoch time.Time                 `json:"epoch"`
	View  transform.TopocentricView `json:"view"`
}

// Pass groups the events of one visibility period. Rise is nil when the
// search window opened mid-pass, Set when it closed mid-pass, and
// Culminate when no maximum was observed inside the window.
type Pass struct {
	Rise      *PassEvent `json:"rise,omitempty"`
	Culminate *PassEvent `json:"culminate,omitempty"`
	Set       *PassEvent `json:"set,omitempty"`
}

// Events returns the pass's events in chronological order.
func (p Pass) Events() []PassEvent {
	var out []PassEvent
	for _, ev := range []*PassEvent{p.Rise, p.Culminate, p.Set} {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}

// Duration returns the time between rise and set, or zero if either is missing.
func (p Pass) Duration() time.Duration {
	if p.Rise == nil || p.Set == nil {
		return 0
	}
	return p.Set.Epoch.Sub(p.Rise.Epoch)
}

// GroupPasses splits a chronological event list into passes. A Rise opens
// a pass and a Set closes it; events outside an open pass start a
// truncated one.
func GroupPasses(events []PassEvent) []Pass {
	var (
		passes []Pass
		cur    *Pass
	)
	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case Rise:
			if cur != nil {
				passes = append(passes, *cur)
			}
			cur = &Pass{Rise: &ev}
		case Culminate:
			if cur == nil {
				cur = &Pass{}
			}
			if cur.Culminate == nil || ev.View.Elevation > cur.Culminate.View.Elevation {
				cur.Culminate = &ev
			}
		case Set:
			if cur == nil {
				cur = &Pass{}
			}
			cur.Set = &ev
			passes = append(passes, *cur)
			cur = nil
		}
	}
	if cur != nil {
		passes = append(passes, *cur)
	}
	return passes
}
