// Package notify implements the notifier bus (spec.md C8): a registry of
// subscriber callbacks dispatched synchronously, in order, around overlay
// apply/remove. The dispatch shape — a mutex-guarded registry walked
// in-order around an operation's before/after edges — is grounded on
// aferofs/observable.go's ObservableFs.beforeEach/afterEach, generalized
// here from "append to a history slice" to "call a subscriber and inspect
// its returned error".
package notify

import (
	"log"
	"sync"
)

// Action identifies one of the four broadcast phases of spec.md §4.8.
type Action int

const (
	PreApply Action = iota
	PostApply
	PreRemove
	PostRemove
)

func (a Action) String() string {
	switch a {
	case PreApply:
		return "PRE_APPLY"
	case PostApply:
		return "POST_APPLY"
	case PreRemove:
		return "PRE_REMOVE"
	case PostRemove:
		return "POST_REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Vetoable reports whether a subscriber's error on this action aborts the
// operation. Only PRE_APPLY and PRE_REMOVE are vetoable (spec.md §4.8).
func (a Action) Vetoable() bool {
	return a == PreApply || a == PreRemove
}

// Event is delivered to every subscriber on each broadcast. EditIndex and
// EditDescription are only populated for per-edit notifications
// (BroadcastEdit); phase notifications (Broadcast) leave them zeroed.
type Event struct {
	Action          Action
	ChangesetID     int
	EditIndex       int
	EditDescription string
}

// Callback is a subscriber function. Cookie is opaque data the subscriber
// registered with, handed back on every invocation so one callback can be
// shared across multiple registrations.
type Callback func(ev Event, cookie any) error

type subscription struct {
	cb     Callback
	cookie any
}

// Handle identifies a registered subscription, returned by Register and
// consumed by Unregister.
type Handle struct {
	sub *subscription
}

// Bus is a synchronous notifier registry. The zero value is not usable;
// construct with NewBus. A Bus is safe for concurrent Register/Unregister,
// but Broadcast itself is expected to run under the caller's own mutex (the
// overlay engine's overlay_mutex, per spec.md §5) since subscribers may
// touch the live tree the broadcast is describing.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	Logger *log.Logger
}

// NewBus returns an empty Bus logging to log.Default().
func NewBus() *Bus {
	return &Bus{Logger: log.Default()}
}

// Register adds cb to the subscriber list, returning a Handle for later
// Unregister.
func (b *Bus) Register(cb Callback, cookie any) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{cb: cb, cookie: cookie}
	b.subs = append(b.subs, sub)
	return &Handle{sub: sub}
}

// Unregister removes the subscription identified by h. It is a no-op if h
// is nil or already unregistered.
func (b *Bus) Unregister(h *Handle) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == h.sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Broadcast delivers ev to every subscriber, in registration order.
//
// For a Vetoable action (PRE_APPLY/PRE_REMOVE), the first subscriber error
// aborts delivery and is returned to the caller, who is expected to abort
// the whole apply/remove (spec.md §4.5 steps 6/4.5-remove-4).
//
// For a non-vetoable action (POST_APPLY/POST_REMOVE), every subscriber is
// still invoked; errors are logged and the first one encountered is
// returned, but the caller must not treat a non-nil return as reason to
// undo work already committed (spec.md §4.5 step 10).
func (b *Bus) Broadcast(ev Event) error {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	var first error
	for _, s := range subs {
		if err := s.cb(ev, s.cookie); err != nil {
			if ev.Action.Vetoable() {
				return err
			}
			b.Logger.Printf("notify: subscriber error on %s for changeset %d: %v", ev.Action, ev.ChangesetID, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// BroadcastEdit delivers a per-edit notification to every subscriber. Per
// spec.md §4.5 steps 9/6, these are always non-fatal: every subscriber is
// invoked regardless of error, and every error is logged but never
// returned or treated as an abort signal.
func (b *Bus) BroadcastEdit(ev Event) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.cb(ev, s.cookie); err != nil {
			b.Logger.Printf("notify: edit notification failed for changeset %d, edit %d (%s): %v",
				ev.ChangesetID, ev.EditIndex, ev.EditDescription, err)
		}
	}
}
