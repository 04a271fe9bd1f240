package overlay

import (
	"log"
	"sync"

	"github.com/ngicks/dtoverlay/changeset"
	"github.com/ngicks/dtoverlay/dtblob"
	"github.com/ngicks/dtoverlay/dtnode"
	"github.com/ngicks/dtoverlay/notify"
)

// Manager is the process-wide singleton spec.md §9 describes: it owns the
// registry, the id allocator, the corruption latch and the two mutexes of
// spec.md §5, and is the only thing that mutates the live tree on behalf of
// this subsystem. Per spec.md §9 there is no teardown — a failed Manager is
// permanently wedged (via latch), matching the kernel's own lack of an
// "undo corruption" path.
type Manager struct {
	// phandleMu is acquired before mu around the window spanning phandle
	// resolution and primitive apply (spec.md §5), preventing two
	// concurrently-entered overlays from colliding on phandle allocation.
	phandleMu sync.Mutex
	// mu (overlay_mutex) serializes mutation of the registry, the id
	// allocator and the live tree.
	mu sync.Mutex

	live   *dtnode.Tree
	bus    *notify.Bus
	logger *log.Logger
	latch  latch
	reg    *registry
	nextID int
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the default log.Default() logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBus overrides the default notify.Bus, e.g. to share one bus across
// multiple Managers or to pre-register subscribers before first use.
func WithBus(b *notify.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// NewManager constructs a Manager driving live. live is expected to already
// contain a "/__symbols__" node for symbols fragments to target; overlays
// applied before one exists will fail their symbols fragment with INVALID,
// per the normal target-path-not-found path.
func NewManager(live *dtnode.Tree, opts ...Option) *Manager {
	m := &Manager{
		live:   live,
		bus:    notify.NewBus(),
		logger: log.Default(),
		reg:    newRegistry(),
		nextID: 1,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Notifier exposes the bus for notifier_register/notifier_unregister
// (spec.md §6).
func (m *Manager) Notifier() *notify.Bus { return m.bus }

// Count returns the number of currently-applied changesets.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reg.list)
}

// Applied returns the ids of every currently-applied changeset, oldest
// first (spec.md §3 Registry order).
func (m *Manager) Applied() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.applied()
}

// LatchState reports the two corruption-latch bits (spec.md §4.7), for
// diagnostics.
func (m *Manager) LatchState() (applyFail, revertFail bool) {
	return m.latch.State()
}

func (m *Manager) warnUnflaggedTarget(n *dtnode.Node) {
	m.logger.Printf("overlay: property added to %s which lacks FlagOverlay; storage will leak on eventual removal", n.FullPath())
}

// discoverFragments enumerates the fragment metadata children of root
// (spec.md §4.5 step 5): every child except "__symbols__" is expected to
// carry a target/target-path property and a "__overlay__" child. If root
// has a "__symbols__" child, it becomes the trailing symbols fragment
// (spec.md §3: "a special symbols fragment always appears last"),
// resolved against the live "/__symbols__" node.
func (m *Manager) discoverFragments(root *dtnode.Node, base *dtnode.Node) ([]Fragment, bool, error) {
	var fragments []Fragment
	var symbolsSrc *dtnode.Node

	for _, child := range root.Children() {
		if child.Basename() == "__symbols__" {
			symbolsSrc = child
			continue
		}
		overlayChild, ok := child.ChildByBasename("__overlay__")
		if !ok {
			return nil, false, errNoOverlayChild
		}
		target, err := ResolveTarget(child, m.live, base)
		if err != nil {
			return nil, false, err
		}
		fragments = append(fragments, Fragment{Overlay: overlayChild, Target: target})
	}

	if symbolsSrc == nil {
		return fragments, false, nil
	}

	symbolsTarget, ok := m.live.Symbols()
	if !ok {
		return nil, false, errTargetPathNotFound
	}
	fragments = append(fragments, Fragment{Overlay: symbolsSrc, Target: symbolsTarget})
	return fragments, true, nil
}

// Apply implements fdt_apply (spec.md §4.5/§6): decode raw, resolve its
// phandles, build and validate a changeset against the live tree, apply it
// atomically, and record it in the registry. On success it returns the new
// changeset's id. Any failure up to and including the primitive apply
// returns id 0 and records nothing, so there is no changeset for the caller
// to Remove; a failed primitive apply has already been unwound by
// changeset.Apply, or has set APPLY_FAIL if that unwind failed. A POST_APPLY
// subscriber error is the one failure that returns a non-zero id: the
// changeset stays applied and recorded, and Remove is the remedy.
func (m *Manager) Apply(raw []byte, base *dtnode.Node) (int, error) {
	const op = "apply"

	if m.latch.set() {
		return 0, busy(op)
	}

	root, err := dtblob.Decode(raw)
	if err != nil {
		return 0, invalid(op, err)
	}

	m.phandleMu.Lock()
	defer m.phandleMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := dtblob.ResolvePhandles(root, m.live); err != nil {
		return 0, invalid(op, err)
	}

	fragments, hasSymbols, err := m.discoverFragments(root, base)
	if err != nil {
		return 0, invalid(op, err)
	}
	if len(fragments) == 0 {
		return 0, invalid(op, errNoFragments)
	}

	id := m.nextID
	m.nextID++
	cs := &Changeset{ID: id, Fragments: fragments, HasSymbols: hasSymbols, State: Init, RawBlob: raw, OverlayRoot: root}

	if err := m.bus.Broadcast(notify.Event{Action: notify.PreApply, ChangesetID: id}); err != nil {
		return 0, invalid(op, err)
	}
	cs.State = PreApply

	var edits changeset.Log
	nonSymbols, symbolsFrag, symbolsOK := splitSymbols(fragments, hasSymbols)
	for _, f := range nonSymbols {
		if err := BuildFragment(f, &edits, m.warnUnflaggedTarget); err != nil {
			return 0, invalid(op, err)
		}
	}
	if symbolsOK {
		if err := BuildSymbolsFragment(symbolsFrag, root, fragments, &edits, m.logger); err != nil {
			return 0, invalid(op, err)
		}
	}
	if err := CheckDuplicates(edits); err != nil {
		return 0, invalid(op, err)
	}
	cs.Edits = edits

	if err := changeset.Apply(edits); err != nil {
		if ae, ok := err.(*changeset.ApplyError); ok && ae.RevertErr != nil {
			m.latch.setApplyFail()
		}
		return 0, invalid(op, err)
	}

	for i, e := range edits {
		e := e
		m.bus.BroadcastEdit(notify.Event{ChangesetID: id, EditIndex: i, EditDescription: e.Kind.String() + " " + e.NodePath()})
	}

	cs.State = PostApply
	m.reg.insert(cs)
	if err := m.bus.Broadcast(notify.Event{Action: notify.PostApply, ChangesetID: id}); err != nil {
		// spec.md §4.5 step 10: surfaced, but the changeset remains applied.
		return id, invalid(op, err)
	}

	return id, nil
}

func splitSymbols(fragments []Fragment, hasSymbols bool) (nonSymbols []Fragment, symbols Fragment, ok bool) {
	if !hasSymbols {
		return fragments, Fragment{}, false
	}
	return fragments[:len(fragments)-1], fragments[len(fragments)-1], true
}

// Remove implements remove (spec.md §4.5): it is only permitted on the
// topmost changeset still touching its nodes (C6). On success idOut is set
// to 0, matching spec.md §6 "sets caller's id to 0 on success".
func (m *Manager) Remove(id int, idOut *int) error {
	const op = "remove"

	if m.latch.set() {
		return busy(op)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.reg.byIDLookup(id)
	if !ok {
		return noDev(op)
	}
	if !m.reg.isTopmost(cs) {
		return &OpError{Op: op, Code: ErrBusy, Err: errNotTopmost}
	}

	if err := m.bus.Broadcast(notify.Event{Action: notify.PreRemove, ChangesetID: id}); err != nil {
		return invalid(op, err)
	}
	cs.State = PreRemove

	if err := changeset.Revert(cs.Edits); err != nil {
		// spec.md §4.5 remove step 5 describes a secondary "internal
		// re-apply" recovery attempt when revert itself fails partway. This
		// port treats any such failure as terminal instead: Revert already
		// gathers (via serr) exactly which edits could not be undone, which
		// is strictly more diagnostic than a blind re-apply of a log that is
		// now only partially reverted could be, and setting REVERT_FAIL
		// immediately avoids compounding a half-reverted tree with a second
		// mutating pass over it.
		m.latch.setRevertFail()
		return invalid(op, err)
	}

	for i, e := range cs.Edits {
		e := e
		m.bus.BroadcastEdit(notify.Event{ChangesetID: id, EditIndex: i, EditDescription: e.Kind.String() + " " + e.NodePath()})
	}

	cs.State = PostRemove
	m.reg.remove(cs)

	if idOut != nil {
		*idOut = 0
	}
	if err := m.bus.Broadcast(notify.Event{Action: notify.PostRemove, ChangesetID: id}); err != nil {
		// spec.md §7: symmetric with POST_APPLY — surfaced, but the
		// changeset remains removed.
		return invalid(op, err)
	}
	return nil
}

// RemoveAll implements remove_all (spec.md §4.5): iterate the registry from
// tail (newest/topmost) to head, removing each; stop on the first failure.
func (m *Manager) RemoveAll() error {
	m.mu.Lock()
	snapshot := m.reg.tailToHead()
	m.mu.Unlock()

	for _, cs := range snapshot {
		var discard int
		if err := m.Remove(cs.ID, &discard); err != nil {
			return err
		}
	}
	return nil
}
