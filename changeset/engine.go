package changeset

import (
	"errors"
	"fmt"

	"github.com/ngicks/go-common/serr"
)

// ErrAttachFailed is returned when an AttachNode/DetachNode edit's Node is
// not actually a child of Parent at revert time.
var ErrAttachFailed = errors.New("changeset: node not attached to expected parent")

// ErrPropertyMissing is returned when a RemoveProperty edit targets a
// property that is not present on Node.
var ErrPropertyMissing = errors.New("changeset: property not present")

// ApplyError is returned by Apply when an edit fails. RevertErr is nil when
// the internal unwind (spec.md §4.5 step 8) successfully undid every edit
// applied before the failure; a non-nil RevertErr means the live tree may
// be left partially mutated, which is the signal Manager uses to set the
// APPLY_FAIL latch bit (spec.md §4.7).
type ApplyError struct {
	Err       error
	RevertErr error
}

func (e *ApplyError) Error() string {
	if e.RevertErr != nil {
		return fmt.Sprintf("apply failed (%v) and internal revert also failed: %v", e.Err, e.RevertErr)
	}
	return e.Err.Error()
}

func (e *ApplyError) Unwrap() []error {
	if e.RevertErr != nil {
		return []error{e.Err, e.RevertErr}
	}
	return []error{e.Err}
}

// Apply applies edits in order against the live tree they reference,
// mirroring vroot/overlay's copyOnWrite: each step either succeeds or the
// whole operation unwinds. On the first failing edit, every edit applied so
// far in this call is reverted (in reverse order) before the error is
// returned, so the caller always observes an all-or-nothing effect — the
// engine performs the "internal revert" spec.md §4.5 step 8 refers to.
func Apply(edits Log) error {
	applied := make(Log, 0, len(edits))
	for _, e := range edits {
		if err := applyOne(e); err != nil {
			revertErr := Revert(applied)
			return &ApplyError{Err: err, RevertErr: revertErr}
		}
		applied = append(applied, e)
	}
	return nil
}

// Revert undoes edits in reverse order. Unlike Apply, Revert does not stop
// at the first failure — it is invoked both as Apply's internal unwind path
// and as the external primitive revert in spec.md §4.5 remove step 5, and in
// both cases the caller wants to know about every edit that could not be
// undone, not just the first. Per-edit errors are gathered with
// github.com/ngicks/go-common/serr, the same way vroot/overlay/layers.go
// gathers per-file Close errors.
func Revert(edits Log) error {
	if len(edits) == 0 {
		return nil
	}
	errs := make([]serr.PrefixErr, len(edits))
	for i := len(edits) - 1; i >= 0; i-- {
		errs[len(edits)-1-i] = serr.PrefixErr{
			P: fmt.Sprintf("edit %d (%s %s): ", i, edits[i].Kind, edits[i].NodePath()),
			E: revertOne(edits[i]),
		}
	}
	return serr.GatherPrefixed(errs)
}

func applyOne(e *Edit) error {
	switch e.Kind {
	case AttachNode:
		e.Parent.AttachChild(e.Node)
		return nil
	case DetachNode:
		if !e.Parent.DetachChild(e.Node) {
			return ErrAttachFailed
		}
		return nil
	case AddProperty:
		e.Node.AddProperty(e.Property)
		return nil
	case UpdateProperty:
		e.prev = e.Node.UpdateProperty(e.Property)
		return nil
	case RemoveProperty:
		prev := e.Node.RemoveProperty(e.Property.Name)
		if prev == nil {
			return ErrPropertyMissing
		}
		e.prev = prev
		return nil
	default:
		return fmt.Errorf("changeset: unknown edit kind %v", e.Kind)
	}
}

func revertOne(e *Edit) error {
	switch e.Kind {
	case AttachNode:
		if !e.Parent.DetachChild(e.Node) {
			return ErrAttachFailed
		}
		return nil
	case DetachNode:
		e.Parent.AttachChild(e.Node)
		return nil
	case AddProperty:
		if e.Node.RemoveProperty(e.Property.Name) == nil {
			return ErrPropertyMissing
		}
		return nil
	case UpdateProperty:
		if e.prev != nil {
			e.Node.UpdateProperty(e.prev)
		} else {
			e.Node.RemoveProperty(e.Property.Name)
		}
		return nil
	case RemoveProperty:
		if e.prev != nil {
			e.Node.AddProperty(e.prev)
		}
		return nil
	default:
		return fmt.Errorf("changeset: unknown edit kind %v", e.Kind)
	}
}
