// Package overlay implements the overlay-apply/overlay-remove pipeline of
// spec.md: target resolution (C1), symbol-path fixup (C2), changeset
// building (C3), duplicate-edit checking (C4), changeset lifecycle (C5),
// the registry and topmost policy (C6), and the corruption latch (C7),
// wired together by Manager.
//
// The wrapped-error idiom (an operation name plus one of a small closed set
// of sentinel causes) is grounded on vroot/overlay/layer.go, which wraps
// every filesystem operation's error as `wrapper.PathErr(op, name, err)`;
// here the "path" slot is generalized to a changeset id or node path and
// the sentinel set is spec.md §6's four boundary codes.
package overlay

import (
	"errors"
	"fmt"
)

// Sentinel error codes observable at the public boundary (spec.md §6).
var (
	ErrInvalid = errors.New("overlay: invalid")
	ErrNoMem   = errors.New("overlay: no memory")
	ErrBusy    = errors.New("overlay: busy")
	ErrNoDev   = errors.New("overlay: no such changeset")
)

// OpError is the error type every public Manager operation returns. Code is
// always one of the four sentinels above so callers can use errors.Is
// against it directly; Err optionally carries the underlying cause.
type OpError struct {
	Op   string
	Code error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("overlay: %s: %v: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("overlay: %s: %v", e.Op, e.Code)
}

// Unwrap exposes both the code sentinel and the wrapped cause to
// errors.Is/errors.As, using the Go 1.20+ multi-error Unwrap form.
func (e *OpError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Code, e.Err}
	}
	return []error{e.Code}
}

func invalid(op string, err error) *OpError { return &OpError{Op: op, Code: ErrInvalid, Err: err} }
func busy(op string) *OpError               { return &OpError{Op: op, Code: ErrBusy} }
func noDev(op string) *OpError               { return &OpError{Op: op, Code: ErrNoDev} }

// Causes wrapped inside OpError.Err by the various components. These are
// not part of the public boundary (callers match on Code), but are kept as
// named sentinels rather than ad hoc fmt.Errorf strings so tests can assert
// on the precise failure reason.
var (
	errBadTargetPhandle    = errors.New("target property is not a 4-byte phandle")
	errPhandleNotFound     = errors.New("phandle not found in live tree")
	errTargetPathNotFound  = errors.New("target-path not found in live tree")
	errNoTargetProperty    = errors.New("fragment has neither target nor target-path")
	errCellsMismatch       = errors.New("#address-cells/#size-cells mismatch between overlay and live tree")
	errSymbolsUpdate       = errors.New("overlay may not update an existing /__symbols__ entry")
	errPhandleCollision    = errors.New("overlay node and live node both declare a phandle")
	errNoFragments         = errors.New("overlay contains zero fragments")
	errNoOverlayChild      = errors.New("fragment metadata node has no __overlay__ child")
	errDuplicateNodeEdit   = errors.New("duplicate ATTACH_NODE/DETACH_NODE edit for the same node path")
	errDuplicatePropEdit   = errors.New("duplicate property edit for the same node path and property name")
	errSymbolFixupFailed   = errors.New("symbol path could not be rewritten")
	errNotTopmost          = errors.New("changeset is not the topmost overlay touching its nodes")
)
