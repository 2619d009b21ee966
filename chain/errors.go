package chain

import (
	"errors"
	"fmt"
)

// RemoteReadError is a failure to read a remote object.
// The set of implementations is closed:
// *Deleted, *NotExists, *DisplayError, *DynamicFieldMissing, and *Unknown.
// Use Handle to dispatch on it.
type RemoteReadError interface {
	error
	accept(ErrorHandler) error
}

// ErrorHandler has one method per kind of RemoteReadError.
// Implementing it means handling every kind.
type ErrorHandler interface {
	Deleted(*Deleted) error
	NotExists(*NotExists) error
	DisplayError(*DisplayError) error
	DynamicFieldMissing(*DynamicFieldMissing) error
	Unknown(*Unknown) error
}

// Deleted means the object existed but has been deleted.
type Deleted struct {
	ID string
}

func (e *Deleted) Error() string               { return fmt.Sprintf("object %s deleted", e.ID) }
func (e *Deleted) accept(h ErrorHandler) error { return h.Deleted(e) }

// NotExists means there is no object with the requested id.
type NotExists struct {
	ID string
}

func (e *NotExists) Error() string               { return fmt.Sprintf("object %s does not exist", e.ID) }
func (e *NotExists) accept(h ErrorHandler) error { return h.NotExists(e) }

// DisplayError means the object could not be rendered.
type DisplayError struct {
	ID  string
	Msg string
}

func (e *DisplayError) Error() string {
	return fmt.Sprintf("displaying object %s: %s", e.ID, e.Msg)
}
func (e *DisplayError) accept(h ErrorHandler) error { return h.DisplayError(e) }

// DynamicFieldMissing means a parent has no dynamic field with the given name.
type DynamicFieldMissing struct {
	Parent string
	Name   string
}

func (e *DynamicFieldMissing) Error() string {
	return fmt.Sprintf("object %s has no dynamic field %q", e.Parent, e.Name)
}
func (e *DynamicFieldMissing) accept(h ErrorHandler) error { return h.DynamicFieldMissing(e) }

// Unknown is any other failure reported by the remote side.
type Unknown struct {
	ID   string
	Code string
}

func (e *Unknown) Error() string {
	return fmt.Sprintf("reading object %s: error code %s", e.ID, e.Code)
}
func (e *Unknown) accept(h ErrorHandler) error { return h.Unknown(e) }

// Classify finds the RemoteReadError in err's chain, if there is one.
func Classify(err error) (RemoteReadError, bool) {
	var r RemoteReadError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Handle dispatches err to the matching method of h
// if err wraps a RemoteReadError.
// Otherwise it returns err unchanged.
func Handle(err error, h ErrorHandler) error {
	if r, ok := Classify(err); ok {
		return r.accept(h)
	}
	return err
}

// Describe is a short user-facing explanation of a read failure.
func Describe(err error) string {
	var d describer
	if e := Handle(err, &d); e != nil {
		return e.Error()
	}
	return d.msg
}

type describer struct {
	msg string
}

func (d *describer) Deleted(e *Deleted) error {
	d.msg = "the site object " + e.ID + " has been deleted"
	return nil
}

func (d *describer) NotExists(e *NotExists) error {
	d.msg = "there is no object " + e.ID
	return nil
}

func (d *describer) DisplayError(e *DisplayError) error {
	d.msg = "object " + e.ID + " cannot be displayed: " + e.Msg
	return nil
}

func (d *describer) DynamicFieldMissing(e *DynamicFieldMissing) error {
	d.msg = "object " + e.Parent + " has no " + e.Name
	return nil
}

func (d *describer) Unknown(e *Unknown) error {
	d.msg = "unexpected error " + e.Code + " reading " + e.ID
	return nil
}
