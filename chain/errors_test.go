package chain

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

type recordingHandler struct {
	got string
}

func (h *recordingHandler) Deleted(*Deleted) error     { h.got = "deleted"; return nil }
func (h *recordingHandler) NotExists(*NotExists) error { h.got = "not-exists"; return nil }
func (h *recordingHandler) DisplayError(*DisplayError) error {
	h.got = "display"
	return nil
}
func (h *recordingHandler) DynamicFieldMissing(*DynamicFieldMissing) error {
	h.got = "field-missing"
	return nil
}
func (h *recordingHandler) Unknown(*Unknown) error { h.got = "unknown"; return nil }

func TestHandle(t *testing.T) {
	cases := []struct {
		err  RemoteReadError
		want string
	}{
		{&Deleted{ID: "0x1"}, "deleted"},
		{&NotExists{ID: "0x1"}, "not-exists"},
		{&DisplayError{ID: "0x1", Msg: "m"}, "display"},
		{&DynamicFieldMissing{Parent: "0x1", Name: "routes"}, "field-missing"},
		{&Unknown{ID: "0x1", Code: "42"}, "unknown"},
	}
	for _, c := range cases {
		var h recordingHandler
		wrapped := pkgerrors.Wrap(c.err, "context")
		if err := Handle(wrapped, &h); err != nil {
			t.Fatal(err)
		}
		if h.got != c.want {
			t.Errorf("%T: got %s, want %s", c.err, h.got, c.want)
		}
		if Describe(wrapped) == "" {
			t.Errorf("%T: empty description", c.err)
		}
	}
}

func TestHandleOther(t *testing.T) {
	other := errors.New("other")
	var h recordingHandler
	if err := Handle(other, &h); err != other {
		t.Errorf("got %v, want the original error", err)
	}
	if h.got != "" {
		t.Errorf("handler called with %s", h.got)
	}
	if _, ok := Classify(other); ok {
		t.Error("classified a non-remote error")
	}
	if got := Describe(other); got != "other" {
		t.Errorf("got description %q", got)
	}
}
