// Package outcome decides the result of a conformance test from the
// observations the executor made.
package outcome

import "fmt"

// Kind is the final classification of a test.
type Kind int

const (
	Pass Kind = iota
	Fail
	Skip
	XFail // failed as expected
	XPass // passed although a failure was expected
)

// Kinds lists every kind in report order.
var Kinds = []Kind{Pass, Fail, Skip, XFail, XPass}

func (k Kind) String() string {
	switch k {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Skip:
		return "skip"
	case XFail:
		return "xfail"
	case XPass:
		return "xpass"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Symbol is the single-character progress marker for k.
func (k Kind) Symbol() string {
	switch k {
	case Pass:
		return "."
	case Fail:
		return "F"
	case Skip:
		return "S"
	case XFail:
		return "x"
	case XPass:
		return "X"
	}
	return "?"
}

// IsFailure reports whether k makes the whole run unsuccessful.
func (k Kind) IsFailure() bool {
	return k == Fail || k == XPass
}

// Verdict is a classification with its human-readable reason.
type Verdict struct {
	Kind    Kind
	Message string
}
