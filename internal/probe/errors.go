package probe

import "errors"

// Error classes. Use errors.Is to test which class a CheckError belongs to.
var (
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrExtraction        = errors.New("extraction failed")
	ErrHealthGate        = errors.New("health gate failed")
)

// CheckError is a classified failure. Its message is what operators see in
// the error line, so it never includes the class name.
type CheckError struct {
	Class error
	Msg   string
	Err   error
}

func (e *CheckError) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *CheckError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

// GateFailure reports a failed health predicate.
func GateFailure(msg string) error {
	return &CheckError{Class: ErrHealthGate, Msg: msg}
}

// ExtractionFailure reports malformed or missing source output.
func ExtractionFailure(msg string, err error) error {
	return &CheckError{Class: ErrExtraction, Msg: msg, Err: err}
}

// SourceUnreachable reports that the source could not be contacted at all.
func SourceUnreachable(err error) error {
	return &CheckError{Class: ErrSourceUnreachable, Err: err}
}
