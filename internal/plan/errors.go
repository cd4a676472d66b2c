package plan

import "fmt"

// SpecificationError reports a prompts document that cannot be turned into a
// correct list of device calls.
type SpecificationError struct {
	Item   string // config item, step or sequence entry concerned (may be empty)
	Reason string
	Err    error
}

func (e *SpecificationError) Error() string {
	msg := e.Reason
	if e.Item != "" {
		msg = fmt.Sprintf("%s: %s", e.Item, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "invalid prompts document: " + msg
}

func (e *SpecificationError) Unwrap() error {
	return e.Err
}

func specErrorf(item, format string, args ...any) *SpecificationError {
	return &SpecificationError{Item: item, Reason: fmt.Sprintf(format, args...)}
}
