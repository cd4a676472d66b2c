package deviceconfig

import (
	"slices"
	"strings"

	"github.com/rackops/imdcfg/internal/plan"
)

// Outcome is how a device response is treated by the Applier.
type Outcome int

const (
	// OutcomeFailed is a logical failure: a non-zero retCode with no
	// special meaning, or no response at all.
	OutcomeFailed Outcome = iota
	// OutcomeSucceeded is retCode 0.
	OutcomeSucceeded
	// OutcomeAlreadyApplied is a non-zero retCode that means the desired
	// state is already in place.
	OutcomeAlreadyApplied
	// OutcomeTransient is a retCode that warrants a short pause before the
	// normal retry path.
	OutcomeTransient
)

// Success reports whether the call needs no further attempts.
func (o Outcome) Success() bool {
	return o == OutcomeSucceeded || o == OutcomeAlreadyApplied
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAlreadyApplied:
		return "already applied"
	case OutcomeTransient:
		return "transient failure"
	default:
		return "failed"
	}
}

const (
	msgInsufficientPermissions = "insufficient permissions"
	msgPathNotFound            = "path not found"
)

// DefaultTransientCodes are the retCodes an IMD answers with while it is
// busy or while a freshly created account is still being activated.
var DefaultTransientCodes = []int{5, 6}

// Classify decides what a device response means for call.
//
// Adding credentials that already exist is answered with "insufficient
// permissions", and deleting something already gone with "path not found";
// both count as success so a resumed run can resend every call.
func Classify(call plan.APICall, resp *Response, transientCodes []int) Outcome {
	if resp == nil {
		return OutcomeFailed
	}
	if resp.RetCode == 0 {
		return OutcomeSucceeded
	}

	msg := strings.ToLower(resp.RetMsg)
	if isAuthPath(call.APIPath) && strings.Contains(msg, msgInsufficientPermissions) {
		return OutcomeAlreadyApplied
	}
	if call.Cmd == plan.CmdDelete && strings.Contains(msg, msgPathNotFound) {
		return OutcomeAlreadyApplied
	}
	if slices.Contains(transientCodes, resp.RetCode) {
		return OutcomeTransient
	}
	return OutcomeFailed
}

// isAuthPath matches "auth", "auth/<user>" and their absolute forms.
func isAuthPath(apiPath string) bool {
	p := strings.TrimPrefix(apiPath, "/")
	p = strings.TrimPrefix(p, "api/")
	first, _, _ := strings.Cut(p, "/")
	return first == "auth"
}
