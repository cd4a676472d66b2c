package deviceconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/plan"
)

const (
	// DefaultRetries is how many silent retries a call gets before the
	// operator is asked.
	DefaultRetries = 3

	// DefaultRetryDelay is the pause between silent retries.
	DefaultRetryDelay = 5 * time.Second

	// TransientDelay is the extra pause after a transient retCode.
	TransientDelay = 2 * time.Second
)

// ErrAbortRun is returned when the operator declines to continue after a
// call kept failing.
var ErrAbortRun = errors.New("configuration aborted by operator")

// Caller sends one API call. *Client implements it.
type Caller interface {
	Do(ctx context.Context, call plan.APICall) (*Response, error)
}

// Operator answers the yes/no questions asked once retries are exhausted.
// An error (end of input, interrupt) aborts the run.
type Operator interface {
	Confirm(question string) (bool, error)
}

// Spinner shows that a call is in flight. Stop must not return until the
// spinner has been erased.
type Spinner interface {
	Start(message string)
	Stop()
}

// Reporter prints per-call results.
type Reporter interface {
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// applyState is a step of the per-call retry state machine.
type applyState int

const (
	stateAttempting applyState = iota
	stateAutoRetry
	stateAskOperator
	stateRetry
	stateSkipItem
	stateAbortRun
	stateDone
)

// Applier sends an ordered list of configuration items to the device.
//
// Each call is attempted, then retried silently up to Retries times with
// RetryDelay between attempts. When those are used up the operator is asked
// to try again (which restores the full budget), to skip the call, or to
// abort the run.
type Applier struct {
	Client         Caller
	Operator       Operator
	Spinner        Spinner  // optional
	Reporter       Reporter // optional
	Retries        int
	RetryDelay     time.Duration
	TransientDelay time.Duration
	TransientCodes []int

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewApplier returns an Applier with the default retry policy.
func NewApplier(client Caller, operator Operator) *Applier {
	return &Applier{
		Client:         client,
		Operator:       operator,
		Retries:        DefaultRetries,
		RetryDelay:     DefaultRetryDelay,
		TransientDelay: TransientDelay,
		TransientCodes: DefaultTransientCodes,
	}
}

// ApplyAll applies every call of every item in order and reports whether
// all of them succeeded. A skipped call does not stop the items after it.
// The only errors are ErrAbortRun and context cancellation.
func (a *Applier) ApplyAll(ctx context.Context, items []plan.OrderedConfigItem) (bool, error) {
	all := true
	for _, item := range items {
		for _, call := range item.APICalls {
			ok, err := a.Apply(ctx, item, call)
			if err != nil {
				return false, err
			}
			all = all && ok
		}
	}
	return all, nil
}

// Apply runs one call through the retry state machine. It returns false
// without error when the operator chose to skip the call.
func (a *Applier) Apply(ctx context.Context, item plan.OrderedConfigItem, call plan.APICall) (bool, error) {
	policy := a.policy()
	policy.Reset()

	attempt := 0
	var failure string
	state := stateAttempting

	for {
		switch state {
		case stateAttempting:
			if err := ctx.Err(); err != nil {
				return false, err
			}
			attempt++

			outcome, msg, retryable, err := a.attempt(ctx, item, call)
			if err != nil {
				return false, err
			}
			if outcome.Success() {
				a.report().Success(fmt.Sprintf("%s: %s", itemLabel(item), msg))
				state = stateDone
				continue
			}
			failure = msg
			if !retryable {
				// Resending the same call cannot change the answer.
				state = stateAskOperator
				continue
			}
			if outcome == OutcomeTransient {
				if err := a.doSleep(ctx, a.TransientDelay); err != nil {
					return false, err
				}
			}
			state = stateAutoRetry

		case stateAutoRetry:
			delay := policy.NextBackOff()
			if delay == backoff.Stop {
				state = stateAskOperator
				continue
			}
			a.report().Warning(fmt.Sprintf("%s failed: %s. Retrying in %s", itemLabel(item), failure, delay))
			logging.LogRetry(item.ConfigItem, attempt, delay, failure)
			if err := a.doSleep(ctx, delay); err != nil {
				return false, err
			}
			state = stateAttempting

		case stateAskOperator:
			a.report().Error(fmt.Sprintf("%s failed: %s", itemLabel(item), failure))
			again, err := a.Operator.Confirm(fmt.Sprintf("Try %s again?", itemLabel(item)))
			if err != nil {
				return false, err
			}
			if again {
				state = stateRetry
				continue
			}
			cont, err := a.Operator.Confirm("Continue with the rest of the configuration anyway?")
			if err != nil {
				return false, err
			}
			if cont {
				state = stateSkipItem
			} else {
				state = stateAbortRun
			}

		case stateRetry:
			policy.Reset()
			state = stateAttempting

		case stateSkipItem:
			return false, nil

		case stateAbortRun:
			return false, ErrAbortRun

		case stateDone:
			return true, nil
		}
	}
}

// attempt sends call once. The returned message is what the operator sees:
// the device's retMsg verbatim, or a description of the transport failure.
// retryable is false when the call failed before reaching the device in a
// way another attempt cannot fix. Only context cancellation is returned as
// an error.
func (a *Applier) attempt(ctx context.Context, item plan.OrderedConfigItem, call plan.APICall) (outcome Outcome, msg string, retryable bool, err error) {
	if a.Spinner != nil {
		a.Spinner.Start(fmt.Sprintf("Applying %s", itemLabel(item)))
	}
	resp, err := a.Client.Do(ctx, call)
	if a.Spinner != nil {
		a.Spinner.Stop()
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OutcomeFailed, "", false, ctxErr
		}
		return OutcomeFailed, connectionFailure(err), IsRetryable(err), nil
	}

	outcome = Classify(call, resp, a.TransientCodes)
	msg = resp.RetMsg
	if msg == "" {
		msg = fmt.Sprintf("retCode %d", resp.RetCode)
	}
	return outcome, msg, true, nil
}

func connectionFailure(err error) string {
	if IsNetworkError(err) {
		return "unable to connect to the IMD (" + GetShortErrorMessage(err) + ")"
	}
	return GetShortErrorMessage(err)
}

func (a *Applier) policy() backoff.BackOff {
	// WithMaxRetries treats zero as unlimited
	if a.Retries <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(a.RetryDelay), uint64(a.Retries))
}

func (a *Applier) doSleep(ctx context.Context, d time.Duration) error {
	if a.sleep != nil {
		return a.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *Applier) report() Reporter {
	if a.Reporter == nil {
		return discardReporter{}
	}
	return a.Reporter
}

type discardReporter struct{}

func (discardReporter) Success(string) {}
func (discardReporter) Warning(string) {}
func (discardReporter) Error(string)   {}

func itemLabel(item plan.OrderedConfigItem) string {
	if item.ConfigItemName != "" {
		return item.ConfigItemName
	}
	return item.ConfigItem
}
