package network

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/logging"
)

const (
	// DefaultAttempts is how many pings are sent before the operator is asked.
	DefaultAttempts = 10

	// DefaultInterval is the pause between failed pings.
	DefaultInterval = time.Second
)

// Runner executes a command and reports whether it exited successfully.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with os/exec, discarding its output.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Pinger checks that an IMD answers ICMP echo using the system ping
// command, which needs no privileges.
type Pinger struct {
	Run      Runner
	Attempts int
	Interval time.Duration
	GOOS     string
}

// NewPinger returns a Pinger with the default attempt policy.
func NewPinger() *Pinger {
	return &Pinger{
		Run:      ExecRunner,
		Attempts: DefaultAttempts,
		Interval: DefaultInterval,
		GOOS:     runtime.GOOS,
	}
}

// Args returns the ping arguments for one echo request to host.
func (p *Pinger) Args(host string) []string {
	count := "-c"
	if p.GOOS == "windows" {
		count = "-n"
	}
	return []string{count, "1", host}
}

// Ping sends a single echo request.
func (p *Pinger) Ping(ctx context.Context, host string) error {
	return p.Run(ctx, "ping", p.Args(host)...)
}

// Reachable pings host up to Attempts times. onWait, when not nil, is
// called once after the first failure.
func (p *Pinger) Reachable(ctx context.Context, host string, onWait func()) bool {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	// WithMaxRetries treats zero as unlimited
	var retries backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		retries = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(attempts-1))
	}
	policy := backoff.WithContext(retries, ctx)

	waited := false
	err := backoff.RetryNotify(func() error {
		return p.Ping(ctx, host)
	}, policy, func(err error, next time.Duration) {
		logging.Debug("ping failed", zap.String("host", host), zap.Error(err), zap.Duration("next", next))
		if !waited && onWait != nil {
			onWait()
		}
		waited = true
	})
	return err == nil
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// ErrUnreachable is returned when the operator stops waiting for an IMD.
var ErrUnreachable = errors.New("IMD is not reachable")

// WaitForPing pings host until it answers. After each round of Attempts
// failures the operator is asked whether to keep trying.
func (p *Pinger) WaitForPing(ctx context.Context, host string, c Confirmer, onWait func()) error {
	for {
		if p.Reachable(ctx, host, onWait) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		again, err := c.Confirm(fmt.Sprintf("Unable to reach IMD at %s. Try again?", host))
		if err != nil {
			return err
		}
		if !again {
			return fmt.Errorf("%w at %s", ErrUnreachable, host)
		}
		onWait = nil
	}
}
