// Package probe polls newly provisioned hosts until they are reachable
// over the management channel.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/krisavpn/fleetctl/internal/platform/ssh"
	"github.com/krisavpn/fleetctl/internal/util/retry"
)

// UnreachableError reports a host that never became reachable within the
// retry budget.
type UnreachableError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("host %s unreachable after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// Dialer attempts one management-channel handshake against an address. It
// must honor the context deadline.
type Dialer interface {
	Handshake(ctx context.Context, address string) error
}

// Options bounds the polling loop.
type Options struct {
	// Interval is the fixed delay between attempts.
	Interval time.Duration
	// MaxAttempts bounds the number of handshakes tried.
	MaxAttempts int
	// AttemptTimeout bounds each individual handshake, distinct from the
	// overall deadline on the caller's context.
	AttemptTimeout time.Duration
	// KnownHostsPath, when set, is scrubbed of entries for the probed
	// address before polling starts. A re-provisioned host at a recycled
	// address presents a new identity; a stale cached identity would make
	// every handshake fail as a security mismatch.
	KnownHostsPath string
}

// Prober polls hosts until reachable.
type Prober struct {
	dialer Dialer
	opts   Options
}

// New creates a prober with the given dialer and options.
func New(dialer Dialer, opts Options) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 30
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	return &Prober{dialer: dialer, opts: opts}
}

// AwaitReachable polls address until one handshake succeeds. It returns nil
// on the first reachable response and a *UnreachableError once the retry
// budget is exhausted.
func (p *Prober) AwaitReachable(ctx context.Context, address string) error {
	if p.opts.KnownHostsPath != "" {
		if err := PurgeKnownHost(p.opts.KnownHostsPath, address); err != nil {
			return fmt.Errorf("failed to purge cached host identity for %s: %w", address, err)
		}
	}

	err := retry.Do(ctx, func(attemptCtx context.Context) error {
		return p.dialer.Handshake(attemptCtx, address)
	},
		retry.WithMaxAttempts(p.opts.MaxAttempts),
		retry.WithFixedInterval(p.opts.Interval),
		retry.WithAttemptTimeout(p.opts.AttemptTimeout),
	)
	if err != nil {
		return &UnreachableError{Address: address, Attempts: p.opts.MaxAttempts, Err: err}
	}
	return nil
}

// SSHDialer probes by opening an SSH session and running a trivial command.
type SSHDialer struct {
	client *ssh.Client
}

// NewSSHDialer wraps an SSH client as a probe dialer.
func NewSSHDialer(client *ssh.Client) *SSHDialer {
	return &SSHDialer{client: client}
}

// Handshake implements Dialer. Login plus `true` proves the host booted,
// sshd accepted the management key, and a shell runs.
func (d *SSHDialer) Handshake(ctx context.Context, address string) error {
	_, err := d.client.Execute(ctx, address, "true")
	return err
}
