package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	failures int
	calls    int
	lastCtx  context.Context
}

func (d *fakeDialer) Handshake(ctx context.Context, _ string) error {
	d.calls++
	d.lastCtx = ctx
	if d.calls <= d.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestAwaitReachableFirstTry(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer, Options{Interval: time.Millisecond, MaxAttempts: 5, AttemptTimeout: time.Second})

	require.NoError(t, p.AwaitReachable(context.Background(), "203.0.113.10"))
	assert.Equal(t, 1, dialer.calls)
}

func TestAwaitReachableAfterRetries(t *testing.T) {
	dialer := &fakeDialer{failures: 3}
	p := New(dialer, Options{Interval: time.Millisecond, MaxAttempts: 5, AttemptTimeout: time.Second})

	require.NoError(t, p.AwaitReachable(context.Background(), "203.0.113.10"))
	assert.Equal(t, 4, dialer.calls)
}

func TestAwaitReachableExhaustion(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	p := New(dialer, Options{Interval: time.Millisecond, MaxAttempts: 3, AttemptTimeout: time.Second})

	err := p.AwaitReachable(context.Background(), "203.0.113.10")
	require.Error(t, err)

	var unreachable *UnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, "203.0.113.10", unreachable.Address)
	assert.Equal(t, 3, unreachable.Attempts)
	assert.Equal(t, 3, dialer.calls)
}

func TestAwaitReachablePerAttemptDeadline(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer, Options{Interval: time.Millisecond, MaxAttempts: 2, AttemptTimeout: 50 * time.Millisecond})

	require.NoError(t, p.AwaitReachable(context.Background(), "203.0.113.10"))

	deadline, ok := dialer.lastCtx.Deadline()
	require.True(t, ok, "each attempt must carry its own deadline")
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(&fakeDialer{}, Options{})
	assert.Equal(t, 5*time.Second, p.opts.Interval)
	assert.Equal(t, 30, p.opts.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.opts.AttemptTimeout)
}
