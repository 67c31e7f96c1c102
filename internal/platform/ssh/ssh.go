// Package ssh provides a minimal SSH exec client for the fleet's
// management channel. Connections are established per call; retry policy
// belongs to the caller.
package ssh

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	User       string
	PrivateKey []byte

	// Port defaults to 22.
	Port int

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// HostKeyCallback handles host key verification. If nil,
	// ssh.InsecureIgnoreHostKey() is used; fleet hosts are re-imaged often
	// enough that pinning happens at a higher layer.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on remote hosts. The private key is parsed once
// during construction; connections are created on demand per Execute call.
type Client struct {
	config Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg Config) (*Client, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("ssh private key cannot be empty")
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // see Config doc
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{config: cfg, signer: signer}, nil
}

// Execute connects to host and runs a single command, honoring ctx for both
// dial and session lifetime. Returns combined stdout+stderr.
func (c *Client) Execute(ctx context.Context, host, command string) (string, error) {
	client, err := c.connect(ctx, host)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-done:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", host, err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		if ctx.Err() != nil {
			return string(output), ctx.Err()
		}
		return string(output), fmt.Errorf("command failed on %s: %w", host, err)
	}
	return string(output), nil
}

// connect dials with the caller's context so a per-attempt deadline cuts
// off a hung TCP or handshake phase.
func (c *Client) connect(ctx context.Context, host string) (*ssh.Client, error) {
	clientConfig := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", c.config.Port))

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}
