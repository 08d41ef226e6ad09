// Package nntp implements the NNTP client stack: a single-command
// connection state machine, a per-provider pool, and a multi-provider
// manager with single-flight article fetches.
package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Connection states.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateBusy
)

// Per-operation timeouts.
const (
	connectTimeout   = 15 * time.Second
	commandTimeout   = 30 * time.Second
	bodyTimeout      = 120 * time.Second
	keepaliveIdle    = 60 * time.Second
	keepaliveTickInt = 5 * time.Minute
)

// Error classes consumed by the pool's health accounting.
const (
	ClassRetryable = "retryable"
	ClassNotFound  = "not_found"
	ClassFatal     = "fatal"
)

// ProtocolError is a non-2xx NNTP response.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("nntp: %d %s", e.Code, e.Message)
}

// Classify buckets an error for health accounting: article-missing
// codes are not_found, auth problems are fatal, everything else
// (network IO, timeouts, 400) is retryable.
func Classify(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		switch pe.Code {
		case 420, 430:
			return ClassNotFound
		case 480, 482:
			return ClassFatal
		}
		if pe.Code == 400 {
			return ClassRetryable
		}
		msg := strings.ToLower(pe.Message)
		if strings.Contains(msg, "auth") || strings.Contains(msg, "password") {
			return ClassFatal
		}
		return ClassRetryable
	}
	return ClassRetryable
}

// ProviderConfig describes one NNTP provider.
type ProviderConfig struct {
	Name           string
	Host           string
	Port           int
	TLS            bool
	Username       string
	Password       string
	MaxConnections int
	Priority       int
}

// Addr returns the dial address.
func (c ProviderConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Conn is a single NNTP connection. The protocol is one command at a
// time; callers serialise through the pool.
type Conn struct {
	config ProviderConfig
	logger zerolog.Logger

	state atomic.Int32

	mu       sync.Mutex
	netConn  net.Conn
	text     *textproto.Conn
	lastUsed time.Time
}

// NewConn creates an unconnected connection.
func NewConn(config ProviderConfig, logger zerolog.Logger) *Conn {
	return &Conn{
		config: config,
		logger: logger.With().Str("component", "nntp-conn").Str("provider", config.Name).Logger(),
	}
}

// State returns the current connection state.
func (c *Conn) State() int32 { return c.state.Load() }

// LastUsed returns when the connection last completed a command.
func (c *Conn) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Connect dials, reads the greeting and authenticates when credentials
// are configured.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) {
		return fmt.Errorf("connect from state %d", c.state.Load())
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	var netConn net.Conn
	var err error
	if c.config.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: c.config.Host}}
		netConn, err = tlsDialer.DialContext(ctx, "tcp", c.config.Addr())
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", c.config.Addr())
	}
	if err != nil {
		c.state.Store(StateDisconnected)
		return fmt.Errorf("dial %s: %w", c.config.Addr(), err)
	}

	text := textproto.NewConn(netConn)
	netConn.SetDeadline(time.Now().Add(commandTimeout))
	code, message, err := text.ReadCodeLine(0)
	if err != nil || (code != 200 && code != 201) {
		netConn.Close()
		c.state.Store(StateDisconnected)
		if err != nil {
			return fmt.Errorf("read greeting: %w", err)
		}
		return &ProtocolError{Code: code, Message: message}
	}

	c.mu.Lock()
	c.netConn = netConn
	c.text = text
	c.lastUsed = time.Now()
	c.mu.Unlock()

	if c.config.Username != "" {
		c.state.Store(StateAuthenticating)
		if err := c.authenticate(); err != nil {
			c.Close()
			return err
		}
	}

	c.state.Store(StateReady)
	c.logger.Debug().Str("addr", c.config.Addr()).Msg("Connected")
	return nil
}

// authenticate runs AUTHINFO USER/PASS.
func (c *Conn) authenticate() error {
	code, message, err := c.command("AUTHINFO USER "+c.config.Username, commandTimeout)
	if err != nil {
		return err
	}
	if code == 381 {
		code, message, err = c.command("AUTHINFO PASS "+c.config.Password, commandTimeout)
		if err != nil {
			return err
		}
	}
	if code != 281 {
		return &ProtocolError{Code: code, Message: message}
	}
	return nil
}

// Body fetches an article body by message-id and returns the raw
// dot-decoded bytes.
func (c *Conn) Body(ctx context.Context, messageID string) ([]byte, error) {
	if !c.state.CompareAndSwap(StateReady, StateBusy) {
		return nil, fmt.Errorf("connection not ready (state %d)", c.state.Load())
	}
	defer c.state.CompareAndSwap(StateBusy, StateReady)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text == nil {
		return nil, errors.New("connection closed")
	}

	deadline := time.Now().Add(bodyTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.netConn.SetDeadline(deadline)

	id := messageID
	if !strings.HasPrefix(id, "<") {
		id = "<" + id + ">"
	}
	if err := c.text.PrintfLine("BODY %s", id); err != nil {
		c.markBroken()
		return nil, err
	}
	code, message, err := c.text.ReadCodeLine(0)
	if err != nil {
		c.markBroken()
		return nil, err
	}
	if code != 222 {
		c.lastUsed = time.Now()
		return nil, &ProtocolError{Code: code, Message: message}
	}

	body, err := io.ReadAll(c.text.DotReader())
	if err != nil {
		c.markBroken()
		return nil, err
	}
	c.lastUsed = time.Now()
	return body, nil
}

// Keepalive issues DATE when the connection has been idle long enough.
// Errors are swallowed; a broken connection is simply closed.
func (c *Conn) Keepalive() {
	if c.state.Load() != StateReady {
		return
	}
	if time.Since(c.LastUsed()) < keepaliveIdle {
		return
	}
	if !c.state.CompareAndSwap(StateReady, StateBusy) {
		return
	}
	defer c.state.CompareAndSwap(StateBusy, StateReady)

	if _, _, err := c.command("DATE", commandTimeout); err != nil {
		c.logger.Debug().Err(err).Msg("Keepalive failed, closing connection")
		c.Close()
	}
}

// command sends one line and reads the status reply. Caller must not
// hold c.mu.
func (c *Conn) command(line string, timeout time.Duration) (int, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text == nil {
		return 0, "", errors.New("connection closed")
	}
	c.netConn.SetDeadline(time.Now().Add(timeout))
	if err := c.text.PrintfLine("%s", line); err != nil {
		c.markBroken()
		return 0, "", err
	}
	code, message, err := c.text.ReadCodeLine(0)
	if err != nil {
		c.markBroken()
		return 0, "", err
	}
	c.lastUsed = time.Now()
	return code, message, nil
}

// markBroken tears down the socket after an IO failure. Caller holds
// c.mu.
func (c *Conn) markBroken() {
	if c.netConn != nil {
		c.netConn.Close()
	}
	c.netConn = nil
	c.text = nil
	c.state.Store(StateDisconnected)
}

// Close sends QUIT best-effort and disconnects.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.text != nil {
		c.netConn.SetDeadline(time.Now().Add(2 * time.Second))
		c.text.PrintfLine("QUIT")
	}
	if c.netConn != nil {
		c.netConn.Close()
	}
	c.netConn = nil
	c.text = nil
	c.state.Store(StateDisconnected)
}
