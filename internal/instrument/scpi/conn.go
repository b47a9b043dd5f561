// Package scpi talks to bench instruments over raw-socket SCPI (TCP, usually
// port 5025). Every command string comes from configuration, so the adapters
// carry no instrument-specific command set.
package scpi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a single command or query round trip.
	DefaultTimeout = 5 * time.Second

	terminator = "\n"
)

// ErrClosed is returned when using a closed connection.
var ErrClosed = errors.New("scpi: connection closed")

// WithTimeout sets the per-command timeout
func WithTimeout(d time.Duration) func(c *Conn) {
	return func(c *Conn) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for the connection
func WithLogger(logger *slog.Logger) func(c *Conn) {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Conn is a line-oriented SCPI connection. It is safe for concurrent use;
// commands are serialized.
type Conn struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the instrument at addr (host:port).
func Dial(ctx context.Context, addr string, options ...func(c *Conn)) (*Conn, error) {
	c := Conn{
		addr:    addr,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.logger = c.logger.With(slog.String("instrument", addr))

	return &c, nil
}

// Write sends a command that has no response.
func (c *Conn) Write(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.write(ctx, cmd)
}

// Query sends a command and returns its response line without the terminator.
func (c *Conn) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(ctx, cmd); err != nil {
		return "", err
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading response to %q from %s: %w", cmd, c.addr, err)
	}

	resp := strings.TrimSpace(line)
	c.logger.Debug("scpi query", slog.String("cmd", cmd), slog.String("response", resp))
	return resp, nil
}

func (c *Conn) write(ctx context.Context, cmd string) error {
	if c.conn == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline on %s: %w", c.addr, err)
	}

	if _, err := io.WriteString(c.conn, cmd+terminator); err != nil {
		return fmt.Errorf("writing %q to %s: %w", cmd, c.addr, err)
	}

	c.logger.Debug("scpi write", slog.String("cmd", cmd))
	return nil
}

// Close closes the connection. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
