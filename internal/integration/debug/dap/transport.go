// Package dap implements a Debug Adapter Protocol client.
package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"

	godap "github.com/google/go-dap"
)

// Transport carries framed DAP messages.
type Transport interface {
	// Send writes one message body.
	Send(content []byte) error

	// Receive reads the next message body.
	Receive() ([]byte, error)

	// Close closes the transport.
	Close() error
}

// streamTransport frames messages over any reader/writer pair.
type streamTransport struct {
	w      io.Writer
	reader *bufio.Reader
	mu     sync.Mutex
}

func (t *streamTransport) Send(content []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := godap.WriteBaseMessage(t.w, content); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (t *streamTransport) Receive() ([]byte, error) {
	content, err := godap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return content, nil
}

// StdioTransport talks to a debug adapter subprocess over stdin/stdout.
type StdioTransport struct {
	streamTransport
	cmd   *exec.Cmd
	stdin io.WriteCloser
	once  sync.Once
	err   error
}

// NewStdioTransport starts cmd and connects to its stdio.
func NewStdioTransport(cmd *exec.Cmd) (*StdioTransport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return &StdioTransport{
		streamTransport: streamTransport{w: stdin, reader: bufio.NewReader(stdout)},
		cmd:             cmd,
		stdin:           stdin,
	}, nil
}

// Close closes the pipes, kills the adapter and waits for it.
func (t *StdioTransport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.stdin.Close()
		t.mu.Unlock()

		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		// Wait closes stdout.
		err := t.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			t.err = err
		}
	})
	return t.err
}

// SocketTransport talks to a debug adapter over TCP.
type SocketTransport struct {
	streamTransport
	conn net.Conn
}

// DialSocket connects to a debug adapter listening at address.
func DialSocket(ctx context.Context, address string) (*SocketTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewConnTransport(conn), nil
}

// NewConnTransport wraps an established connection.
func NewConnTransport(conn net.Conn) *SocketTransport {
	return &SocketTransport{
		streamTransport: streamTransport{w: conn, reader: bufio.NewReader(conn)},
		conn:            conn,
	}
}

// Close closes the connection.
func (t *SocketTransport) Close() error {
	return t.conn.Close()
}
