package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/host"
)

var (
	errConsoleClosed = errors.New("console closed")
	errPromptPending = errors.New("another prompt is pending")
)

// console is the terminal face of the orchestrator: it shows progress,
// the memory status line, navigation targets, program output and prompts.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	status string
	answer chan bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newConsole(out io.Writer) *console {
	return &console{out: out, closed: make(chan struct{})}
}

// Printf writes one line.
func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Output prints program output from a session.
func (c *console) Output(o host.Output) {
	text := strings.TrimRight(o.Text, "\n")
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Category == "stderr" {
		fmt.Fprintf(c.out, "! %s\n", text)
		return
	}
	fmt.Fprintln(c.out, text)
}

// Begin implements debug.ProgressUI. The end line is printed once done
// closes.
func (c *console) Begin(sessionID, message string, done <-chan struct{}) debug.ProgressReporter {
	c.Printf("… %s", message)
	r := &progressLine{console: c, last: message}
	go func() {
		select {
		case <-done:
			c.Printf("✓ %s", r.message())
		case <-c.closed:
		}
	}()
	return r
}

type progressLine struct {
	console *console

	mu   sync.Mutex
	last string
}

func (p *progressLine) Report(message string) {
	p.mu.Lock()
	if message == p.last {
		p.mu.Unlock()
		return
	}
	p.last = message
	p.mu.Unlock()
	p.console.Printf("… %s", message)
}

func (p *progressLine) message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Show implements debug.StatusDisplay. Repeated text is not reprinted.
func (c *console) Show(text, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == c.status {
		return
	}
	c.status = text
	fmt.Fprintf(c.out, "[memory %s]\n", text)
}

// Hide implements debug.StatusDisplay.
func (c *console) Hide() {
	c.mu.Lock()
	c.status = ""
	c.mu.Unlock()
}

// Navigate implements debug.Navigator by printing an editor-clickable
// location.
func (c *console) Navigate(file string, line, column int) {
	c.Printf("→ %s:%d:%d", file, line, column)
}

// PromptAlwaysOpen implements devtools.Prompter. The answer arrives through
// the key loop.
func (c *console) PromptAlwaysOpen(ctx context.Context) (bool, error) {
	ch := make(chan bool, 1)

	c.mu.Lock()
	if c.answer != nil {
		c.mu.Unlock()
		return false, errPromptPending
	}
	c.answer = ch
	fmt.Fprintln(c.out, "Open DevTools automatically for Flutter apps? [y/n]")
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.answer == ch {
			c.answer = nil
		}
		c.mu.Unlock()
	}()

	select {
	case yes := <-ch:
		return yes, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.closed:
		return false, errConsoleClosed
	}
}

// answerPrompt consumes r if it answers a pending prompt.
func (c *console) answerPrompt(r rune) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.answer == nil {
		return false
	}
	switch r {
	case 'y', 'Y':
		c.answer <- true
	case 'n', 'N':
		c.answer <- false
	default:
		return false
	}
	c.answer = nil
	return true
}

// Close releases pending prompts and progress watchers.
func (c *console) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
