package signer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PromptPassword reads a password without echo.
func PromptPassword(label string) ([]byte, error) {
	fmt.Print(label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}
	return pw, nil
}

// TerminalConfirmer asks y/N on a terminal before each signature.
type TerminalConfirmer struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &TerminalConfirmer{in: bufio.NewReader(in), out: out}
}

func (t *TerminalConfirmer) ConfirmMessage(ctx context.Context, message string) error {
	return t.ask(ctx, fmt.Sprintf("\n--- sign message ---\n%s\n--------------------\nSign? [y/N]: ", message))
}

func (t *TerminalConfirmer) ConfirmCall(ctx context.Context, req CallRequest) error {
	method := req.Method
	if method == "" {
		method = "unknown method"
	}
	return t.ask(ctx, fmt.Sprintf("\nSend %s to %s on chain %d from %s? [y/N]: ",
		method, req.To.Hex(), req.ChainID, req.From.Hex()))
}

func (t *TerminalConfirmer) ask(ctx context.Context, prompt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return ErrRejected
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return ErrRejected
	}
}
