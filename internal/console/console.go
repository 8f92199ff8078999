// Package console implements the interactive "press q to close" wait.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	QuitCommand = "q"
	Prompt      = "Done. Press q to close. "
	Farewell    = "bye bye."
)

var ErrInputClosed = errors.New("console input closed before quit command")

// WaitForQuit prints prompt and reads one line at a time until a line equals
// QuitCommand. Any other line prompts again.
//
// Reading in is not interruptible; when ctx is done WaitForQuit returns
// ctx.Err() and leaves the reader goroutine blocked on in.
func WaitForQuit(ctx context.Context, in io.Reader, out io.Writer, prompt string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- fmt.Errorf("cannot read console: %w", err)
			return
		}
		readErr <- ErrInputClosed
	}()

	for {
		if _, err := io.WriteString(out, prompt); err != nil {
			return fmt.Errorf("cannot write prompt: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			if IsQuit(line) {
				return nil
			}
		}
	}
}

// IsQuit reports whether line, without its line terminator, is the quit command.
func IsQuit(line string) bool {
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r") == QuitCommand
}
